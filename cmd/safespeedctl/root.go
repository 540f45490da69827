package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCmd builds the command tree with its own viper instance so tests can
// run commands in isolation.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "safespeedctl",
		Short:         "Operator tooling for the safe-speed service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cmd, cfgFile)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	root.PersistentFlags().Bool("json", false, "Print results as JSON")
	root.PersistentFlags().String("log-level", "warn", "Log level for diagnostic output")

	root.AddCommand(
		newEvaluateCmd(v),
		newWeatherCmd(v),
		newHistoryCmd(v),
	)
	return root
}

func initConfig(v *viper.Viper, cmd *cobra.Command, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	v.SetEnvPrefix("SAFESPEED")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return v.BindPFlags(cmd.InheritedFlags())
}

func newLogger(v *viper.Viper, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
