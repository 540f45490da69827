package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/safe-speed-service/internal/config"
	"github.com/couchcryptid/safe-speed-service/internal/observability"
	"github.com/couchcryptid/safe-speed-service/internal/service"
	"github.com/couchcryptid/safe-speed-service/internal/store"
	"github.com/couchcryptid/safe-speed-service/internal/store/postgres"
	"github.com/couchcryptid/safe-speed-service/internal/store/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored speed history",
	}
	cmd.AddCommand(newHistoryVerifyCmd(v))
	return cmd
}

func newHistoryVerifyCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay every history entry and report results that no longer reproduce",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(v, cmd.ErrOrStderr())
			backend, err := openBackend(cmd.Context(), v, logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			metrics := observability.NewMetricsForTesting()
			svc := service.NewSpeedService(store.NewKV(backend, metrics, logger), nil, nil,
				&config.Config{}, metrics, logger)

			report, err := svc.VerifyHistory(cmd.Context())
			if err != nil {
				return err
			}

			if v.GetBool("json") {
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%d entries checked, %d mismatched\n", report.Total, len(report.Mismatches))
				for _, m := range report.Mismatches {
					fmt.Fprintf(out, "  #%d %s: stored %g, replayed %g\n", m.Index, m.TimestampISO, m.Stored, m.Replayed)
				}
			}

			if len(report.Mismatches) > 0 {
				return fmt.Errorf("%d history entries failed replay", len(report.Mismatches))
			}
			return nil
		},
	}

	cmd.Flags().String("store-backend", config.StoreSQLite, "Store the service writes to: sqlite, postgres")
	cmd.Flags().String("sqlite-path", sqlite.DefaultPath, "SQLite database written by the service")
	cmd.Flags().String("postgres-dsn", "", "Postgres connection string used by the service")

	// Fall back to the service's own variables when no SAFESPEED_* override is set.
	_ = v.BindEnv("store-backend", "SAFESPEED_STORE_BACKEND", "STORE_BACKEND")
	_ = v.BindEnv("sqlite-path", "SAFESPEED_SQLITE_PATH", "SQLITE_PATH")
	_ = v.BindEnv("postgres-dsn", "SAFESPEED_POSTGRES_DSN", "POSTGRES_DSN")
	return cmd
}

// openBackend opens the durable store the service is configured with. The
// memory backend lives inside the service process and cannot be inspected.
func openBackend(ctx context.Context, v *viper.Viper, logger *slog.Logger) (store.Store, error) {
	switch backend := v.GetString("store-backend"); backend {
	case config.StoreSQLite:
		logger.Debug("opening sqlite store", "path", v.GetString("sqlite-path"))
		return sqlite.New(ctx, v.GetString("sqlite-path"))
	case config.StorePostgres:
		dsn := v.GetString("postgres-dsn")
		if dsn == "" {
			return nil, errors.New("store backend postgres needs --postgres-dsn or POSTGRES_DSN")
		}
		logger.Debug("opening postgres store")
		return postgres.New(ctx, dsn)
	default:
		return nil, fmt.Errorf("cannot verify history in store backend %q: use sqlite or postgres", backend)
	}
}
