package main

import (
	"fmt"
	"time"

	"github.com/couchcryptid/safe-speed-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/safe-speed-service/internal/domain"
	"github.com/couchcryptid/safe-speed-service/internal/observability"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultWeatherTimeout = 5 * time.Second

func newWeatherCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Fetch current conditions and the precipitation class used by the speed rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := openmeteo.NewClient(
				v.GetString("weather-base-url"),
				v.GetDuration("weather-timeout"),
				observability.NewMetricsForTesting(),
				newLogger(v, cmd.ErrOrStderr()),
			)

			snapshot, err := client.FetchCurrent(cmd.Context(), v.GetFloat64("lat"), v.GetFloat64("lon"))
			if err != nil {
				if domain.IsTransientWeatherError(err) {
					return fmt.Errorf("weather provider offline: %w", err)
				}
				return err
			}

			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), snapshot)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "observed:      %s\n", snapshot.TimeISO)
			fmt.Fprintf(out, "temperature:   %g °C\n", snapshot.TempC)
			fmt.Fprintf(out, "precipitation: %g mm (%s)\n", snapshot.PrecipitationMm, snapshot.PrecipitationType.Label())
			fmt.Fprintf(out, "wind:          %g km/h\n", snapshot.WindKph)
			return nil
		},
	}

	cmd.Flags().Float64("lat", 45.5017, "Latitude")
	cmd.Flags().Float64("lon", -73.5673, "Longitude")
	cmd.Flags().String("weather-base-url", openmeteo.DefaultBaseURL, "Open-Meteo forecast endpoint")
	cmd.Flags().Duration("weather-timeout", defaultWeatherTimeout, "HTTP timeout")
	return cmd
}
