package main

import (
	"fmt"

	"github.com/couchcryptid/safe-speed-service/internal/domain"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newEvaluateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Compute the maximum safe speed for the given conditions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			surface, err := domain.ParseSurface(v.GetString("surface"))
			if err != nil {
				return err
			}
			period, err := domain.ParseDayPeriod(v.GetString("day-period"))
			if err != nil {
				return err
			}

			var weather *domain.WeatherSnapshot
			if p := v.GetString("precipitation"); p != "" || cmd.Flags().Changed("wind") {
				if p == "" {
					p = string(domain.PrecipitationNone)
				}
				precip, err := domain.ParsePrecipitation(p)
				if err != nil {
					return err
				}
				weather = &domain.WeatherSnapshot{PrecipitationType: precip, WindKph: v.GetFloat64("wind")}
			}

			b := domain.Explain(v.GetFloat64("base"), surface, period, weather)
			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), b)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "base speed:     %g km/h\n", b.BaseSpeedLimit)
			fmt.Fprintf(out, "surface:        %s ×%g\n", surface.Label(), b.Surface)
			fmt.Fprintf(out, "day period:     %s ×%g\n", period.Label(), b.DayPeriod)
			if b.Precipitation != nil {
				fmt.Fprintf(out, "precipitation:  %s ×%g\n", weather.PrecipitationType.Label(), *b.Precipitation)
				fmt.Fprintf(out, "wind:           %g km/h ×%g\n", weather.WindKph, *b.Wind)
			}
			fmt.Fprintf(out, "max safe speed: %g km/h\n", b.MaxSafeSpeed)
			return nil
		},
	}

	cmd.Flags().Float64("base", 50, "Base speed limit in km/h")
	cmd.Flags().String("surface", string(domain.SurfaceAsphalt), "Road surface: asphalt, gravel, dirt")
	cmd.Flags().String("day-period", string(domain.DayPeriodDay), "Time of day: day, night")
	cmd.Flags().String("precipitation", "", "Precipitation: none, rain, snow (omit to evaluate without weather)")
	cmd.Flags().Float64("wind", 0, "Wind speed in km/h")
	return cmd
}
