// Command safespeedctl is the operator CLI for the safe-speed service: it
// evaluates the speed rule offline, queries the weather provider, and audits
// stored history.
//
// Usage:
//
//	safespeedctl evaluate --base 100 --surface gravel --day-period night --precipitation rain --wind 45
//	safespeedctl weather --lat 45.5017 --lon -73.5673
//	safespeedctl history verify --sqlite-path ./data/safespeed.db
//
// Every flag can also be set through a SAFESPEED_* environment variable
// (SAFESPEED_SQLITE_PATH, SAFESPEED_WEATHER_BASE_URL, ...) or a YAML file
// passed with --config.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
