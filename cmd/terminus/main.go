// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command terminus runs the Wayfarer indoor navigation service and its
// operational tooling.
//
// Usage:
//
//	terminus serve --config config.yaml
//	terminus tiles generate --floor-plans ./floorplans --tile-db ./data/tiles
//	terminus calibrate --samples survey.json
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
