// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath   string
	floorPlanDir string
	tileDBPath   string
	terminalID   string
	samplesPath  string

	rootCmd = &cobra.Command{
		Use:   "terminus",
		Short: "Indoor navigation service for airport terminals",
		Long: `Terminus fuses beacon and SLAM positioning, plans accessible
routes through multi-floor terminals, and serves map tiles and live
guidance to AR wayfinding clients.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the navigation HTTP service",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	tilesCmd = &cobra.Command{
		Use:   "tiles",
		Short: "Manage the map tile store",
	}
	tilesGenerateCmd = &cobra.Command{
		Use:   "generate",
		Short: "Generate map tiles from floor plans into the tile store",
		RunE:  runTilesGenerate, // Defined in cmd_tiles.go
	}

	calibrateCmd = &cobra.Command{
		Use:   "calibrate",
		Short: "Fit beacon/SLAM fusion weights from survey samples",
		RunE:  runCalibrate, // Defined in cmd_calibrate.go
	}
)

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the service config file")

	tilesGenerateCmd.Flags().StringVar(&floorPlanDir, "floor-plans", "./floorplans", "Directory of terminal floor plan YAML files")
	tilesGenerateCmd.Flags().StringVar(&tileDBPath, "tile-db", "./data/tiles", "Badger directory for the tile store")
	tilesGenerateCmd.Flags().StringVar(&terminalID, "terminal", "", "Only generate tiles for this terminal")
	tilesCmd.AddCommand(tilesGenerateCmd)

	calibrateCmd.Flags().StringVar(&samplesPath, "samples", "", "JSON file of labeled survey samples")
	_ = calibrateCmd.MarkFlagRequired("samples")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tilesCmd)
	rootCmd.AddCommand(calibrateCmd)
}
