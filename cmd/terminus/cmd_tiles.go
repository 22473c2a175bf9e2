// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wayfarer-systems/terminus/services/navigation/mapsource"
	badgerstore "github.com/wayfarer-systems/terminus/services/navigation/storage/badger"
	"github.com/wayfarer-systems/terminus/services/navigation/tiles"
)

// runTilesGenerate builds the tile store offline, so a fresh deployment
// can ship with tiles already generated instead of paying the cost on
// first boot.
func runTilesGenerate(cmd *cobra.Command, args []string) error {
	graphs, err := mapsource.LoadDir(floorPlanDir)
	if err != nil {
		return err
	}
	if len(graphs) == 0 {
		return fmt.Errorf("no floor plans found in %s", floorPlanDir)
	}

	dbCfg := badgerstore.DefaultConfig()
	dbCfg.Path = tileDBPath
	db, err := badgerstore.Open(dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store := tiles.NewStore(db, tiles.DefaultStoreOptions())

	total := 0
	for _, g := range graphs {
		if terminalID != "" && g.Terminal != terminalID {
			continue
		}
		n, err := store.GenerateTerminal(cmd.Context(), g)
		if err != nil {
			return fmt.Errorf("generate tiles for %s: %w", g.Terminal, err)
		}
		fmt.Printf("%s: %d tiles\n", g.Terminal, n)
		total += n
	}
	if total == 0 && terminalID != "" {
		return fmt.Errorf("terminal %s not found in %s", terminalID, floorPlanDir)
	}

	fmt.Printf("wrote %d tiles to %s\n", total, tileDBPath)
	return nil
}
