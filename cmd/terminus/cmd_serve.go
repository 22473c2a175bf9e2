// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wayfarer-systems/terminus/pkg/logging"
	"github.com/wayfarer-systems/terminus/services/navigation"
)

// runServe loads the config, assembles the navigation service, and runs
// it until SIGINT or SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := navigation.LoadConfig(configPath)
	if err != nil {
		return err
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Debug {
		level = logging.LevelDebug
	}
	log := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "navigation",
		JSON:    cfg.Logging.JSON,
	})
	defer log.Close()

	svc, err := navigation.New(cfg, log)
	if err != nil {
		log.Error("service startup failed", "error", err.Error())
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return svc.Run(ctx)
}
