// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wayfarer-systems/terminus/services/navigation/fusion"
)

// runCalibrate fits fusion weights from a survey-walk sample file and
// prints them for the operator to copy into the service config.
func runCalibrate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(samplesPath)
	if err != nil {
		return fmt.Errorf("read samples: %w", err)
	}

	var samples []fusion.CalibrationSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return fmt.Errorf("parse samples: %w", err)
	}

	weights, err := fusion.Calibrate(samples)
	if err != nil {
		return err
	}

	fmt.Printf("samples:       %d\n", len(samples))
	fmt.Printf("beacon weight: %.3f\n", weights.Beacon)
	fmt.Printf("slam weight:   %.3f\n", weights.SLAM)
	return nil
}
