// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for identifiers that end up
// in store keys, log attributes, or file paths. Validating at the boundary
// prevents key-prefix collisions and path traversal via crafted IDs.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// idPattern matches terminal, node, and user identifiers.
// Allows letters, digits, dots, underscores, and hyphens; 1-64 characters.
// Slashes are excluded deliberately: IDs are embedded in store key paths.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// beaconPattern matches beacon identifiers, which may carry a colon-separated
// MAC-style suffix (e.g. "blue-7:AA:BB:CC").
var beaconPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]{0,79}$`)

// ValidateTerminalID validates a terminal identifier.
func ValidateTerminalID(id string) error {
	if id == "" {
		return fmt.Errorf("terminal id cannot be empty")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid terminal id %q (1-64 alphanumeric, dot, underscore, hyphen)", id)
	}
	return nil
}

// ValidateNodeID validates a graph node identifier.
func ValidateNodeID(id string) error {
	if id == "" {
		return fmt.Errorf("node id cannot be empty")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid node id %q (1-64 alphanumeric, dot, underscore, hyphen)", id)
	}
	return nil
}

// ValidateUserID validates a user identifier.
func ValidateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid user id %q (1-64 alphanumeric, dot, underscore, hyphen)", id)
	}
	return nil
}

// ValidateBeaconID validates a beacon identifier.
func ValidateBeaconID(id string) error {
	if id == "" {
		return fmt.Errorf("beacon id cannot be empty")
	}
	if !beaconPattern.MatchString(id) {
		return fmt.Errorf("invalid beacon id %q", id)
	}
	return nil
}

// SanitizeTerminalID trims whitespace and validates. Returns the cleaned ID.
func SanitizeTerminalID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateTerminalID(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
