// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"github.com/wayfarer-systems/terminus/services/navigation/tiles"
)

// TileAreaResponse returns the tiles covering a bounding-box query.
type TileAreaResponse struct {
	Terminal string        `json:"terminal"`
	Floor    int           `json:"floor"`
	Tiles    []*tiles.Tile `json:"tiles"`
}

// GenerateTilesRequest regenerates the tile set for a terminal, either for
// one floor or, when Floor is absent, for every floor in the graph.
type GenerateTilesRequest struct {
	Floor *int `json:"floor,omitempty"`
}

// Validate checks the request beyond JSON well-formedness.
func (r *GenerateTilesRequest) Validate() error {
	return validate.Struct(r)
}

// GenerateTilesResponse reports how many tiles were written.
type GenerateTilesResponse struct {
	Terminal     string `json:"terminal"`
	TilesWritten int    `json:"tiles_written"`
}
