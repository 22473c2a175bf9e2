// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tiles

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/klauspost/compress/gzip"
)

// Payload format markers. The first byte of every stored tile identifies
// the encoding of the rest.
const (
	formatRaw  byte = 0x00
	formatGzip byte = 0x01
)

// Encode serializes a tile to its storage representation: a format byte
// followed by gzip-compressed JSON.
//
// A compression failure is not fatal: the payload falls back to raw JSON
// with the raw format marker and a logged warning. Decode handles both.
func Encode(t *Tile, logger *slog.Logger) ([]byte, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal tile %s: %w", t.Key(), err)
	}

	var buf bytes.Buffer
	buf.WriteByte(formatGzip)
	zw := gzip.NewWriter(&buf)
	_, werr := zw.Write(raw)
	if cerr := zw.Close(); werr == nil && cerr == nil {
		return buf.Bytes(), nil
	}
	if logger != nil {
		logger.Warn("tile compression failed, storing raw",
			slog.String("tile", t.Key()))
	}

	out := make([]byte, 0, len(raw)+1)
	out = append(out, formatRaw)
	return append(out, raw...), nil
}

// Decode deserializes a stored tile payload, dispatching on the format byte.
func Decode(data []byte) (*Tile, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("tile payload too short: %d bytes", len(data))
	}

	var raw []byte
	switch data[0] {
	case formatGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data[1:]))
		if err != nil {
			return nil, fmt.Errorf("open tile gzip stream: %w", err)
		}
		raw, err = io.ReadAll(zr)
		if cerr := zr.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("decompress tile: %w", err)
		}
	case formatRaw:
		raw = data[1:]
	default:
		return nil, fmt.Errorf("unknown tile format byte 0x%02x", data[0])
	}

	var t Tile
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("unmarshal tile: %w", err)
	}
	return &t, nil
}
