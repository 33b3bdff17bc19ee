// Package db embeds the engine's schema so binaries can migrate without
// carrying SQL files alongside them.
package db

import _ "embed"

// Schema holds the DDL for the catalogue, range, offer, and voucher tables.
// The storage layer applies it idempotently at startup.
//
//go:embed migrations/001_schema.sql
var Schema string
