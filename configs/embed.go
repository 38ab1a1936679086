// Package configs holds the catalogue data, JSON schemas and default
// server configuration compiled into the binaries.
package configs

import "embed"

//go:embed expansions.json buildings.json plot_coordinates.json schemas/*.json server.yaml
var FS embed.FS
