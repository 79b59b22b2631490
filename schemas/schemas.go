// Package schemas embeds the JSON Schema files shipped with the service.
package schemas

import "embed"

// Files holds every *.schema.json in this directory.
//
//go:embed *.schema.json
var Files embed.FS

// StageConfig is the schema file for stage configuration seed files.
const StageConfig = "stage_config.schema.json"

// Load returns the raw bytes of a named schema.
func Load(name string) ([]byte, error) {
	return Files.ReadFile(name)
}
