package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed seed/*.json
var seedFS embed.FS

// SeedCatalogs returns the built-in default catalogs, one per property type.
// The seeder tool writes these into Postgres on first deploy.
func SeedCatalogs() ([]Catalog, error) {
	entries, err := seedFS.ReadDir("seed")
	if err != nil {
		return nil, fmt.Errorf("reading embedded seed dir: %w", err)
	}
	out := make([]Catalog, 0, len(entries))
	for _, entry := range entries {
		raw, err := seedFS.ReadFile("seed/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading seed %s: %w", entry.Name(), err)
		}
		var cat Catalog
		if err := json.Unmarshal(raw, &cat); err != nil {
			return nil, fmt.Errorf("decoding seed %s: %w", entry.Name(), err)
		}
		if err := cat.Validate(); err != nil {
			return nil, fmt.Errorf("seed %s: %w", entry.Name(), err)
		}
		out = append(out, cat)
	}
	return out, nil
}
