// Package persist implements atomic JSON dump/restore of all zone
// state (spec.md S4.7): `{"zones": {<zone>: {"public", "private",
// "windows"}}}`, pretty-printed, written to a temp file and swapped
// into place with rename so readers outside this process never see a
// partial write.
package persist

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/anthropics/tailstatd/internal/zone"
)

// Document is the top-level persisted shape.
type Document struct {
	Zones map[string]*zone.State `json:"zones"`
}

// Dump serializes snapshot to path atomically: write to path+"~",
// then rename over path. A failure at any step is returned to the
// caller but never leaves a half-written file at path itself (spec.md
// S7: "existing database file is left intact").
func Dump(path string, snapshot map[string]*zone.State) error {
	doc := Document{Zones: snapshot}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshal: %w", err)
	}

	tmp := path + "~"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("persist: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persist: rename into place: %w", err)
	}
	return nil
}

// Load decodes path's JSON document. A missing file is not an error:
// it returns (nil, nil), matching spec.md S4.7 ("Zones present in
// configuration but absent from the snapshot are created fresh").
func Load(path string) (map[string]*zone.State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist: read %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("persist: decode %s: %w", path, err)
	}
	return doc.Zones, nil
}
