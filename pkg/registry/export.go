package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/Mindburn-Labs/jobproof/pkg/canonicalize"
)

// StateExport is the canonical snapshot of the registry used for drift
// detection between environments.
type StateExport struct {
	Templates []*Template        `json:"templates"`
	Versions  []*TemplateVersion `json:"versions"`
	Hash      string             `json:"hash"`
}

// ExportState snapshots every template and version and hashes the
// canonical JSON. Entries are sorted by id, so two registries holding the
// same templates produce the same hash regardless of insertion order.
func (r *Registry) ExportState(ctx context.Context) (*StateExport, error) {
	templates, err := r.store.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: export templates: %w", err)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].TemplateID < templates[j].TemplateID })

	var versions []*TemplateVersion
	for _, t := range templates {
		tvs, err := r.store.ListVersions(ctx, t.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("registry: export versions of %s: %w", t.TemplateID, err)
		}
		versions = append(versions, tvs...)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].VersionID < versions[j].VersionID })

	canonical, err := canonicalize.JCS(map[string]any{
		"templates": templates,
		"versions":  versions,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: canonicalize state: %w", err)
	}
	sum := sha256.Sum256(canonical)

	return &StateExport{
		Templates: templates,
		Versions:  versions,
		Hash:      hex.EncodeToString(sum[:]),
	}, nil
}
