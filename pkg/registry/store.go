package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store persists templates and their versions. Implementations are dumb
// persistence: lifecycle rules live in Registry.
type Store interface {
	PutTemplate(ctx context.Context, t *Template) error
	GetTemplate(ctx context.Context, templateID string) (*Template, error)
	GetTemplateBySlug(ctx context.Context, slug string) (*Template, error)
	// ListTemplates returns all templates sorted by slug.
	ListTemplates(ctx context.Context) ([]*Template, error)

	PutVersion(ctx context.Context, v *TemplateVersion) error
	GetVersion(ctx context.Context, versionID string) (*TemplateVersion, error)
	ListVersions(ctx context.Context, templateID string) ([]*TemplateVersion, error)

	Close() error
}

// MemoryStore is a thread-safe in-memory store for tests and single-shot
// CLI runs.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]*Template        // templateID -> template
	bySlug    map[string]string           // slug -> templateID
	versions  map[string]*TemplateVersion // versionID -> version
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[string]*Template),
		bySlug:    make(map[string]string),
		versions:  make(map[string]*TemplateVersion),
	}
}

func (s *MemoryStore) PutTemplate(_ context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.templates[t.TemplateID] = &cp
	s.bySlug[t.Slug] = t.TemplateID
	return nil
}

func (s *MemoryStore) GetTemplate(_ context.Context, templateID string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) GetTemplateBySlug(_ context.Context, slug string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySlug[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, slug)
	}
	cp := *s.templates[id]
	return &cp, nil
}

func (s *MemoryStore) ListTemplates(_ context.Context) ([]*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Template, 0, len(s.templates))
	for _, t := range s.templates {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *MemoryStore) PutVersion(_ context.Context, v *TemplateVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.versions[v.VersionID] = &cp
	return nil
}

func (s *MemoryStore) GetVersion(_ context.Context, versionID string) (*TemplateVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[versionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}
	cp := *v
	return &cp, nil
}

func (s *MemoryStore) ListVersions(_ context.Context, templateID string) ([]*TemplateVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TemplateVersion
	for _, v := range s.versions {
		if v.TemplateID == templateID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionID < out[j].VersionID })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
