// Package registry is the source of truth for job sheet templates. It owns
// the template and version lifecycle, evaluates activation gates, runs
// fixture packs, validates region layouts, and enforces the SSOT mode that
// decides whether a deployment may fall back to the built-in default
// template.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
	"github.com/Mindburn-Labs/jobproof/pkg/safelog"
	"github.com/Mindburn-Labs/jobproof/pkg/selector"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrVersionNotFound  = errors.New("template version not found")
	ErrSlugTaken        = errors.New("template slug already registered")
)

// VersionStatus is the lifecycle state of one template version.
type VersionStatus string

const (
	StatusDraft      VersionStatus = "draft"
	StatusActive     VersionStatus = "active"
	StatusDeprecated VersionStatus = "deprecated"
	StatusArchived   VersionStatus = "archived"
)

// Template groups the versions of one job sheet layout.
type Template struct {
	TemplateID string    `json:"templateId"`
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	IsDefault  bool      `json:"isDefault"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TemplateVersion is one immutable revision of a template: the field and
// rule spec, the selection config the selector matches on, the optional
// region layout, and the fixture pack the version must pass before
// activation.
type TemplateVersion struct {
	VersionID   string                    `json:"versionId"`
	TemplateID  string                    `json:"templateId"`
	Version     string                    `json:"version"`
	Status      VersionStatus             `json:"status"`
	Spec        *contracts.TemplateSpec   `json:"spec"`
	Selection   contracts.SelectionConfig `json:"selection"`
	Roi         *contracts.RoiConfig      `json:"roi,omitempty"`
	Fixtures    *contracts.FixturePack    `json:"fixtures,omitempty"`
	CreatedAt   time.Time                 `json:"createdAt"`
	ActivatedAt *time.Time                `json:"activatedAt,omitempty"`
}

// ActiveVersion pairs an active version with its owning template.
type ActiveVersion struct {
	Template *Template
	Version  *TemplateVersion
}

// Registry coordinates template lifecycle over a pluggable store.
// Activation is serialized so two concurrent activations of the same
// template cannot both archive the old version.
type Registry struct {
	store  Store
	policy ActivationPolicy
	mode   SSOTMode
	log    *safelog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithPolicy overrides the default activation policy.
func WithPolicy(p ActivationPolicy) Option { return func(r *Registry) { r.policy = p } }

// WithMode sets the SSOT mode. Callers should resolve the mode through
// ResolveMode so production environments cannot weaken it.
func WithMode(m SSOTMode) Option { return func(r *Registry) { r.mode = m } }

// WithLogger overrides the registry logger.
func WithLogger(l *safelog.Logger) Option { return func(r *Registry) { r.log = l } }

// WithClock overrides the registry clock for tests.
func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

// New builds a registry over the given store. Defaults: strict SSOT mode,
// default activation policy, UTC wall clock.
func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		policy: DefaultActivationPolicy(),
		mode:   SSOTStrict,
		log:    safelog.New("registry"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the resolved SSOT mode the registry runs under.
func (r *Registry) Mode() SSOTMode { return r.mode }

// Policy returns the activation policy in force.
func (r *Registry) Policy() ActivationPolicy { return r.policy }

// CreateTemplate registers a new template under a unique slug.
func (r *Registry) CreateTemplate(ctx context.Context, slug, name string) (*Template, error) {
	if slug == "" {
		return nil, errors.New("registry: template slug is required")
	}
	if existing, err := r.store.GetTemplateBySlug(ctx, slug); err == nil && existing != nil {
		return nil, fmt.Errorf("registry: %w: %s", ErrSlugTaken, slug)
	} else if err != nil && !errors.Is(err, ErrTemplateNotFound) {
		return nil, fmt.Errorf("registry: lookup slug %s: %w", slug, err)
	}
	t := &Template{
		TemplateID: "tpl-" + uuid.NewString(),
		Slug:       slug,
		Name:       name,
		CreatedAt:  r.now(),
	}
	if err := r.store.PutTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("registry: store template %s: %w", slug, err)
	}
	return t, nil
}

// AddVersion attaches a new draft version to a template. The version string
// must parse as semver and be strictly greater than every existing version
// of the template, so the version history is monotone. When a fixture pack
// is supplied its hash is computed if absent and verified if present.
func (r *Registry) AddVersion(ctx context.Context, templateID, version string, spec *contracts.TemplateSpec,
	sel contracts.SelectionConfig, roi *contracts.RoiConfig, fixtures *contracts.FixturePack) (*TemplateVersion, error) {

	if _, err := r.store.GetTemplate(ctx, templateID); err != nil {
		return nil, fmt.Errorf("registry: %w: %s", ErrTemplateNotFound, templateID)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, fmt.Errorf("registry: version %q is not semver: %w", version, err)
	}
	if spec == nil {
		return nil, errors.New("registry: version needs a spec")
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("registry: invalid spec: %w", err)
	}

	existing, err := r.store.ListVersions(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("registry: list versions of %s: %w", templateID, err)
	}
	for _, ev := range existing {
		evv, perr := semver.NewVersion(ev.Version)
		if perr != nil {
			continue
		}
		if !v.GreaterThan(evv) {
			return nil, fmt.Errorf("registry: version %s must be greater than existing %s", version, ev.Version)
		}
	}

	if fixtures != nil {
		hash := PackHash(fixtures.Cases)
		if fixtures.HashSHA256 == "" {
			fixtures.HashSHA256 = hash
		} else if fixtures.HashSHA256 != hash {
			return nil, fmt.Errorf("registry: fixture pack hash mismatch: recorded %s, computed %s",
				fixtures.HashSHA256, hash)
		}
	}

	tv := &TemplateVersion{
		VersionID:  "ver-" + uuid.NewString(),
		TemplateID: templateID,
		Version:    version,
		Status:     StatusDraft,
		Spec:       spec,
		Selection:  sel,
		Roi:        roi,
		Fixtures:   fixtures,
		CreatedAt:  r.now(),
	}
	if err := r.store.PutVersion(ctx, tv); err != nil {
		return nil, fmt.Errorf("registry: store version %s: %w", version, err)
	}
	return tv, nil
}

// GetTemplateBySlug resolves a template by its slug.
func (r *Registry) GetTemplateBySlug(ctx context.Context, slug string) (*Template, error) {
	return r.store.GetTemplateBySlug(ctx, slug)
}

// ListTemplates lists every registered template, sorted by slug.
func (r *Registry) ListTemplates(ctx context.Context) ([]*Template, error) {
	return r.store.ListTemplates(ctx)
}

// ListVersions lists a template's versions, newest semver first.
func (r *Registry) ListVersions(ctx context.Context, templateID string) ([]*TemplateVersion, error) {
	versions, err := r.store.ListVersions(ctx, templateID)
	if err != nil {
		return nil, err
	}
	sortVersionsDesc(versions)
	return versions, nil
}

// GetVersion resolves one version of a template by its version string.
func (r *Registry) GetVersion(ctx context.Context, templateID, version string) (*TemplateVersion, error) {
	versions, err := r.store.ListVersions(ctx, templateID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Version == version {
			return v, nil
		}
	}
	return nil, fmt.Errorf("registry: %w: %s@%s", ErrVersionNotFound, templateID, version)
}

// ActiveVersions returns every active version with its template, sorted by
// template slug for determinism.
func (r *Registry) ActiveVersions(ctx context.Context) ([]ActiveVersion, error) {
	templates, err := r.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	var out []ActiveVersion
	for _, t := range templates {
		versions, err := r.store.ListVersions(ctx, t.TemplateID)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			if v.Status == StatusActive {
				out = append(out, ActiveVersion{Template: t, Version: v})
			}
		}
	}
	return out, nil
}

// Candidates adapts the active versions into selector candidates.
func (r *Registry) Candidates(ctx context.Context) ([]selector.Candidate, error) {
	active, err := r.ActiveVersions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]selector.Candidate, 0, len(active))
	for _, av := range active {
		out = append(out, selector.Candidate{
			TemplateID: av.Template.TemplateID,
			VersionID:  av.Version.VersionID,
			Config:     av.Version.Selection,
			IsDefault:  av.Template.IsDefault,
		})
	}
	return out, nil
}

// Activate runs the activation gates against a version. On pass, or when
// override is set, the version becomes active and any previously active
// version of the same template is archived. The report is returned in all
// cases so callers can surface every violation at once.
func (r *Registry) Activate(ctx context.Context, slug, version string, override bool) (*ActivationReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.store.GetTemplateBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("registry: %w: %s", ErrTemplateNotFound, slug)
	}
	tv, err := r.GetVersion(ctx, t.TemplateID, version)
	if err != nil {
		return nil, err
	}

	report := r.runGates(tv)
	report.TemplateID = t.TemplateID
	report.Slug = slug
	report.Version = version
	report.Override = override

	if !report.Passed && !override {
		return report, fmt.Errorf("registry: activation of %s@%s blocked by gates: %s",
			slug, version, report.failedGateIDs())
	}
	if !report.Passed && override {
		r.log.Warn(ctx, "activation gates overridden", map[string]any{
			"slug": slug, "version": version, "failedGates": report.failedGateIDs(),
		})
	}

	versions, err := r.store.ListVersions(ctx, t.TemplateID)
	if err != nil {
		return report, err
	}
	for _, v := range versions {
		if v.Status == StatusActive && v.VersionID != tv.VersionID {
			v.Status = StatusArchived
			if err := r.store.PutVersion(ctx, v); err != nil {
				return report, fmt.Errorf("registry: archive %s: %w", v.Version, err)
			}
		}
	}
	activatedAt := r.now()
	tv.Status = StatusActive
	tv.ActivatedAt = &activatedAt
	if err := r.store.PutVersion(ctx, tv); err != nil {
		return report, fmt.Errorf("registry: activate %s: %w", version, err)
	}
	report.Activated = true

	if len(report.Roi.AllowedMissing) > 0 {
		r.log.Warn(ctx, "critical regions exempted by policy", map[string]any{
			"slug": slug, "version": version, "fields": report.Roi.AllowedMissing,
		})
	}
	r.log.Info(ctx, "template version activated", map[string]any{
		"slug": slug, "version": version, "gatesPassed": report.Passed,
	})
	return report, nil
}

// Deprecate retires an active version without deleting it: the version
// stops being served to the selector but stays stored and listable.
func (r *Registry) Deprecate(ctx context.Context, slug, version string) (*TemplateVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.store.GetTemplateBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("registry: %w: %s", ErrTemplateNotFound, slug)
	}
	tv, err := r.GetVersion(ctx, t.TemplateID, version)
	if err != nil {
		return nil, err
	}
	if tv.Status != StatusActive {
		return nil, fmt.Errorf("registry: only active versions can be deprecated; %s@%s is %s",
			slug, version, tv.Status)
	}

	tv.Status = StatusDeprecated
	if err := r.store.PutVersion(ctx, tv); err != nil {
		return nil, fmt.Errorf("registry: deprecate %s: %w", version, err)
	}
	r.log.Info(ctx, "template version deprecated", map[string]any{
		"slug": slug, "version": version,
	})
	return tv, nil
}

func sortVersionsDesc(versions []*TemplateVersion) {
	parse := func(s string) *semver.Version {
		v, err := semver.NewVersion(s)
		if err != nil {
			return semver.MustParse("0.0.0")
		}
		return v
	}
	sort.Slice(versions, func(i, j int) bool {
		return parse(versions[i].Version).GreaterThan(parse(versions[j].Version))
	})
}
