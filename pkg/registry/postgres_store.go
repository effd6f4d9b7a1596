package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore persists the registry in Postgres for multi-node
// deployments that share one template source of truth.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgresStore connects with a lib/pq DSN and applies the schema.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: open postgres: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.Init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing handle without touching the schema.
// Callers owning migrations (or tests with sqlmock) use this path.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgRegistrySchema = `
CREATE TABLE IF NOT EXISTS templates (
	template_id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	is_default BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS template_versions (
	version_id TEXT PRIMARY KEY,
	template_id TEXT NOT NULL,
	version TEXT NOT NULL,
	status TEXT NOT NULL,
	spec_json JSONB NOT NULL,
	selection_json JSONB NOT NULL,
	roi_json JSONB,
	fixtures_json JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	activated_at TIMESTAMPTZ,
	UNIQUE (template_id, version)
);
`

// Init applies the registry schema.
func (s *PostgresStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, pgRegistrySchema); err != nil {
		return fmt.Errorf("registry: migrate postgres: %w", err)
	}
	return nil
}

func (s *PostgresStore) PutTemplate(ctx context.Context, t *Template) error {
	query := `
		INSERT INTO templates (template_id, slug, name, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (template_id) DO UPDATE
		SET slug = EXCLUDED.slug, name = EXCLUDED.name, is_default = EXCLUDED.is_default`
	_, err := s.db.ExecContext(ctx, query, t.TemplateID, t.Slug, t.Name, t.IsDefault, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("registry: store template %s: %w", t.Slug, err)
	}
	return nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, templateID string) (*Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT template_id, slug, name, is_default, created_at FROM templates WHERE template_id = $1`,
		templateID)
	return scanPgTemplate(row, templateID)
}

func (s *PostgresStore) GetTemplateBySlug(ctx context.Context, slug string) (*Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT template_id, slug, name, is_default, created_at FROM templates WHERE slug = $1`,
		slug)
	return scanPgTemplate(row, slug)
}

func (s *PostgresStore) ListTemplates(ctx context.Context) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT template_id, slug, name, is_default, created_at FROM templates ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Template
	for rows.Next() {
		t, err := scanPgTemplate(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutVersion(ctx context.Context, v *TemplateVersion) error {
	specJSON, selJSON, roiJSON, fixJSON, err := marshalVersionBlobs(v)
	if err != nil {
		return err
	}
	var activatedAt any
	if v.ActivatedAt != nil {
		activatedAt = v.ActivatedAt.UTC()
	}
	query := `
		INSERT INTO template_versions
			(version_id, template_id, version, status, spec_json, selection_json, roi_json, fixtures_json, created_at, activated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (version_id) DO UPDATE
		SET status = EXCLUDED.status, activated_at = EXCLUDED.activated_at`
	_, err = s.db.ExecContext(ctx, query,
		v.VersionID, v.TemplateID, v.Version, string(v.Status),
		specJSON, selJSON, roiJSON, fixJSON, v.CreatedAt.UTC(), activatedAt)
	if err != nil {
		return fmt.Errorf("registry: store version %s: %w", v.Version, err)
	}
	return nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, versionID string) (*TemplateVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version_id, template_id, version, status, spec_json, selection_json, roi_json, fixtures_json, created_at, activated_at
		FROM template_versions WHERE version_id = $1`, versionID)
	v, err := scanPgVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}
	return v, err
}

func (s *PostgresStore) ListVersions(ctx context.Context, templateID string) ([]*TemplateVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version_id, template_id, version, status, spec_json, selection_json, roi_json, fixtures_json, created_at, activated_at
		FROM template_versions WHERE template_id = $1 ORDER BY version_id`, templateID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*TemplateVersion
	for rows.Next() {
		v, err := scanPgVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func scanPgTemplate(row rowScanner, key string) (*Template, error) {
	var t Template
	err := row.Scan(&t.TemplateID, &t.Slug, &t.Name, &t.IsDefault, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanPgVersion(row rowScanner) (*TemplateVersion, error) {
	var v TemplateVersion
	var status string
	var specJSON, selJSON, roiJSON, fixJSON []byte
	var activatedAt sql.NullTime
	err := row.Scan(&v.VersionID, &v.TemplateID, &v.Version, &status,
		&specJSON, &selJSON, &roiJSON, &fixJSON, &v.CreatedAt, &activatedAt)
	if err != nil {
		return nil, err
	}
	v.Status = VersionStatus(status)
	if activatedAt.Valid {
		at := activatedAt.Time
		v.ActivatedAt = &at
	}
	return unmarshalVersionBlobs(&v, specJSON, selJSON, roiJSON, fixJSON)
}
