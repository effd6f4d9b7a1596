package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the registry in a single SQLite file. It is the
// default durable store for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the registry database at path and
// applies the schema. Use ":memory:" for an ephemeral database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("registry: open sqlite %s: %w", path, err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an existing database handle, applying the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS templates (
		template_id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		is_default INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS template_versions (
		version_id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		version TEXT NOT NULL,
		status TEXT NOT NULL,
		spec_json JSON NOT NULL,
		selection_json JSON NOT NULL,
		roi_json JSON,
		fixtures_json JSON,
		created_at TEXT NOT NULL,
		activated_at TEXT,
		UNIQUE (template_id, version)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("registry: migrate sqlite: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PutTemplate(ctx context.Context, t *Template) error {
	query := `
		INSERT INTO templates (template_id, slug, name, is_default, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (template_id) DO UPDATE
		SET slug = excluded.slug, name = excluded.name, is_default = excluded.is_default`
	_, err := s.db.ExecContext(ctx, query,
		t.TemplateID, t.Slug, t.Name, boolInt(t.IsDefault), t.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("registry: store template %s: %w", t.Slug, err)
	}
	return nil
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, templateID string) (*Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT template_id, slug, name, is_default, created_at FROM templates WHERE template_id = ?`,
		templateID)
	return scanTemplate(row, templateID)
}

func (s *SQLiteStore) GetTemplateBySlug(ctx context.Context, slug string) (*Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT template_id, slug, name, is_default, created_at FROM templates WHERE slug = ?`,
		slug)
	return scanTemplate(row, slug)
}

func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT template_id, slug, name, is_default, created_at FROM templates ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Template
	for rows.Next() {
		t, err := scanTemplate(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutVersion(ctx context.Context, v *TemplateVersion) error {
	specJSON, selJSON, roiJSON, fixJSON, err := marshalVersionBlobs(v)
	if err != nil {
		return err
	}
	var activatedAt any
	if v.ActivatedAt != nil {
		activatedAt = v.ActivatedAt.UTC().Format(time.RFC3339Nano)
	}
	query := `
		INSERT INTO template_versions
			(version_id, template_id, version, status, spec_json, selection_json, roi_json, fixtures_json, created_at, activated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (version_id) DO UPDATE
		SET status = excluded.status, activated_at = excluded.activated_at`
	_, err = s.db.ExecContext(ctx, query,
		v.VersionID, v.TemplateID, v.Version, string(v.Status),
		specJSON, selJSON, roiJSON, fixJSON,
		v.CreatedAt.UTC().Format(time.RFC3339Nano), activatedAt)
	if err != nil {
		return fmt.Errorf("registry: store version %s: %w", v.Version, err)
	}
	return nil
}

func (s *SQLiteStore) GetVersion(ctx context.Context, versionID string) (*TemplateVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version_id, template_id, version, status, spec_json, selection_json, roi_json, fixtures_json, created_at, activated_at
		FROM template_versions WHERE version_id = ?`, versionID)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}
	return v, err
}

func (s *SQLiteStore) ListVersions(ctx context.Context, templateID string) ([]*TemplateVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version_id, template_id, version, status, spec_json, selection_json, roi_json, fixtures_json, created_at, activated_at
		FROM template_versions WHERE template_id = ? ORDER BY version_id`, templateID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*TemplateVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// rowScanner abstracts sql.Row and sql.Rows for the shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner, key string) (*Template, error) {
	var t Template
	var isDefault int
	var createdAt string
	err := row.Scan(&t.TemplateID, &t.Slug, &t.Name, &isDefault, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	t.IsDefault = isDefault != 0
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &t, nil
}

func scanVersion(row rowScanner) (*TemplateVersion, error) {
	var v TemplateVersion
	var status, createdAt string
	var specJSON, selJSON, roiJSON, fixJSON []byte
	var activatedAt sql.NullString
	err := row.Scan(&v.VersionID, &v.TemplateID, &v.Version, &status,
		&specJSON, &selJSON, &roiJSON, &fixJSON, &createdAt, &activatedAt)
	if err != nil {
		return nil, err
	}
	v.Status = VersionStatus(status)
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if activatedAt.Valid {
		t, perr := time.Parse(time.RFC3339Nano, activatedAt.String)
		if perr == nil {
			v.ActivatedAt = &t
		}
	}

	return unmarshalVersionBlobs(&v, specJSON, selJSON, roiJSON, fixJSON)
}

func unmarshalVersionBlobs(v *TemplateVersion, specJSON, selJSON, roiJSON, fixJSON []byte) (*TemplateVersion, error) {
	v.Spec = &contracts.TemplateSpec{}
	if err := json.Unmarshal(specJSON, v.Spec); err != nil {
		return nil, fmt.Errorf("registry: decode spec of %s: %w", v.VersionID, err)
	}
	if err := json.Unmarshal(selJSON, &v.Selection); err != nil {
		return nil, fmt.Errorf("registry: decode selection of %s: %w", v.VersionID, err)
	}
	if len(roiJSON) > 0 {
		v.Roi = &contracts.RoiConfig{}
		if err := json.Unmarshal(roiJSON, v.Roi); err != nil {
			return nil, fmt.Errorf("registry: decode roi of %s: %w", v.VersionID, err)
		}
	}
	if len(fixJSON) > 0 {
		v.Fixtures = &contracts.FixturePack{}
		if err := json.Unmarshal(fixJSON, v.Fixtures); err != nil {
			return nil, fmt.Errorf("registry: decode fixtures of %s: %w", v.VersionID, err)
		}
	}
	return v, nil
}

func marshalVersionBlobs(v *TemplateVersion) (spec, sel, roi, fixtures []byte, err error) {
	spec, err = json.Marshal(v.Spec)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("registry: encode spec: %w", err)
	}
	sel, err = json.Marshal(v.Selection)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("registry: encode selection: %w", err)
	}
	if v.Roi != nil {
		roi, err = json.Marshal(v.Roi)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("registry: encode roi: %w", err)
		}
	}
	if v.Fixtures != nil {
		fixtures, err = json.Marshal(v.Fixtures)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("registry: encode fixtures: %w", err)
		}
	}
	return spec, sel, roi, fixtures, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
