package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	tpl := &Template{TemplateID: "tpl-1", Slug: "acme-hvac", Name: "ACME HVAC", IsDefault: true, CreatedAt: created}
	require.NoError(t, s.PutTemplate(ctx, tpl))

	got, err := s.GetTemplateBySlug(ctx, "acme-hvac")
	require.NoError(t, err)
	assert.Equal(t, tpl, got)

	activated := created.Add(time.Hour)
	v := &TemplateVersion{
		VersionID:   "ver-1",
		TemplateID:  "tpl-1",
		Version:     "1.0.0",
		Status:      StatusActive,
		Spec:        DefaultTemplateSpec(),
		Selection:   DefaultSelectionConfig(),
		Roi:         &contracts.RoiConfig{Regions: []contracts.Region{{Name: "date", Page: 1, X: 0.1, Y: 0.1, W: 0.2, H: 0.1}}},
		Fixtures:    passingPack(),
		CreatedAt:   created,
		ActivatedAt: &activated,
	}
	require.NoError(t, s.PutVersion(ctx, v))

	gotV, err := s.GetVersion(ctx, "ver-1")
	require.NoError(t, err)
	assert.Equal(t, v.Version, gotV.Version)
	assert.Equal(t, StatusActive, gotV.Status)
	assert.Equal(t, v.Spec, gotV.Spec)
	assert.Equal(t, v.Selection, gotV.Selection)
	require.NotNil(t, gotV.Roi)
	assert.Equal(t, "date", gotV.Roi.Regions[0].Name)
	require.NotNil(t, gotV.Fixtures)
	assert.Len(t, gotV.Fixtures.Cases, 2)
	require.NotNil(t, gotV.ActivatedAt)
	assert.True(t, gotV.ActivatedAt.Equal(activated))
}

func TestSQLiteStoreUpdateStatus(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.PutTemplate(ctx, &Template{TemplateID: "tpl-1", Slug: "a", Name: "A", CreatedAt: time.Now().UTC()}))
	v := &TemplateVersion{
		VersionID: "ver-1", TemplateID: "tpl-1", Version: "1.0.0", Status: StatusDraft,
		Spec: DefaultTemplateSpec(), Selection: DefaultSelectionConfig(), CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.PutVersion(ctx, v))

	v.Status = StatusArchived
	require.NoError(t, s.PutVersion(ctx, v))

	got, err := s.GetVersion(ctx, "ver-1")
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, got.Status)
	assert.Nil(t, got.Roi)
	assert.Nil(t, got.Fixtures)
}

func TestSQLiteStoreNotFound(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	_, err := s.GetTemplate(ctx, "nope")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	_, err = s.GetTemplateBySlug(ctx, "nope")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	_, err = s.GetVersion(ctx, "nope")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestSQLiteStoreBacksRegistry(t *testing.T) {
	s := openTestSQLite(t)
	r := New(s, WithMode(SSOTPermissive))
	ctx := context.Background()

	require.NoError(t, r.EnsureTemplatesReady(ctx))
	candidates, err := r.Candidates(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.True(t, candidates[0].IsDefault)
}
