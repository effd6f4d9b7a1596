package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeneratesPrefixedIDs(t *testing.T) {
	c := New("")

	require.True(t, strings.HasPrefix(c.CorrelationID, "corr-"))
	require.True(t, strings.HasPrefix(c.RequestID, "req-"))

	_, err := uuid.Parse(strings.TrimPrefix(c.CorrelationID, "corr-"))
	require.NoError(t, err)
	_, err = uuid.Parse(strings.TrimPrefix(c.RequestID, "req-"))
	require.NoError(t, err)
}

func TestNewKeepsCallerSuppliedID(t *testing.T) {
	c := New("corr-upstream-123")
	assert.Equal(t, "corr-upstream-123", c.CorrelationID)
}

func TestChildInheritsIdentityWithFreshRequest(t *testing.T) {
	parent := New("")
	parent.UserID = "user-7"
	parent.AddMetadata("stage", "ocr")

	child := parent.Child()

	assert.Equal(t, parent.CorrelationID, child.CorrelationID)
	assert.Equal(t, "user-7", child.UserID)
	assert.NotEqual(t, parent.RequestID, child.RequestID)
	assert.Empty(t, child.Metadata(), "child starts with empty metadata")
}

func TestRunInjectsAndNests(t *testing.T) {
	var rootID string
	err := Run(context.Background(), "", func(ctx context.Context) error {
		c, ok := From(ctx)
		require.True(t, ok)
		rootID = c.CorrelationID

		return Run(ctx, "", func(ctx context.Context) error {
			inner, ok := From(ctx)
			require.True(t, ok)
			assert.Equal(t, rootID, inner.CorrelationID, "nested run inherits correlation id")
			assert.NotEqual(t, c.RequestID, inner.RequestID)
			return nil
		})
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rootID)
}

func TestIDOnBareContext(t *testing.T) {
	assert.Equal(t, "", ID(context.Background()))
}

func TestMetadataIsCopied(t *testing.T) {
	c := New("")
	c.AddMetadata("k", "v")

	m := c.Metadata()
	m["k"] = "mutated"

	assert.Equal(t, "v", c.Metadata()["k"])
}
