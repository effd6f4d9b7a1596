package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCSSortsKeys(t *testing.T) {
	out, err := JCSString(map[string]any{"b": 1, "a": 2, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, out)
}

func TestJCSNoHTMLEscaping(t *testing.T) {
	out, err := JCSString(map[string]string{"q": "a<b>&c"})
	require.NoError(t, err)
	assert.Equal(t, `{"q":"a<b>&c"}`, out)
}

func TestJCSNestedDeterminism(t *testing.T) {
	v := map[string]any{
		"outer": map[string]any{"z": []any{1, "two", nil}, "a": true},
		"list":  []string{"x", "y"},
	}
	first, err := JCS(v)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := JCS(v)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestCanonicalHashStableAcrossFieldOrder(t *testing.T) {
	type ab struct {
		A string `json:"a"`
		B int    `json:"b"`
	}
	type ba struct {
		B int    `json:"b"`
		A string `json:"a"`
	}

	h1, err := CanonicalHash(ab{A: "x", B: 7})
	require.NoError(t, err)
	h2, err := CanonicalHash(ba{B: 7, A: "x"})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHashBytesDeterminism(t *testing.T) {
	data := []byte("job sheet content")
	assert.Equal(t, HashBytes(data), HashBytes(data))
	assert.Len(t, HashBytes(nil), 64)
}
