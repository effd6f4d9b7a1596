package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactTextPatterns(t *testing.T) {
	r := New()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "email",
			input: "contact jane.doe@example.co.uk today",
			want:  "contact [REDACTED:EMAIL] today",
		},
		{
			name:  "us phone",
			input: "call (415) 555-0134 now",
			want:  "call [REDACTED:PHONE] now",
		},
		{
			name:  "uk landline",
			input: "office 01234 567890 line",
			want:  "office [REDACTED:PHONE_UK] line",
		},
		{
			name:  "ssn",
			input: "ssn 123-45-6789.",
			want:  "ssn [REDACTED:SSN].",
		},
		{
			name:  "national insurance",
			input: "NI AB 12 34 56 C on file",
			want:  "NI [REDACTED:NINO] on file",
		},
		{
			name:  "credit card",
			input: "card 4111 1111 1111 1111 charged",
			want:  "card [REDACTED:CARD] charged",
		},
		{
			name:  "ipv4",
			input: "from 192.168.0.1 at night",
			want:  "from [REDACTED:IP] at night",
		},
		{
			name:  "date of birth with context",
			input: "DOB: 01/02/1980 noted",
			want:  "[REDACTED:DOB] noted",
		},
		{
			name:  "bank account",
			input: "acct 12345678 closed",
			want:  "acct [REDACTED:BANK_ACCOUNT] closed",
		},
		{
			name:  "titled name",
			input: "signed by Mr Smith",
			want:  "signed by [REDACTED:NAME]",
		},
		{
			name:  "service date untouched",
			input: "Date: 01/01/2026 Time In: 08:00",
			want:  "Date: 01/01/2026 Time In: 08:00",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.RedactText(tt.input))
		})
	}
}

func TestRedactTextIdempotent(t *testing.T) {
	r := New()
	inputs := []string{
		"email a@b.com phone 020 7946 0958 ssn 123-45-6789",
		"card 4111-1111-1111-1111 ip 10.0.0.1 acct 123456789012",
		"Mr Jones, DOB 1/2/90, QQ123456C",
	}
	for _, in := range inputs {
		once := r.RedactText(in)
		twice := r.RedactText(once)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestRedactTextIdempotentWithPseudonyms(t *testing.T) {
	r := New(WithPseudonyms([]byte("test-secret")))

	once := r.RedactText("acct 12345678 mail a@b.com")
	twice := r.RedactText(once)
	assert.Equal(t, once, twice)

	// Same value, same token.
	again := r.RedactText("acct 12345678 mail a@b.com")
	assert.Equal(t, once, again)
}

func TestSensitiveFieldNames(t *testing.T) {
	sensitive := []string{"password", "API_Key", "x-api-key", "Authorization", "creditCard", "private_key", "userToken"}
	for _, name := range sensitive {
		assert.True(t, IsSensitiveField(name), name)
	}
	benign := []string{"jobReference", "assetId", "engineer", "summary"}
	for _, name := range benign {
		assert.False(t, IsSensitiveField(name), name)
	}
}

func TestRedactValueRecursion(t *testing.T) {
	r := New()

	in := map[string]any{
		"summary": "email a@b.com",
		"apiKey":  "sk-live-very-secret",
		"nested": map[string]any{
			"password": "hunter2",
			"notes":    []any{"call 020 7946 0958", 42},
		},
		"count": 3,
	}

	out, ok := r.RedactValue(in).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "email [REDACTED:EMAIL]", out["summary"])
	assert.Equal(t, RedactedValue, out["apiKey"])
	assert.Equal(t, 3, out["count"])

	nested, ok := out["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, RedactedValue, nested["password"])

	notes, ok := nested["notes"].([]any)
	require.True(t, ok)
	assert.Equal(t, "call [REDACTED:PHONE_UK]", notes[0])
	assert.Equal(t, 42, notes[1])
}

func TestRedactValueDoesNotMutateInput(t *testing.T) {
	r := New()
	in := map[string]any{"password": "hunter2"}
	_ = r.RedactValue(in)
	assert.Equal(t, "hunter2", in["password"])
}
