// Package privacy detects and replaces PII in text and structured values
// before anything reaches a log line or an artifact.
//
// Detection is a single ordered regex pass: each rule carries a stable name
// used in the replacement marker, and rules run in a fixed order so output
// is deterministic. Redaction is idempotent — markers never match any rule,
// so redacting twice yields the same bytes.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// rule pairs a compiled regex with the stable marker name it redacts to.
type rule struct {
	name string
	re   *regexp.Regexp
}

// Rule order is fixed and load-bearing: earlier rules claim overlapping
// matches (an SSN is redacted as SSN, not as a bank account).
var rules = []rule{
	{"EMAIL", regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{"PHONE", regexp.MustCompile(`(?:\+?\d{1,3}[ \-.]?)?\(?\d{3}\)?[ \-.]?\d{3}[ \-.]?\d{4}\b`)},
	{"PHONE_UK", regexp.MustCompile(`\b(?:\+44[ \-]?\d{4}[ \-]?\d{6}|0\d{4}[ \-]?\d{6}|0\d{3}[ \-]?\d{3}[ \-]?\d{4}|0\d{2}[ \-]?\d{4}[ \-]?\d{4})\b`)},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"NINO", regexp.MustCompile(`\b[A-CEGHJ-PR-TW-Z]{2}\s?\d{2}\s?\d{2}\s?\d{2}\s?[A-D]\b`)},
	{"CARD", regexp.MustCompile(`\b(?:\d{4}[ \-]?){3}\d{4}\b`)},
	{"IP", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{"DOB", regexp.MustCompile(`(?i)(?:\bd\.?o\.?b\.?|date of birth|born(?: on)?)[ :]*\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}`)},
	{"BANK_ACCOUNT", regexp.MustCompile(`\b\d{8,17}\b`)},
	{"NAME", regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Miss|Dr|Prof)\.? [A-Z][A-Za-z'\-]+\b`)},
}

// RedactedValue replaces the value of any field whose name lands in the
// sensitive deny set.
const RedactedValue = "[REDACTED]"

// Field names whose values are dropped wholesale. Matching is by substring
// over the normalized (lowercased, alphanumeric-only) field name, so
// "API_Key", "apiKey" and "x-api-key" all hit "apikey".
var sensitiveFieldTokens = []string{
	"password", "secret", "token", "apikey", "authorization", "credential",
	"privatekey", "ssn", "socialsecurity", "creditcard", "cardnumber", "cvv",
	"pin", "dob", "dateofbirth", "nino", "nationalinsurance", "bankaccount",
	"accountnumber", "sortcode",
}

// Redactor applies the rule set. The zero value is not usable; call New.
type Redactor struct {
	pseudonymKey []byte // optional; enables stable per-value tokens
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithPseudonyms derives a stable 8-hex token per redacted value via
// HKDF-SHA256, so equal inputs redact equally across log lines without
// exposing the value. Without it markers carry only the rule name.
func WithPseudonyms(secret []byte) Option {
	return func(r *Redactor) { r.pseudonymKey = secret }
}

// New creates a Redactor.
func New(opts ...Option) *Redactor {
	r := &Redactor{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RedactText applies every rule in order and returns the redacted string.
func (r *Redactor) RedactText(s string) string {
	for _, ru := range rules {
		s = ru.re.ReplaceAllStringFunc(s, func(match string) string {
			return r.marker(ru.name, match)
		})
	}
	return s
}

func (r *Redactor) marker(name, match string) string {
	if r.pseudonymKey == nil {
		return "[REDACTED:" + name + "]"
	}
	return fmt.Sprintf("[REDACTED:%s:%s]", name, r.pseudonym(name, match))
}

// pseudonym derives a deterministic short token for a matched value. The
// leading letter keeps the token clear of every numeric rule, preserving
// idempotence.
func (r *Redactor) pseudonym(name, match string) string {
	prk := hkdf.Extract(sha256.New, r.pseudonymKey, []byte("jobproof-pii"))
	rd := hkdf.Expand(sha256.New, prk, []byte(name+":"+match))
	var buf [4]byte
	if _, err := io.ReadFull(rd, buf[:]); err != nil {
		return "p0000000"
	}
	return "p" + hex.EncodeToString(buf[:])
}

// IsSensitiveField reports whether a field name belongs to the deny set.
func IsSensitiveField(name string) bool {
	n := normalizeFieldName(name)
	for _, tok := range sensitiveFieldTokens {
		if strings.Contains(n, tok) {
			return true
		}
	}
	return false
}

func normalizeFieldName(name string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(name) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// RedactValue walks an arbitrary decoded-JSON value: strings are pattern
// redacted, maps and slices recurse, and any map entry under a sensitive
// field name is replaced wholesale by RedactedValue.
func (r *Redactor) RedactValue(v any) any {
	switch t := v.(type) {
	case string:
		return r.RedactText(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if IsSensitiveField(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = r.RedactValue(val)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if IsSensitiveField(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = r.RedactText(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = r.RedactValue(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = r.RedactText(e)
		}
		return out
	default:
		return v
	}
}
