package safelog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/jobproof/pkg/privacy"
)

// OmittedValue replaces the content of forbidden fields.
const OmittedValue = "[omitted]"

// MaxFieldLen is the truncation limit for long diagnostic fields.
const MaxFieldLen = 500

// Forbidden fields carry document content and must never reach a log line,
// whatever their value. Matched on the lowercased field name.
var forbiddenFields = map[string]bool{
	"markdown":        true,
	"rawtext":         true,
	"ocrtext":         true,
	"extractedtext":   true,
	"documentcontent": true,
	"pagecontent":     true,
	"base64":          true,
	"base64data":      true,
	"documentdata":    true,
}

// Truncated fields are diagnostic strings that may legitimately be long;
// they are cut to MaxFieldLen with an explicit suffix.
var truncatedFields = map[string]bool{
	"prompt":    true,
	"response":  true,
	"error":     true,
	"errortext": true,
}

// Sanitize returns a copy of data safe for emission: forbidden fields
// replaced, long fields truncated, then everything PII-redacted. Input is
// never mutated. Order matters — redaction runs last so truncation suffixes
// survive.
func Sanitize(data map[string]any, redactor *privacy.Redactor) map[string]any {
	if data == nil {
		return nil
	}
	if redactor == nil {
		redactor = privacy.New()
	}
	filtered := sanitizeMap(data)
	out, _ := redactor.RedactValue(filtered).(map[string]any)
	return out
}

func sanitizeMap(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		lk := strings.ToLower(k)
		if forbiddenFields[lk] {
			out[k] = OmittedValue
			continue
		}
		if truncatedFields[lk] {
			if s, ok := v.(string); ok && len(s) > MaxFieldLen {
				out[k] = fmt.Sprintf("%s [truncated, %d chars total]", s[:MaxFieldLen], len(s))
				continue
			}
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return sanitizeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sanitizeValue(e)
		}
		return out
	case error:
		return t.Error()
	default:
		return v
	}
}

// CheckLoggingSafety reports the paths of fields that would be unsafe to
// emit as-is: forbidden fields and sensitive-named fields whose values are
// not already redacted. Paths come back sorted. Intended for tests that
// assert a payload is clean.
func CheckLoggingSafety(data map[string]any) []string {
	var unsafe []string
	walkSafety("", data, &unsafe)
	sort.Strings(unsafe)
	return unsafe
}

func walkSafety(prefix string, data map[string]any, unsafe *[]string) {
	for k, v := range data {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		lk := strings.ToLower(k)
		switch {
		case forbiddenFields[lk]:
			if s, ok := v.(string); !ok || s != OmittedValue {
				*unsafe = append(*unsafe, path)
			}
		case privacy.IsSensitiveField(k):
			if s, ok := v.(string); !ok || s != privacy.RedactedValue {
				*unsafe = append(*unsafe, path)
			}
		}
		switch t := v.(type) {
		case map[string]any:
			walkSafety(path, t, unsafe)
		case []any:
			for i, e := range t {
				if m, ok := e.(map[string]any); ok {
					walkSafety(fmt.Sprintf("%s[%d]", path, i), m, unsafe)
				}
			}
		}
	}
}
