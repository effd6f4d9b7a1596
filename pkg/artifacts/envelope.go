package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/jobproof/pkg/canonicalize"
)

// Artifact kinds.
const (
	KindSelectionTrace   = "pipeline/selection-trace"
	KindActivationReport = "registry/activation-report"
	KindInsights         = "pipeline/insights"
	KindAuditReport      = "pipeline/audit-report"
)

// SchemaVersion is stamped on every envelope so readers can evolve.
const SchemaVersion = "v1"

// MaxPayloadSize bounds a single artifact payload.
const MaxPayloadSize = 10 * 1024 * 1024

// Envelope wraps every persisted artifact with identity and integrity
// metadata. PayloadHash is the SHA-256 of the payload's RFC 8785 canonical
// form, so two envelopes with equal payloads carry equal hashes regardless
// of field order.
type Envelope struct {
	ArtifactID    string          `json:"artifactId"`
	Kind          string          `json:"kind"`
	SchemaVersion string          `json:"schemaVersion"`
	CorrelationID string          `json:"correlationId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	PayloadHash   string          `json:"payloadHash"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload in an envelope. The payload is serialized to
// canonical JSON so the stored bytes and the hash agree.
func NewEnvelope(kind, correlationID string, payload any, createdAt time.Time) (*Envelope, error) {
	if kind == "" {
		return nil, errors.New("artifacts: missing kind")
	}
	canonical, err := canonicalize.JCS(payload)
	if err != nil {
		return nil, fmt.Errorf("artifacts: canonicalize payload: %w", err)
	}
	if len(canonical) > MaxPayloadSize {
		return nil, fmt.Errorf("artifacts: payload exceeds %d bytes", MaxPayloadSize)
	}
	return &Envelope{
		ArtifactID:    "art-" + uuid.NewString(),
		Kind:          kind,
		SchemaVersion: SchemaVersion,
		CorrelationID: correlationID,
		CreatedAt:     createdAt.UTC(),
		PayloadHash:   canonicalize.HashBytes(canonical),
		Payload:       canonical,
	}, nil
}

// Verify re-derives the payload hash and reports any integrity problems.
// An empty slice means the envelope is intact.
func (e *Envelope) Verify() []string {
	var reasons []string
	if e.Kind == "" {
		reasons = append(reasons, "missing kind")
	}
	if len(e.Payload) == 0 {
		reasons = append(reasons, "missing payload")
		return reasons
	}
	canonical, err := canonicalize.JCS(json.RawMessage(e.Payload))
	if err != nil {
		return append(reasons, "payload is not valid JSON")
	}
	if canonicalize.HashBytes(canonical) != e.PayloadHash {
		reasons = append(reasons, "payload hash mismatch")
	}
	return reasons
}

// DecodeEnvelope parses stored envelope bytes.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("artifacts: corrupt envelope: %w", err)
	}
	return &e, nil
}
