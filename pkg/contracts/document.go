package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Document is an ingested job-sheet file. Immutable after creation;
// identified everywhere by the SHA-256 of its content.
type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Content     []byte    `json:"-"`
	SizeBytes   int64     `json:"sizeBytes"`
	IngestedAt  time.Time `json:"ingestedAt"`
}

// NewDocument ingests raw bytes and derives the content-hash identity.
func NewDocument(filename, contentType string, content []byte, now time.Time) Document {
	return Document{
		ID:          HashContent(content),
		Filename:    filename,
		ContentType: contentType,
		Content:     content,
		SizeBytes:   int64(len(content)),
		IngestedAt:  now.UTC(),
	}
}

// HashContent returns the SHA-256 hex digest of raw bytes.
// Deterministic: equal bytes always hash equal.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
