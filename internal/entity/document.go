package entity

import (
	"github.com/google/uuid"
)

// DocumentRef identifies one source invoice document. Immutable once
// created; the pipeline only ever reads the bytes it points at.
type DocumentRef struct {
	ID         uuid.UUID `json:"id"`
	Filename   string    `json:"filename"`
	MIMEType   string    `json:"mime_type"`
	SourcePath string    `json:"source_path"`
	SizeBytes  int64     `json:"size_bytes"`
}
