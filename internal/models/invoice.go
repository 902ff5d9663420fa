package models

import (
	"time"

	"github.com/google/uuid"
)

// Invoice status state machine: UPLOADED -> PROCESSING -> EXTRACTED | FAILED.
// EXTRACTED and FAILED are terminal. Only the pipeline worker mutates status
// past UPLOADED.
const (
	InvoiceStatusUploaded   = "UPLOADED"
	InvoiceStatusProcessing = "PROCESSING"
	InvoiceStatusExtracted  = "EXTRACTED"
	InvoiceStatusFailed     = "FAILED"
)

// DateLayout is the wire/storage format for calendar dates (no time part).
const DateLayout = "2006-01-02"

// Invoice represents an uploaded document awaiting or finished AI extraction.
type Invoice struct {
	ID                    uuid.UUID  `json:"id"`
	OrganizationID        uuid.UUID  `json:"organization_id"`
	FileKey               string     `json:"file_key"`
	FileName              string     `json:"file_name"`
	FileSize              int64      `json:"file_size"`
	FileType              string     `json:"file_type"`
	Status                string     `json:"status"`
	UploadedBy            uuid.UUID  `json:"uploaded_by"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	AIRawResponse         string     `json:"-"`
	ErrorMessage          string     `json:"error_message,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// Terminal reports whether the invoice can no longer change state.
func (i *Invoice) Terminal() bool {
	return i.Status == InvoiceStatusExtracted || i.Status == InvoiceStatusFailed
}
