package jobs

import (
	"context"
	"time"
)

// ProcessDocumentJob asks a worker to extract one uploaded document.
// The file bytes travel with the job and are never written to disk.
type ProcessDocumentJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// DocumentID is the Document row the job reports into.
	DocumentID string `json:"document_id"`

	// UserID owns the document.
	UserID string `json:"user_id"`

	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`

	// Data is the uploaded file. It is excluded from any serialized form.
	Data []byte `json:"-"`

	// WantsEmail requests a completion email in addition to the push event.
	WantsEmail bool `json:"wants_email"`

	// CreatedAt is when the job was published.
	CreatedAt time.Time `json:"created_at"`
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishProcessDocument enqueues a document for background extraction.
	// It does not wait for the job to run.
	PublishProcessDocument(ctx context.Context, job *ProcessDocumentJob) error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes one job. Jobs are not retried, so the returned error
// is only reported.
type JobHandler func(ctx context.Context, job *ProcessDocumentJob) error
