package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/dvloznov/fintrack-api/internal/extraction"
	"github.com/dvloznov/fintrack-api/internal/jobs"
	"github.com/dvloznov/fintrack-api/internal/logger"
	"github.com/dvloznov/fintrack-api/internal/mailer"
	"github.com/dvloznov/fintrack-api/internal/notify"
	"github.com/rs/zerolog"
)

const emailTimeout = 30 * time.Second

// Processor drives one uploaded document to a terminal state and tells the
// owner about it.
type Processor struct {
	pipeline *Pipeline
	store    DocumentStore
	users    UserDirectory
	push     notify.Publisher
	mail     mailer.Sender
	log      zerolog.Logger
}

// NewProcessor wires the processing pipeline. push and mail may be nil.
func NewProcessor(store DocumentStore, extractor Extractor, users UserDirectory, push notify.Publisher, mail mailer.Sender, log zerolog.Logger) *Processor {
	if push == nil {
		push = notify.Nop{}
	}
	if mail == nil {
		mail = mailer.NopSender{}
	}
	return &Processor{
		pipeline: NewDocumentProcessingPipeline(store, extractor),
		store:    store,
		users:    users,
		push:     push,
		mail:     mail,
		log:      log.With().Str("component", "pipeline").Logger(),
	}
}

// Handle adapts Process to jobs.JobHandler.
func (p *Processor) Handle(ctx context.Context, job *jobs.ProcessDocumentJob) error {
	return p.Process(ctx, job)
}

// Process runs the pipeline for job. Whatever happens, including a panic,
// the document leaves processing: it ends completed or failed. A document
// deleted mid-run is skipped silently.
func (p *Processor) Process(ctx context.Context, job *jobs.ProcessDocumentJob) (err error) {
	log := logger.ForDocument(p.log, job.DocumentID, job.UserID)
	start := time.Now()

	// The bytes are not needed past this call.
	defer func() { job.Data = nil }()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("document processing panicked")
			err = fmt.Errorf("Process: panic: %v", r)
			p.fail(ctx, job, fmt.Sprintf("Unexpected error: %v", r), log)
		}
	}()

	log.Info().Str("filename", job.Filename).Int("bytes", len(job.Data)).Msg("processing document")

	state := &PipelineState{Job: job}
	if err := p.pipeline.Execute(ctx, state); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Msg("document disappeared during processing; skipping")
			return nil
		}
		p.fail(ctx, job, failureMessage(err), log)
		return fmt.Errorf("Process: %w", err)
	}

	log.Info().
		Int("transactions", len(state.Result.Transactions)).
		Dur("duration", time.Since(start)).
		Msg("document processed")

	p.notifyCompleted(ctx, job, log)
	return nil
}

// failureMessage is the text stored on a failed document.
func failureMessage(err error) string {
	var extErr *extraction.ExtractionError
	if errors.As(err, &extErr) {
		return extErr.Message
	}
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		err = stepErr.Err
	}
	return "Unexpected error: " + err.Error()
}

// fail records the failure on the document and pushes a failure event.
func (p *Processor) fail(ctx context.Context, job *jobs.ProcessDocumentJob, message string, log zerolog.Logger) {
	writeCtx, cancel := terminalContext(ctx)
	defer cancel()

	if err := p.store.UpdateDocumentStatus(writeCtx, job.DocumentID, domain.StatusFailed, &message); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("document disappeared before failure could be recorded")
			return
		}
		log.Error().Err(err).Str("reason", message).Msg("failed to mark document as failed")
	} else {
		log.Warn().Str("reason", message).Msg("document processing failed")
	}

	p.safely(log, "push", func() {
		p.push.Publish(job.UserID, notify.DocumentFailed(job.DocumentID, job.Filename, message))
	})
}

// notifyCompleted pushes the completion event and, when requested, sends the
// email. Neither can change the document's state.
func (p *Processor) notifyCompleted(ctx context.Context, job *jobs.ProcessDocumentJob, log zerolog.Logger) {
	p.safely(log, "push", func() {
		p.push.Publish(job.UserID, notify.DocumentCompleted(job.DocumentID, job.Filename))
	})

	if !job.WantsEmail {
		return
	}

	p.safely(log, "email", func() {
		mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emailTimeout)
		defer cancel()

		if p.users == nil {
			log.Warn().Msg("no user directory configured; skipping completion email")
			return
		}
		user, err := p.users.GetUser(mailCtx, job.UserID)
		if err != nil {
			log.Error().Err(err).Msg("failed to look up user for completion email")
			return
		}
		if err := p.mail.SendCompletionEmail(mailCtx, user.Email, user.FirstName, job.Filename, job.DocumentID); err != nil {
			log.Error().Err(err).Msg("failed to send completion email")
			return
		}
		log.Info().Msg("completion email sent")
	})
}

func (p *Processor) safely(log zerolog.Logger, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("notification", what).Msg("notification panicked")
		}
	}()
	fn()
}
