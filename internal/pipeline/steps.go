package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/dvloznov/fintrack-api/internal/extraction"
	"github.com/dvloznov/fintrack-api/internal/jobs"
)

// terminalWriteTimeout bounds status writes that must land even while the
// worker context is shutting down.
const terminalWriteTimeout = 10 * time.Second

// PipelineStep represents a single step in document processing.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Job    *jobs.ProcessDocumentJob
	Result *domain.ExtractionResult
}

// StepError records which step failed.
type StepError struct {
	Step int
	Name string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("pipeline step %d (%s) failed: %v", e.Step, e.Name, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Step 1: MarkProcessingStep moves the document to processing.
type MarkProcessingStep struct {
	Store DocumentStore
}

func (s *MarkProcessingStep) Name() string { return "mark_processing" }

func (s *MarkProcessingStep) Execute(ctx context.Context, state *PipelineState) error {
	return s.Store.UpdateDocumentStatus(ctx, state.Job.DocumentID, domain.StatusProcessing, nil)
}

// Step 2: ExtractStep sends the document bytes to the extraction client.
type ExtractStep struct {
	Extractor Extractor
}

func (s *ExtractStep) Name() string { return "extract" }

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	result, err := s.Extractor.Extract(ctx, extraction.Request{
		Data:       state.Job.Data,
		Filename:   state.Job.Filename,
		MIMEType:   state.Job.MIMEType,
		UserID:     state.Job.UserID,
		DocumentID: state.Job.DocumentID,
	})
	if err != nil {
		return err
	}
	state.Result = result
	return nil
}

// Step 3: StoreResultStep persists the extraction result. The result is
// written before the status flips, so a completed document always has one.
type StoreResultStep struct {
	Store DocumentStore
}

func (s *StoreResultStep) Name() string { return "store_result" }

func (s *StoreResultStep) Execute(ctx context.Context, state *PipelineState) error {
	writeCtx, cancel := terminalContext(ctx)
	defer cancel()
	return s.Store.SetDocumentExtractionResult(writeCtx, state.Job.DocumentID, state.Result)
}

// Step 4: MarkCompletedStep moves the document to completed.
type MarkCompletedStep struct {
	Store DocumentStore
}

func (s *MarkCompletedStep) Name() string { return "mark_completed" }

func (s *MarkCompletedStep) Execute(ctx context.Context, state *PipelineState) error {
	writeCtx, cancel := terminalContext(ctx)
	defer cancel()
	return s.Store.UpdateDocumentStatus(writeCtx, state.Job.DocumentID, domain.StatusCompleted, nil)
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return &StepError{Step: i + 1, Name: step.Name(), Err: err}
		}
	}
	return nil
}

// NewDocumentProcessingPipeline creates the standard four-step pipeline.
func NewDocumentProcessingPipeline(store DocumentStore, extractor Extractor) *Pipeline {
	return NewPipeline(
		&MarkProcessingStep{Store: store},
		&ExtractStep{Extractor: extractor},
		&StoreResultStep{Store: store},
		&MarkCompletedStep{Store: store},
	)
}

func terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}
