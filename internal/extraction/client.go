package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single extraction call.
const DefaultTimeout = 180 * time.Second

const usageWriteTimeout = 5 * time.Second

// Request is one document to extract.
type Request struct {
	Data       []byte
	Filename   string
	MIMEType   string
	UserID     string
	DocumentID string
}

// Client turns a document into an ExtractionResult and records one APIUsage
// row per call, whatever the outcome.
type Client struct {
	gen     Generator
	usage   UsageRecorder
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// NewClient builds a Client. usage may be nil, in which case nothing is recorded.
func NewClient(gen Generator, usage UsageRecorder, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		gen:     gen,
		usage:   usage,
		timeout: timeout,
		log:     log.With().Str("component", "extraction").Logger(),
		now:     time.Now,
	}
}

// Extract sends req to the model and validates the response. Every failure
// is an *ExtractionError.
func (c *Client) Extract(ctx context.Context, req Request) (*domain.ExtractionResult, error) {
	start := c.now()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	gen, genErr := c.gen.Generate(callCtx, statementPrompt, req.Data, mimeType)

	var (
		result *domain.ExtractionResult
		extErr *ExtractionError
	)
	if genErr != nil {
		extErr = serviceFailure(callCtx, genErr)
	} else {
		var err error
		result, err = ParseResponse(gen.Text)
		if err != nil {
			if !errors.As(err, &extErr) {
				extErr = &ExtractionError{Message: err.Error(), Offset: -1, Err: err}
			}
			extErr.StatusCode = gen.StatusCode
		}
	}

	c.recordUsage(ctx, req, gen, extErr, c.now().Sub(start))

	if extErr != nil {
		c.log.Warn().
			Str("document_id", req.DocumentID).
			Int("status_code", extErr.StatusCode).
			Str("error", extErr.Message).
			Msg("extraction failed")
		return nil, extErr
	}

	c.log.Info().
		Str("document_id", req.DocumentID).
		Int("transactions", len(result.Transactions)).
		Msg("extraction succeeded")
	return result, nil
}

// serviceFailure classifies a Generate error. Deadlines map to 504 and
// anything without a known status to 500.
func serviceFailure(ctx context.Context, err error) *ExtractionError {
	e := &ExtractionError{StatusCode: http.StatusInternalServerError, Offset: -1, Err: err}

	var svcErr *ServiceError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		e.StatusCode = http.StatusGatewayTimeout
		e.Message = "Gemini API request timed out"
	case errors.As(err, &svcErr):
		if svcErr.StatusCode != 0 {
			e.StatusCode = svcErr.StatusCode
		}
		e.Message = fmt.Sprintf("Gemini API error: %s", svcErr.Error())
	default:
		e.Message = fmt.Sprintf("Failed to call Gemini API: %v", err)
	}
	return e
}

// recordUsage appends the usage row on a context detached from cancellation.
// Recorder failures and panics never reach the caller.
func (c *Client) recordUsage(ctx context.Context, req Request, gen *Generation, extErr *ExtractionError, elapsed time.Duration) {
	if c.usage == nil {
		return
	}

	u := &domain.APIUsage{
		ID:         uuid.New().String(),
		Service:    domain.UsageServiceGemini,
		Operation:  domain.UsageOperationDocumentProcessing,
		ModelName:  c.gen.ModelName(),
		UserID:     optional(req.UserID),
		DocumentID: optional(req.DocumentID),
		Success:    extErr == nil,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  c.now().UTC(),
	}
	if gen != nil {
		u.InputTokens = gen.InputTokens
		u.OutputTokens = gen.OutputTokens
		u.StatusCode = gen.StatusCode
	}
	u.TotalTokens = u.InputTokens + u.OutputTokens
	if extErr != nil {
		u.StatusCode = extErr.StatusCode
		msg := extErr.Message
		u.ErrorMessage = &msg
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("document_id", req.DocumentID).Msg("usage recorder panicked")
		}
	}()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), usageWriteTimeout)
	defer cancel()

	if err := c.usage.RecordUsage(writeCtx, u); err != nil {
		c.log.Error().Err(err).Str("document_id", req.DocumentID).Msg("failed to record API usage")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
