package extraction

import (
	"context"
	"errors"

	"github.com/dvloznov/fintrack-api/internal/domain"
)

// UsageRecorder appends one APIUsage record.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, u *domain.APIUsage) error
}

// MultiRecorder fans a record out to several recorders. Every recorder is
// tried; their errors are joined.
type MultiRecorder []UsageRecorder

func (m MultiRecorder) RecordUsage(ctx context.Context, u *domain.APIUsage) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordUsage(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
