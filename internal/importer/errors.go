package importer

import (
	"errors"
	"fmt"

	"github.com/dvloznov/fintrack-api/internal/domain"
)

// Phase names the step an import was in when it failed.
type Phase string

const (
	PhaseDelete Phase = "delete"
	PhaseInsert Phase = "insert"
	PhaseCommit Phase = "commit"
)

// ImportError reports a storage failure once the replace had begun.
type ImportError struct {
	DocumentID string
	Phase      Phase
	Deleted    int
	Inserted   int
	Err        error
}

func (e *ImportError) Error() string {
	if e.Partial() {
		return fmt.Sprintf("import of document %s failed during %s after deleting %d and inserting %d transactions; rollback failed, the document may have lost its transactions: %v",
			e.DocumentID, e.Phase, e.Deleted, e.Inserted, e.Err)
	}
	return fmt.Sprintf("import of document %s failed during %s: %v", e.DocumentID, e.Phase, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// Partial reports whether earlier writes may have survived the failure.
// That only happens when the rollback itself failed.
func (e *ImportError) Partial() bool {
	return errors.Is(e.Err, domain.ErrRollbackFailed)
}
