package fault

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Rejection records one entity a bulk operation could not apply.
type Rejection struct {
	ID     uuid.UUID `json:"id"`
	Reason string    `json:"reason"`
}

// BulkError reports a bulk operation that applied to some entities and was
// rejected for others. The accepted entities stay committed; callers roll
// back only the rejected ones.
type BulkError struct {
	Succeeded int         `json:"succeeded"`
	Total     int         `json:"total"`
	Rejected  []Rejection `json:"rejected"`
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("bulk operation: %d of %d entities rejected", len(e.Rejected), e.Total)
}

// AsBulk returns the BulkError in the chain, if any.
func AsBulk(err error) (*BulkError, bool) {
	var be *BulkError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
