package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSource is returned when no gatherer is registered under the requested name.
	ErrUnknownSource = errors.New("unknown data source")
	// ErrUnsupportedCondition is returned when a source does not offer the requested condition.
	ErrUnsupportedCondition = errors.New("unsupported weather condition")
	// ErrCancelled is returned when a job observed a cancellation request.
	ErrCancelled = errors.New("cancelled by user")
)

// PartialGatherError reports a gather loop that stopped on an unexpected
// error. Records holds everything gathered before the failing request.
type PartialGatherError struct {
	Index   int
	Total   int
	Records []Record
	Err     error
}

func (e *PartialGatherError) Error() string {
	return fmt.Sprintf("gather aborted at request %d of %d (%d records kept): %v", e.Index+1, e.Total, len(e.Records), e.Err)
}

func (e *PartialGatherError) Unwrap() error {
	return e.Err
}
