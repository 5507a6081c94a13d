package batch

import "errors"

var (
	// ErrSourceNil is returned when a processor is created without a source
	ErrSourceNil = errors.New("batch source cannot be nil")

	// ErrBatchFailed wraps the error of the batch that was rolled back
	ErrBatchFailed = errors.New("batch failed and was rolled back")
)
