package models

// ProcessingError carries the Ack/Nack decision for a failed delivery.
type ProcessingError struct {
	Err     error
	Requeue bool
}

func (p ProcessingError) Error() string {
	return p.Err.Error()
}

func (p ProcessingError) Unwrap() error {
	return p.Err
}

// Drop marks err as a failure that redelivery cannot fix.
func Drop(err error) ProcessingError {
	return ProcessingError{Err: err, Requeue: false}
}

// Retry marks err as a failure worth redelivering.
func Retry(err error) ProcessingError {
	return ProcessingError{Err: err, Requeue: true}
}
