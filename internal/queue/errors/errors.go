// Package errors holds the failure messages sent to subscribers when a task
// cannot complete.
package errors

const (
	ErrSubmit     = "process chain submission failed"
	ErrTemplate   = "model template could not be loaded"
	ErrStatus     = "job status could not be read"
	ErrPollBudget = "job did not finish within the polling budget"
	ErrBadTask    = "task payload is invalid"
)
