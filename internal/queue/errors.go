package queue

import "errors"

var (
	// ErrTaskNotFound is returned when an operation names an unknown task id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when the task's status does not allow the operation.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrInvalidPriority is returned for priorities other than low, normal and high.
	ErrInvalidPriority = errors.New("invalid priority")
)
