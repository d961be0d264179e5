package domain

// Status is the execution status shared by backend handles, tasks and
// workflows.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusExecuting Status = "EXECUTING"
	StatusCompleted Status = "COMPLETED"
	StatusError     Status = "ERROR"
	StatusCanceled  Status = "CANCELED"
	StatusUnknown   Status = "UNKNOWN"
)

func (s Status) String() string {
	return string(s)
}

// IsFinal returns true if no further transitions are possible.
func (s Status) IsFinal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCanceled
}

// IsFailure returns true for ERROR and CANCELED.
func (s Status) IsFailure() bool {
	return s == StatusError || s == StatusCanceled
}

// ParseStatus converts a wire string to a Status. Unrecognized values map
// to StatusUnknown.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusIdle, StatusExecuting, StatusCompleted, StatusError, StatusCanceled:
		return Status(s)
	default:
		return StatusUnknown
	}
}
