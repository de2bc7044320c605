package model

// ValidationError reports malformed input to the core. It is surfaced
// synchronously to the caller and never silently corrected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Field + " " + e.Reason
}
