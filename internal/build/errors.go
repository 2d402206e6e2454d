package build

// Error represents a failure in the packaging pipeline, either the external
// tool exiting non-zero or the expected artifact not appearing afterwards.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
