package extract

// Error reports a text-extraction failure for a single evidence file.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "extract: " + e.Reason + ": " + e.Err.Error()
	}
	return "extract: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func newError(reason string, err error) *Error {
	return &Error{Reason: reason, Err: err}
}
