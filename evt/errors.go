package evt

import "fmt"

// Error reports a structural problem with a legacy .evt file or one of its
// records. The package has no notion of value-decode vs. chunk-level
// severities the way bxml does: the whole of evt is one flat record format,
// so a single error kind suffices (spec §7, legacy reader errors surface
// here, not through bxml).
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func newErr(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}
