package codegen

import "fmt"

// Error is a compile-time failure: the generator always fails fast and
// unwinds to the top-level entry point with one of these (spec.md §7).
type Error struct {
	File string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("codegen error:%s:%d: %s", e.File, e.Line, e.Msg)
}

func (s *Scope) errorf(format string, args ...any) error {
	return &Error{File: s.File, Line: s.Line, Msg: fmt.Sprintf(format, args...)}
}
