package sandbox

import (
	"fmt"

	"github.com/pkg/errors"
)

// Reason classifies why source was rejected before it ever ran.
type Reason int

const (
	SyntaxError Reason = iota + 1
	ForbiddenConstruct
	UnknownName
	MissingEntryPoint
)

func (r Reason) String() string {
	switch r {
	case SyntaxError:
		return "SyntaxError"
	case ForbiddenConstruct:
		return "ForbiddenConstruct"
	case UnknownName:
		return "UnknownName"
	case MissingEntryPoint:
		return "MissingEntryPoint"
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// CompileError is a static rejection. Subject holds the construct kind for
// ForbiddenConstruct and the offending name for UnknownName.
type CompileError struct {
	Reason  Reason
	Subject string
	Msg     string
	Line    int
	Col     int
}

func (e *CompileError) Error() string {
	s := e.Reason.String()
	if e.Subject != "" {
		s += "(" + e.Subject + ")"
	}
	if e.Line > 0 {
		s += fmt.Sprintf(" at %d:%d", e.Line, e.Col)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

func errAt(p Pos, r Reason, subject, format string, args ...interface{}) *CompileError {
	return &CompileError{Reason: r, Subject: subject, Msg: fmt.Sprintf(format, args...), Line: p.Line, Col: p.Col}
}

func syntaxErr(p Pos, format string, args ...interface{}) *CompileError {
	return errAt(p, SyntaxError, "", format, args...)
}

func forbidden(p Pos, kind string) *CompileError {
	return errAt(p, ForbiddenConstruct, kind, "%s is not allowed", kind)
}

func unknownName(p Pos, name string) *CompileError {
	return errAt(p, UnknownName, name, "%q is not an allowed name", name)
}

// ErrBudgetExceeded is returned when one evaluation runs past its step or
// wall-clock budget.
var ErrBudgetExceeded = errors.New("evaluation budget exceeded")

// RuntimeError is a fault raised while evaluating accepted code, such as a
// type mismatch or division by zero.
type RuntimeError struct {
	Msg string
}

func (e *RuntimeError) Error() string { return "runtime error: " + e.Msg }

func runtimeErr(format string, args ...interface{}) error {
	return &RuntimeError{Msg: fmt.Sprintf(format, args...)}
}
