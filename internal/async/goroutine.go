// Package async runs background work so a panic in one run cannot take the
// whole server down.
package async

import (
	"fmt"
	"runtime/debug"
)

// PanicLogger captures panic reports from background goroutines.
type PanicLogger interface {
	Error(format string, args ...any)
}

// PanicError is a recovered panic turned into an error.
type PanicError struct {
	Name  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("panic: %v", e.Value)
	}
	return fmt.Sprintf("panic in %s: %v", e.Name, e.Value)
}

// Go runs fn in a goroutine guarded by panic recovery.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Run calls fn and reports a panic inside it as a *PanicError, so the caller
// can still release whatever waits on fn's result.
func Run(logger PanicLogger, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := &PanicError{Name: name, Value: r, Stack: debug.Stack()}
			report(logger, perr)
			err = perr
		}
	}()
	return fn()
}

// Recover logs panic details without crashing the process.
func Recover(logger PanicLogger, name string) {
	if r := recover(); r != nil {
		report(logger, &PanicError{Name: name, Value: r, Stack: debug.Stack()})
	}
}

func report(logger PanicLogger, perr *PanicError) {
	if logger == nil {
		return
	}
	logger.Error("goroutine %v, stack: %s", perr, perr.Stack)
}
