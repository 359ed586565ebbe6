package phase

import (
	"fmt"
	"runtime/debug"
	"time"

	"framesched/internal/registry"
)

// Fault describes one failed callback invocation.
//
// Exactly one of Err or Panic is set. Stack is only captured for panics.
type Fault struct {
	Phase Phase
	ID    registry.Handle
	Err   error
	Panic any
	Stack string
	At    time.Time
}

func (f *Fault) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("%s %s: panic: %v", f.Phase, f.ID, f.Panic)
	}
	return fmt.Sprintf("%s %s: %v", f.Phase, f.ID, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Invoke runs fn for participant id and converts a returned error or a panic
// into a Fault. It returns nil on success.
func Invoke(p Phase, id registry.Handle, fn func() error) (fault *Fault) {
	defer func() {
		if r := recover(); r != nil {
			fault = &Fault{Phase: p, ID: id, Panic: r, Stack: string(debug.Stack()), At: time.Now()}
		}
	}()
	if err := fn(); err != nil {
		return &Fault{Phase: p, ID: id, Err: err, At: time.Now()}
	}
	return nil
}
