package referee

import "fmt"

// InvariantError reports corrupted match state, such as a roster lookup
// that cannot succeed. Unlike configuration errors it means a referee bug;
// the runner stops the match when Step returns one.
type InvariantError struct {
	Tick Tick
	What string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("referee invariant violated at tick %d: %s", e.Tick, e.What)
}

func invariantf(tick Tick, format string, args ...any) error {
	return &InvariantError{Tick: tick, What: fmt.Sprintf(format, args...)}
}
