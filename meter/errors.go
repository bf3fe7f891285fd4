package meter

import "fmt"

// ParsingError is a recoverable protocol fault: the offending frame did not
// match the grammar for its expected message kind, or a data message's
// trailing block-check character did not match the recomputed one.
type ParsingError struct {
	Kind  MessageKind
	Frame []byte
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("meter: failed to parse %s frame: %q", e.Kind, e.Frame)
}

// ProtocolError is raised when the Mode C state machine observes a message
// it did not expect in the current state. It is always recoverable: Run
// folds it back into a Reset, and RunOnce returns it to its caller.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string { return e.Message }

// TimeoutError wraps a deadline expiring on a transport read or write.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("meter: timeout during %s", e.Op) }

func (e *TimeoutError) Timeout() bool { return true }
