package flag

import "fmt"

// Kind tags why a toggle failed. Every kind reaches the user through the same banner.
type Kind int

const (
	KindIneligible Kind = iota + 1
	KindBusy
	KindNotFound
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindIneligible:
		return "ineligible"
	case KindBusy:
		return "busy"
	case KindNotFound:
		return "not found"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a failed toggle. Message is the text shown to the user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flag %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("flag %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }
