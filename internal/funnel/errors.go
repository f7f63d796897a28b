package funnel

import "fmt"

// ValidationError reports participant input that cannot be applied. The
// participant's state is never mutated when one is returned; Prompt, when
// set, is the corrective message sent back to the chat.
type ValidationError struct {
	Field  string
	Reason string
	Prompt string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
