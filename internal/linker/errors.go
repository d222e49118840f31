package linker

import "fmt"

// LinkError reports a Materialisation failure: either a single
// class's own resolution error, or the terminal "retry queue made no
// progress" failure listing every class that never resolved (spec
// §4.1 "if a pass over the retry queue resolves nothing, linking
// fails").
type LinkError struct {
	Class   string
	Reason  string
	Pending []string // set only for the terminal no-progress failure
}

func (e *LinkError) Error() string {
	if len(e.Pending) > 0 {
		return fmt.Sprintf("linker: unresolved classes after no-progress pass: %v", e.Pending)
	}
	return fmt.Sprintf("linker: class %q: %s", e.Class, e.Reason)
}
