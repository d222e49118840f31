package interpreter

import (
	"fmt"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
)

// TypeError is the interpreter's fatal type-mismatch condition (spec
// §4.2 "Mixed-width operands are a fatal type error — operand tags
// must match; the interpreter does not auto-promote").
type TypeError struct {
	Op       bytecode.Op
	Got      bytecode.TypeTag
	Expected bytecode.TypeTag
}

func (e *TypeError) Error() string {
	if e.Expected == bytecode.TVoid {
		return fmt.Sprintf("interpreter: %s: unexpected operand tag %s", e.Op, e.Got)
	}
	return fmt.Sprintf("interpreter: %s: operand tag mismatch: got %s, want %s", e.Op, e.Got, e.Expected)
}

// checkTag reports the fatal type error spec §4.2 describes when two
// operand tags disagree ("operand tags must match; the interpreter
// does not auto-promote").
func checkTag(op bytecode.Op, want, got bytecode.TypeTag) error {
	if want != got {
		return &TypeError{Op: op, Got: got, Expected: want}
	}
	return nil
}
