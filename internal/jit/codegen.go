package jit

import (
	"github.com/Ki11erRabbit/rowan/internal/asm"
	"github.com/Ki11erRabbit/rowan/internal/asm/golangasm"
)

// emitTrampoline assembles the minimal stub a tier-up entry point
// needs: nothing but a return. The actual work of a compiled call
// happens in Worker.Invoke (see jit.go's package doc); this function
// exists so the worker genuinely exercises asm.CodeBuffer end to end
// (emit, assemble) rather than installing a bare pointer with no
// backing native code.
func emitTrampoline(buf asm.CodeBuffer) ([]byte, error) {
	buf.CompileStandAlone(golangasm.RET)
	return buf.Assemble()
}
