package golangasm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ki11erRabbit/rowan/internal/asm"
	"github.com/Ki11erRabbit/rowan/internal/asm/golangasm"
)

func TestAssembleStandAloneRet(t *testing.T) {
	buf, err := golangasm.New()
	require.NoError(t, err)

	buf.CompileStandAlone(golangasm.RET)

	code, err := buf.Assemble()
	require.NoError(t, err)
	require.NotEmpty(t, code)
}

func TestCompileJumpTargetsLaterNode(t *testing.T) {
	buf, err := golangasm.New()
	require.NoError(t, err)

	jmp := buf.CompileJump(golangasm.JMP)
	target := buf.CompileStandAlone(golangasm.NOP)
	jmp.AssignJumpTarget(target)
	buf.CompileStandAlone(golangasm.RET)

	code, err := buf.Assemble()
	require.NoError(t, err)
	require.NotEmpty(t, code)
}

func TestSetJumpTargetOnNextWiresPendingNode(t *testing.T) {
	buf, err := golangasm.New()
	require.NoError(t, err)

	jmp := buf.CompileJump(golangasm.JMP)
	buf.SetJumpTargetOnNext(jmp)
	buf.CompileStandAlone(golangasm.NOP)

	_, err = buf.Assemble()
	require.NoError(t, err)
}

func TestCodeBufferImplementsCodeBuffer(t *testing.T) {
	var _ asm.CodeBuffer
	buf, err := golangasm.New()
	require.NoError(t, err)
	var cb asm.CodeBuffer = buf
	require.NotNil(t, cb)
}
