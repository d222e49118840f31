package jit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/jit"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

func waitForCompiled(t *testing.T, fd *metadata.FunctionDescriptor) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fd.State.Variant() == metadata.Compiled {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("descriptor never transitioned to Compiled")
}

func TestSubmitInstallsCompiledVariant(t *testing.T) {
	fd, err := metadata.NewBytecodeFunction(symbol.None, nil, []bytecode.TypeTag{bytecode.I32}, bytecode.I32)
	require.NoError(t, err)
	fd.State.SetBytecode(1)

	w := jit.New(4)
	defer w.Close()

	w.Submit(fd, func(fd *metadata.FunctionDescriptor, args []metadata.TypedSlot) (metadata.TypedSlot, error) {
		return args[0], nil
	})
	waitForCompiled(t, fd)

	entry, code, sm, ok := fd.State.Compiled()
	require.True(t, ok)
	assert.NotZero(t, entry)
	assert.NotEmpty(t, code)
	assert.Contains(t, sm, uint64(entry))
}

func TestInvokeReentersEvaluatorWithSameResult(t *testing.T) {
	fd, err := metadata.NewBytecodeFunction(symbol.None, nil, []bytecode.TypeTag{bytecode.I32}, bytecode.I32)
	require.NoError(t, err)
	fd.State.SetBytecode(1)

	var evaluated *metadata.FunctionDescriptor
	w := jit.New(4)
	defer w.Close()

	w.Submit(fd, func(f *metadata.FunctionDescriptor, args []metadata.TypedSlot) (metadata.TypedSlot, error) {
		evaluated = f
		return args[0], nil
	})
	waitForCompiled(t, fd)

	entry, _, _, _ := fd.State.Compiled()
	result, err := w.Invoke(entry, []interface{}{int32(42)})
	require.NoError(t, err)
	assert.Equal(t, int32(42), result)
	assert.Same(t, fd, evaluated)
}

func TestInvokeReentersEachEntrysOwnEvaluator(t *testing.T) {
	fdA, err := metadata.NewBytecodeFunction(symbol.None, nil, []bytecode.TypeTag{bytecode.I32}, bytecode.I32)
	require.NoError(t, err)
	fdA.State.SetBytecode(1)
	fdB, err := metadata.NewBytecodeFunction(symbol.None, nil, []bytecode.TypeTag{bytecode.I32}, bytecode.I32)
	require.NoError(t, err)
	fdB.State.SetBytecode(1)

	w := jit.New(4)
	defer w.Close()

	var evaluatedA, evaluatedB *metadata.FunctionDescriptor
	w.Submit(fdA, func(f *metadata.FunctionDescriptor, args []metadata.TypedSlot) (metadata.TypedSlot, error) {
		evaluatedA = f
		return args[0], nil
	})
	w.Submit(fdB, func(f *metadata.FunctionDescriptor, args []metadata.TypedSlot) (metadata.TypedSlot, error) {
		evaluatedB = f
		return args[0], nil
	})
	waitForCompiled(t, fdA)
	waitForCompiled(t, fdB)

	entryA, _, _, _ := fdA.State.Compiled()
	entryB, _, _, _ := fdB.State.Compiled()

	_, err = w.Invoke(entryA, []interface{}{int32(1)})
	require.NoError(t, err)
	_, err = w.Invoke(entryB, []interface{}{int32(2)})
	require.NoError(t, err)

	assert.Same(t, fdA, evaluatedA)
	assert.Same(t, fdB, evaluatedB)
}

func TestSubmitOnNonBytecodeDescriptorIsNoop(t *testing.T) {
	fd := metadata.NewNativeFunction(symbol.None, nil, bytecode.TVoid, func(ctx interface{}, args []interface{}) (interface{}, error) {
		return nil, nil
	})

	w := jit.New(4)
	defer w.Close()

	w.Submit(fd, func(fd *metadata.FunctionDescriptor, args []metadata.TypedSlot) (metadata.TypedSlot, error) {
		t.Fatal("evaluator should never run for a non-Bytecode descriptor")
		return metadata.TypedSlot{}, nil
	})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, metadata.Native, fd.State.Variant())
}

func TestInvokeUnknownEntryErrors(t *testing.T) {
	w := jit.New(4)
	defer w.Close()

	_, err := w.Invoke(0xdeadbeef, nil)
	assert.Error(t, err)
}
