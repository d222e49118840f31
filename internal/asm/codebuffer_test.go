package asm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ki11erRabbit/rowan/internal/asm"
)

type fakeNode struct {
	name   string
	target *fakeNode
}

func (n *fakeNode) String() string                        { return n.name }
func (n *fakeNode) AssignJumpTarget(target asm.Node)      { n.target = target.(*fakeNode) }
func (n *fakeNode) OffsetInBinary() asm.NodeOffsetInBinary { return 0 }

func TestBaseCodeBufferResolvePending(t *testing.T) {
	var base asm.BaseCodeBuffer
	a := &fakeNode{name: "a"}
	b := &fakeNode{name: "b"}
	next := &fakeNode{name: "next"}

	base.SetJumpTargetOnNext(a, b)
	base.ResolvePending(next)

	assert.Same(t, next, a.target)
	assert.Same(t, next, b.target)
}

func TestBaseCodeBufferResolvePendingClearsQueue(t *testing.T) {
	var base asm.BaseCodeBuffer
	a := &fakeNode{name: "a"}
	first := &fakeNode{name: "first"}
	second := &fakeNode{name: "second"}

	base.SetJumpTargetOnNext(a)
	base.ResolvePending(first)
	base.ResolvePending(second)

	assert.Same(t, first, a.target)
}
