package interpreter

import (
	"fmt"
	"math"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/heap"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

// UncaughtException is returned when Throw unwinds past every frame
// without finding a matching registered handler (spec §4.2 "unwind
// reads it and pops frames until a registered handler class matches").
type UncaughtException struct {
	Class symbol.Symbol
	Ref   heap.Reference
}

func (e *UncaughtException) Error() string {
	return fmt.Sprintf("interpreter: uncaught exception (class symbol %d)", e.Class)
}

// DivideByZeroError is raised by Div/Rem on an integer zero divisor.
type DivideByZeroError struct{ Op bytecode.Op }

func (e *DivideByZeroError) Error() string { return fmt.Sprintf("interpreter: %s by zero", e.Op) }

// Call pushes a frame for fd with args as its starting locals and runs
// the main loop until that frame (and anything it transitively calls)
// returns, yielding the frame's return value.
func (c *Context) Call(fd *metadata.FunctionDescriptor, args []metadata.TypedSlot) (metadata.TypedSlot, error) {
	depth := len(c.Frames)
	if fd.State.Variant() == metadata.Compiled {
		// Interpret the retained bytecode: dispatch would call the JIT
		// trampoline, which re-enters Call. Drop the copy of the result
		// ReturnValue leaves on the caller, which callCompiled pushes.
		f := newFrame(fd, args)
		f.IsBytecode = true
		n := -1
		if depth > 0 {
			n = len(c.top().Stack)
		}
		c.pushFrame(f)
		ret, err := c.run(depth)
		if n >= 0 && len(c.Frames) == depth && len(c.top().Stack) > n {
			c.top().Stack = c.top().Stack[:n]
		}
		return ret, err
	}
	if err := c.dispatch(fd, args); err != nil {
		return metadata.TypedSlot{}, err
	}
	return c.run(depth)
}

// run executes opcodes until the frame stack is back down to
// stopDepth, the way spec §4.2's main loop runs "until returning from
// the outermost frame terminates the loop" — here scoped to whatever
// frame Call most recently pushed, so nested Go-level Call invocations
// (e.g. static-init bodies) compose correctly.
func (c *Context) run(stopDepth int) (metadata.TypedSlot, error) {
	var result metadata.TypedSlot
	for len(c.Frames) > stopDepth {
		f := c.top()
		if !f.IsBytecode {
			return result, &DispatchError{Reason: "non-bytecode frame left on the stack"}
		}
		if f.IP >= len(f.Method.Body) {
			return result, &DispatchError{Reason: "instruction pointer ran off the end of the method body"}
		}
		ins := f.Method.Body[f.IP]

		ret, done, err := c.step(f, ins)
		if err != nil {
			return result, err
		}
		if done {
			result = ret
		}
		c.Safepoint.Poll()
	}
	return result, nil
}

// step executes one instruction on frame f. done reports whether f
// returned (and was popped); ret is only meaningful when done is true
// and the stack is now back at stopDepth.
func (c *Context) step(f *Frame, ins bytecode.Instruction) (ret metadata.TypedSlot, done bool, err error) {
	advance := true

	switch ins.Op {
	case bytecode.Nop, bytecode.Breakpoint:

	case bytecode.ConstI8, bytecode.ConstU8:
		f.push(intSlot(bytecode.I8, wrapSigned(int64(ins.Operands[0]), 1)))
	case bytecode.ConstI16, bytecode.ConstU16:
		f.push(intSlot(bytecode.I16, wrapSigned(int64(ins.Uint16Operand(0)), 2)))
	case bytecode.ConstI32, bytecode.ConstU32:
		f.push(intSlot(bytecode.I32, wrapSigned(int64(ins.Uint32Operand(0)), 4)))
	case bytecode.ConstI64, bytecode.ConstU64:
		f.push(intSlot(bytecode.I64, int64(ins.Uint64Operand(0))))
	case bytecode.ConstF32:
		f.push(metadata.TypedSlot{Tag: bytecode.F32, Payload: uint64(ins.Uint32Operand(0))})
	case bytecode.ConstF64:
		f.push(metadata.TypedSlot{Tag: bytecode.F64, Payload: ins.Uint64Operand(0)})
	case bytecode.ConstStr:
		f.push(metadata.TypedSlot{Tag: bytecode.TStr, Payload: ins.Uint64Operand(0)})

	case bytecode.Pop:
		f.pop()
	case bytecode.Dup:
		f.push(f.peek())
	case bytecode.Swap:
		top, under := f.pop(), f.pop()
		f.push(top)
		f.push(under)

	case bytecode.LoadLocal:
		idx := int(ins.Uint16Operand(0))
		ensureLen(&f.Locals, idx)
		f.push(f.Locals[idx])
	case bytecode.StoreLocal:
		idx := int(ins.Uint16Operand(0))
		v := f.pop()
		ensureLen(&f.Locals, idx)
		f.Locals[idx] = v
	case bytecode.LoadArg:
		idx := int(ins.Uint16Operand(0))
		ensureLen(&f.CallArgs, idx)
		f.push(f.CallArgs[idx])
	case bytecode.StoreArg:
		idx := int(ins.Uint16Operand(0))
		v := f.pop()
		ensureLen(&f.CallArgs, idx)
		f.CallArgs[idx] = v

	case bytecode.Add:
		err = c.binOp(f, ins.Op, func(x, y int64) int64 { return x + y }, func(x, y float64) float64 { return x + y })
	case bytecode.Sub:
		err = c.binOp(f, ins.Op, func(x, y int64) int64 { return x - y }, func(x, y float64) float64 { return x - y })
	case bytecode.Mul:
		err = c.binOp(f, ins.Op, func(x, y int64) int64 { return x * y }, func(x, y float64) float64 { return x * y })
	case bytecode.Div:
		err = c.divOp(f, ins.Op, false)
	case bytecode.Rem:
		err = c.divOp(f, ins.Op, true)
	case bytecode.SatAdd:
		b, a := f.pop(), f.pop()
		var s metadata.TypedSlot
		s, err = satAdd(a, b)
		if err == nil {
			f.push(s)
		}
	case bytecode.SatSub:
		b, a := f.pop(), f.pop()
		var s metadata.TypedSlot
		s, err = satSub(a, b)
		if err == nil {
			f.push(s)
		}
	case bytecode.Neg:
		v := f.pop()
		var s metadata.TypedSlot
		s, err = negate(ins.Op, v)
		if err == nil {
			f.push(s)
		}

	case bytecode.CmpSigned:
		err = c.cmpOp(f, ins.Op, cmpSigned)
	case bytecode.CmpUnsigned:
		err = c.cmpOp(f, ins.Op, cmpUnsigned)
	case bytecode.CmpFloat:
		err = c.cmpOp(f, ins.Op, cmpFloat)

	case bytecode.And:
		err = c.bitOp(f, ins.Op, func(x, y uint64) uint64 { return x & y })
	case bytecode.Or:
		err = c.bitOp(f, ins.Op, func(x, y uint64) uint64 { return x | y })
	case bytecode.Xor:
		err = c.bitOp(f, ins.Op, func(x, y uint64) uint64 { return x ^ y })
	case bytecode.Not:
		v := f.pop()
		width := v.Tag.Width()
		raw := unsignedOf(int64(v.Payload), width)
		f.push(intSlot(v.Tag, int64(^raw&maxUnsigned(width))))
	case bytecode.Shl:
		b, a := f.pop(), f.pop()
		width := a.Tag.Width()
		shift := uint(b.Payload) % uint(width*8)
		f.push(intSlot(a.Tag, int64(unsignedOf(int64(a.Payload), width)<<shift)))
	case bytecode.Shr:
		b, a := f.pop(), f.pop()
		width := a.Tag.Width()
		shift := uint(b.Payload) % uint(width*8)
		f.push(intSlot(a.Tag, int64(unsignedOf(int64(a.Payload), width)>>shift)))

	case bytecode.Convert:
		v := f.pop()
		dst := bytecode.TypeTag(ins.Operands[1])
		f.push(convertValue(v.Tag, dst, v))
	case bytecode.ReinterpretBits:
		v := f.pop()
		dst := bytecode.TypeTag(ins.Operands[0])
		f.push(reinterpretBits(dst, v))

	case bytecode.ArrayNew:
		tag := bytecode.TypeTag(ins.Operands[0])
		length := f.pop()
		ref := c.Arrays.New(tag, int(int64(length.Payload)))
		f.push(metadata.TypedSlot{Tag: bytecode.TObject, Payload: EncodeArrayRef(ref)})
	case bytecode.ArrayGet:
		index, arrSlot := f.pop(), f.pop()
		var v metadata.TypedSlot
		arrRef, _ := DecodeArrayRef(arrSlot.Payload)
		v, err = c.arrayGet(arrRef, int(int64(index.Payload)))
		if err == nil {
			f.push(v)
		}
	case bytecode.ArraySet:
		value, index, arrSlot := f.pop(), f.pop(), f.pop()
		arrRef, _ := DecodeArrayRef(arrSlot.Payload)
		err = c.arraySet(arrRef, int(int64(index.Payload)), value)

	case bytecode.ObjectNew:
		classSym := symbol.Symbol(ins.Uint64Operand(0))
		var ref heap.Reference
		ref, err = heap.NewObject(c.Symbols, c.Classes, c.Heap, classSym)
		if err == nil {
			if cls, ok := c.classOf(classSym); ok {
				err = c.ensureStaticInit(cls)
			}
			f.push(metadata.TypedSlot{Tag: bytecode.TObject, Payload: uint64(ref)})
		}
	case bytecode.FieldGet:
		owner := symbol.Symbol(ins.Uint64Operand(0))
		offset := int(ins.Uint64Operand(8))
		objSlot := f.pop()
		var v metadata.TypedSlot
		v, err = c.fieldGet(heap.Reference(objSlot.Payload), owner, offset)
		if err == nil {
			f.push(v)
		}
	case bytecode.FieldSet:
		owner := symbol.Symbol(ins.Uint64Operand(0))
		offset := int(ins.Uint64Operand(8))
		value, objSlot := f.pop(), f.pop()
		err = c.fieldSet(heap.Reference(objSlot.Payload), owner, offset, value)
	case bytecode.IsA:
		classSym := symbol.Symbol(ins.Uint64Operand(0))
		objSlot := f.pop()
		var is bool
		is, err = c.isA(heap.Reference(objSlot.Payload), classSym)
		if err == nil {
			if is {
				f.push(intSlot(bytecode.I32, 1))
			} else {
				f.push(intSlot(bytecode.I32, 0))
			}
		}

	case bytecode.InvokeVirtual:
		declared := symbol.Symbol(ins.Uint64Operand(0))
		origin := symbol.Symbol(ins.Uint64Operand(8))
		method := symbol.Symbol(ins.Uint64Operand(16))
		args := takeCallArgs(f)
		if len(args) == 0 {
			err = &DispatchError{Reason: "virtual invoke with no receiver in call-args slot 0"}
			break
		}
		var fd *metadata.FunctionDescriptor
		fd, err = c.resolveVirtual(heap.Reference(args[0].Payload), declared, origin, method)
		if err == nil {
			err = c.dispatch(fd, args)
		}
	case bytecode.InvokeStatic:
		classSym := symbol.Symbol(ins.Uint64Operand(0))
		method := symbol.Symbol(ins.Uint64Operand(8))
		args := takeCallArgs(f)
		if cls, ok := c.classOf(classSym); ok {
			err = c.ensureStaticInit(cls)
		}
		if err == nil {
			var fd *metadata.FunctionDescriptor
			fd, err = c.resolveStatic(classSym, method)
			if err == nil {
				err = c.dispatch(fd, args)
			}
		}

	case bytecode.StaticMemberGet:
		classSym := symbol.Symbol(ins.Uint64Operand(0))
		idx := int(ins.Uint64Operand(8))
		var cls *metadata.Class
		var ok bool
		cls, ok = c.classOf(classSym)
		if !ok {
			err = &DispatchError{Reason: "static member access on an unmaterialised class"}
			break
		}
		if err = c.ensureStaticInit(cls); err == nil {
			if idx >= len(cls.StaticMembers) {
				err = &DispatchError{Reason: "static member index out of range"}
			} else {
				f.push(cls.StaticMembers[idx])
			}
		}
	case bytecode.StaticMemberSet:
		classSym := symbol.Symbol(ins.Uint64Operand(0))
		idx := int(ins.Uint64Operand(8))
		v := f.pop()
		var cls *metadata.Class
		var ok bool
		cls, ok = c.classOf(classSym)
		if !ok {
			err = &DispatchError{Reason: "static member access on an unmaterialised class"}
			break
		}
		if err = c.ensureStaticInit(cls); err == nil {
			if idx >= len(cls.StaticMembers) {
				err = &DispatchError{Reason: "static member index out of range"}
			} else {
				cls.StaticMembers[idx] = v
			}
		}

	case bytecode.ReturnValue:
		v := f.pop()
		c.popFrame()
		if len(c.Frames) > 0 {
			c.top().push(v)
		}
		return v, true, nil
	case bytecode.ReturnVoid:
		c.popFrame()
		return metadata.TypedSlot{}, true, nil

	case bytecode.BlockStart:
		f.CurrentBlock = ins.Uint32Operand(0)
	case bytecode.Goto:
		target, ok := f.Method.Blocks[ins.Uint32Operand(0)]
		if !ok {
			err = &DispatchError{Reason: "goto: unknown block id"}
			break
		}
		f.IP = target
		advance = false
	case bytecode.BranchIf:
		cond := f.pop()
		if cond.Payload != 0 {
			target, ok := f.Method.Blocks[ins.Uint32Operand(0)]
			if !ok {
				err = &DispatchError{Reason: "br.if: unknown block id"}
				break
			}
			f.IP = target
			advance = false
		}
	case bytecode.Switch:
		err = c.execSwitch(f, ins, &advance)

	case bytecode.RegisterHandler:
		classSym := symbol.Symbol(ins.Uint64Operand(0))
		blockID := ins.Uint32Operand(8)
		f.Handlers = append(f.Handlers, handler{class: classSym, blockID: blockID})
	case bytecode.UnregisterHandler:
		if n := len(f.Handlers); n > 0 {
			f.Handlers = f.Handlers[:n-1]
		}
	case bytecode.Throw:
		excSlot := f.pop()
		err = c.throwAndUnwind(heap.Reference(excSlot.Payload))

	default:
		err = &DispatchError{Reason: fmt.Sprintf("unimplemented opcode %s", ins.Op)}
	}

	if err != nil {
		return metadata.TypedSlot{}, false, err
	}
	if advance {
		f.IP++
	}
	return metadata.TypedSlot{}, false, nil
}

func takeCallArgs(f *Frame) []metadata.TypedSlot {
	args := f.CallArgs
	f.CallArgs = nil
	return args
}

func (c *Context) classOf(sym symbol.Symbol) (*metadata.Class, bool) {
	idx, ok := c.Symbols.ClassIndex(sym)
	if !ok {
		return nil, false
	}
	return c.Classes.Get(idx)
}

func (c *Context) ensureStaticInit(cls *metadata.Class) error {
	if cls.StaticInit == nil {
		return nil
	}
	var callErr error
	cls.StaticInit.Bind(func() {
		fd, err := metadata.NewBytecodeFunction(symbol.None, cls.StaticInit.Body, nil, bytecode.TVoid)
		if err != nil {
			callErr = err
			return
		}
		_, callErr = c.Call(fd, nil)
	})
	cls.StaticInit.Ensure()
	return callErr
}

func (c *Context) binOp(f *Frame, op bytecode.Op, intFn func(x, y int64) int64, floatFn func(x, y float64) float64) error {
	b, a := f.pop(), f.pop()
	s, err := binaryArith(op, a, b, intFn, floatFn)
	if err != nil {
		return err
	}
	f.push(s)
	return nil
}

func (c *Context) divOp(f *Frame, op bytecode.Op, rem bool) error {
	b, a := f.pop(), f.pop()
	if isIntTag(a.Tag) && int64(b.Payload) == 0 {
		return &DivideByZeroError{Op: op}
	}
	intFn := func(x, y int64) int64 { return x / y }
	floatFn := func(x, y float64) float64 { return x / y }
	if rem {
		intFn = func(x, y int64) int64 { return x % y }
		floatFn = math.Mod
	}
	s, err := binaryArith(op, a, b, intFn, floatFn)
	if err != nil {
		return err
	}
	f.push(s)
	return nil
}

func (c *Context) cmpOp(f *Frame, op bytecode.Op, fn func(op bytecode.Op, a, b metadata.TypedSlot) (metadata.TypedSlot, error)) error {
	b, a := f.pop(), f.pop()
	s, err := fn(op, a, b)
	if err != nil {
		return err
	}
	f.push(s)
	return nil
}

func (c *Context) bitOp(f *Frame, op bytecode.Op, fn func(x, y uint64) uint64) error {
	b, a := f.pop(), f.pop()
	s, err := bitwise(op, a, b, fn)
	if err != nil {
		return err
	}
	f.push(s)
	return nil
}

func (c *Context) arrayGet(ref ArrayRef, index int) (metadata.TypedSlot, error) {
	a, ok := c.Arrays.Get(ref)
	if !ok {
		return metadata.TypedSlot{}, &DispatchError{Reason: "array.get on an invalid array reference"}
	}
	if index < 0 || index >= len(a.Elem) {
		return metadata.TypedSlot{}, &BoundsError{Index: index, Length: len(a.Elem)}
	}
	return metadata.TypedSlot{Tag: a.Tag, Payload: a.Elem[index]}, nil
}

func (c *Context) arraySet(ref ArrayRef, index int, value metadata.TypedSlot) error {
	a, ok := c.Arrays.Get(ref)
	if !ok {
		return &DispatchError{Reason: "array.set on an invalid array reference"}
	}
	if index < 0 || index >= len(a.Elem) {
		return &BoundsError{Index: index, Length: len(a.Elem)}
	}
	a.Elem[index] = value.Payload
	return nil
}

func memberAtOffset(cls *metadata.Class, offset int) (*metadata.Member, bool) {
	cur := 0
	for i := range cls.Members {
		m := &cls.Members[i]
		if cur == offset {
			return m, true
		}
		if m.Kind == metadata.MemberObject {
			cur += 8
		} else {
			cur += m.Size
		}
	}
	return nil, false
}

func (c *Context) fieldGet(ref heap.Reference, owner symbol.Symbol, offset int) (metadata.TypedSlot, error) {
	cell, err := heap.FieldCell(c.Heap, ref, owner)
	if err != nil {
		return metadata.TypedSlot{}, err
	}
	cls, ok := c.classOf(owner)
	if !ok {
		return metadata.TypedSlot{}, &DispatchError{Reason: "field.get on an unmaterialised owning class"}
	}
	m, ok := memberAtOffset(cls, offset)
	if !ok {
		return metadata.TypedSlot{}, &DispatchError{Reason: "field.get: no member at that offset"}
	}
	width := m.Size
	if m.Kind == metadata.MemberObject {
		width = 8
	}
	raw := readRawLE(cell.Data[offset : offset+width])
	if m.Kind == metadata.MemberObject {
		return metadata.TypedSlot{Tag: bytecode.TObject, Payload: raw}, nil
	}
	return intSlot(m.Tag, wrapSigned(int64(raw), width)), nil
}

func (c *Context) fieldSet(ref heap.Reference, owner symbol.Symbol, offset int, v metadata.TypedSlot) error {
	cell, err := heap.FieldCell(c.Heap, ref, owner)
	if err != nil {
		return err
	}
	cls, ok := c.classOf(owner)
	if !ok {
		return &DispatchError{Reason: "field.set on an unmaterialised owning class"}
	}
	m, ok := memberAtOffset(cls, offset)
	if !ok {
		return &DispatchError{Reason: "field.set: no member at that offset"}
	}
	width := m.Size
	if m.Kind == metadata.MemberObject {
		width = 8
	}
	writeRawLE(cell.Data[offset:offset+width], v.Payload)
	return nil
}

func (c *Context) isA(ref heap.Reference, classSym symbol.Symbol) (bool, error) {
	cell, ok := c.Heap.Get(ref)
	if !ok {
		return false, &DispatchError{Reason: "isa on a dangling or null reference"}
	}
	return c.isAncestorOrSelf(classSym, cell.Class), nil
}

func (c *Context) isAncestorOrSelf(ancestor, class symbol.Symbol) bool {
	cur := class
	for cur != symbol.None {
		if cur == ancestor {
			return true
		}
		cls, ok := c.classOf(cur)
		if !ok {
			return false
		}
		cur = cls.Parent
	}
	return false
}

func (c *Context) execSwitch(f *Frame, ins bytecode.Instruction, advance *bool) error {
	count := int(ins.Uint32Operand(0))
	v := f.pop()
	scrutinee := int32(v.Payload)
	for i := 0; i < count; i++ {
		base := 4 + i*8
		caseVal := int32(ins.Uint32Operand(base))
		if caseVal == scrutinee {
			blockID := ins.Uint32Operand(base + 4)
			target, ok := f.Method.Blocks[blockID]
			if !ok {
				return &DispatchError{Reason: "switch: unknown case block id"}
			}
			f.IP = target
			*advance = false
			return nil
		}
	}
	defaultBase := 4 + count*8
	blockID := ins.Uint32Operand(defaultBase)
	target, ok := f.Method.Blocks[blockID]
	if !ok {
		return &DispatchError{Reason: "switch: unknown default block id"}
	}
	f.IP = target
	*advance = false
	return nil
}

// throwAndUnwind pops frames until one has a registered handler whose
// class matches ref's runtime class or an ancestor of it, transferring
// control to that handler's block (spec §4.2 "Exception model").
func (c *Context) throwAndUnwind(ref heap.Reference) error {
	cell, ok := c.Heap.Get(ref)
	if !ok {
		return &DispatchError{Reason: "throw of a dangling or null reference"}
	}
	for len(c.Frames) > 0 {
		f := c.top()
		for i := len(f.Handlers) - 1; i >= 0; i-- {
			h := f.Handlers[i]
			if c.isAncestorOrSelf(h.class, cell.Class) {
				f.Handlers = f.Handlers[:i]
				target, ok := f.Method.Blocks[h.blockID]
				if !ok {
					return &DispatchError{Reason: "throw: handler block id not found"}
				}
				f.IP = target
				f.push(metadata.TypedSlot{Tag: bytecode.TObject, Payload: uint64(ref)})
				c.CurrentException = heap.Null
				return nil
			}
		}
		c.popFrame()
	}
	c.CurrentException = ref
	return &UncaughtException{Class: cell.Class, Ref: ref}
}

func readRawLE(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func writeRawLE(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
}
