/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package interp

import (
	"github.com/jacobin-vm/classvm/internal/classfile"
	"github.com/jacobin-vm/classvm/internal/classloader"
	"github.com/jacobin-vm/classvm/internal/trace"
	"github.com/jacobin-vm/classvm/internal/value"
	"github.com/jacobin-vm/classvm/internal/vmerr"
)

// ensureInitialized runs class's <clinit>, and its superclasses' first,
// on first touch (spec.md §4.3 "Class initialization", §9 "initialize
// supers before subs on first touch"). Marking the class initialized
// before running <clinit> breaks initializer cycles.
func (vm *Interpreter) ensureInitialized(class *classloader.Class) error {
	if class == nil || class.IsInitialized() {
		return nil
	}
	if class.SuperClass != nil {
		if err := vm.ensureInitialized(class.SuperClass); err != nil {
			return err
		}
	}
	class.MarkInitialized()

	clinit, ok := class.MethodByNameAndDescriptor("<clinit>", "()V")
	if !ok {
		return nil
	}
	_, _, err := vm.RunMethod(class, clinit, nil)
	return err
}

// execute drives frame until it returns, throws unhandled, or a host
// fault aborts it (spec.md §4.3 "The interpreter drives one frame until
// it returns, throws, or runs off the end").
func (vm *Interpreter) execute(frame *Frame) (value.Value, bool, error) {
	if frame.PC < 0 {
		frame.PC = 0
	}
	for {
		prog, err := vm.step(frame)
		if err != nil {
			return vm.dispatch(frame, err)
		}

		switch prog.kind {
		case progNext:
			// step already advanced frame.PC
		case progJumpRel:
			frame.PC += prog.delta
		case progJumpAbs:
			frame.PC = prog.target
		case progReturn:
			return prog.retVal, prog.hasRet, nil
		case progThrow:
			return vm.dispatch(frame, prog.throwVal)
		}
	}
}

// dispatch implements spec.md §4.3 "Exception dispatch". Host faults
// bypass the exception table entirely (spec.md §4.3 step 3, §7
// "Propagation"). Guest exceptions are matched against frame's exception
// table in order; on no match the frame is abandoned and the same error
// is returned to the caller, which retries dispatch at its own call site
// (spec.md §4.3 step 2, §7 "unwind one frame and the caller's call-site
// is retried").
func (vm *Interpreter) dispatch(frame *Frame, thrown error) (value.Value, bool, error) {
	if thrown == errStackOverflow {
		thrown = vm.synthesize(vmerr.StackOverflowError, "operand stack overflow")
	}

	if vmerr.IsHostFault(thrown) {
		return value.Value{}, false, thrown
	}

	ge, ok := thrown.(*vmerr.GuestException)
	if !ok {
		return value.Value{}, false, thrown
	}

	if frame.Code != nil {
		for _, ex := range frame.Code.ExceptionTable {
			if frame.PC < ex.StartPC || frame.PC >= ex.EndPC {
				continue
			}
			if !vm.exceptionMatches(frame, ex, ge) {
				continue
			}
			trace.Trace("dispatch: %s caught in %s.%s at handler pc %d", ge.Error(), frame.Class.Name, frame.Method.Name, ex.HandlerPC)
			frame.ClearStack()
			_ = frame.Push(value.RefVal(ge.ObjectHandle))
			frame.PC = ex.HandlerPC
			return vm.execute(frame)
		}
	}

	ge.WithFrame(vmerr.FrameSource{ClassName: frame.Class.Name, MethodName: frame.Method.Name, PC: frame.PC})
	return value.Value{}, false, ge
}

// synthesize builds a guest exception of a well-known class, resolving it
// through the loader and allocating a real instance so a handler that
// catches it sees the same kind of object athrow would have thrown
// (spec.md §7: null dereference, array index out of bounds, stack
// overflow, invalid class cast are all synthesized this way). Failing to
// resolve the exception class itself escalates to a host fault, since the
// VM's own bootstrap classes are assumed present.
func (vm *Interpreter) synthesize(className, message string) error {
	class, err := vm.Loader.ForName(className)
	if err != nil {
		return vmerr.Fault(err)
	}
	obj := vm.Allocate(class)
	return vmerr.New(class, message).WithObject(obj)
}

func (vm *Interpreter) exceptionMatches(frame *Frame, ex classfile.ExceptionEntry, ge *vmerr.GuestException) bool {
	if ex.CatchType == 0 {
		return true // catch-all, spec.md §3 "catch_type_ref = 0 means catches everything"
	}
	resolved, err := vm.resolveClassRef(frame.Class, ex.CatchType)
	if err != nil {
		return false
	}
	thrownClass, ok := ge.TypeClass.(*classloader.Class)
	if !ok || thrownClass == nil {
		return false
	}
	return classloader.CanAssign(thrownClass, resolved)
}

// resolveClassRef resolves a constant-pool class reference (e.g. a
// catch_type or a new/checkcast operand) to its Class.
func (vm *Interpreter) resolveClassRef(class *classloader.Class, cpIndex uint16) (*classloader.Class, error) {
	name := class.File.ConstantPool.ClassNameAt(cpIndex)
	if name == "" {
		return nil, vmerr.Faultf("classvm: invalid class reference at constant pool index %d in %s", cpIndex, class.Name)
	}
	resolved, err := vm.Loader.ForName(name)
	if err != nil {
		return nil, vmerr.Fault(err)
	}
	return resolved, nil
}
