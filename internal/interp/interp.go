/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package interp

import (
	"github.com/sirupsen/logrus"

	"github.com/jacobin-vm/classvm/internal/classfile"
	"github.com/jacobin-vm/classvm/internal/classloader"
	"github.com/jacobin-vm/classvm/internal/heap"
	"github.com/jacobin-vm/classvm/internal/stringpool"
	"github.com/jacobin-vm/classvm/internal/trace"
	"github.com/jacobin-vm/classvm/internal/value"
	"github.com/jacobin-vm/classvm/internal/vmerr"
)

// Interpreter drives one thread of guest execution to completion
// (spec.md §5 "Single-threaded cooperative"). It owns the class loader,
// string interner, and the configured operand-stack depth limit, and
// implements classloader.VM so native callables can allocate, intern,
// and throw without importing this package.
type Interpreter struct {
	Loader   *classloader.Loader
	Strings  *stringpool.Interner
	Boot     *classloader.Bootstrapped
	MaxStack int
	Log      *logrus.Logger
}

// New builds an interpreter over an already-bootstrapped loader. A nil log
// falls back to internal/trace's shared logger.
func New(loader *classloader.Loader, boot *classloader.Bootstrapped, maxStack int, log *logrus.Logger) *Interpreter {
	if log == nil {
		log = trace.Logger()
	}
	strings := stringpool.New(boot.JavaLangString, boot.JavaLangObject, boot.ByteArrayType)
	return &Interpreter{Loader: loader, Strings: strings, Boot: boot, MaxStack: maxStack, Log: log}
}

// Allocate implements classloader.VM.
func (vm *Interpreter) Allocate(class *classloader.Class) heap.Handle[heap.Object] {
	return heap.NewObject(class)
}

// InternString implements classloader.VM.
func (vm *Interpreter) InternString(text string) heap.Handle[heap.Object] {
	return vm.Strings.Intern(text)
}

// ThrowGuest implements classloader.VM: synthesizes a guest exception of
// the named class. Failing to resolve the exception class itself is a
// host fault (spec.md §4.1 "Failure semantics").
func (vm *Interpreter) ThrowGuest(className, message string) error {
	class, err := vm.Loader.ForName(className)
	if err != nil {
		return vmerr.Fault(err)
	}
	obj := vm.Allocate(class)
	return vmerr.New(class, message).WithObject(obj)
}

// RunMain resolves mainClass's `public static void main(String[])` and
// executes it to completion (cmd/classvm's entry point).
func (vm *Interpreter) RunMain(mainClass *classloader.Class, args []string) error {
	method, ok := mainClass.MethodByNameAndDescriptor("main", "([Ljava/lang/String;)V")
	if !ok {
		return vmerr.Faultf("classvm: %s has no main([Ljava/lang/String;)V method", mainClass.Name)
	}

	argsArray, err := vm.buildStringArray(args)
	if err != nil {
		return err
	}
	vm.Log.Infof("classvm: entering %s.main", mainClass.Name)
	_, _, err = vm.RunMethod(mainClass, method, []value.Value{value.RefVal(argsArray)})
	if err != nil {
		vm.Log.Errorf("classvm: %s.main terminated with %v", mainClass.Name, err)
	}
	return err
}

func (vm *Interpreter) buildStringArray(args []string) (heap.Handle[heap.Object], error) {
	arrClass, err := vm.Loader.ForName("[Ljava/lang/String;")
	if err != nil {
		return heap.Null[heap.Object](), vmerr.Fault(err)
	}
	arr := heap.NewArray(arrClass, int32(len(args)), heap.RefFieldWidth, true)
	for i, a := range args {
		s := vm.Strings.Intern(a)
		_ = heap.SetElemRef(arr.Ptr(), int32(i), s)
		s.Drop()
	}
	return heap.Cast[heap.Object](arr), nil
}

// RunMethod executes one method activation to completion: return, guest
// exception, or host fault (spec.md §4.3). args are the already-resolved
// parameter values (and receiver, for non-static methods), in slot order.
// If method has no Code attribute, it is dispatched to class's native
// module instead (spec.md §4.5).
func (vm *Interpreter) RunMethod(class *classloader.Class, method classfile.Method, args []value.Value) (value.Value, bool, error) {
	if method.IsNative() || method.Code == nil {
		return vm.invokeNative(class, method, args)
	}

	if !class.IsInitialized() {
		if err := vm.ensureInitialized(class); err != nil {
			return value.Value{}, false, err
		}
	}

	frame := NewFrame(class, method, vm.MaxStack)
	for i, a := range args {
		frame.SetLocal(i, a)
	}

	return vm.execute(frame)
}
