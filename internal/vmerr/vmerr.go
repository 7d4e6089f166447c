/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package vmerr implements the two-channel error model spec.md §7
// describes: catchable guest exceptions versus uncatchable host-level
// faults. Grounded on jacobin's excNames/exceptions split (a name table
// plus a constructor path) and on original_source's Throwable enum
// (Internal vs a guest-level variant), adapted so host faults wrap with
// github.com/pkg/errors (stack-capturing) while guest exceptions stay a
// plain, un-wrapped value the interpreter inspects structurally.
package vmerr

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/jacobin-vm/classvm/internal/heap"
)

// FrameSource identifies one entry in a guest exception's call chain, for
// printing "<class>: <message>" with the frame chain (spec.md §7).
type FrameSource struct {
	ClassName  string
	MethodName string
	PC         int
}

// GuestException is a catchable, guest-visible throwable (spec.md §7
// "Guest exceptions"). It is produced either by the guest itself (athrow)
// or synthesized by the interpreter for well-defined runtime conditions:
// null dereference, array index out of bounds, stack overflow, invalid
// class cast.
type GuestException struct {
	Message      string
	TypeClass    heap.Meta
	ObjectHandle heap.Handle[heap.Object]
	FrameSources []FrameSource
}

func (g *GuestException) Error() string {
	if g.Message == "" {
		return g.className()
	}
	return fmt.Sprintf("%s: %s", g.className(), g.Message)
}

func (g *GuestException) className() string {
	if g.TypeClass == nil {
		return "<unknown>"
	}
	return g.TypeClass.ClassName()
}

// WithFrame appends a call-site frame to the exception's trace as it
// unwinds (spec.md §7 "unwind one frame ... caller's call-site is
// retried").
func (g *GuestException) WithFrame(f FrameSource) *GuestException {
	g.FrameSources = append(g.FrameSources, f)
	return g
}

// WithObject attaches the guest throwable instance athrow raised, so a
// handler catching it can inspect the object's own fields.
func (g *GuestException) WithObject(h heap.Handle[heap.Object]) *GuestException {
	g.ObjectHandle = h
	return g
}

// New builds a guest exception for a well-known runtime condition.
func New(typeClass heap.Meta, message string) *GuestException {
	return &GuestException{TypeClass: typeClass, Message: message}
}

// Well-known guest exception class names the interpreter synthesizes
// (spec.md §7, §8 "Boundary behaviors").
const (
	NullPointerException          = "java/lang/NullPointerException"
	ArrayIndexOutOfBoundsException = "java/lang/ArrayIndexOutOfBoundsException"
	StackOverflowError             = "java/lang/StackOverflowError"
	ClassCastException             = "java/lang/ClassCastException"
	RuntimeException               = "java/lang/RuntimeException"
)

// HostFault is any uncatchable failure: missing class, malformed class
// file, missing native binding, type-model invariant violation, I/O
// failure (spec.md §7 "Host errors"). It always unwinds every frame.
type HostFault struct {
	cause error
}

func (h *HostFault) Error() string { return h.cause.Error() }
func (h *HostFault) Unwrap() error { return h.cause }

// Fault wraps err (capturing a stack trace via github.com/pkg/errors) as
// a host-level fault.
func Fault(err error) *HostFault {
	return &HostFault{cause: errors.WithStack(err)}
}

// Faultf builds a host-level fault from a format string.
func Faultf(format string, args ...interface{}) *HostFault {
	return &HostFault{cause: errors.Errorf(format, args...)}
}

// IsHostFault reports whether err is (or wraps) a HostFault.
func IsHostFault(err error) bool {
	var hf *HostFault
	return errors.As(err, &hf)
}

// IsGuestException reports whether err is a GuestException.
func IsGuestException(err error) bool {
	var ge *GuestException
	return errors.As(err, &ge)
}
