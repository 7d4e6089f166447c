/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/jacobin-vm/classvm/internal/classfile"
	"github.com/jacobin-vm/classvm/internal/descriptor"
	"github.com/jacobin-vm/classvm/internal/heap"
	"github.com/jacobin-vm/classvm/internal/trace"
)

// Loader is the class registry: it resolves names to Class entities
// exactly once each, loading from its search roots on miss (spec.md §4.1
// "Public contract"). Grounded on jacobin's Classloader, collapsed to a
// single registry since this system has no AppCL/BootstrapCL/ExtensionCL
// distinction (spec.md doesn't call for parent-delegation semantics).
type Loader struct {
	mu      sync.RWMutex
	roots   []string
	classes map[string]*Class

	classOfClass *Class // java/lang/Class, the meta-class of every class
}

// NewLoader returns an empty loader with no search roots registered.
func NewLoader() *Loader {
	return &Loader{classes: make(map[string]*Class)}
}

// AddRoot appends a filesystem root to the search path.
func (l *Loader) AddRoot(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roots = append(l.roots, path)
}

// ForName returns the registered class for an internal name (e.g.
// "java/lang/String") or a field descriptor naming an array or primitive,
// loading it if necessary. Idempotent: the same name always returns the
// same *Class (spec.md §8 "for_name(X) called twice returns handles with
// the same address").
func (l *Loader) ForName(name string) (*Class, error) {
	if existing, ok := l.lookup(name); ok {
		return existing, nil
	}

	if desc, err := descriptor.ParseField(name); err == nil && (desc.IsArray() || desc.IsBase()) {
		return l.forDescriptor(desc)
	}

	raw, path, err := l.readClassFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "classloader: class %s not found on any root", name)
	}
	cf, err := classfile.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "classloader: malformed class file %s", path)
	}
	return l.register(name, cf)
}

// ForBytes registers a class from supplied bytes under an explicit name,
// used by tests (spec.md §4.1 "for_bytes"). Same registration rules as
// ForName: if name is already registered, the existing Class is returned
// and bytes are ignored.
func (l *Loader) ForBytes(name string, raw []byte) (*Class, error) {
	if existing, ok := l.lookup(name); ok {
		return existing, nil
	}
	cf, err := classfile.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "classloader: malformed class bytes for %s", name)
	}
	return l.register(name, cf)
}

// ForClassFile registers an already-parsed class file under name, skipping
// byte parsing entirely. Same idempotency rule as ForName/ForBytes: if name
// is already registered the existing Class wins. Exported for tests that
// build a classfile.ClassFile directly in Go rather than assembling raw
// class-file bytes by hand.
func (l *Loader) ForClassFile(name string, cf *classfile.ClassFile) (*Class, error) {
	if existing, ok := l.lookup(name); ok {
		return existing, nil
	}
	return l.register(name, cf)
}

func (l *Loader) lookup(name string) (*Class, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.classes[name]
	return c, ok
}

// readClassFile searches each root in order for name+".class"; the first
// hit wins (spec.md §4.1 "Resolution order").
func (l *Loader) readClassFile(name string) ([]byte, string, error) {
	l.mu.RLock()
	roots := append([]string(nil), l.roots...)
	l.mu.RUnlock()

	for _, root := range roots {
		path := filepath.Join(root, name+".class")
		raw, err := os.ReadFile(path)
		if err == nil {
			return raw, path, nil
		}
	}
	return nil, "", errors.Errorf("no root contains %s.class", name)
}

// register parses the superclass chain, computes this class's instance
// layout, and stores the Class under name. Class-not-found, parse, and
// layout failures are all fatal host-level errors (spec.md §4.1 "Failure
// semantics"), surfaced here as a returned error the caller (bootstrap or
// the interpreter) wraps into a host fault.
func (l *Loader) register(name string, cf *classfile.ClassFile) (*Class, error) {
	var super *Class
	if cf.SuperClass != "" {
		var err error
		super, err = l.ForName(cf.SuperClass)
		if err != nil {
			return nil, errors.Wrapf(err, "classloader: resolving superclass of %s", name)
		}
	}

	layout, err := computeLayout(cf, super)
	if err != nil {
		return nil, errors.Wrapf(err, "classloader: computing layout for %s", name)
	}

	class := &Class{
		Name:       name,
		File:       cf,
		Category:   CategoryObject,
		SuperClass: super,
		Layout:     layout,
	}
	if super != nil {
		class.SetSuper(super)
	}
	if l.classOfClass != nil {
		class.SetClass(l.classOfClass)
	}

	l.mu.Lock()
	if existing, ok := l.classes[name]; ok {
		l.mu.Unlock()
		return existing, nil
	}
	l.classes[name] = class
	l.mu.Unlock()

	trace.Trace("classloader: loaded %s (instance size %d)", name, layout.Size)
	return class, nil
}

// forDescriptor resolves a parsed array or primitive descriptor to its
// synthetic class, building ancestor element classes recursively for
// arrays-of-arrays.
func (l *Loader) forDescriptor(desc descriptor.Field) (*Class, error) {
	name := desc.String()
	if existing, ok := l.lookup(name); ok {
		return existing, nil
	}

	if desc.IsBase() {
		return l.registerSynthetic(name, &Class{
			Name:     name,
			Category: CategoryPrimitive,
			Layout:   heap.NewLayout(0),
		})
	}

	// Array: resolve the element class first so nested array dimensions
	// (int[][] etc.) bottom out correctly.
	elem := desc.ElementDescriptor()
	var err error
	if elem.IsObject() {
		_, err = l.ForName(elem.ClassName)
	} else {
		_, err = l.forDescriptor(elem)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "classloader: resolving element class for %s", name)
	}

	layout := heap.NewLayout(headerSize)
	layout.Size = headerSize + 4 // header + int32 length; payload is variable-length, tracked by heap.Array itself
	return l.registerSynthetic(name, &Class{
		Name:              name,
		Category:          CategoryArray,
		ElementDescriptor: elem.String(),
		Layout:            layout,
	})
}

func (l *Loader) registerSynthetic(name string, class *Class) (*Class, error) {
	if l.classOfClass != nil {
		class.SetClass(l.classOfClass)
	}
	l.mu.Lock()
	if existing, ok := l.classes[name]; ok {
		l.mu.Unlock()
		return existing, nil
	}
	l.classes[name] = class
	l.mu.Unlock()
	return class, nil
}

// allClasses returns a snapshot of every currently-registered class, used
// by Bootstrap to back-patch the meta-class pointer once the class-of-
// class itself becomes available.
func (l *Loader) allClasses() []*Class {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Class, 0, len(l.classes))
	for _, c := range l.classes {
		out = append(out, c)
	}
	return out
}
