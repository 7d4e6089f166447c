/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"github.com/pkg/errors"

	"github.com/jacobin-vm/classvm/internal/descriptor"
	"github.com/jacobin-vm/classvm/internal/types"
)

// Bootstrapped is the set of root classes spec.md §4.1 says bootstrap must
// return: the class-of-class, the root object class, the string class,
// and the byte array class the string interner allocates into.
type Bootstrapped struct {
	JavaLangClass  *Class
	JavaLangObject *Class
	JavaLangString *Class
	ByteArrayType  *Class
}

// Bootstrap loads the three root classes, constructs every primitive
// class and the array classes required up front, and back-patches every
// already-loaded class's meta-class pointer to the class-of-class
// (spec.md §4.1 "bootstrap", §9 "Class-of-class self-loop": the meta-class
// field of java/lang/Class itself, and of every class loaded before it,
// can only be set once java/lang/Class is registered).
func (l *Loader) Bootstrap() (*Bootstrapped, error) {
	jlc, err := l.ForName(types.ClassClassName)
	if err != nil {
		return nil, errors.Wrap(err, "classloader: bootstrap: loading java/lang/Class")
	}
	l.mu.Lock()
	l.classOfClass = jlc
	l.mu.Unlock()

	jlo, err := l.ForName(types.ObjectClassName)
	if err != nil {
		return nil, errors.Wrap(err, "classloader: bootstrap: loading java/lang/Object")
	}
	jls, err := l.ForName(types.StringClassName)
	if err != nil {
		return nil, errors.Wrap(err, "classloader: bootstrap: loading java/lang/String")
	}

	for _, prim := range types.PrimitiveDescriptors {
		desc, err := descriptor.ParseField(prim)
		if err != nil {
			return nil, errors.Wrapf(err, "classloader: bootstrap: parsing primitive tag %s", prim)
		}
		if _, err := l.forDescriptor(desc); err != nil {
			return nil, errors.Wrapf(err, "classloader: bootstrap: registering primitive %s", prim)
		}
		if prim == types.Void {
			continue // void has no array form
		}
		if _, err := l.ForName("[" + prim); err != nil {
			return nil, errors.Wrapf(err, "classloader: bootstrap: registering array of %s", prim)
		}
	}

	byteArray, err := l.ForName(types.ByteArrayClassName)
	if err != nil {
		return nil, errors.Wrap(err, "classloader: bootstrap: registering byte array class")
	}

	if _, err := l.ForName("[L" + types.ObjectClassName + ";"); err != nil {
		return nil, errors.Wrap(err, "classloader: bootstrap: registering Object array class")
	}
	if _, err := l.ForName("[L" + types.StringClassName + ";"); err != nil {
		return nil, errors.Wrap(err, "classloader: bootstrap: registering String array class")
	}

	// Back-patch: every class registered before java/lang/Class existed
	// (java/lang/Class itself, plus java/lang/Object loaded as its
	// superclass) now gets its meta-class pointer set; the loop sets it on
	// every registered class.
	for _, c := range l.allClasses() {
		c.SetClass(jlc)
	}

	return &Bootstrapped{
		JavaLangClass:  jlc,
		JavaLangObject: jlo,
		JavaLangString: jls,
		ByteArrayType:  byteArray,
	}, nil
}
