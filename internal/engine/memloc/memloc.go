// Package memloc implements memory locations: the uniform abstraction over
// "a place a Read or Write can name" that lets the engine compare accesses
// from unrelated instrumented types without caring about their shape.
//
// This generalizes the teacher's shadow-memory addressing (shadowmem.go
// treats every tracked variable as a flat (address, size) pair reached
// through go:linkname'd runtime internals) to user-defined struct fields,
// array/slice elements and static variables, using reflect plus unsafe to
// read and uniquely key each variant instead of hooking the runtime.
package memloc

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/mkovalenko/eventsim/internal/engine/objid"
)

// Kind discriminates the MemoryLocation variants.
type Kind uint8

const (
	KindStaticField Kind = iota
	KindObjectField
	KindArrayElement
	KindAtomicPrimitive
)

// MemoryLocation names one addressable slot an instrumented program can
// read or write. Two locations denote the same memory iff their Key()
// values compare equal, which is what the execution's memory-access index
// (see the execution package) groups events by.
type MemoryLocation interface {
	Kind() Kind
	// Key returns a comparable value suitable for use as a map key; equal
	// keys mean "the same memory slot".
	Key() any
	// Load reads the current value through reflect/unsafe.
	Load() any
	// Store writes a new value through reflect/unsafe.
	Store(v any)
	String() string
}

// field is shared plumbing for the struct-field variants: a pointer to the
// field's backing storage and its reflect.Type, obtained once via
// reflect.Value.UnsafeAddr() when the location is constructed.
type field struct {
	ptr unsafe.Pointer
	typ reflect.Type
}

func newField(rv reflect.Value) field {
	if !rv.CanAddr() {
		panic("memloc: value is not addressable")
	}
	return field{ptr: unsafe.Pointer(rv.UnsafeAddr()), typ: rv.Type()}
}

func (f field) load() any {
	return reflect.NewAt(f.typ, f.ptr).Elem().Interface()
}

func (f field) store(v any) {
	dst := reflect.NewAt(f.typ, f.ptr).Elem()
	dst.Set(reflect.ValueOf(v))
}

// StaticFieldKey identifies a package-level (class-static) variable by the
// name the harness registered it under. There is exactly one instance of a
// static field for the lifetime of the process, so the name alone is a
// stable key.
type StaticFieldKey struct {
	Name string
}

// StaticField is a package-level variable, corresponding to the data
// model's "static field" variant (owner object is the reserved
// objid.StaticObjectID).
type StaticField struct {
	field
	Name string
}

// NewStaticField constructs a StaticField location over rv, the addressable
// value of a package-level variable the harness registered under name.
func NewStaticField(name string, rv reflect.Value) *StaticField {
	return &StaticField{field: newField(rv), Name: name}
}

func (s *StaticField) Kind() Kind    { return KindStaticField }
func (s *StaticField) Key() any      { return StaticFieldKey{Name: s.Name} }
func (s *StaticField) Load() any     { return s.load() }
func (s *StaticField) Store(v any)   { s.store(v) }
func (s *StaticField) String() string { return fmt.Sprintf("static %s", s.Name) }

// ObjectFieldKey identifies an instance field on a specific allocated
// object: the pair (owner, field name) is unique across the whole
// exploration because ObjectIDs never get reused (see objid.Registry).
type ObjectFieldKey struct {
	Owner objid.ObjectID
	Name  string
}

// ObjectField is an instance field of a heap object reached via the object
// registry.
type ObjectField struct {
	field
	Owner objid.ObjectID
	Name  string
}

// NewObjectField constructs an ObjectField location for field rv (must be
// addressable, typically obtained via reflect.ValueOf(ptr).Elem().Field(i))
// belonging to owner.
func NewObjectField(owner objid.ObjectID, name string, rv reflect.Value) *ObjectField {
	return &ObjectField{field: newField(rv), Owner: owner, Name: name}
}

func (o *ObjectField) Kind() Kind    { return KindObjectField }
func (o *ObjectField) Key() any      { return ObjectFieldKey{Owner: o.Owner, Name: o.Name} }
func (o *ObjectField) Load() any     { return o.load() }
func (o *ObjectField) Store(v any)   { o.store(v) }
func (o *ObjectField) String() string {
	return fmt.Sprintf("obj#%d.%s", int64(o.Owner), o.Name)
}

// ArrayElementKey identifies one element of an array, slice, or
// fixed-length buffer owned by owner.
type ArrayElementKey struct {
	Owner objid.ObjectID
	Index int
}

// ArrayElement is a single indexable slot of an array or slice.
type ArrayElement struct {
	field
	Owner objid.ObjectID
	Index int
}

// NewArrayElement constructs an ArrayElement location for element rv (must
// be addressable, typically reflect.ValueOf(slice).Index(i)).
func NewArrayElement(owner objid.ObjectID, index int, rv reflect.Value) *ArrayElement {
	return &ArrayElement{field: newField(rv), Owner: owner, Index: index}
}

func (a *ArrayElement) Kind() Kind  { return KindArrayElement }
func (a *ArrayElement) Key() any    { return ArrayElementKey{Owner: a.Owner, Index: a.Index} }
func (a *ArrayElement) Load() any   { return a.load() }
func (a *ArrayElement) Store(v any) { a.store(v) }
func (a *ArrayElement) String() string {
	return fmt.Sprintf("obj#%d[%d]", int64(a.Owner), a.Index)
}

// AtomicKey identifies a single atomic-wrapper-typed field on owner.
type AtomicKey struct {
	Owner objid.ObjectID
	Name  string
}

// AtomicPrimitive is a memory location backed by an atomic wrapper value
// (sync/atomic's Int32/Int64/Bool/Value/Pointer, or a user type with the
// same Load()/Store(v) method pair), accessed through its own methods
// rather than raw pointer arithmetic: the wrapper already owns its
// hardware synchronization, and reflecting past it into its internal
// representation would itself race with a concurrent atomic operation.
// This is the uniform handle the data model calls out for "atomic
// wrapper objects" alongside plain struct fields and array elements.
type AtomicPrimitive struct {
	rv    reflect.Value // addressable value of the atomic wrapper itself.
	owner objid.ObjectID
	name  string
}

// NewAtomicPrimitive constructs an AtomicPrimitive over rv, the atomic
// wrapper field itself (not its contents), belonging to owner and named
// name.
func NewAtomicPrimitive(owner objid.ObjectID, name string, rv reflect.Value) *AtomicPrimitive {
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if !rv.CanAddr() {
		panic("memloc: atomic wrapper value is not addressable")
	}
	return &AtomicPrimitive{rv: rv, owner: owner, name: name}
}

func (a *AtomicPrimitive) Kind() Kind { return KindAtomicPrimitive }
func (a *AtomicPrimitive) Key() any   { return AtomicKey{Owner: a.owner, Name: a.name} }

// Load calls the wrapper's own Load method reflectively.
func (a *AtomicPrimitive) Load() any {
	return a.rv.Addr().MethodByName("Load").Call(nil)[0].Interface()
}

// Store calls the wrapper's own Store method reflectively.
func (a *AtomicPrimitive) Store(v any) {
	a.rv.Addr().MethodByName("Store").Call([]reflect.Value{reflect.ValueOf(v)})
}

func (a *AtomicPrimitive) String() string {
	return fmt.Sprintf("obj#%d.%s(atomic)", int64(a.owner), a.name)
}

// ResolveField walks obj's struct hierarchy (the struct's own fields first,
// then embedded/anonymous fields in declaration order, depth-first) looking
// for a field whose name has suffix as a
// suffix — matching the data model's "suffix-matched class-hierarchy walk"
// rule for resolving a field reference against an object whose declared
// type may be a subclass of the type the reference was compiled against.
func ResolveField(obj reflect.Value, suffix string) (reflect.Value, bool) {
	for obj.Kind() == reflect.Ptr {
		obj = obj.Elem()
	}
	if obj.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	return resolveFieldIn(obj, suffix)
}

func resolveFieldIn(v reflect.Value, suffix string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if hasSuffix(sf.Name, suffix) {
			return v.Field(i), true
		}
	}
	// Not found directly: descend into anonymous (embedded) fields in
	// declaration order, so the outer struct's own fields shadow its
	// embedded ones the way a subclass's fields shadow its superclass's.
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.Anonymous {
			continue
		}
		fv := v.Field(i)
		for fv.Kind() == reflect.Ptr {
			fv = fv.Elem()
		}
		if fv.Kind() != reflect.Struct {
			continue
		}
		if found, ok := resolveFieldIn(fv, suffix); ok {
			return found, true
		}
	}
	return reflect.Value{}, false
}

func hasSuffix(name, suffix string) bool {
	if len(suffix) > len(name) {
		return false
	}
	return name[len(name)-len(suffix):] == suffix
}
