package objid

import "testing"

func TestComputeValueIDNull(t *testing.T) {
	r := New()
	if got := r.ComputeValueID(nil, -1, true); got.Kind != KindNull {
		t.Errorf("ComputeValueID(nil) kind = %v, want KindNull", got.Kind)
	}
}

func TestComputeValueIDPrimitiveRoundTrip(t *testing.T) {
	r := New()
	got := r.ComputeValueID(42, -1, true)
	if got.Kind != KindPrimitive {
		t.Fatalf("kind = %v, want KindPrimitive", got.Kind)
	}
	if !got.Equal(Prim(42)) {
		t.Errorf("ComputeValueID(42) = %v, want Prim(42)", got)
	}
}

func TestComputeValueIDObjectIdentity(t *testing.T) {
	r := New()
	type box struct{ n int }
	a := &box{n: 1}
	b := &box{n: 2}

	idA1 := r.ComputeValueID(a, 10, false)
	idA2 := r.ComputeValueID(a, 99, false) // second sighting, same object
	idB := r.ComputeValueID(b, 11, false)

	if !idA1.Equal(idA2) {
		t.Errorf("same object produced different ids: %v != %v", idA1, idA2)
	}
	if idA1.Equal(idB) {
		t.Errorf("distinct objects produced the same id: %v", idA1)
	}

	value, ok := r.Resolve(idA1.Object)
	if !ok || value != a {
		t.Errorf("Resolve(%v) = (%v, %v), want (%v, true)", idA1.Object, value, ok, a)
	}
}

func TestRegistryRetainDropsInternalObjects(t *testing.T) {
	r := New()
	type box struct{ n int }
	external := &box{n: 1}
	internal := &box{n: 2}

	extID := r.ComputeValueID(external, -1, true)
	intID := r.ComputeValueID(internal, 5, false)

	r.Retain(nil)

	if _, ok := r.Resolve(extID.Object); !ok {
		t.Errorf("external object %v was dropped by Retain", extID)
	}
	if _, ok := r.Resolve(intID.Object); ok {
		t.Errorf("internal object %v survived Retain", intID)
	}
}

func TestObjectIDsAreSequential(t *testing.T) {
	r := New()
	type box struct{ n int }
	first := r.ComputeValueID(&box{n: 1}, -1, false)
	second := r.ComputeValueID(&box{n: 2}, -1, false)

	if second.Object != first.Object+1 {
		t.Errorf("ids not sequential: first=%v second=%v", first.Object, second.Object)
	}
}

func TestReservedIDsNeverAllocated(t *testing.T) {
	r := New()
	type box struct{ n int }
	id := r.ComputeValueID(&box{}, -1, false)
	if id.Object == NullObjectID || id.Object == StaticObjectID || id.Object == InvalidObjectID {
		t.Errorf("allocated a reserved id: %v", id.Object)
	}
}
