package registry

import "testing"

func TestBaseRegistry(t *testing.T) {
	r := NewBaseRegistry[int]()

	if err := r.Register("a", 1); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("b", 2); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if got, ok := r.Get("a"); !ok || got != 1 {
		t.Errorf("Get(a) = %v, %v", got, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) reported found")
	}
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}

	list := r.List()
	if len(list) != 2 || list[0] != 1 || list[1] != 2 {
		t.Errorf("List() = %v, want registration order [1 2]", list)
	}
}

func TestBaseRegistry_RegisterErrors(t *testing.T) {
	r := NewBaseRegistry[string]()

	if err := r.Register("", "x"); err == nil {
		t.Error("expected error for empty name")
	}
	if err := r.Register("dup", "x"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("dup", "y"); err == nil {
		t.Error("expected error for duplicate name")
	}
}
