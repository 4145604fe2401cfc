package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	type rec struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}

	if err := s.Set(ctx, "k", rec{Name: "base", Value: 1.25}); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got rec
	if err := s.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "base" || got.Value != 1.25 {
		t.Fatalf("unexpected value %+v", got)
	}
}

func TestMemoryStoreMissingKey(t *testing.T) {
	s := NewMemoryStore()
	var dest string
	err := s.Get(context.Background(), "absent", &dest)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Set(ctx, "a", 1)
	_ = s.Set(ctx, "b", 2)
	if err := s.Delete(ctx, "a", "b", "missing"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var v int
	if err := s.Get(ctx, "a", &v); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreCorruptedValue(t *testing.T) {
	s := NewMemoryStore()
	s.SetRaw("bad", []byte("{not json"))
	var dest map[string]int
	if err := s.Get(context.Background(), "bad", &dest); err == nil {
		t.Fatalf("expected unmarshal error for corrupted value")
	}
}
