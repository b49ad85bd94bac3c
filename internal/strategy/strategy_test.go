package strategy

import (
	"context"
	"testing"

	"quantflow/internal/domain"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name string
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) GenerateSignals(_ context.Context, _ History, _ PortfolioView) ([]domain.Signal, error) {
	return nil, nil
}

func stubFactory(name string) Factory {
	return func(_ map[string]float64) (Strategy, error) {
		return &stubStrategy{name: name}, nil
	}
}

func TestRegistryCreate(t *testing.T) {
	r := NewRegistry()
	r.Register("test-strategy", stubFactory("test-strategy"))

	got, err := r.Create("test-strategy", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.Name() != "test-strategy" {
		t.Errorf("Create returned strategy with Name() = %q, want %q", got.Name(), "test-strategy")
	}
}

func TestRegistryCreate_NotFound(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Create("nonexistent", nil); err == nil {
		t.Error("Create succeeded for unregistered strategy")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register("beta", stubFactory("beta"))
	r.Register("alpha", stubFactory("alpha"))

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}
