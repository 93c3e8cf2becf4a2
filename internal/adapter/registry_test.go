package adapter

import (
	"context"
	"errors"
	"testing"

	"k8s.io/client-go/kubernetes/fake"
)

func TestRegistry_RegisterResolve(t *testing.T) {
	registry := NewRegistry()
	client := fake.NewSimpleClientset()

	registry.Register(KindConfigMap, NewConfigMapAdapter(client))
	registry.Register(KindSecret, NewSecretAdapter(client))

	a, err := registry.Resolve("configmap")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if _, ok := a.(*ConfigMapAdapter); !ok {
		t.Errorf("Expected *ConfigMapAdapter, got %T", a)
	}
}

func TestRegistry_ResolveCaseInsensitive(t *testing.T) {
	registry := NewRegistry()
	registry.Register(KindConfigMap, NewConfigMapAdapter(fake.NewSimpleClientset()))

	for _, kind := range []string{"ConfigMap", "CONFIGMAP", "configmap"} {
		if _, err := registry.Resolve(kind); err != nil {
			t.Errorf("Resolve(%q) failed: %v", kind, err)
		}
	}
}

func TestRegistry_ResolveUnsupported(t *testing.T) {
	registry := NewRegistry()
	registry.Register(KindConfigMap, NewConfigMapAdapter(fake.NewSimpleClientset()))

	_, err := registry.Resolve("statefulset")
	if err == nil {
		t.Fatal("Expected error for unsupported kind")
	}
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("Expected ErrUnsupportedKind, got %v", err)
	}
}

func TestRegistry_Kinds(t *testing.T) {
	registry := NewRegistry()
	client := fake.NewSimpleClientset()
	registry.Register(KindSecret, NewSecretAdapter(client))
	registry.Register(KindConfigMap, NewConfigMapAdapter(client))

	kinds := registry.Kinds()
	if len(kinds) != 2 {
		t.Fatalf("Expected 2 kinds, got %d", len(kinds))
	}
	if kinds[0] != "configmap" || kinds[1] != "secret" {
		t.Errorf("Expected sorted kinds, got %v", kinds)
	}
}

// stub adapter for controller-facing behavior checks
type stubAdapter struct {
	fetchCalls int
}

func (s *stubAdapter) Fetch(ctx context.Context, name, namespace string) (interface{}, error) {
	s.fetchCalls++
	return nil, nil
}

func (s *stubAdapter) Extract(obj interface{}) (interface{}, error) {
	return nil, nil
}

func (s *stubAdapter) Patch(ctx context.Context, name, namespace string, payload map[string]interface{}) error {
	return nil
}

func TestRegistry_AcceptsAnyAdapter(t *testing.T) {
	registry := NewRegistry()
	stub := &stubAdapter{}
	registry.Register("customkind", stub)

	a, err := registry.Resolve("customkind")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if a != stub {
		t.Error("Expected the registered adapter back")
	}
}
