package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Sentinel errors the controller maps onto guard states. Unsupported kinds are
// a spec problem (Invalid); missing targets and transport failures are
// detection failures (Error), retried on the next interval.
var (
	ErrUnsupportedKind = errors.New("unsupported target kind")
	ErrTargetNotFound  = errors.New("target resource not found")
	ErrTargetAPI       = errors.New("target api error")
)

// Adapter is the per-kind capability set. Fetch and Patch hit the API server;
// Extract is a pure projection of the raw object into the content that is
// relevant for drift comparison.
type Adapter interface {
	Fetch(ctx context.Context, name, namespace string) (interface{}, error)
	Extract(obj interface{}) (interface{}, error)
	Patch(ctx context.Context, name, namespace string, payload map[string]interface{}) error
}

// Registry resolves a target kind to its adapter. New kinds are added by
// registering an adapter, never by editing the controller.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

func (r *Registry) Register(kind string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(kind)] = a
}

func (r *Registry) Resolve(kind string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[strings.ToLower(kind)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	return a, nil
}

// Kinds returns the registered kinds, sorted for stable output.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.adapters))
	for kind := range r.adapters {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// classifyFetchError folds a client-go error into the adapter error taxonomy.
func classifyFetchError(err error, kind, name, namespace string) error {
	if apierrors.IsNotFound(err) {
		return fmt.Errorf("%w: %s %s/%s", ErrTargetNotFound, kind, namespace, name)
	}
	return fmt.Errorf("%w: %s %s/%s: %v", ErrTargetAPI, kind, namespace, name, err)
}

// stringValue renders a desired-state payload value as the string form the
// key/value kinds store. Non-string values arrive when the source of truth
// holds structured data; they are kept as their JSON encoding.
func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
