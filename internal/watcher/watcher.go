package watcher

import (
	"context"
	"log"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"

	"github.com/aonescu/driftguard/internal/adapter"
	"github.com/aonescu/driftguard/internal/hashing"
	"github.com/aonescu/driftguard/internal/state"
	"github.com/aonescu/driftguard/internal/types"
)

const reconnectDelay = 5 * time.Second

// AdvisoryWatcher observes valuation config parameter changes and logs a
// potential unauthorized change when a guarded object's parameters move
// between two observed versions. It is a hint path only: guard state is
// untouched, the next scheduled reconciliation confirms or clears the drift.
type AdvisoryWatcher struct {
	client dynamic.Interface
	store  state.GuardStore

	mu         sync.Mutex
	lastHashes map[string]string
}

func New(client dynamic.Interface, store state.GuardStore) *AdvisoryWatcher {
	return &AdvisoryWatcher{
		client:     client,
		store:      store,
		lastHashes: make(map[string]string),
	}
}

// Start watches until ctx is cancelled, reconnecting when the watch channel
// closes.
func (w *AdvisoryWatcher) Start(ctx context.Context) {
	log.Printf("Advisory watcher started for %s", adapter.ValuationConfigGVR.Resource)

	for {
		if err := w.watchOnce(ctx); err != nil {
			log.Printf("Advisory watch error: %v", err)
		}

		select {
		case <-ctx.Done():
			log.Printf("Advisory watcher stopped: %v", ctx.Err())
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (w *AdvisoryWatcher) watchOnce(ctx context.Context) error {
	wi, err := w.client.Resource(adapter.ValuationConfigGVR).Namespace(metav1.NamespaceAll).Watch(ctx, metav1.ListOptions{})
	if err != nil {
		return err
	}
	defer wi.Stop()

	for event := range wi.ResultChan() {
		switch event.Type {
		case watch.Added, watch.Modified:
			if u, ok := event.Object.(*unstructured.Unstructured); ok {
				w.observe(u)
			}
		case watch.Deleted:
			if u, ok := event.Object.(*unstructured.Unstructured); ok {
				w.forget(u)
			}
		}
	}
	return nil
}

func (w *AdvisoryWatcher) observe(u *unstructured.Unstructured) {
	params, err := adapter.ExtractParameters(u)
	if err != nil {
		log.Printf("Advisory watch: %v", err)
		return
	}

	hash, err := hashing.ComputeHash(params)
	if err != nil {
		log.Printf("Advisory watch: hash parameters of %s/%s: %v", u.GetNamespace(), u.GetName(), err)
		return
	}

	key := u.GetNamespace() + "/" + u.GetName()

	w.mu.Lock()
	previous := w.lastHashes[key]
	w.lastHashes[key] = hash
	w.mu.Unlock()

	if previous == "" || previous == hash {
		return
	}

	for _, guard := range w.guardsFor(u.GetName(), u.GetNamespace()) {
		log.Printf("Potential unauthorized change: valuationconfig %s parameters changed (hash %s -> %s), referenced by guard %s; next scheduled check will confirm",
			key, previous, hash, guard.Key())
	}
}

func (w *AdvisoryWatcher) forget(u *unstructured.Unstructured) {
	w.mu.Lock()
	delete(w.lastHashes, u.GetNamespace()+"/"+u.GetName())
	w.mu.Unlock()
}

func (w *AdvisoryWatcher) guardsFor(name, namespace string) []types.Guard {
	var referencing []types.Guard
	for _, guard := range w.store.List() {
		guard.Normalize()
		if guard.TargetKind == adapter.KindValuationConfig &&
			guard.TargetName == name && guard.TargetNamespace == namespace {
			referencing = append(referencing, guard)
		}
	}
	return referencing
}
