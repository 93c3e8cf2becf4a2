package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/aonescu/driftguard/internal/adapter"
	"github.com/aonescu/driftguard/internal/controller"
	"github.com/aonescu/driftguard/internal/hashing"
	"github.com/aonescu/driftguard/internal/state"
	"github.com/aonescu/driftguard/internal/telemetry"
	"github.com/aonescu/driftguard/internal/types"
)

func newTestAPI(t *testing.T, objects ...*corev1.ConfigMap) (*APIServer, *state.MemoryStore) {
	t.Helper()

	client := fake.NewSimpleClientset()
	for _, obj := range objects {
		if _, err := client.CoreV1().ConfigMaps(obj.Namespace).Create(context.Background(), obj, metav1.CreateOptions{}); err != nil {
			t.Fatalf("Failed to seed configmap: %v", err)
		}
	}

	registry := adapter.NewRegistry()
	registry.Register(adapter.KindConfigMap, adapter.NewConfigMapAdapter(client))

	store := state.NewMemoryStore()
	remediator := controller.NewRemediator(registry, nil)
	ctrl := controller.New(registry, store, remediator, telemetry.NewReporter(""), time.Minute)

	return NewAPIServer(store, ctrl), store
}

func mustHash(t *testing.T, data interface{}) string {
	t.Helper()
	h, err := hashing.ComputeHash(data)
	if err != nil {
		t.Fatalf("ComputeHash() failed: %v", err)
	}
	return h
}

func waitForStatus(t *testing.T, store *state.MemoryStore, name, namespace string) types.GuardStatus {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if status, exists := store.GetStatus(name, namespace); exists {
			return status
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("Guard was never reconciled")
	return types.GuardStatus{}
}

func TestAPIServer_HandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	api.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got '%v'", response["status"])
	}
}

func TestAPIServer_HandleReady(t *testing.T) {
	api, _ := newTestAPI(t)

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	api.handleReady(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if !response["ready"].(bool) {
		t.Error("Expected ready to be true")
	}
}

func TestAPIServer_UpsertGuardTriggersReconcile(t *testing.T) {
	expected := mustHash(t, map[string]string{"a": "1", "b": "2"})
	api, store := newTestAPI(t, &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "app-cfg", Namespace: "default"},
		Data:       map[string]string{"a": "1", "b": "2"},
	})

	guard := types.Guard{
		Name:         "app-cfg-guard",
		Namespace:    "default",
		TargetKind:   "configmap",
		TargetName:   "app-cfg",
		ExpectedHash: expected,
	}
	body, _ := json.Marshal(guard)

	req := httptest.NewRequest("POST", "/api/v1/guards", bytes.NewReader(body))
	w := httptest.NewRecorder()
	api.handleGuards(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	status := waitForStatus(t, store, "app-cfg-guard", "default")
	if status.State != types.StateHealthy {
		t.Errorf("Expected Healthy after immediate reconcile, got %s (%s)", status.State, status.Reason)
	}
}

func TestAPIServer_UpsertGuardMissingIdentity(t *testing.T) {
	api, _ := newTestAPI(t)

	body := []byte(`{"targetKind":"configmap","targetName":"app-cfg"}`)
	req := httptest.NewRequest("POST", "/api/v1/guards", bytes.NewReader(body))
	w := httptest.NewRecorder()
	api.handleGuards(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestAPIServer_InvalidGuardSurfacesInStatus(t *testing.T) {
	api, store := newTestAPI(t)

	// Missing expectedHash: accepted, but reconciles to Invalid.
	guard := types.Guard{
		Name:       "broken-guard",
		Namespace:  "default",
		TargetKind: "configmap",
		TargetName: "app-cfg",
	}
	body, _ := json.Marshal(guard)

	req := httptest.NewRequest("POST", "/api/v1/guards", bytes.NewReader(body))
	w := httptest.NewRecorder()
	api.handleGuards(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", w.Code)
	}

	status := waitForStatus(t, store, "broken-guard", "default")
	if status.State != types.StateInvalid {
		t.Errorf("Expected Invalid state, got %s", status.State)
	}
	if !strings.Contains(status.Reason, "expectedHash") {
		t.Errorf("Expected reason to mention expectedHash, got %q", status.Reason)
	}
}

func TestAPIServer_ListGuards(t *testing.T) {
	api, store := newTestAPI(t)
	store.Upsert(types.Guard{Name: "g1", Namespace: "default", TargetKind: "configmap", TargetName: "c1"})
	store.Upsert(types.Guard{Name: "g2", Namespace: "default", TargetKind: "configmap", TargetName: "c2"})

	req := httptest.NewRequest("GET", "/api/v1/guards", nil)
	w := httptest.NewRecorder()
	api.handleGuards(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var guards []types.Guard
	if err := json.NewDecoder(w.Body).Decode(&guards); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(guards) != 2 {
		t.Errorf("Expected 2 guards, got %d", len(guards))
	}
}

func TestAPIServer_DeleteGuard(t *testing.T) {
	api, store := newTestAPI(t)
	store.Upsert(types.Guard{Name: "g1", Namespace: "default", TargetKind: "configmap", TargetName: "c1"})
	store.SetStatus("g1", "default", types.GuardStatus{State: types.StateHealthy})

	req := httptest.NewRequest("DELETE", "/api/v1/guards?name=g1&namespace=default", nil)
	w := httptest.NewRecorder()
	api.handleGuards(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", w.Code)
	}

	if _, exists := store.Get("g1", "default"); exists {
		t.Error("Guard still present after delete")
	}
	if _, exists := store.GetStatus("g1", "default"); exists {
		t.Error("Status must disappear with its guard")
	}
}

func TestAPIServer_HandleGuardStatusNotFound(t *testing.T) {
	api, _ := newTestAPI(t)

	req := httptest.NewRequest("GET", "/api/v1/guards/status?name=nope&namespace=default", nil)
	w := httptest.NewRecorder()
	api.handleGuardStatus(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestAPIServer_HandleDrifted(t *testing.T) {
	api, store := newTestAPI(t)
	store.SetStatus("healthy-g", "default", types.GuardStatus{State: types.StateHealthy})
	store.SetStatus("drifted-g", "default", types.GuardStatus{State: types.StateDrifted, ConsecutiveFailures: 2})
	store.SetStatus("error-g", "default", types.GuardStatus{State: types.StateError})

	req := httptest.NewRequest("GET", "/api/v1/drifted", nil)
	w := httptest.NewRecorder()
	api.handleDrifted(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var drifted map[string]types.GuardStatus
	if err := json.NewDecoder(w.Body).Decode(&drifted); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(drifted) != 2 {
		t.Errorf("Expected 2 non-healthy guards, got %d", len(drifted))
	}
	if _, ok := drifted["default/healthy-g"]; ok {
		t.Error("Healthy guard must not be listed as drifted")
	}
}

func TestAPIServer_HandleReport(t *testing.T) {
	api, store := newTestAPI(t)
	store.Upsert(types.Guard{
		Name: "g1", Namespace: "default",
		TargetKind: "configmap", TargetName: "c1",
		ExpectedHash: mustHash(t, map[string]string{"a": "1"}),
	})
	store.SetStatus("g1", "default", types.GuardStatus{
		LastChecked: time.Now(),
		State:       types.StateDrifted,
		HashMatch:   types.BoolPtr(false),
	})

	req := httptest.NewRequest("GET", "/api/v1/report?name=g1&namespace=default", nil)
	w := httptest.NewRecorder()
	api.handleReport(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "GUARD") {
		t.Error("Expected formatted report body")
	}
}

func TestAPIServer_HandleStats(t *testing.T) {
	api, store := newTestAPI(t)
	store.Upsert(types.Guard{Name: "g1", Namespace: "default", TargetKind: "configmap", TargetName: "c1"})
	store.SetStatus("g1", "default", types.GuardStatus{State: types.StateDrifted, Alerted: true})

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	api.handleStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var stats map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if stats["total_guards"].(float64) != 1 {
		t.Errorf("Expected total_guards 1, got %v", stats["total_guards"])
	}
	if stats["alerted"].(float64) != 1 {
		t.Errorf("Expected alerted 1, got %v", stats["alerted"])
	}
}

func TestAPIServer_HistoryRequiresPostgres(t *testing.T) {
	api, _ := newTestAPI(t)

	req := httptest.NewRequest("GET", "/api/v1/history?name=g1&namespace=default", nil)
	w := httptest.NewRecorder()
	api.handleHistory(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 with memory store, got %d", w.Code)
	}
}
