package types

import (
	"fmt"
	"strings"
	"time"
)

// GuardState is the controller-owned lifecycle state of a Guard.
type GuardState string

const (
	StateHealthy GuardState = "Healthy"
	StateDrifted GuardState = "Drifted"
	StateError   GuardState = "Error"
	StateInvalid GuardState = "Invalid"
)

const (
	// DefaultMaxFailuresBeforeAlert applies when a Guard does not set its own threshold.
	DefaultMaxFailuresBeforeAlert = 3

	// ExpectedHashLength is the length of a lowercase hex SHA-256 digest.
	ExpectedHashLength = 64
)

// Guard declares which resource to monitor and what content hash it should have.
type Guard struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`

	TargetKind      string `json:"targetKind"`
	TargetName      string `json:"targetName"`
	TargetNamespace string `json:"targetNamespace,omitempty"`

	ExpectedHash           string `json:"expectedHash"`
	AutoRemediate          bool   `json:"autoRemediate,omitempty"`
	MaxFailuresBeforeAlert int    `json:"maxFailuresBeforeAlert,omitempty"`
	SourceOfTruthRef       string `json:"sourceOfTruthRef,omitempty"`
}

// Key identifies a Guard within the store.
func (g Guard) Key() string {
	return g.Namespace + "/" + g.Name
}

// Normalize fills defaulted fields in place. Required fields are never
// defaulted; those are the province of Validate.
func (g *Guard) Normalize() {
	if g.TargetNamespace == "" {
		g.TargetNamespace = g.Namespace
	}
	if g.MaxFailuresBeforeAlert < 1 {
		g.MaxFailuresBeforeAlert = DefaultMaxFailuresBeforeAlert
	}
}

// Validate reports why a Guard spec is invalid, or nil. A Guard with missing
// required fields stays Invalid until corrected.
func (g Guard) Validate() error {
	var missing []string
	if g.Name == "" {
		missing = append(missing, "name")
	}
	if g.Namespace == "" {
		missing = append(missing, "namespace")
	}
	if g.TargetKind == "" {
		missing = append(missing, "targetKind")
	}
	if g.TargetName == "" {
		missing = append(missing, "targetName")
	}
	if g.ExpectedHash == "" {
		missing = append(missing, "expectedHash")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if len(g.ExpectedHash) != ExpectedHashLength || !isLowerHex(g.ExpectedHash) {
		return fmt.Errorf("expectedHash must be a %d-char lowercase hex digest", ExpectedHashLength)
	}
	return nil
}

func isLowerHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// GuardStatus is the outcome of the most recent reconciliation. It is owned
// exclusively by the controller and overwritten as a whole on every run.
type GuardStatus struct {
	LastChecked         time.Time  `json:"lastChecked"`
	HashMatch           *bool      `json:"hashMatch"`
	CurrentHash         string     `json:"currentHash,omitempty"`
	ExpectedHash        string     `json:"expectedHash,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	Remediated          *bool      `json:"remediated"`
	Alerted             bool       `json:"alerted"`
	State               GuardState `json:"state"`
	Reason              string     `json:"reason,omitempty"`
}

// TelemetryEvent is the JSON body posted to the monitoring endpoint after
// every reconciliation.
type TelemetryEvent struct {
	DriftGuard string      `json:"driftguard"`
	Namespace  string      `json:"namespace"`
	TargetKind string      `json:"targetKind"`
	TargetName string      `json:"targetName"`
	Status     GuardStatus `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
}

// BoolPtr returns a pointer to b, for the tri-state status fields.
func BoolPtr(b bool) *bool {
	return &b
}
