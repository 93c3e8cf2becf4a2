package controller

import (
	"context"
	"log"
	"time"

	"github.com/aonescu/driftguard/internal/adapter"
	"github.com/aonescu/driftguard/internal/hashing"
	"github.com/aonescu/driftguard/internal/state"
	"github.com/aonescu/driftguard/internal/telemetry"
	"github.com/aonescu/driftguard/internal/types"
)

// DefaultInterval is the periodic re-check cadence for every known guard.
const DefaultInterval = 30 * time.Second

// Controller drives the per-guard reconciliation state machine. Each guard's
// status is written as a complete snapshot through the store; nothing else is
// shared between concurrent reconciliations.
type Controller struct {
	registry   *adapter.Registry
	store      state.GuardStore
	remediator *Remediator
	reporter   *telemetry.Reporter
	interval   time.Duration
}

func New(registry *adapter.Registry, store state.GuardStore, remediator *Remediator, reporter *telemetry.Reporter, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Controller{
		registry:   registry,
		store:      store,
		remediator: remediator,
		reporter:   reporter,
		interval:   interval,
	}
}

// Run re-reconciles every known guard on a fixed interval until ctx is
// cancelled. Each guard gets its own goroutine per tick; a slow target can
// never block the others. In-flight reconciliations are abandoned on
// shutdown, which is safe because reconciliation is idempotent.
func (c *Controller) Run(ctx context.Context) {
	log.Printf("Reconciliation loop started (interval %s)", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Reconciliation loop stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			for _, guard := range c.store.List() {
				guard := guard
				go c.Reconcile(ctx, guard)
			}
		}
	}
}

// Trigger fires one immediate reconciliation for a created or updated guard.
func (c *Controller) Trigger(guard types.Guard) {
	go c.Reconcile(context.Background(), guard)
}

// Reconcile runs the state machine once for one guard, writes the resulting
// status snapshot and dispatches telemetry. It returns the written status.
func (c *Controller) Reconcile(ctx context.Context, guard types.Guard) types.GuardStatus {
	guard.Normalize()

	previous, _ := c.store.GetStatus(guard.Name, guard.Namespace)
	status := c.evaluate(ctx, guard, previous)
	status.LastChecked = time.Now().UTC()

	if err := c.store.SetStatus(guard.Name, guard.Namespace, status); err != nil {
		log.Printf("Failed to write status for guard %s: %v", guard.Key(), err)
	}

	if c.reporter.Enabled() {
		event := types.TelemetryEvent{
			DriftGuard: guard.Name,
			Namespace:  guard.Namespace,
			TargetKind: guard.TargetKind,
			TargetName: guard.TargetName,
			Status:     status,
			Timestamp:  status.LastChecked,
		}
		go c.reporter.Report(event)
	}

	return status
}

// evaluate computes the next status from the guard spec, the live target and
// the previous status. Detection errors always win over remediation errors:
// remediation outcome is recorded as data on a Drifted status, never as a
// state of its own.
func (c *Controller) evaluate(ctx context.Context, guard types.Guard, previous types.GuardStatus) types.GuardStatus {
	status := types.GuardStatus{
		ExpectedHash:        guard.ExpectedHash,
		ConsecutiveFailures: previous.ConsecutiveFailures,
	}

	if err := guard.Validate(); err != nil {
		status.State = types.StateInvalid
		status.Reason = err.Error()
		return status
	}

	target, err := c.registry.Resolve(guard.TargetKind)
	if err != nil {
		// Unsupported kind is a spec problem, not a detection failure; it
		// stays Invalid until the guard is edited.
		status.State = types.StateInvalid
		status.Reason = err.Error()
		return status
	}

	raw, err := target.Fetch(ctx, guard.TargetName, guard.TargetNamespace)
	if err != nil {
		status.State = types.StateError
		status.ConsecutiveFailures++
		status.Reason = err.Error()
		return status
	}

	data, err := target.Extract(raw)
	if err != nil {
		status.State = types.StateError
		status.ConsecutiveFailures++
		status.Reason = err.Error()
		return status
	}

	currentHash, err := hashing.ComputeHash(data)
	if err != nil {
		status.State = types.StateError
		status.ConsecutiveFailures++
		status.Reason = err.Error()
		return status
	}
	status.CurrentHash = currentHash

	if currentHash == guard.ExpectedHash {
		status.State = types.StateHealthy
		status.HashMatch = types.BoolPtr(true)
		status.ConsecutiveFailures = 0
		status.Remediated = nil
		status.Alerted = false
		return status
	}

	status.State = types.StateDrifted
	status.HashMatch = types.BoolPtr(false)
	status.ConsecutiveFailures++
	log.Printf("Drift detected for guard %s: target %s %s/%s hash %s, expected %s",
		guard.Key(), guard.TargetKind, guard.TargetNamespace, guard.TargetName, currentHash, guard.ExpectedHash)

	if guard.AutoRemediate {
		remediated := c.remediator.Remediate(ctx, guard, nil)
		status.Remediated = types.BoolPtr(remediated)
	}

	status.Alerted = status.ConsecutiveFailures >= guard.MaxFailuresBeforeAlert
	if status.Alerted {
		log.Printf("Alert threshold reached for guard %s: %d consecutive failures",
			guard.Key(), status.ConsecutiveFailures)
	}

	return status
}
