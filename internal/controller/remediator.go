package controller

import (
	"context"
	"log"

	"github.com/aonescu/driftguard/internal/adapter"
	"github.com/aonescu/driftguard/internal/sot"
	"github.com/aonescu/driftguard/internal/types"
)

// Remediator restores a drifted target from its source-of-truth payload.
// Every failure is converted to a false outcome; remediation problems never
// abort or reclassify the reconciliation that requested them.
type Remediator struct {
	registry *adapter.Registry
	source   *sot.Client
}

func NewRemediator(registry *adapter.Registry, source *sot.Client) *Remediator {
	return &Remediator{registry: registry, source: source}
}

// Remediate patches the guard's target back toward the desired state. When
// desired is nil it is fetched from the source-of-truth service, honoring
// sourceOfTruthRef as the lookup name. Safe to retry: the patch is a merge
// patch, so re-applying the same payload is a no-op.
func (r *Remediator) Remediate(ctx context.Context, guard types.Guard, desired *sot.DesiredState) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Remediation panic for guard %s: %v", guard.Key(), rec)
			ok = false
		}
	}()

	target, err := r.registry.Resolve(guard.TargetKind)
	if err != nil {
		log.Printf("Remediation for guard %s: %v", guard.Key(), err)
		return false
	}

	if desired == nil {
		if r.source == nil {
			log.Printf("Remediation for guard %s: no source-of-truth client configured", guard.Key())
			return false
		}

		lookupName := guard.TargetName
		if guard.SourceOfTruthRef != "" {
			lookupName = guard.SourceOfTruthRef
		}

		desired, err = r.source.FetchDesiredState(ctx, guard.TargetKind, lookupName)
		if err != nil {
			log.Printf("Remediation for guard %s: %v", guard.Key(), err)
			return false
		}
	}

	if desired.Hash != "" && desired.Hash != guard.ExpectedHash {
		// The source of truth is authoritative for the payload; a stale
		// expectedHash on the guard is worth surfacing but not fatal.
		log.Printf("Remediation for guard %s: source-of-truth hash %s differs from expectedHash %s",
			guard.Key(), desired.Hash, guard.ExpectedHash)
	}

	if err := target.Patch(ctx, guard.TargetName, guard.TargetNamespace, desired.Data); err != nil {
		log.Printf("Remediation for guard %s: %v", guard.Key(), err)
		return false
	}

	log.Printf("Remediated target %s %s/%s for guard %s",
		guard.TargetKind, guard.TargetNamespace, guard.TargetName, guard.Key())
	return true
}
