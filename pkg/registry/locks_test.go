package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/schema"
)

func TestStore_LockLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	count := 2000

	// 1. Register and update many identities
	for i := 0; i < count; i++ {
		m := domain.BlockManifest{
			Namespace: "load",
			Name:      fmt.Sprintf("block%d", i),
			Version:   "1.0.0",
			Signature: domain.Signature{Input: schema.Text(), Output: schema.Text()},
		}
		_ = s.Register(ctx, m)
		_, _ = s.UpdateMetrics(ctx, m.ID(), domain.MetricsDelta{Usage: 1})
	}

	// 2. Count locks remaining in map
	lockCount := s.locks.active()
	t.Logf("Blocks Written: %d, Locks Remaining: %d", count, lockCount)

	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d identity locks remaining after writes finished", lockCount)
	}
}
