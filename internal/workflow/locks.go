package workflow

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/untoldecay/flowctl/internal/audit"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

// normalizePath cleans a slash-separated repository path so that equivalent
// spellings compare equal.
func normalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(p), "./")
}

// AcquireLock claims resource within a feature for holder. A FEATURE lock
// always uses the resource "*". Claiming a held lock is a collision that
// names the current holder.
func (s *Service) AcquireLock(ctx context.Context, featureID, resource string, kind types.LockKind, holder string) (*types.Lock, error) {
	if err := requireActor(holder); err != nil {
		return nil, err
	}
	if kind == "" {
		kind = types.LockFile
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("invalid lock kind: %s", kind)
	}
	if kind == types.LockFeature {
		resource = types.FeatureLockResource
	} else if resource = normalizePath(resource); resource == "" {
		return nil, fmt.Errorf("file locks require a path")
	}

	var l *types.Lock
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		f, err := activeFeature(ctx, tx, featureID, "lock")
		if err != nil {
			return err
		}
		l = &types.Lock{
			FeatureID:  f.ID,
			Resource:   resource,
			Kind:       kind,
			Holder:     holder,
			AcquiredAt: s.timestamp(),
		}
		if err := tx.AcquireLock(ctx, l); err != nil {
			return err
		}
		return audit.Record(ctx, tx, types.EntityFeature, f.ID, types.EventLockAcquired, holder,
			audit.Change{New: resource, Comment: string(kind)})
	})
	if err != nil {
		return nil, s.rejected("acquire lock", featureID, err)
	}
	s.log.Debug("lock acquired", "feature", featureID, "resource", resource, "holder", holder)
	return l, nil
}

// ReleaseLock drops a lock. It reports false when nothing was held.
func (s *Service) ReleaseLock(ctx context.Context, featureID, resource, actor string) (bool, error) {
	if err := requireActor(actor); err != nil {
		return false, err
	}
	if resource != types.FeatureLockResource {
		resource = normalizePath(resource)
	}
	var released bool
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if _, err := tx.GetFeature(ctx, featureID); err != nil {
			return err
		}
		var err error
		if released, err = tx.ReleaseLock(ctx, featureID, resource); err != nil || !released {
			return err
		}
		return audit.Record(ctx, tx, types.EntityFeature, featureID, types.EventLockReleased, actor,
			audit.Change{Old: resource})
	})
	if err != nil {
		return false, err
	}
	s.log.Debug("lock released", "feature", featureID, "resource", resource, "released", released)
	return released, nil
}

// ListLocks returns the locks held within a feature.
func (s *Service) ListLocks(ctx context.Context, featureID string) ([]*types.Lock, error) {
	if _, err := s.store.GetFeature(ctx, featureID); err != nil {
		return nil, err
	}
	return s.store.GetLocks(ctx, featureID)
}
