// Package favorites decides whether the remote favorites list changed since
// the last run and resolves it to an ordered id list.
package favorites

import (
	"context"
	"fmt"

	"favsync/pkg/logger"
	"favsync/pkg/models"
	"favsync/pkg/state"
)

// MaxPages bounds a full listing walk.
const MaxPages = 10000

// Lister fetches one 1-based page of the favorites listing.
type Lister interface {
	Favorites(ctx context.Context, page int) (models.ListPage, error)
}

// Snapshots persists the cached listing.
type Snapshots interface {
	Favorites(ctx context.Context) (state.Snapshot, error)
	SetFavorites(ctx context.Context, snap state.Snapshot) error
}

// HeadCheck is the outcome of the cheap first-page check.
type HeadCheck struct {
	Refresh  bool
	NewestID string
	// Cached is the stored listing; it is only meaningful when Refresh is false.
	Cached []string
}

// Detector compares the newest remote favorite against the stored snapshot.
type Detector struct {
	client Lister
	store  Snapshots
	log    logger.Logger
}

func NewDetector(client Lister, store Snapshots, log logger.Logger) *Detector {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Detector{client: client, store: store, log: log.WithField("component", "favorites")}
}

// NeedsRefresh fetches only the first listing page. When its first id matches
// the stored newest id and a cached list exists, the cached list is returned
// and no refresh is needed.
func (d *Detector) NeedsRefresh(ctx context.Context) (HeadCheck, error) {
	first, err := d.client.Favorites(ctx, 1)
	if err != nil {
		return HeadCheck{}, fmt.Errorf("check newest favorite: %w", err)
	}
	if len(first.Entries) == 0 {
		return HeadCheck{}, nil
	}
	newest := first.Entries[0].ID

	snap, err := d.store.Favorites(ctx)
	if err != nil {
		return HeadCheck{}, fmt.Errorf("read cached favorites: %w", err)
	}
	if snap.LatestID == newest && len(snap.IDs) > 0 {
		return HeadCheck{NewestID: newest, Cached: snap.IDs}, nil
	}
	return HeadCheck{Refresh: true, NewestID: newest}, nil
}

// Resolve returns the ordered favorites ids, walking the full listing only
// when the head check says the cache is stale. Any remote failure yields an
// empty result and leaves the stored snapshot as it was.
func (d *Detector) Resolve(ctx context.Context) []string {
	head, err := d.NeedsRefresh(ctx)
	if err != nil {
		d.log.WithError(err).Error("favorites check failed")
		return nil
	}
	if !head.Refresh {
		d.log.InfoWithFields("favorites unchanged, using cached list", map[string]interface{}{
			"newest": head.NewestID,
			"count":  len(head.Cached),
		})
		return head.Cached
	}

	d.log.InfoWithFields("favorites changed, fetching full list", map[string]interface{}{
		"newest": head.NewestID,
	})
	ids, err := d.walk(ctx)
	if err != nil {
		d.log.WithError(err).Error("favorites listing failed, keeping cached list")
		return nil
	}

	if err := d.store.SetFavorites(ctx, state.Snapshot{LatestID: head.NewestID, IDs: ids}); err != nil {
		d.log.WithError(err).Error("failed to store favorites snapshot")
	}
	d.log.InfoWithFields("favorites refreshed", map[string]interface{}{"count": len(ids)})
	return ids
}

func (d *Detector) walk(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for page := 1; page <= MaxPages; page++ {
		lp, err := d.client.Favorites(ctx, page)
		if err != nil {
			return nil, err
		}
		for _, id := range lp.IDs() {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
		if !lp.HasNext || len(lp.Entries) == 0 {
			return ids, nil
		}
	}
	d.log.WarnWithFields("favorites listing truncated", map[string]interface{}{"max_pages": MaxPages})
	return ids, nil
}
