package callerstore

import (
    "context"
    "fmt"
    "time"

    "github.com/hamzaKhattat/lead-router-core/internal/db"
    "github.com/hamzaKhattat/lead-router-core/internal/models"
)

// candidateCacheTTL is short on purpose: candidate reads are explicitly not
// locked against caller config changes, so a brief staleness window is
// tolerable but an unbounded one is not.
const candidateCacheTTL = 5 * time.Second

// CachedRepository wraps a CallerRepository with a read-through cache for
// the two hot candidate-list queries. NameOf and Get always go straight to
// the backing repository since they're not on the per-lead hot path.
type CachedRepository struct {
    backing CallerRepository
    cache   *db.Cache
}

func NewCachedRepository(backing CallerRepository, cache *db.Cache) *CachedRepository {
    return &CachedRepository{backing: backing, cache: cache}
}

func (r *CachedRepository) CandidatesForState(ctx context.Context, state string) ([]models.Caller, error) {
    key := fmt.Sprintf("candidates:state:%s", NormalizeState(state))

    var cached []models.Caller
    if err := r.cache.Get(ctx, key, &cached); err == nil && cached != nil {
        return cached, nil
    }

    callers, err := r.backing.CandidatesForState(ctx, state)
    if err != nil {
        return nil, err
    }

    r.cache.Set(ctx, key, callers, candidateCacheTTL)
    return callers, nil
}

func (r *CachedRepository) CandidatesGlobal(ctx context.Context) ([]models.Caller, error) {
    key := "candidates:global"

    var cached []models.Caller
    if err := r.cache.Get(ctx, key, &cached); err == nil && cached != nil {
        return cached, nil
    }

    callers, err := r.backing.CandidatesGlobal(ctx)
    if err != nil {
        return nil, err
    }

    r.cache.Set(ctx, key, callers, candidateCacheTTL)
    return callers, nil
}

func (r *CachedRepository) NameOf(ctx context.Context, callerID string) (string, error) {
    return r.backing.NameOf(ctx, callerID)
}

func (r *CachedRepository) Get(ctx context.Context, callerID string) (*models.Caller, error) {
    return r.backing.Get(ctx, callerID)
}
