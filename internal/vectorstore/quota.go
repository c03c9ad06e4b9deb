package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"ragchat/internal/domain"
)

// DefaultQuotaLimit bounds a collection when no limit is configured.
const DefaultQuotaLimit = 600

// QuotaError reports an Add that would take a collection past its limit.
type QuotaError struct {
	Collection string
	Limit      int
	Count      int
	// New is the number of ids in the rejected batch that were not stored yet.
	New int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("collection %q: adding %d records to %d would exceed quota %d", e.Collection, e.New, e.Count, e.Limit)
}

// Is makes errors.Is(err, domain.ErrQuotaExceeded) hold.
func (e *QuotaError) Is(target error) bool { return target == domain.ErrQuotaExceeded }

// QuotaCollection enforces Count <= Limit on every Add. Adds are serialized so
// the check and the write cannot interleave with another Add through the same
// wrapper. Upserts of ids already present do not consume quota.
type QuotaCollection struct {
	Collection
	limit int
	mu    sync.Mutex
}

// WithQuota wraps c with a quota of limit records.
func WithQuota(c Collection, limit int) (*QuotaCollection, error) {
	if limit <= 0 {
		return nil, domain.Errorf(domain.ErrConfig, "vectorstore.quota", "quota limit must be positive, got %d", limit)
	}
	return &QuotaCollection{Collection: c, limit: limit}, nil
}

// Limit returns the configured quota.
func (q *QuotaCollection) Limit() int { return q.limit }

// Remaining reports how many new records still fit.
func (q *QuotaCollection) Remaining(ctx context.Context) (int, error) {
	n, err := q.Collection.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n >= q.limit {
		return 0, nil
	}
	return q.limit - n, nil
}

// Add stores records if the new ids among them fit, and fails with *QuotaError otherwise.
func (q *QuotaCollection) Add(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	existing, err := q.Collection.Existing(ctx, ids)
	if err != nil {
		return err
	}
	fresh := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if !existing[id] {
			fresh[id] = struct{}{}
		}
	}
	count, err := q.Collection.Count(ctx)
	if err != nil {
		return err
	}
	if count+len(fresh) > q.limit {
		return &QuotaError{Collection: q.Name(), Limit: q.limit, Count: count, New: len(fresh)}
	}
	return q.Collection.Add(ctx, records)
}
