package hints

import (
	"context"
	"sync"

	"github.com/signalsfoundry/sysviz/internal/content"
	"github.com/signalsfoundry/sysviz/internal/logging"
	"github.com/signalsfoundry/sysviz/model"
)

// Tracker hands out each catalog hint at most once. A nil store keeps the
// flags in memory only.
type Tracker struct {
	catalog *content.Catalog
	store   *Store
	log     logging.Logger

	mu    sync.Mutex
	shown map[string]struct{}
}

func NewTracker(catalog *content.Catalog, store *Store, log logging.Logger) *Tracker {
	if log == nil {
		log = logging.Noop()
	}
	return &Tracker{
		catalog: catalog,
		store:   store,
		log:     log,
		shown:   make(map[string]struct{}),
	}
}

// Claim returns the hint for typ if it has never been shown. Store failures
// are logged and treated as "not seen", so a broken database shows a hint
// again on the next process rather than never.
func (t *Tracker) Claim(ctx context.Context, typ model.LogType) (model.Hint, bool) {
	h, ok := t.catalog.HintFor(typ)
	if !ok {
		return model.Hint{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, done := t.shown[h.Term]; done {
		return model.Hint{}, false
	}
	t.shown[h.Term] = struct{}{}

	if t.store == nil {
		return h, true
	}
	inserted, err := t.store.MarkSeen(ctx, h.Term)
	if err != nil {
		t.log.Warn(ctx, "hint store unavailable, showing hint",
			logging.String("term", h.Term),
			logging.Err(err),
		)
		return h, true
	}
	if !inserted {
		return model.Hint{}, false
	}
	return h, true
}

// Seen reports whether term has been shown, either in this process or in an
// earlier one.
func (t *Tracker) Seen(ctx context.Context, term string) bool {
	t.mu.Lock()
	_, done := t.shown[term]
	t.mu.Unlock()
	if done || t.store == nil {
		return done
	}
	seen, err := t.store.Seen(ctx, term)
	if err != nil {
		t.log.Warn(ctx, "hint store unavailable", logging.String("term", term), logging.Err(err))
		return false
	}
	return seen
}

// MarkSeen dismisses term without showing it. Unknown terms are rejected
// with content.ErrNotFound.
func (t *Tracker) MarkSeen(ctx context.Context, term string) error {
	if _, err := t.catalog.Term(term); err != nil {
		return err
	}
	t.mu.Lock()
	t.shown[term] = struct{}{}
	t.mu.Unlock()
	if t.store == nil {
		return nil
	}
	if _, err := t.store.MarkSeen(ctx, term); err != nil {
		t.log.Warn(ctx, "hint store unavailable", logging.String("term", term), logging.Err(err))
	}
	return nil
}
