package ranking

import (
	"sort"
	"sync"

	"procurex-bidding-engine/internal/domain/bid"
	"procurex-bidding-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HistoryMode selects how an item's bid history is projected
type HistoryMode int

const (
	// HistoryFull returns every accepted bid on the item
	HistoryFull HistoryMode = iota
	// HistoryLatestPerBidder collapses the history to each bidder's most
	// recent bid by bid time
	HistoryLatestPerBidder
)

// Best is the current winning offer on an item
type Best struct {
	BidderID uuid.UUID
	BidID    uuid.UUID
	Amount   decimal.Decimal
}

// itemView holds one item's ordered bid sequence plus the cached running
// minimum. bids is kept sorted by bid.Less (amount asc, time asc, bidder id
// asc), so bids[0] is always the current best.
type itemView struct {
	bids []*bid.Bid
	best *Best
}

// Engine maintains the per-item ordered bid views. It is a read projection
// fed by accepted bids: the authoritative rank of a new bid is computed
// inside the submit transaction, and the engine is updated after commit.
// Safe for concurrent use.
type Engine struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*itemView
}

// NewEngine creates an empty ranking engine
func NewEngine() *Engine {
	return &Engine{items: make(map[uuid.UUID]*itemView)}
}

// Insert adds an accepted bid to its item's ordered view and returns the
// bid's rank (1 = current lowest). The insert is positional: a binary search
// finds the slot, no rescan of the whole sequence.
func (e *Engine) Insert(b *bid.Bid) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	view, ok := e.items[b.ItemID]
	if !ok {
		view = &itemView{}
		e.items[b.ItemID] = view
	}

	pos := sort.Search(len(view.bids), func(i int) bool {
		return b.Less(view.bids[i])
	})
	view.bids = append(view.bids, nil)
	copy(view.bids[pos+1:], view.bids[pos:])
	view.bids[pos] = b

	if pos == 0 {
		view.best = &Best{BidderID: b.BidderID, BidID: b.ID, Amount: b.Amount}
	}

	return pos + 1
}

// Has reports whether the engine holds a view for the item. A missing view
// means the item was never warmed (or was dropped), so callers must rebuild
// from the store instead of inserting into an empty projection.
func (e *Engine) Has(itemID uuid.UUID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.items[itemID]
	return ok
}

// Best returns the current lowest offer on an item, or ErrNoBidsFound. O(1):
// the running minimum is cached on every insert.
func (e *Engine) Best(itemID uuid.UUID) (*Best, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	view, ok := e.items[itemID]
	if !ok || view.best == nil {
		return nil, shared.ErrNoBidsFound
	}
	best := *view.best
	return &best, nil
}

// RankOf returns the ordinal position of a bid among all bids on its item,
// 1 = current lowest.
func (e *Engine) RankOf(b *bid.Bid) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	view, ok := e.items[b.ItemID]
	if !ok {
		return 0, shared.ErrNoBidsFound
	}
	for i, candidate := range view.bids {
		if candidate.ID == b.ID {
			return i + 1, nil
		}
	}
	return 0, shared.ErrNoBidsFound
}

// History returns the ordered bid sequence for an item. HistoryFull returns
// every bid; HistoryLatestPerBidder keeps only each bidder's most recent bid,
// still ordered by rank.
func (e *Engine) History(itemID uuid.UUID, mode HistoryMode) []*bid.Bid {
	e.mu.RLock()
	defer e.mu.RUnlock()

	view, ok := e.items[itemID]
	if !ok {
		return nil
	}

	if mode == HistoryFull {
		out := make([]*bid.Bid, len(view.bids))
		copy(out, view.bids)
		return out
	}

	// Latest bid per bidder, then re-filter the ordered sequence so ranks
	// stay consistent with the full view.
	latest := make(map[uuid.UUID]*bid.Bid)
	for _, b := range view.bids {
		current, ok := latest[b.BidderID]
		if !ok || b.BidTime.After(current.BidTime) {
			latest[b.BidderID] = b
		}
	}
	out := make([]*bid.Bid, 0, len(latest))
	for _, b := range view.bids {
		if latest[b.BidderID] == b {
			out = append(out, b)
		}
	}
	return out
}

// Rebuild replaces an item's view from scratch. Used to warm the projection
// at startup and to re-sync after an external invalidation.
func (e *Engine) Rebuild(itemID uuid.UUID, bids []*bid.Bid) {
	sorted := make([]*bid.Bid, len(bids))
	copy(sorted, bids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	view := &itemView{bids: sorted}
	if len(sorted) > 0 {
		b := sorted[0]
		view.best = &Best{BidderID: b.BidderID, BidID: b.ID, Amount: b.Amount}
	}

	e.mu.Lock()
	e.items[itemID] = view
	e.mu.Unlock()
}

// Drop discards an item's view, e.g. after its auction is purged
func (e *Engine) Drop(itemID uuid.UUID) {
	e.mu.Lock()
	delete(e.items, itemID)
	e.mu.Unlock()
}
