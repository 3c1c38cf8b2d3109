package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"procurex-bidding-engine/internal/domain/audit"
	"procurex-bidding-engine/internal/domain/auction"
	"procurex-bidding-engine/internal/domain/bid"
	"procurex-bidding-engine/internal/domain/shared"
	"procurex-bidding-engine/internal/ports/outbound"

	"github.com/google/uuid"
)

// fakeAuctionRepo mimics the atomic write contract of the real repository:
// the mutation and its audit entry land together or not at all.
type fakeAuctionRepo struct {
	mu       sync.Mutex
	auctions map[uuid.UUID]*auction.Auction
	closed   map[uuid.UUID]*shared.AuctionCloseResult
	audit    *fakeAuditRepo
}

func newFakeAuctionRepo(auditRepo *fakeAuditRepo) *fakeAuctionRepo {
	return &fakeAuctionRepo{
		auctions: make(map[uuid.UUID]*auction.Auction),
		closed:   make(map[uuid.UUID]*shared.AuctionCloseResult),
		audit:    auditRepo,
	}
}

func (f *fakeAuctionRepo) Create(ctx context.Context, a *auction.Auction, actorID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.audit.record(audit.New(&actorID, audit.ActionAuctionCreated, audit.TargetAuction, a.ID.String(), nil)); err != nil {
		return err
	}
	copied := *a
	f.auctions[a.ID] = &copied
	return nil
}

func (f *fakeAuctionRepo) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auctions[id]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAuctionRepo) List(ctx context.Context, status *auction.Status, page, pageSize int) ([]*auction.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auction.Auction
	for _, a := range f.auctions {
		if status == nil || a.Status == *status {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeAuctionRepo) ListUnclosedDue(ctx context.Context, now time.Time, limit int) ([]*auction.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auction.Auction
	for _, a := range f.auctions {
		if a.Status == auction.StatusClosed {
			continue
		}
		due := (a.Status == auction.StatusScheduled && !a.StartTime.After(now)) || !a.EndTime.After(now)
		if due {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeAuctionRepo) Open(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auctions[id]
	if !ok {
		return shared.ErrAuctionNotFound
	}
	if a.Status != auction.StatusScheduled {
		return shared.ErrIllegalTransition
	}
	if err := f.audit.record(audit.New(nil, audit.ActionAuctionOpened, audit.TargetAuction, id.String(), nil)); err != nil {
		return err
	}
	a.Status = auction.StatusLive
	return nil
}

func (f *fakeAuctionRepo) Close(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*shared.AuctionCloseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auctions[id]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	if a.Status == auction.StatusClosed {
		return nil, shared.ErrAuctionAlreadyClosed
	}
	if err := f.audit.record(audit.New(actorID, audit.ActionAuctionClosed, audit.TargetAuction, id.String(), nil)); err != nil {
		return nil, err
	}
	a.Status = auction.StatusClosed
	result, ok := f.closed[id]
	if !ok {
		result = &shared.AuctionCloseResult{AuctionID: id}
	}
	return result, nil
}

func (f *fakeAuctionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.auctions, id)
	return nil
}

type fakeItemRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*shared.Item
	audit *fakeAuditRepo
}

func newFakeItemRepo(auditRepo *fakeAuditRepo) *fakeItemRepo {
	return &fakeItemRepo{items: make(map[uuid.UUID]*shared.Item), audit: auditRepo}
}

func (f *fakeItemRepo) Create(ctx context.Context, item *shared.Item, actorID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.audit.record(audit.New(&actorID, audit.ActionItemAdded, audit.TargetItem, item.ID.String(), nil)); err != nil {
		return err
	}
	copied := *item
	f.items[item.ID] = &copied
	return nil
}

func (f *fakeItemRepo) GetByID(ctx context.Context, id uuid.UUID) (*shared.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, shared.ErrItemNotFound
	}
	copied := *item
	return &copied, nil
}

func (f *fakeItemRepo) ListByAuctionID(ctx context.Context, auctionID uuid.UUID) ([]*shared.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*shared.Item
	for _, item := range f.items {
		if item.AuctionID == auctionID {
			copied := *item
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeUserRepo struct {
	users map[uuid.UUID]*shared.User
}

func newFakeUserRepo(users ...*shared.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[uuid.UUID]*shared.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*shared.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) Create(ctx context.Context, user *shared.User) error {
	f.users[user.ID] = user
	return nil
}

// fakeBidRepo mimics the transactional admission contract: a submit either
// lands with a server-assigned monotonic bid time, a rank and its audit
// entry, or fails with nothing persisted.
type fakeBidRepo struct {
	mu        sync.Mutex
	bids      map[uuid.UUID][]*bid.Bid // itemID -> accepted bids
	submitErr error
	lastTime  time.Time
	audit     *fakeAuditRepo
}

func newFakeBidRepo(auditRepo *fakeAuditRepo) *fakeBidRepo {
	return &fakeBidRepo{bids: make(map[uuid.UUID][]*bid.Bid), audit: auditRepo}
}

func (f *fakeBidRepo) Submit(ctx context.Context, b *bid.Bid, policy outbound.BidPolicy) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return 0, f.submitErr
	}

	now := time.Now()
	if !now.After(f.lastTime) {
		now = f.lastTime.Add(time.Microsecond)
	}
	f.lastTime = now
	b.BidTime = now

	rank := 1
	for _, existing := range f.bids[b.ItemID] {
		if existing.Less(b) {
			rank++
		}
	}

	if err := f.audit.record(audit.New(&b.BidderID, audit.ActionBidSubmitted, audit.TargetBid, b.ID.String(), nil)); err != nil {
		return 0, err
	}

	f.bids[b.ItemID] = append(f.bids[b.ItemID], b)
	return rank, nil
}

func (f *fakeBidRepo) GetByItemID(ctx context.Context, itemID uuid.UUID) ([]*bid.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*bid.Bid(nil), f.bids[itemID]...), nil
}

func (f *fakeBidRepo) GetByAuctionID(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*bid.Bid
	for _, bids := range f.bids {
		for _, b := range bids {
			if b.AuctionID == auctionID {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func (f *fakeBidRepo) GetLowestBid(ctx context.Context, itemID uuid.UUID) (*bid.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bids := f.bids[itemID]
	if len(bids) == 0 {
		return nil, shared.ErrNoBidsFound
	}
	lowest := bids[0]
	for _, b := range bids[1:] {
		if b.Less(lowest) {
			lowest = b
		}
	}
	return lowest, nil
}

func (f *fakeBidRepo) GetBidderBest(ctx context.Context, itemID, bidderID uuid.UUID) (*bid.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *bid.Bid
	for _, b := range f.bids[itemID] {
		if b.BidderID != bidderID {
			continue
		}
		if best == nil || b.Less(best) {
			best = b
		}
	}
	if best == nil {
		return nil, shared.ErrNoBidsFound
	}
	return best, nil
}

// fakeAuditRepo collects the entries the other fakes record inside their
// mutations. A configured writeErr fails the recording mutation the same way
// a failed insertAuditTx rolls back the owning transaction.
type fakeAuditRepo struct {
	mu       sync.Mutex
	entries  []*audit.Entry
	writeErr error
}

func (f *fakeAuditRepo) record(e *audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuditWriteFailed, f.writeErr)
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAuditRepo) byAction(action audit.Action) []*audit.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*audit.Entry
	for _, e := range f.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeAuditRepo) GetTrail(ctx context.Context, targetType audit.TargetType, targetID string) ([]*audit.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*audit.Entry
	for _, e := range f.entries {
		if e.TargetType == targetType && (targetID == "" || e.TargetID == targetID) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeSummaryRepo struct {
	summary *shared.AuctionSummary
}

func (f *fakeSummaryRepo) GetAuctionSummary(ctx context.Context, auctionID uuid.UUID) (*shared.AuctionSummary, error) {
	if f.summary == nil {
		return nil, shared.ErrAuctionNotFound
	}
	return f.summary, nil
}

func (f *fakeSummaryRepo) GetLowestBids(ctx context.Context, auctionID uuid.UUID) ([]*shared.ItemLowestBid, error) {
	return nil, nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []outbound.Event
}

func (f *fakeBroadcaster) Subscribe(ctx context.Context, auctionID uuid.UUID, clientID string, eventChan chan outbound.Event) error {
	return nil
}

func (f *fakeBroadcaster) Unsubscribe(ctx context.Context, auctionID uuid.UUID, clientID string) error {
	return nil
}

func (f *fakeBroadcaster) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeBroadcaster) GetSubscribers(ctx context.Context, auctionID uuid.UUID) ([]string, error) {
	return nil, nil
}

func (f *fakeBroadcaster) IsSubscribed(ctx context.Context, auctionID uuid.UUID, clientID string) bool {
	return false
}

func (f *fakeBroadcaster) published(eventType outbound.EventType) []outbound.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []outbound.Event
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
