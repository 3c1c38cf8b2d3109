package outbound

import (
	"context"
	"time"

	"procurex-bidding-engine/internal/domain/audit"
	"procurex-bidding-engine/internal/domain/auction"
	"procurex-bidding-engine/internal/domain/bid"
	"procurex-bidding-engine/internal/domain/shared"

	"github.com/google/uuid"
)

// BidPolicy carries the configurable admission rules applied inside the
// submit-bid transaction.
type BidPolicy struct {
	// RequireImprovement rejects a bid that does not strictly undercut the
	// bidder's own current best on the item.
	RequireImprovement bool
}

// AuctionRepository defines the interface for auction data operations
type AuctionRepository interface {
	// Create persists a new auction and its creation audit entry atomically
	Create(ctx context.Context, a *auction.Auction, actorID uuid.UUID) error

	// GetByID retrieves an auction by ID
	GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error)

	// List retrieves auctions with an optional status filter
	List(ctx context.Context, status *auction.Status, page, pageSize int) ([]*auction.Auction, error)

	// ListUnclosedDue retrieves auctions that are not closed and whose
	// window requires a transition at the given instant
	ListUnclosedDue(ctx context.Context, now time.Time, limit int) ([]*auction.Auction, error)

	// Open transitions scheduled -> live and writes the auction_opened audit
	// entry in the same transaction. Returns ErrIllegalTransition if the
	// stored status moved underneath us.
	Open(ctx context.Context, id uuid.UUID) error

	// Close transitions to closed, freezes the winning bid per item, and
	// writes the auction_closed audit entry with the winner summary, all in
	// one transaction. The transaction locks the auction row so in-flight
	// bid submissions on the same auction serialize against the close.
	Close(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*shared.AuctionCloseResult, error)

	// Delete removes an auction and, by cascade, its items and bids.
	// Administrative purge only.
	Delete(ctx context.Context, id uuid.UUID) error
}

// BidRepository defines the interface for bid data operations
type BidRepository interface {
	// Submit runs the whole bid admission transaction: re-check phase under
	// the auction row lock, insert the bid with a server-assigned bid time,
	// update the item's running-minimum cache, compute the bid's rank, and
	// write the bid_submitted audit entry. All or nothing. Returns the rank
	// of the new bid (1 = current lowest).
	Submit(ctx context.Context, b *bid.Bid, policy BidPolicy) (int, error)

	// GetByItemID retrieves all bids on an item ordered by rank
	GetByItemID(ctx context.Context, itemID uuid.UUID) ([]*bid.Bid, error)

	// GetByAuctionID retrieves all bids for an auction ordered by item, rank
	GetByAuctionID(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error)

	// GetLowestBid retrieves the current lowest bid on an item, or
	// ErrNoBidsFound
	GetLowestBid(ctx context.Context, itemID uuid.UUID) (*bid.Bid, error)

	// GetBidderBest retrieves the bidder's own lowest bid on an item, or
	// ErrNoBidsFound
	GetBidderBest(ctx context.Context, itemID, bidderID uuid.UUID) (*bid.Bid, error)
}

// ItemRepository defines the interface for auction item data operations
type ItemRepository interface {
	// Create persists a new item and its item_added audit entry atomically
	Create(ctx context.Context, item *shared.Item, actorID uuid.UUID) error

	// GetByID retrieves an item by ID
	GetByID(ctx context.Context, id uuid.UUID) (*shared.Item, error)

	// ListByAuctionID retrieves all items of an auction
	ListByAuctionID(ctx context.Context, auctionID uuid.UUID) ([]*shared.Item, error)
}

// UserRepository defines the interface for user data operations
type UserRepository interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*shared.User, error)

	// Create creates a new user
	Create(ctx context.Context, user *shared.User) error
}

// AuditRepository defines the read side of the audit trail. Writes happen
// inside the owning business transactions, never through this interface.
type AuditRepository interface {
	// GetTrail retrieves the append-only history for a target, oldest first
	GetTrail(ctx context.Context, targetType audit.TargetType, targetID string) ([]*audit.Entry, error)
}

// SummaryRepository defines the read-only reporting projections
type SummaryRepository interface {
	// GetAuctionSummary retrieves item count and distinct bidder count
	GetAuctionSummary(ctx context.Context, auctionID uuid.UUID) (*shared.AuctionSummary, error)

	// GetLowestBids retrieves the lowest bid per item for an auction
	GetLowestBids(ctx context.Context, auctionID uuid.UUID) ([]*shared.ItemLowestBid, error)
}
