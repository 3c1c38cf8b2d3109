package inbound

import (
	"context"

	"procurex-bidding-engine/internal/domain/audit"
	"procurex-bidding-engine/internal/domain/auction"
	"procurex-bidding-engine/internal/domain/bid"
	"procurex-bidding-engine/internal/domain/ranking"
	"procurex-bidding-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuctionService defines the auction lifecycle and reporting operations
type AuctionService interface {
	// CreateAuction creates a new scheduled auction. Buyer only.
	CreateAuction(ctx context.Context, req CreateAuctionRequest) (*auction.Auction, error)

	// AddItem adds a line item to an auction. Buyer only, pre-live only.
	AddItem(ctx context.Context, req AddItemRequest) (*shared.Item, error)

	// GetAuction retrieves an auction by ID
	GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error)

	// ListAuctions retrieves a list of auctions
	ListAuctions(ctx context.Context, req ListAuctionsRequest) ([]*auction.Auction, error)

	// CloseAuctionNow closes an auction before its end time. Owning buyer only.
	CloseAuctionNow(ctx context.Context, auctionID, actorID uuid.UUID) (*shared.AuctionCloseResult, error)

	// GetAuctionSummary retrieves the reporting projection for an auction
	GetAuctionSummary(ctx context.Context, auctionID uuid.UUID) (*shared.AuctionSummary, error)

	// GetAuditTrail retrieves the append-only history for a target
	GetAuditTrail(ctx context.Context, targetType audit.TargetType, targetID string) ([]*audit.Entry, error)
}

// BidService defines the bid admission and ranking operations
type BidService interface {
	// SubmitBid validates and persists a bid, returning the bid and its
	// rank among all bids on the item (1 = current lowest)
	SubmitBid(ctx context.Context, req SubmitBidRequest) (*bid.Bid, int, error)

	// GetItemRank retrieves the current best offer and ordered bid history
	// for an item
	GetItemRank(ctx context.Context, itemID uuid.UUID, mode ranking.HistoryMode) (*ItemRanking, error)
}

// request to create an auction
type CreateAuctionRequest struct {
	CreatorID    uuid.UUID `json:"creator_id" validate:"required"`
	Title        string    `json:"title" validate:"required,max=200"`
	Description  string    `json:"description"`
	Currency     string    `json:"currency" validate:"required,len=3"`
	StartTime    string    `json:"start_time" validate:"required"`
	EndTime      string    `json:"end_time" validate:"required"`
	MinDecrement string    `json:"min_decrement,omitempty"`
}

// request to add an item to an auction
type AddItemRequest struct {
	AuctionID   uuid.UUID `json:"auction_id" validate:"required"`
	ActorID     uuid.UUID `json:"actor_id" validate:"required"`
	Name        string    `json:"name" validate:"required,max=200"`
	Description string    `json:"description"`
	Quantity    string    `json:"quantity" validate:"required"`
	Unit        string    `json:"unit" validate:"required,max=20"`
	BasePrice   string    `json:"base_price" validate:"required"`
}

// request to list auctions
type ListAuctionsRequest struct {
	Status   *auction.Status `json:"status,omitempty"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// request to submit a bid
type SubmitBidRequest struct {
	AuctionID uuid.UUID `json:"auction_id" validate:"required"`
	ItemID    uuid.UUID `json:"item_id" validate:"required"`
	BidderID  uuid.UUID `json:"bidder_id" validate:"required"`
	Amount    string    `json:"amount" validate:"required"`
}

// ItemRanking is the read view returned by GetItemRank
type ItemRanking struct {
	ItemID    uuid.UUID       `json:"item_id"`
	Best      *ranking.Best   `json:"best,omitempty"`
	BasePrice decimal.Decimal `json:"base_price"`
	Bids      []*bid.Bid      `json:"bids"`
}
