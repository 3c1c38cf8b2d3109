package app

import (
	"context"
	"errors"
	"time"

	"procurex-bidding-engine/internal/config"
	"procurex-bidding-engine/internal/domain/auction"
	"procurex-bidding-engine/internal/domain/bid"
	"procurex-bidding-engine/internal/domain/ranking"
	"procurex-bidding-engine/internal/domain/shared"
	"procurex-bidding-engine/internal/ports/inbound"
	"procurex-bidding-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BidService implements the bid admission and ranking use cases
type BidService struct {
	bidRepo     outbound.BidRepository
	auctionRepo outbound.AuctionRepository
	itemRepo    outbound.ItemRepository
	userRepo    outbound.UserRepository
	broadcaster outbound.Broadcaster
	engine      *ranking.Engine
	policy      outbound.BidPolicy
	logger      zerolog.Logger
}

type BidServiceParams struct {
	BidRepo     outbound.BidRepository
	AuctionRepo outbound.AuctionRepository
	ItemRepo    outbound.ItemRepository
	UserRepo    outbound.UserRepository
	Broadcaster outbound.Broadcaster
	Engine      *ranking.Engine
	Config      *config.Config
	Logger      zerolog.Logger
}

// NewBidService creates a new bid service
func NewBidService(params BidServiceParams) *BidService {
	return &BidService{
		bidRepo:     params.BidRepo,
		auctionRepo: params.AuctionRepo,
		itemRepo:    params.ItemRepo,
		userRepo:    params.UserRepo,
		broadcaster: params.Broadcaster,
		engine:      params.Engine,
		policy: outbound.BidPolicy{
			RequireImprovement: params.Config.Engine.RequireImprovement,
		},
		logger: params.Logger.With().Str("component", "bid_service").Logger(),
	}
}

// SubmitBid validates and persists a bid. The pre-checks here are fast
// rejections on a stale read; the transaction re-checks the phase under the
// auction row lock, so a close racing with a submit can never interleave.
// Returns the accepted bid and its rank on the item (1 = current lowest).
func (service *BidService) SubmitBid(ctx context.Context, req inbound.SubmitBidRequest) (*bid.Bid, int, error) {
	service.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Str("item_id", req.ItemID.String()).
		Str("bidder_id", req.BidderID.String()).
		Str("amount", req.Amount).
		Msg("Attempting to submit bid")

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		service.logger.Warn().Str("amount", req.Amount).Msg("Invalid bid amount")
		return nil, 0, shared.ErrInvalidAmount
	}

	bidder, err := service.userRepo.GetByID(ctx, req.BidderID)
	if err != nil {
		return nil, 0, shared.ErrUserNotFound
	}
	if !bidder.IsSupplier() {
		service.logger.Warn().Str("bidder_id", bidder.ID.String()).Str("role", string(bidder.Role)).Msg("Only suppliers can bid")
		return nil, 0, shared.ErrForbidden
	}

	a, err := service.auctionRepo.GetByID(ctx, req.AuctionID)
	if err != nil {
		return nil, 0, err
	}
	if !a.IsLiveAt(time.Now()) {
		service.logger.Warn().
			Str("auction_id", a.ID.String()).
			Str("status", string(a.Status)).
			Msg("Auction is not live")
		return nil, 0, shared.ErrAuctionNotLive
	}

	item, err := service.itemRepo.GetByID(ctx, req.ItemID)
	if err != nil {
		return nil, 0, err
	}
	if item.AuctionID != a.ID {
		return nil, 0, shared.ErrItemNotInAuction
	}

	b := &bid.Bid{
		ID:        uuid.New(),
		AuctionID: a.ID,
		ItemID:    item.ID,
		BidderID:  bidder.ID,
		Amount:    amount,
	}

	rank, err := service.bidRepo.Submit(ctx, b, service.policy)
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			service.logger.Warn().Err(err).Str("item_id", item.ID.String()).Msg("Bid submission lost serialization conflict")
		}
		return nil, 0, err
	}

	service.logger.Info().
		Str("bid_id", b.ID.String()).
		Str("item_id", item.ID.String()).
		Int("rank", rank).
		Msg("Bid accepted")

	// Post-commit projection update. The transaction already computed the
	// authoritative rank; the engine keeps reads off the database. An item
	// the engine has never seen is rebuilt from the store instead: inserting
	// into an empty view would make this bid look like the best even when
	// lower bids exist from before a restart.
	if service.engine.Has(item.ID) {
		service.engine.Insert(b)
	} else if err := service.WarmItem(ctx, item.ID); err != nil {
		service.logger.Error().Err(err).Str("item_id", item.ID.String()).Msg("Failed to rebuild ranking view")
	}

	service.publish(ctx, a.ID, outbound.Event{
		Type:      outbound.EventTypeBidSubmitted,
		AuctionID: a.ID,
		Data: map[string]interface{}{
			"bid_id":    b.ID.String(),
			"item_id":   item.ID.String(),
			"bidder_id": bidder.ID.String(),
			"amount":    b.Amount.String(),
			"bid_time":  b.BidTime.Format(time.RFC3339Nano),
			"rank":      rank,
		},
	})

	return b, rank, nil
}

// GetItemRank retrieves the current best offer and ordered bid history for
// an item. The in-memory projection answers when warm; a cold item (engine
// restart) is rebuilt from the database first.
func (service *BidService) GetItemRank(ctx context.Context, itemID uuid.UUID, mode ranking.HistoryMode) (*inbound.ItemRanking, error) {
	item, err := service.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	best, err := service.engine.Best(itemID)
	if err != nil {
		if !errors.Is(err, shared.ErrNoBidsFound) {
			return nil, err
		}

		// Cold view: re-sync from the authoritative store
		bids, err := service.bidRepo.GetByItemID(ctx, itemID)
		if err != nil {
			return nil, err
		}
		service.engine.Rebuild(itemID, bids)

		if best, err = service.engine.Best(itemID); err != nil && !errors.Is(err, shared.ErrNoBidsFound) {
			return nil, err
		}
	}

	return &inbound.ItemRanking{
		ItemID:    item.ID,
		Best:      best,
		BasePrice: item.BasePrice,
		Bids:      service.engine.History(itemID, mode),
	}, nil
}

// WarmItem rebuilds an item's ranking view from the database. Called at
// startup for items of live auctions.
func (service *BidService) WarmItem(ctx context.Context, itemID uuid.UUID) error {
	bids, err := service.bidRepo.GetByItemID(ctx, itemID)
	if err != nil {
		return err
	}
	service.engine.Rebuild(itemID, bids)
	return nil
}

// WarmLiveAuctions rebuilds the ranking views for every item of every live
// auction. Run once at startup so reads do not hit a cold projection.
func (service *BidService) WarmLiveAuctions(ctx context.Context) error {
	status := auction.StatusLive
	const pageSize = 100

	warmed := 0
	for page := 1; ; page++ {
		live, err := service.auctionRepo.List(ctx, &status, page, pageSize)
		if err != nil {
			return err
		}

		for _, a := range live {
			items, err := service.itemRepo.ListByAuctionID(ctx, a.ID)
			if err != nil {
				return err
			}
			for _, item := range items {
				if err := service.WarmItem(ctx, item.ID); err != nil {
					return err
				}
			}
		}

		warmed += len(live)
		if len(live) < pageSize {
			break
		}
	}

	if warmed > 0 {
		service.logger.Info().Int("auctions", warmed).Msg("Warmed ranking views for live auctions")
	}
	return nil
}

func (service *BidService) publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) {
	if service.broadcaster == nil {
		return
	}
	if err := service.broadcaster.Publish(ctx, auctionID, event); err != nil {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to broadcast event")
	}
}
