package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"procurex-bidding-engine/internal/config"
	"procurex-bidding-engine/internal/domain/audit"
	"procurex-bidding-engine/internal/domain/auction"
	"procurex-bidding-engine/internal/domain/ranking"
	"procurex-bidding-engine/internal/domain/shared"
	"procurex-bidding-engine/internal/ports/inbound"
	"procurex-bidding-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type bidFixture struct {
	service     *BidService
	auctionRepo *fakeAuctionRepo
	itemRepo    *fakeItemRepo
	bidRepo     *fakeBidRepo
	broadcaster *fakeBroadcaster
	audit       *fakeAuditRepo
	engine      *ranking.Engine
	buyer       *shared.User
	supplier    *shared.User
	auction     *auction.Auction
	item        *shared.Item
}

func newBidFixture(t *testing.T) *bidFixture {
	t.Helper()
	ctx := context.Background()

	buyer := &shared.User{ID: uuid.New(), Role: shared.RoleBuyer}
	supplier := &shared.User{ID: uuid.New(), Role: shared.RoleSupplier}

	auditRepo := &fakeAuditRepo{}
	auctionRepo := newFakeAuctionRepo(auditRepo)
	itemRepo := newFakeItemRepo(auditRepo)
	bidRepo := newFakeBidRepo(auditRepo)
	userRepo := newFakeUserRepo(buyer, supplier)
	bc := &fakeBroadcaster{}
	engine := ranking.NewEngine()

	a := &auction.Auction{
		ID:        uuid.New(),
		Currency:  "USD",
		CreatedBy: &buyer.ID,
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
		Status:    auction.StatusLive,
	}
	require.NoError(t, auctionRepo.Create(ctx, a, buyer.ID))

	item := &shared.Item{
		ID:        uuid.New(),
		AuctionID: a.ID,
		Name:      "Rebar 12mm",
		Quantity:  decimal.NewFromInt(500),
		Unit:      "ton",
		BasePrice: decimal.RequireFromString("720.50"),
	}
	require.NoError(t, itemRepo.Create(ctx, item, buyer.ID))

	service := NewBidService(BidServiceParams{
		BidRepo:     bidRepo,
		AuctionRepo: auctionRepo,
		ItemRepo:    itemRepo,
		UserRepo:    userRepo,
		Broadcaster: bc,
		Engine:      engine,
		Config:      &config.Config{},
		Logger:      zerolog.Nop(),
	})

	return &bidFixture{
		service:     service,
		auctionRepo: auctionRepo,
		itemRepo:    itemRepo,
		bidRepo:     bidRepo,
		broadcaster: bc,
		audit:       auditRepo,
		engine:      engine,
		buyer:       buyer,
		supplier:    supplier,
		auction:     a,
		item:        item,
	}
}

func (f *bidFixture) request(amount string) inbound.SubmitBidRequest {
	return inbound.SubmitBidRequest{
		AuctionID: f.auction.ID,
		ItemID:    f.item.ID,
		BidderID:  f.supplier.ID,
		Amount:    amount,
	}
}

func TestSubmitBid(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts and ranks", func(t *testing.T) {
		f := newBidFixture(t)

		b, rank, err := f.service.SubmitBid(ctx, f.request("700"))
		require.NoError(t, err)
		require.Equal(t, 1, rank)
		require.False(t, b.BidTime.IsZero(), "bid time is server-assigned")
		require.True(t, b.Amount.Equal(decimal.NewFromInt(700)))

		best, err := f.engine.Best(f.item.ID)
		require.NoError(t, err)
		require.Equal(t, b.ID, best.BidID)

		events := f.broadcaster.published(outbound.EventTypeBidSubmitted)
		require.Len(t, events, 1)
		require.Equal(t, 1, events[0].Data["rank"])
	})

	t.Run("higher bid ranks behind", func(t *testing.T) {
		f := newBidFixture(t)

		_, rank, err := f.service.SubmitBid(ctx, f.request("700"))
		require.NoError(t, err)
		require.Equal(t, 1, rank)

		_, rank, err = f.service.SubmitBid(ctx, f.request("710"))
		require.NoError(t, err)
		require.Equal(t, 2, rank)
	})

	t.Run("invalid amount", func(t *testing.T) {
		f := newBidFixture(t)
		for _, amount := range []string{"", "abc", "0", "-10"} {
			_, _, err := f.service.SubmitBid(ctx, f.request(amount))
			require.ErrorIs(t, err, shared.ErrInvalidAmount, "amount %q", amount)
		}
	})

	t.Run("buyer cannot bid", func(t *testing.T) {
		f := newBidFixture(t)
		req := f.request("700")
		req.BidderID = f.buyer.ID
		_, _, err := f.service.SubmitBid(ctx, req)
		require.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("unknown bidder", func(t *testing.T) {
		f := newBidFixture(t)
		req := f.request("700")
		req.BidderID = uuid.New()
		_, _, err := f.service.SubmitBid(ctx, req)
		require.ErrorIs(t, err, shared.ErrUserNotFound)
	})

	t.Run("auction not live", func(t *testing.T) {
		f := newBidFixture(t)
		_, err := f.auctionRepo.Close(ctx, f.auction.ID, nil)
		require.NoError(t, err)

		_, _, err = f.service.SubmitBid(ctx, f.request("700"))
		require.ErrorIs(t, err, shared.ErrAuctionNotLive)
	})

	t.Run("auction window not open yet", func(t *testing.T) {
		f := newBidFixture(t)
		pending := &auction.Auction{
			ID:        uuid.New(),
			CreatedBy: &f.buyer.ID,
			StartTime: time.Now().Add(time.Hour),
			EndTime:   time.Now().Add(2 * time.Hour),
			Status:    auction.StatusScheduled,
		}
		require.NoError(t, f.auctionRepo.Create(ctx, pending, f.buyer.ID))

		req := f.request("700")
		req.AuctionID = pending.ID
		_, _, err := f.service.SubmitBid(ctx, req)
		require.ErrorIs(t, err, shared.ErrAuctionNotLive)
	})

	t.Run("unknown auction", func(t *testing.T) {
		f := newBidFixture(t)
		req := f.request("700")
		req.AuctionID = uuid.New()
		_, _, err := f.service.SubmitBid(ctx, req)
		require.ErrorIs(t, err, shared.ErrAuctionNotFound)
	})

	t.Run("unknown item", func(t *testing.T) {
		f := newBidFixture(t)
		req := f.request("700")
		req.ItemID = uuid.New()
		_, _, err := f.service.SubmitBid(ctx, req)
		require.ErrorIs(t, err, shared.ErrItemNotFound)
	})

	t.Run("item from another auction", func(t *testing.T) {
		f := newBidFixture(t)
		foreign := &shared.Item{
			ID:        uuid.New(),
			AuctionID: uuid.New(),
			Quantity:  decimal.NewFromInt(1),
			BasePrice: decimal.NewFromInt(10),
		}
		require.NoError(t, f.itemRepo.Create(ctx, foreign, f.buyer.ID))

		req := f.request("700")
		req.ItemID = foreign.ID
		_, _, err := f.service.SubmitBid(ctx, req)
		require.ErrorIs(t, err, shared.ErrItemNotInAuction)
	})

	t.Run("repository errors pass through", func(t *testing.T) {
		f := newBidFixture(t)
		for _, want := range []error{shared.ErrConflict, shared.ErrDuplicateBid, shared.ErrBelowDecrement, shared.ErrBidNotImproving} {
			f.bidRepo.submitErr = want
			_, _, err := f.service.SubmitBid(ctx, f.request("700"))
			require.ErrorIs(t, err, want)
		}

		// Nothing reached the projection or the wire
		_, err := f.engine.Best(f.item.ID)
		require.ErrorIs(t, err, shared.ErrNoBidsFound)
		require.Empty(t, f.broadcaster.events)
	})

	t.Run("bid times are monotonic per item", func(t *testing.T) {
		f := newBidFixture(t)

		b1, _, err := f.service.SubmitBid(ctx, f.request("700"))
		require.NoError(t, err)
		b2, _, err := f.service.SubmitBid(ctx, f.request("690"))
		require.NoError(t, err)

		require.True(t, b2.BidTime.After(b1.BidTime))
	})

	t.Run("restart between bids keeps the lowest on top", func(t *testing.T) {
		f := newBidFixture(t)

		low, _, err := f.service.SubmitBid(ctx, f.request("700"))
		require.NoError(t, err)

		// Simulate a restart: the projection forgot the item, the store
		// did not. The next submit must re-sync instead of presenting
		// itself as the only bid.
		f.engine.Drop(f.item.ID)

		_, _, err = f.service.SubmitBid(ctx, f.request("710"))
		require.NoError(t, err)

		view, err := f.service.GetItemRank(ctx, f.item.ID, ranking.HistoryFull)
		require.NoError(t, err)
		require.NotNil(t, view.Best)
		require.Equal(t, low.ID, view.Best.BidID, "the pre-restart lower bid stays the best offer")
		require.Len(t, view.Bids, 2)
	})
}

func TestSubmitBidAuditTrail(t *testing.T) {
	ctx := context.Background()

	t.Run("one entry per accepted bid", func(t *testing.T) {
		f := newBidFixture(t)

		_, _, err := f.service.SubmitBid(ctx, f.request("700"))
		require.NoError(t, err)
		_, _, err = f.service.SubmitBid(ctx, f.request("690"))
		require.NoError(t, err)

		require.Len(t, f.audit.byAction(audit.ActionBidSubmitted), 2)
	})

	t.Run("rejected bid leaves no entry", func(t *testing.T) {
		f := newBidFixture(t)

		_, _, err := f.service.SubmitBid(ctx, f.request("-5"))
		require.ErrorIs(t, err, shared.ErrInvalidAmount)

		f.bidRepo.submitErr = shared.ErrBelowDecrement
		_, _, err = f.service.SubmitBid(ctx, f.request("700"))
		require.ErrorIs(t, err, shared.ErrBelowDecrement)

		require.Empty(t, f.audit.byAction(audit.ActionBidSubmitted))
	})

	t.Run("audit failure rolls the bid back", func(t *testing.T) {
		f := newBidFixture(t)
		f.audit.writeErr = errors.New("audit log unavailable")

		_, _, err := f.service.SubmitBid(ctx, f.request("700"))
		require.ErrorIs(t, err, shared.ErrAuditWriteFailed)

		stored, err := f.bidRepo.GetByItemID(ctx, f.item.ID)
		require.NoError(t, err)
		require.Empty(t, stored, "a bid must not persist without its audit entry")

		_, err = f.engine.Best(f.item.ID)
		require.ErrorIs(t, err, shared.ErrNoBidsFound)
		require.Empty(t, f.broadcaster.events)
	})
}

func TestGetItemRank(t *testing.T) {
	ctx := context.Background()

	t.Run("warm view", func(t *testing.T) {
		f := newBidFixture(t)

		b, _, err := f.service.SubmitBid(ctx, f.request("700"))
		require.NoError(t, err)

		view, err := f.service.GetItemRank(ctx, f.item.ID, ranking.HistoryFull)
		require.NoError(t, err)
		require.Equal(t, f.item.ID, view.ItemID)
		require.NotNil(t, view.Best)
		require.Equal(t, b.ID, view.Best.BidID)
		require.Len(t, view.Bids, 1)
		require.True(t, view.BasePrice.Equal(f.item.BasePrice))
	})

	t.Run("cold view rebuilds from store", func(t *testing.T) {
		f := newBidFixture(t)

		b, _, err := f.service.SubmitBid(ctx, f.request("700"))
		require.NoError(t, err)

		// Simulate a restart: the projection is empty, the store is not
		f.engine.Drop(f.item.ID)

		view, err := f.service.GetItemRank(ctx, f.item.ID, ranking.HistoryFull)
		require.NoError(t, err)
		require.NotNil(t, view.Best)
		require.Equal(t, b.ID, view.Best.BidID)
	})

	t.Run("no bids yet", func(t *testing.T) {
		f := newBidFixture(t)

		view, err := f.service.GetItemRank(ctx, f.item.ID, ranking.HistoryFull)
		require.NoError(t, err)
		require.Nil(t, view.Best)
		require.Empty(t, view.Bids)
	})

	t.Run("latest per bidder mode", func(t *testing.T) {
		f := newBidFixture(t)

		_, _, err := f.service.SubmitBid(ctx, f.request("700"))
		require.NoError(t, err)
		improved, _, err := f.service.SubmitBid(ctx, f.request("690"))
		require.NoError(t, err)

		view, err := f.service.GetItemRank(ctx, f.item.ID, ranking.HistoryLatestPerBidder)
		require.NoError(t, err)
		require.Len(t, view.Bids, 1, "one bidder collapses to one row")
		require.Equal(t, improved.ID, view.Bids[0].ID)
	})

	t.Run("unknown item", func(t *testing.T) {
		f := newBidFixture(t)
		_, err := f.service.GetItemRank(ctx, uuid.New(), ranking.HistoryFull)
		require.ErrorIs(t, err, shared.ErrItemNotFound)
	})
}
