package ranking

import (
	"math/rand"
	"testing"
	"time"

	"procurex-bidding-engine/internal/domain/bid"
	"procurex-bidding-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newBid(itemID uuid.UUID, amount int64, offset time.Duration) *bid.Bid {
	return &bid.Bid{
		ID:       uuid.New(),
		ItemID:   itemID,
		BidderID: uuid.New(),
		Amount:   decimal.NewFromInt(amount),
		BidTime:  baseTime.Add(offset),
	}
}

func TestInsertRanks(t *testing.T) {
	engine := NewEngine()
	itemID := uuid.New()

	require.Equal(t, 1, engine.Insert(newBid(itemID, 100, 0)))
	require.Equal(t, 1, engine.Insert(newBid(itemID, 90, time.Second)), "lower bid takes rank 1")
	require.Equal(t, 3, engine.Insert(newBid(itemID, 110, 2*time.Second)))
	require.Equal(t, 2, engine.Insert(newBid(itemID, 95, 3*time.Second)))
}

func TestInsertTieBreaks(t *testing.T) {
	engine := NewEngine()
	itemID := uuid.New()

	first := newBid(itemID, 100, 0)
	second := newBid(itemID, 100, time.Second)

	require.Equal(t, 1, engine.Insert(first))
	require.Equal(t, 2, engine.Insert(second), "equal amount ranks behind the earlier bid")

	best, err := engine.Best(itemID)
	require.NoError(t, err)
	require.Equal(t, first.ID, best.BidID, "earlier bid holds the lead on a tie")
}

func TestHas(t *testing.T) {
	engine := NewEngine()
	itemID := uuid.New()

	require.False(t, engine.Has(itemID))

	engine.Insert(newBid(itemID, 100, 0))
	require.True(t, engine.Has(itemID))

	engine.Drop(itemID)
	require.False(t, engine.Has(itemID))

	// A rebuild creates the view even with no bids: warmed and empty are
	// not the same as never seen
	engine.Rebuild(itemID, nil)
	require.True(t, engine.Has(itemID))
}

func TestBest(t *testing.T) {
	engine := NewEngine()
	itemID := uuid.New()

	_, err := engine.Best(itemID)
	require.ErrorIs(t, err, shared.ErrNoBidsFound)

	b1 := newBid(itemID, 100, 0)
	engine.Insert(b1)
	best, err := engine.Best(itemID)
	require.NoError(t, err)
	require.Equal(t, b1.ID, best.BidID)
	require.True(t, best.Amount.Equal(decimal.NewFromInt(100)))

	// A worse bid must not displace the cached best
	engine.Insert(newBid(itemID, 150, time.Second))
	best, err = engine.Best(itemID)
	require.NoError(t, err)
	require.Equal(t, b1.ID, best.BidID)

	b3 := newBid(itemID, 80, 2*time.Second)
	engine.Insert(b3)
	best, err = engine.Best(itemID)
	require.NoError(t, err)
	require.Equal(t, b3.ID, best.BidID)
}

func TestBestMatchesBruteForce(t *testing.T) {
	engine := NewEngine()
	itemID := uuid.New()
	rng := rand.New(rand.NewSource(42))

	var all []*bid.Bid
	for i := 0; i < 500; i++ {
		b := newBid(itemID, int64(rng.Intn(1000)+1), time.Duration(i)*time.Millisecond)
		engine.Insert(b)
		all = append(all, b)

		lowest := all[0]
		for _, candidate := range all[1:] {
			if candidate.Less(lowest) {
				lowest = candidate
			}
		}

		best, err := engine.Best(itemID)
		require.NoError(t, err)
		require.Equal(t, lowest.ID, best.BidID, "cached best diverged after %d inserts", i+1)
	}
}

func TestRankOf(t *testing.T) {
	engine := NewEngine()
	itemID := uuid.New()

	b1 := newBid(itemID, 100, 0)
	b2 := newBid(itemID, 90, time.Second)
	engine.Insert(b1)
	engine.Insert(b2)

	rank, err := engine.RankOf(b1)
	require.NoError(t, err)
	require.Equal(t, 2, rank, "earlier rank shifts when it is undercut")

	rank, err = engine.RankOf(b2)
	require.NoError(t, err)
	require.Equal(t, 1, rank)

	_, err = engine.RankOf(newBid(uuid.New(), 50, 0))
	require.ErrorIs(t, err, shared.ErrNoBidsFound)
}

func TestHistoryModes(t *testing.T) {
	engine := NewEngine()
	itemID := uuid.New()
	bidderA := uuid.New()
	bidderB := uuid.New()

	place := func(bidder uuid.UUID, amount int64, offset time.Duration) *bid.Bid {
		b := &bid.Bid{
			ID:       uuid.New(),
			ItemID:   itemID,
			BidderID: bidder,
			Amount:   decimal.NewFromInt(amount),
			BidTime:  baseTime.Add(offset),
		}
		engine.Insert(b)
		return b
	}

	place(bidderA, 100, 0)
	bLatest := place(bidderB, 95, time.Second)
	aLatest := place(bidderA, 90, 2*time.Second)

	full := engine.History(itemID, HistoryFull)
	require.Len(t, full, 3)
	require.Equal(t, aLatest.ID, full[0].ID, "full history is ordered by rank")

	latest := engine.History(itemID, HistoryLatestPerBidder)
	require.Len(t, latest, 2)
	require.Equal(t, aLatest.ID, latest[0].ID)
	require.Equal(t, bLatest.ID, latest[1].ID)
}

func TestRebuild(t *testing.T) {
	engine := NewEngine()
	itemID := uuid.New()

	b1 := newBid(itemID, 100, 0)
	b2 := newBid(itemID, 80, time.Second)
	b3 := newBid(itemID, 90, 2*time.Second)

	// Deliberately unsorted input
	engine.Rebuild(itemID, []*bid.Bid{b1, b3, b2})

	best, err := engine.Best(itemID)
	require.NoError(t, err)
	require.Equal(t, b2.ID, best.BidID)

	history := engine.History(itemID, HistoryFull)
	require.Len(t, history, 3)
	require.Equal(t, b2.ID, history[0].ID)
	require.Equal(t, b3.ID, history[1].ID)
	require.Equal(t, b1.ID, history[2].ID)
}

func TestDrop(t *testing.T) {
	engine := NewEngine()
	itemID := uuid.New()

	engine.Insert(newBid(itemID, 100, 0))
	engine.Drop(itemID)

	_, err := engine.Best(itemID)
	require.ErrorIs(t, err, shared.ErrNoBidsFound)
	require.Nil(t, engine.History(itemID, HistoryFull))
}

func TestItemsAreIsolated(t *testing.T) {
	engine := NewEngine()
	itemA := uuid.New()
	itemB := uuid.New()

	engine.Insert(newBid(itemA, 100, 0))
	require.Equal(t, 1, engine.Insert(newBid(itemB, 500, time.Second)), "ranks never cross items")
}
