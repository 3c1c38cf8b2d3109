package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"procurex-bidding-engine/internal/config"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const transitionsKey = "auction:transitions"

// LifecycleService is the callback surface the sweeper drives. The sweeper
// never decides transitions itself; it only tells the service which auction
// is due.
type LifecycleService interface {
	// TransitionForSweeper advances one auction according to its window
	TransitionForSweeper(ctx context.Context, auctionID uuid.UUID) error

	// DueAuctionsForSweeper lists auctions not yet closed whose window
	// requires a transition at the given instant
	DueAuctionsForSweeper(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// LifecycleSweeper drives auction status transitions. Due work is tracked in
// a redis sorted set scored by the transition instant; a slower catch-up
// pass scans the database for anything the set missed (engine restarts,
// rows seeded outside the API). Each auction is processed on its own worker
// so one failure never blocks the rest of the sweep.
type LifecycleSweeper struct {
	redis    *redis.Client
	service  LifecycleService
	pool     *pond.WorkerPool
	interval time.Duration
	catchupN int
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type LifecycleSweeperParams struct {
	RedisClient *redis.Client
	Service     LifecycleService
	Config      *config.Config
	Logger      zerolog.Logger
}

func NewLifecycleSweeper(params LifecycleSweeperParams) *LifecycleSweeper {
	ctx, cancel := context.WithCancel(context.Background())

	return &LifecycleSweeper{
		redis:    params.RedisClient,
		service:  params.Service,
		pool:     pond.New(config.SweepMaxWorkers, config.SweepMaxCapacity, pond.Context(ctx)),
		interval: params.Config.Engine.SweepInterval,
		catchupN: params.Config.Engine.SweepCatchupEvery,
		logger:   params.Logger.With().Str("component", "lifecycle_sweeper").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ScheduleOpen registers the scheduled -> live transition instant
func (s *LifecycleSweeper) ScheduleOpen(auctionID uuid.UUID, at time.Time) error {
	return s.schedule("open", auctionID, at)
}

// ScheduleClose registers the live -> closed transition instant
func (s *LifecycleSweeper) ScheduleClose(auctionID uuid.UUID, at time.Time) error {
	return s.schedule("close", auctionID, at)
}

func (s *LifecycleSweeper) schedule(kind string, auctionID uuid.UUID, at time.Time) error {
	member := fmt.Sprintf("%s:%s", kind, auctionID.String())

	err := s.redis.ZAdd(s.ctx, transitionsKey, redis.Z{
		Score:  float64(at.Unix()),
		Member: member,
	}).Err()
	if err != nil {
		s.logger.Error().Err(err).Str("auction_id", auctionID.String()).Str("kind", kind).Msg("Failed to schedule transition")
		return fmt.Errorf("failed to schedule transition: %w", err)
	}

	s.logger.Info().
		Str("auction_id", auctionID.String()).
		Str("kind", kind).
		Time("at", at).
		Msg("Transition scheduled")

	return nil
}

// Start begins the sweep loop
func (s *LifecycleSweeper) Start() {
	s.logger.Info().Dur("interval", s.interval).Msg("Starting lifecycle sweeper")

	s.wg.Add(1)
	go s.sweepLoop()
}

// Stop gracefully stops the sweeper
func (s *LifecycleSweeper) Stop() {
	s.logger.Info().Msg("Stopping lifecycle sweeper")
	s.cancel()
	s.wg.Wait()
	s.pool.Stop()
}

func (s *LifecycleSweeper) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ticker.C:
			s.checkDueTransitions()
			tick++
			if s.catchupN > 0 && tick%s.catchupN == 0 {
				s.catchUp()
			}
		case <-s.ctx.Done():
			s.logger.Info().Msg("Sweep loop stopped")
			return
		}
	}
}

// checkDueTransitions drains transitions whose instant has passed
func (s *LifecycleSweeper) checkDueTransitions() {
	now := time.Now().Unix()

	due, err := s.redis.ZRangeByScore(s.ctx, transitionsKey, &redis.ZRangeBy{
		Min:   "0",
		Max:   strconv.FormatInt(now, 10),
		Count: 50,
	}).Result()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read due transitions")
		return
	}

	if len(due) > 0 {
		s.logger.Debug().Int("count", len(due)).Msg("Found due transitions")
	}

	for _, member := range due {
		member := member

		parts := strings.SplitN(member, ":", 2)
		if len(parts) != 2 {
			s.logger.Error().Str("member", member).Msg("Malformed transition member")
			s.redis.ZRem(s.ctx, transitionsKey, member)
			continue
		}

		auctionID, err := uuid.Parse(parts[1])
		if err != nil {
			s.logger.Error().Err(err).Str("member", member).Msg("Invalid auction ID in transition member")
			s.redis.ZRem(s.ctx, transitionsKey, member)
			continue
		}

		s.pool.Submit(func() {
			// A failed transition stays in the set so the next sweep
			// retries it; only a processed one is removed.
			if s.processAuction(auctionID) {
				s.redis.ZRem(s.ctx, transitionsKey, member)
			}
		})
	}
}

// catchUp scans the database for due auctions the sorted set does not know
// about. Covers engine restarts and auctions seeded outside the API.
func (s *LifecycleSweeper) catchUp() {
	ids, err := s.service.DueAuctionsForSweeper(s.ctx, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("Catch-up scan failed")
		return
	}

	if len(ids) > 0 {
		s.logger.Info().Int("count", len(ids)).Msg("Catch-up scan found due auctions")
	}

	for _, id := range ids {
		id := id
		s.pool.Submit(func() {
			s.processAuction(id)
		})
	}
}

// processAuction applies one auction's transition and reports whether it
// succeeded. Errors are logged and contained here; the rest of the sweep
// continues.
func (s *LifecycleSweeper) processAuction(auctionID uuid.UUID) bool {
	if err := s.service.TransitionForSweeper(s.ctx, auctionID); err != nil {
		s.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to transition auction")
		return false
	}

	s.logger.Debug().Str("auction_id", auctionID.String()).Msg("Auction transition processed")
	return true
}
