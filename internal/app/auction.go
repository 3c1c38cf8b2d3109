package app

import (
	"context"
	"errors"
	"time"

	"procurex-bidding-engine/internal/adapters/scheduler"
	"procurex-bidding-engine/internal/domain/audit"
	"procurex-bidding-engine/internal/domain/auction"
	"procurex-bidding-engine/internal/domain/shared"
	"procurex-bidding-engine/internal/ports/inbound"
	"procurex-bidding-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AuctionService implements the auction use cases and the lifecycle
// controller driven by scheduler.LifecycleSweeper
type AuctionService struct {
	auctionRepo outbound.AuctionRepository
	itemRepo    outbound.ItemRepository
	userRepo    outbound.UserRepository
	summaryRepo outbound.SummaryRepository
	auditRepo   outbound.AuditRepository
	broadcaster outbound.Broadcaster
	sweeper     *scheduler.LifecycleSweeper
	logger      zerolog.Logger
}

type AuctionServiceParams struct {
	AuctionRepo outbound.AuctionRepository
	ItemRepo    outbound.ItemRepository
	UserRepo    outbound.UserRepository
	SummaryRepo outbound.SummaryRepository
	AuditRepo   outbound.AuditRepository
	Broadcaster outbound.Broadcaster
	Sweeper     *scheduler.LifecycleSweeper
	Logger      zerolog.Logger
}

// NewAuctionService creates a new auction service
func NewAuctionService(params AuctionServiceParams) *AuctionService {
	return &AuctionService{
		auctionRepo: params.AuctionRepo,
		itemRepo:    params.ItemRepo,
		userRepo:    params.UserRepo,
		summaryRepo: params.SummaryRepo,
		auditRepo:   params.AuditRepo,
		broadcaster: params.Broadcaster,
		sweeper:     params.Sweeper,
		logger:      params.Logger.With().Str("component", "auction_service").Logger(),
	}
}

// SetSweeper sets the lifecycle sweeper
func (service *AuctionService) SetSweeper(sweeper *scheduler.LifecycleSweeper) {
	service.sweeper = sweeper
}

// CreateAuction creates a new scheduled auction. Buyer only.
func (service *AuctionService) CreateAuction(ctx context.Context, req inbound.CreateAuctionRequest) (*auction.Auction, error) {
	service.logger.Info().
		Str("creator_id", req.CreatorID.String()).
		Str("title", req.Title).
		Str("start_time", req.StartTime).
		Str("end_time", req.EndTime).
		Msg("Attempting to create auction")

	creator, err := service.userRepo.GetByID(ctx, req.CreatorID)
	if err != nil {
		service.logger.Error().Err(err).Str("creator_id", req.CreatorID.String()).Msg("Creator not found")
		return nil, shared.ErrUserNotFound
	}

	if !creator.IsBuyer() {
		service.logger.Warn().Str("creator_id", creator.ID.String()).Str("role", string(creator.Role)).Msg("Only buyers can create auctions")
		return nil, shared.ErrForbidden
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		service.logger.Error().Err(err).Str("start_time", req.StartTime).Msg("Invalid start time format")
		return nil, shared.ErrInvalidTimeFormat
	}

	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		service.logger.Error().Err(err).Str("end_time", req.EndTime).Msg("Invalid end time format")
		return nil, shared.ErrInvalidTimeFormat
	}

	now := time.Now()
	if startTime.Before(now) {
		service.logger.Warn().Time("start_time", startTime).Msg("Start time cannot be in the past")
		return nil, shared.ErrInvalidStartTime
	}

	if !endTime.After(startTime) {
		service.logger.Warn().Time("start_time", startTime).Time("end_time", endTime).Msg("End time must be after start time")
		return nil, shared.ErrInvalidTimeWindow
	}

	minDecrement := decimal.Zero
	if req.MinDecrement != "" {
		minDecrement, err = decimal.NewFromString(req.MinDecrement)
		if err != nil || minDecrement.IsNegative() {
			service.logger.Warn().Str("min_decrement", req.MinDecrement).Msg("Invalid minimum decrement")
			return nil, shared.ErrInvalidAmount
		}
	}

	a := &auction.Auction{
		ID:           uuid.New(),
		Title:        req.Title,
		Description:  req.Description,
		Currency:     req.Currency,
		CreatedBy:    &creator.ID,
		StartTime:    startTime,
		EndTime:      endTime,
		MinDecrement: minDecrement,
		Status:       auction.StatusScheduled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := service.auctionRepo.Create(ctx, a, creator.ID); err != nil {
		service.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to save auction")
		return nil, err
	}

	service.logger.Info().Str("auction_id", a.ID.String()).Msg("Auction created")

	if service.sweeper != nil {
		if err := service.sweeper.ScheduleOpen(a.ID, a.StartTime); err != nil {
			// The catch-up scan picks the auction up even if scheduling failed
			service.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to schedule auction open")
		}
	}

	return a, nil
}

// AddItem adds a line item to an auction. Buyer only, and only while the
// auction has not opened: items are immutable once bidding starts.
func (service *AuctionService) AddItem(ctx context.Context, req inbound.AddItemRequest) (*shared.Item, error) {
	a, err := service.auctionRepo.GetByID(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}

	actor, err := service.userRepo.GetByID(ctx, req.ActorID)
	if err != nil {
		return nil, shared.ErrUserNotFound
	}

	if !actor.IsBuyer() {
		return nil, shared.ErrForbidden
	}
	if a.CreatedBy == nil || *a.CreatedBy != actor.ID {
		return nil, shared.ErrNotOwner
	}

	if a.PhaseAt(time.Now()) != auction.PhaseScheduled {
		service.logger.Warn().Str("auction_id", a.ID.String()).Msg("Cannot add items after the auction opens")
		return nil, shared.ErrAuctionStarted
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil || !quantity.IsPositive() {
		return nil, shared.ErrInvalidAmount
	}

	basePrice, err := decimal.NewFromString(req.BasePrice)
	if err != nil || !basePrice.IsPositive() {
		return nil, shared.ErrInvalidAmount
	}

	item := &shared.Item{
		ID:          uuid.New(),
		AuctionID:   a.ID,
		Name:        req.Name,
		Description: req.Description,
		Quantity:    quantity,
		Unit:        req.Unit,
		BasePrice:   basePrice,
		CreatedAt:   time.Now(),
	}

	if err := service.itemRepo.Create(ctx, item, actor.ID); err != nil {
		service.logger.Error().Err(err).Str("item_id", item.ID.String()).Msg("Failed to save item")
		return nil, err
	}

	service.logger.Info().
		Str("item_id", item.ID.String()).
		Str("auction_id", a.ID.String()).
		Str("name", item.Name).
		Msg("Item added to auction")

	return item, nil
}

// GetAuction retrieves an auction by ID
func (service *AuctionService) GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error) {
	return service.auctionRepo.GetByID(ctx, auctionID)
}

// ListAuctions retrieves a list of auctions
func (service *AuctionService) ListAuctions(ctx context.Context, req inbound.ListAuctionsRequest) ([]*auction.Auction, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 10
	}

	return service.auctionRepo.List(ctx, req.Status, req.Page, req.PageSize)
}

// CloseAuctionNow closes an auction before its end time. Only the owning
// buyer may do this.
func (service *AuctionService) CloseAuctionNow(ctx context.Context, auctionID, actorID uuid.UUID) (*shared.AuctionCloseResult, error) {
	a, err := service.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	actor, err := service.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return nil, shared.ErrUserNotFound
	}

	if !actor.IsBuyer() {
		return nil, shared.ErrForbidden
	}
	if a.CreatedBy == nil || *a.CreatedBy != actor.ID {
		return nil, shared.ErrNotOwner
	}

	return service.closeAuction(ctx, auctionID, &actorID)
}

// closeAuction runs the close transaction and publishes the result
func (service *AuctionService) closeAuction(ctx context.Context, auctionID uuid.UUID, actorID *uuid.UUID) (*shared.AuctionCloseResult, error) {
	result, err := service.auctionRepo.Close(ctx, auctionID, actorID)
	if err != nil {
		if errors.Is(err, shared.ErrAuctionAlreadyClosed) {
			service.logger.Warn().Str("auction_id", auctionID.String()).Msg("Auction already closed")
		} else {
			service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to close auction")
		}
		return nil, err
	}

	winners := 0
	for _, item := range result.Items {
		if item.WinnerID != nil {
			winners++
		}
	}
	service.logger.Info().
		Str("auction_id", auctionID.String()).
		Int("items", len(result.Items)).
		Int("items_with_winner", winners).
		Msg("Auction closed")

	service.publish(ctx, auctionID, outbound.Event{
		Type:      outbound.EventTypeAuctionClosed,
		AuctionID: auctionID,
		Data: map[string]interface{}{
			"result": result,
		},
	})

	return result, nil
}

// GetAuctionSummary retrieves the reporting projection for an auction
func (service *AuctionService) GetAuctionSummary(ctx context.Context, auctionID uuid.UUID) (*shared.AuctionSummary, error) {
	return service.summaryRepo.GetAuctionSummary(ctx, auctionID)
}

// GetAuditTrail retrieves the append-only history for a target
func (service *AuctionService) GetAuditTrail(ctx context.Context, targetType audit.TargetType, targetID string) ([]*audit.Entry, error) {
	return service.auditRepo.GetTrail(ctx, targetType, targetID)
}

// TransitionForSweeper advances one auction according to its window.
// Implements scheduler.LifecycleService.
func (service *AuctionService) TransitionForSweeper(ctx context.Context, auctionID uuid.UUID) error {
	a, err := service.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return err
	}

	now := time.Now()
	phase := a.PhaseAt(now)

	switch {
	case phase == auction.PhaseLive && a.Status == auction.StatusScheduled:
		if err := service.auctionRepo.Open(ctx, auctionID); err != nil {
			if errors.Is(err, shared.ErrIllegalTransition) {
				// Lost the race against another sweep or an explicit close
				return nil
			}
			return err
		}

		service.logger.Info().Str("auction_id", auctionID.String()).Msg("Auction opened")

		service.publish(ctx, auctionID, outbound.Event{
			Type:      outbound.EventTypeAuctionOpened,
			AuctionID: auctionID,
			Data: map[string]interface{}{
				"end_time": a.EndTime.Format(time.RFC3339),
			},
		})

		if service.sweeper != nil {
			if err := service.sweeper.ScheduleClose(auctionID, a.EndTime); err != nil {
				service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to schedule auction close")
			}
		}
		return nil

	case phase == auction.PhaseClosed && a.Status != auction.StatusClosed:
		// Covers both the normal live -> closed transition and a scheduled
		// auction whose whole window has already passed.
		_, err := service.closeAuction(ctx, auctionID, nil)
		if errors.Is(err, shared.ErrAuctionAlreadyClosed) {
			return nil
		}
		return err

	default:
		return nil
	}
}

// DueAuctionsForSweeper lists auctions whose window requires a transition.
// Implements scheduler.LifecycleService.
func (service *AuctionService) DueAuctionsForSweeper(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	due, err := service.auctionRepo.ListUnclosedDue(ctx, now, 100)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(due))
	for _, a := range due {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (service *AuctionService) publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) {
	if service.broadcaster == nil {
		return
	}
	if err := service.broadcaster.Publish(ctx, auctionID, event); err != nil {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to broadcast event")
	}
}
