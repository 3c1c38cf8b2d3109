package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"procurex-bidding-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func auctionChannel(auctionID uuid.UUID) string {
	return fmt.Sprintf("bidding:auction:%s", auctionID.String())
}

// RedisBroadcaster implements the broadcaster interface using Redis pub/sub.
// Buyer and supplier dashboards subscribe per auction and receive
// bid.submitted / auction.opened / auction.closed events instead of polling
// the lowest-bid view.
type RedisBroadcaster struct {
	client         *redis.Client
	subscribers    map[string]chan outbound.Event // clientID -> local channel
	pubsubs        map[string]*redis.PubSub       // clientID -> pubsub instance
	clientAuctions map[string]map[string]bool     // clientID -> auctionID -> subscribed
	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	logger         zerolog.Logger
}

type RedisBroadcasterParams struct {
	RedisClient *redis.Client
	Logger      zerolog.Logger
}

func NewBroadcaster(params RedisBroadcasterParams) *RedisBroadcaster {
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBroadcaster{
		client:         params.RedisClient,
		subscribers:    make(map[string]chan outbound.Event),
		pubsubs:        make(map[string]*redis.PubSub),
		clientAuctions: make(map[string]map[string]bool),
		ctx:            ctx,
		cancel:         cancel,
		logger:         params.Logger.With().Str("component", "redis_broadcaster").Logger(),
	}
}

// Subscribe subscribes a client to events for a specific auction
func (r *RedisBroadcaster) Subscribe(ctx context.Context, auctionID uuid.UUID, clientID string, eventChan chan outbound.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clientAuctions[clientID] != nil && r.clientAuctions[clientID][auctionID.String()] {
		r.logger.Info().
			Str("client_id", clientID).
			Str("auction_id", auctionID.String()).
			Msg("Client already subscribed to auction")
		return nil
	}

	if r.subscribers[clientID] == nil {
		r.subscribers[clientID] = eventChan
	}

	if r.clientAuctions[clientID] == nil {
		r.clientAuctions[clientID] = make(map[string]bool)
	}
	r.clientAuctions[clientID][auctionID.String()] = true

	pubsub, exists := r.pubsubs[clientID]
	if !exists {
		pubsub = r.client.Subscribe(ctx)
		r.pubsubs[clientID] = pubsub
		go r.forwardMessages(pubsub, clientID, eventChan)
	}

	if err := pubsub.Subscribe(ctx, auctionChannel(auctionID)); err != nil {
		r.logger.Error().Err(err).Str("client_id", clientID).Str("auction_id", auctionID.String()).Msg("Failed to subscribe to Redis channel")
		return err
	}

	r.logger.Info().
		Str("client_id", clientID).
		Str("auction_id", auctionID.String()).
		Msg("Client subscribed to auction")
	return nil
}

// Unsubscribe unsubscribes a client from events for a specific auction
func (r *RedisBroadcaster) Unsubscribe(ctx context.Context, auctionID uuid.UUID, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	auctions, exists := r.clientAuctions[clientID]
	if !exists {
		return nil
	}

	delete(auctions, auctionID.String())

	if len(auctions) > 0 {
		if pubsub, ok := r.pubsubs[clientID]; ok {
			if err := pubsub.Unsubscribe(ctx, auctionChannel(auctionID)); err != nil {
				r.logger.Error().Err(err).Str("client_id", clientID).Str("auction_id", auctionID.String()).Msg("Error unsubscribing from Redis channel")
			}
		}
	} else {
		// Last subscription gone, tear the client down
		delete(r.clientAuctions, clientID)

		if eventChan, ok := r.subscribers[clientID]; ok {
			close(eventChan)
			delete(r.subscribers, clientID)
		}

		if pubsub, ok := r.pubsubs[clientID]; ok {
			if err := pubsub.Close(); err != nil {
				r.logger.Error().Err(err).Str("client_id", clientID).Msg("Error closing Redis pubsub for client")
			}
			delete(r.pubsubs, clientID)
		}
	}

	r.logger.Info().
		Str("client_id", clientID).
		Str("auction_id", auctionID.String()).
		Msg("Client unsubscribed from auction")
	return nil
}

// Publish publishes an event to all subscribers of an auction via Redis.
// Best effort: callers treat a failed publish as a logging matter, never as
// a failed business operation.
func (r *RedisBroadcaster) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	result := r.client.Publish(ctx, auctionChannel(auctionID), eventJSON)
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}

	r.logger.Debug().
		Str("event_type", string(event.Type)).
		Str("auction_id", auctionID.String()).
		Int64("subscriber_count", result.Val()).
		Msg("Published event to auction")

	return nil
}

// GetSubscribers returns the list of client IDs with at least one
// subscription
func (r *RedisBroadcaster) GetSubscribers(ctx context.Context, auctionID uuid.UUID) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var subscribers []string
	for clientID, auctions := range r.clientAuctions {
		if auctions[auctionID.String()] {
			subscribers = append(subscribers, clientID)
		}
	}

	return subscribers, nil
}

// IsSubscribed checks if a client is subscribed to an auction
func (r *RedisBroadcaster) IsSubscribed(ctx context.Context, auctionID uuid.UUID, clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctions, exists := r.clientAuctions[clientID]
	return exists && auctions[auctionID.String()]
}

// forwardMessages forwards Redis pub/sub messages to the client's local
// channel. Slow clients drop events rather than block the pump.
func (r *RedisBroadcaster) forwardMessages(pubsub *redis.PubSub, clientID string, localChan chan outbound.Event) {
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error().Interface("panic", err).Str("client_id", clientID).Msg("Message forwarder panic")
		}
	}()

	ch := pubsub.Channel()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				r.logger.Info().Str("client_id", clientID).Msg("Redis channel closed for client")
				return
			}

			var event outbound.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to unmarshal Redis message")
				continue
			}

			select {
			case localChan <- event:
			default:
				r.logger.Warn().Str("client_id", clientID).Msg("Local channel full, dropping event")
			}

		case <-r.ctx.Done():
			return
		}
	}
}

// Close shuts down all client subscriptions and the Redis connection
func (r *RedisBroadcaster) Close() error {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	for clientID, eventChan := range r.subscribers {
		close(eventChan)
		delete(r.subscribers, clientID)
	}

	for clientID, pubsub := range r.pubsubs {
		if err := pubsub.Close(); err != nil {
			r.logger.Error().Err(err).Str("client_id", clientID).Msg("Error closing Redis pubsub for client")
		}
		delete(r.pubsubs, clientID)
	}

	return r.client.Close()
}
