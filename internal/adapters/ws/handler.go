package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"procurex-bidding-engine/internal/domain/audit"
	"procurex-bidding-engine/internal/domain/auction"
	"procurex-bidding-engine/internal/domain/ranking"
	"procurex-bidding-engine/internal/domain/shared"
	"procurex-bidding-engine/internal/ports/inbound"
	"procurex-bidding-engine/internal/ports/outbound"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WsHandler manages WebSocket connections and message routing
type WsHandler struct {
	clients        map[string]*WsClient // clientID -> Client
	clientsMu      sync.RWMutex
	eventChannels  map[string]chan outbound.Event // clientID -> local event channel
	channelsMu     sync.RWMutex
	upgrader       websocket.Upgrader
	auctionService inbound.AuctionService
	bidService     inbound.BidService
	broadcaster    outbound.Broadcaster
	validate       *validator.Validate
	logger         zerolog.Logger
}

type WsHandlerParams struct {
	Upgrader       websocket.Upgrader
	AuctionService inbound.AuctionService
	BidService     inbound.BidService
	Broadcaster    outbound.Broadcaster
	Logger         zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(params WsHandlerParams) *WsHandler {
	return &WsHandler{
		clients:        make(map[string]*WsClient),
		eventChannels:  make(map[string]chan outbound.Event),
		upgrader:       params.Upgrader,
		auctionService: params.AuctionService,
		bidService:     params.BidService,
		broadcaster:    params.Broadcaster,
		validate:       validator.New(),
		logger:         params.Logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleWebSocket handles WebSocket connection upgrades
func (handler *WsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userIDStr := r.URL.Query().Get("user_id")
	if userIDStr == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		http.Error(w, "invalid user_id format", http.StatusBadRequest)
		return
	}

	conn, err := handler.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handler.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(WsClientParams{
		UserID:  userID,
		Conn:    conn,
		Handler: handler,
		Logger:  handler.logger,
	})

	handler.registerClient(client)
	handler.createEventChannel(client.id)

	client.Start()
	go handler.listenForClientEvents(client)

	go func() {
		<-client.ctx.Done()
		handler.unregisterClient(client)
	}()

	handler.logger.Info().Str("client_id", client.id).Str("user_id", client.userID.String()).Msg("WebSocket client connected")
}

// createEventChannel creates a local event channel for a client
func (handler *WsHandler) createEventChannel(clientID string) chan outbound.Event {
	handler.channelsMu.Lock()
	defer handler.channelsMu.Unlock()

	if eventChan, exists := handler.eventChannels[clientID]; exists {
		return eventChan
	}

	eventChan := make(chan outbound.Event, 100)
	handler.eventChannels[clientID] = eventChan
	return eventChan
}

func (handler *WsHandler) getEventChannel(clientID string) chan outbound.Event {
	handler.channelsMu.RLock()
	defer handler.channelsMu.RUnlock()

	return handler.eventChannels[clientID]
}

func (handler *WsHandler) removeEventChannel(clientID string) {
	handler.channelsMu.Lock()
	defer handler.channelsMu.Unlock()

	if eventChan, exists := handler.eventChannels[clientID]; exists {
		close(eventChan)
		delete(handler.eventChannels, clientID)
	}
}

func (handler *WsHandler) registerClient(client *WsClient) {
	handler.clientsMu.Lock()
	defer handler.clientsMu.Unlock()
	handler.clients[client.id] = client
}

func (handler *WsHandler) unregisterClient(client *WsClient) {
	handler.clientsMu.Lock()
	defer handler.clientsMu.Unlock()

	delete(handler.clients, client.id)
	client.Stop()
	handler.removeEventChannel(client.id)

	handler.logger.Info().Str("client_id", client.id).Str("user_id", client.userID.String()).Int("total_clients", len(handler.clients)).Msg("WebSocket client disconnected")
}

// listenForClientEvents forwards broadcast events to the client's socket
func (handler *WsHandler) listenForClientEvents(client *WsClient) {
	eventChan := handler.getEventChannel(client.id)
	if eventChan == nil {
		handler.logger.Error().Str("client_id", client.id).Msg("No event channel found for client")
		return
	}

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			wsMessage := handler.convertEventToMessage(event)
			if err := client.Send(wsMessage); err != nil {
				handler.logger.Error().Err(err).Str("client_id", client.id).Msg("Failed to send event to WebSocket client")
			}

		case <-client.ctx.Done():
			return
		}
	}
}

func (handler *WsHandler) HandleClientMessage(client *WsClient, msg *ClientMessage) error {
	switch msg.Type {
	case MessageTypeSubscribe:
		return handler.handleSubscribe(client, msg)

	case MessageTypeUnsubscribe:
		return handler.handleUnsubscribe(client, msg)

	case MessageTypeSubmitBid:
		return handler.handleSubmitBid(client, msg)

	case MessageTypeCreateAuction:
		return handler.handleCreateAuction(client, msg)

	case MessageTypeAddItem:
		return handler.handleAddItem(client, msg)

	case MessageTypeGetAuction:
		return handler.handleGetAuction(client, msg)

	case MessageTypeListAuctions:
		return handler.handleListAuctions(client, msg)

	case MessageTypeCloseAuction:
		return handler.handleCloseAuction(client, msg)

	case MessageTypeGetItemRank:
		return handler.handleGetItemRank(client, msg)

	case MessageTypeGetAuctionSummary:
		return handler.handleGetAuctionSummary(client, msg)

	case MessageTypeGetAuditTrail:
		return handler.handleGetAuditTrail(client, msg)

	default:
		handler.logger.Warn().Str("client_id", client.id).Str("message_type", string(msg.Type)).Msg("Unknown message type from client")
		return shared.ErrUnknownMessageType
	}
}

func (handler *WsHandler) convertEventToMessage(event outbound.Event) *ServerMessage {
	switch event.Type {
	case outbound.EventTypeBidSubmitted:
		return &ServerMessage{
			Type:      MessageTypeBidSubmitted,
			AuctionID: &event.AuctionID,
			Data:      event.Data,
			Timestamp: event.Timestamp,
		}
	case outbound.EventTypeAuctionOpened:
		return &ServerMessage{
			Type:      MessageTypeAuctionOpened,
			AuctionID: &event.AuctionID,
			Data:      event.Data,
			Timestamp: event.Timestamp,
		}
	case outbound.EventTypeAuctionClosed:
		return &ServerMessage{
			Type:      MessageTypeAuctionClosed,
			AuctionID: &event.AuctionID,
			Data:      event.Data,
			Timestamp: event.Timestamp,
		}
	default:
		return &ServerMessage{
			Type:      MessageTypeAuctionUpdate,
			AuctionID: &event.AuctionID,
			Data:      event.Data,
			Timestamp: event.Timestamp,
		}
	}
}

// GetConnectedClients returns the number of connected clients
func (handler *WsHandler) GetConnectedClients() int {
	handler.clientsMu.RLock()
	defer handler.clientsMu.RUnlock()
	return len(handler.clients)
}

func (handler *WsHandler) handleSubscribe(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	eventChan := handler.getEventChannel(client.id)
	if eventChan == nil {
		handler.logger.Error().Str("client_id", client.id).Msg("No event channel found for client")
		return shared.ErrUserNotSubscribed
	}

	if err := handler.broadcaster.Subscribe(ctx, *msg.AuctionID, client.id, eventChan); err != nil {
		handler.logger.Error().Err(err).Str("client_id", client.id).Str("auction_id", msg.AuctionID.String()).Msg("Failed to subscribe to auction")
		return err
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data["status"] = "subscribed"

	handler.logger.Info().Str("client_id", client.id).Str("auction_id", msg.AuctionID.String()).Msg("Client subscribed to auction")
	return client.Send(response)
}

// handleUnsubscribe handles unsubscription from auction events
func (handler *WsHandler) handleUnsubscribe(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	if err := handler.broadcaster.Unsubscribe(ctx, *msg.AuctionID, client.id); err != nil {
		return err
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data["status"] = "unsubscribed"

	handler.logger.Info().Str("client_id", client.id).Str("auction_id", msg.AuctionID.String()).Msg("Client unsubscribed from auction")
	return client.Send(response)
}

// handleSubmitBid handles bid submission
func (handler *WsHandler) handleSubmitBid(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	var req inbound.SubmitBidRequest
	if err := msg.DecodeData(&req); err != nil {
		return err
	}
	req.AuctionID = *msg.AuctionID
	req.BidderID = client.userID

	if err := handler.validate.Struct(req); err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	b, rank, err := handler.bidService.SubmitBid(ctx, req)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	// The broadcast fan-out notifies subscribers; the submitter also gets a
	// direct acknowledgement with the rank.
	response := NewServerMessage(MessageTypeBidSubmitted)
	response.AuctionID = msg.AuctionID
	response.Data["bid_id"] = b.ID.String()
	response.Data["item_id"] = b.ItemID.String()
	response.Data["amount"] = b.Amount.String()
	response.Data["bid_time"] = b.BidTime.Format(time.RFC3339Nano)
	response.Data["rank"] = rank

	handler.logger.Info().Str("bid_id", b.ID.String()).Str("auction_id", msg.AuctionID.String()).Str("user_id", client.userID.String()).Int("rank", rank).Msg("Bid submitted successfully")
	return client.Send(response)
}

// handleCreateAuction handles auction creation
func (handler *WsHandler) handleCreateAuction(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	var req inbound.CreateAuctionRequest
	if err := msg.DecodeData(&req); err != nil {
		return err
	}
	req.CreatorID = client.userID

	if err := handler.validate.Struct(req); err != nil {
		return client.Send(NewErrorMessage(err.Error(), nil))
	}

	a, err := handler.auctionService.CreateAuction(ctx, req)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), nil))
	}

	response := handler.createAuctionResponse(a, MessageTypeAuctionCreated, nil)

	handler.logger.Info().Str("auction_id", a.ID.String()).Str("user_id", client.userID.String()).Msg("Auction created successfully")
	return client.Send(response)
}

// handleAddItem handles adding a line item to an auction
func (handler *WsHandler) handleAddItem(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	var req inbound.AddItemRequest
	if err := msg.DecodeData(&req); err != nil {
		return err
	}
	req.AuctionID = *msg.AuctionID
	req.ActorID = client.userID

	if err := handler.validate.Struct(req); err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	item, err := handler.auctionService.AddItem(ctx, req)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	response := NewServerMessage(MessageTypeItemAdded)
	response.AuctionID = msg.AuctionID
	response.Data["item_id"] = item.ID.String()
	response.Data["name"] = item.Name
	response.Data["quantity"] = item.Quantity.String()
	response.Data["unit"] = item.Unit
	response.Data["base_price"] = item.BasePrice.String()

	return client.Send(response)
}

// handleGetAuction handles getting auction details
func (handler *WsHandler) handleGetAuction(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	a, err := handler.auctionService.GetAuction(ctx, *msg.AuctionID)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	response := handler.createAuctionResponse(a, MessageTypeAuctionUpdate, msg.AuctionID)
	return client.Send(response)
}

// handleListAuctions handles listing auctions
func (handler *WsHandler) handleListAuctions(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	req := inbound.ListAuctionsRequest{Page: 1, PageSize: 10}
	if pageVal, ok := msg.Data["page"].(float64); ok {
		req.Page = int(pageVal)
	}
	if sizeVal, ok := msg.Data["page_size"].(float64); ok {
		req.PageSize = int(sizeVal)
	}
	if statusVal, ok := msg.Data["status"].(string); ok {
		status := auction.Status(statusVal)
		req.Status = &status
	}

	auctions, err := handler.auctionService.ListAuctions(ctx, req)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), nil))
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.Data["auctions"] = auctions
	response.Data["count"] = len(auctions)

	return client.Send(response)
}

// handleCloseAuction handles closing an auction ahead of its end time
func (handler *WsHandler) handleCloseAuction(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	result, err := handler.auctionService.CloseAuctionNow(ctx, *msg.AuctionID, client.userID)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	response := NewServerMessage(MessageTypeAuctionClosed)
	response.AuctionID = msg.AuctionID
	response.Data["result"] = result

	handler.logger.Info().Str("auction_id", msg.AuctionID.String()).Str("user_id", client.userID.String()).Msg("Auction closed by owner")
	return client.Send(response)
}

// handleGetItemRank handles item ranking queries
func (handler *WsHandler) handleGetItemRank(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	itemIDStr, ok := msg.Data["item_id"].(string)
	if !ok {
		return shared.ErrInvalidRequest
	}
	itemID, err := uuid.Parse(itemIDStr)
	if err != nil {
		return shared.ErrInvalidRequest
	}

	mode := ranking.HistoryFull
	if modeVal, ok := msg.Data["history"].(string); ok && modeVal == "latest" {
		mode = ranking.HistoryLatestPerBidder
	}

	view, err := handler.bidService.GetItemRank(ctx, itemID, mode)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data["item_id"] = view.ItemID.String()
	response.Data["base_price"] = view.BasePrice.String()
	response.Data["bids"] = view.Bids
	if view.Best != nil {
		response.Data["best"] = map[string]interface{}{
			"bid_id":    view.Best.BidID.String(),
			"bidder_id": view.Best.BidderID.String(),
			"amount":    view.Best.Amount.String(),
		}
	}

	return client.Send(response)
}

// handleGetAuctionSummary handles reporting summary queries
func (handler *WsHandler) handleGetAuctionSummary(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	summary, err := handler.auctionService.GetAuctionSummary(ctx, *msg.AuctionID)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data["summary"] = summary

	return client.Send(response)
}

// handleGetAuditTrail handles audit history queries
func (handler *WsHandler) handleGetAuditTrail(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	targetTypeStr, ok := msg.Data["target_type"].(string)
	if !ok {
		return shared.ErrInvalidRequest
	}
	targetID, ok := msg.Data["target_id"].(string)
	if !ok {
		targetID = ""
	}

	entries, err := handler.auctionService.GetAuditTrail(ctx, audit.TargetType(targetTypeStr), targetID)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.Data["entries"] = entries
	response.Data["count"] = len(entries)

	return client.Send(response)
}

func (handler *WsHandler) createAuctionResponse(a *auction.Auction, msgType MessageType, auctionID *uuid.UUID) *ServerMessage {
	response := NewServerMessage(msgType)
	if auctionID != nil {
		response.AuctionID = auctionID
	} else {
		response.AuctionID = &a.ID
	}

	response.Data["auction_id"] = a.ID
	response.Data["title"] = a.Title
	response.Data["currency"] = a.Currency
	response.Data["start_time"] = a.StartTime.Format(time.RFC3339)
	response.Data["end_time"] = a.EndTime.Format(time.RFC3339)
	response.Data["min_decrement"] = a.MinDecrement.String()
	response.Data["status"] = a.Status

	return response
}
