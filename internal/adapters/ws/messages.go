package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"procurex-bidding-engine/internal/domain/shared"

	"github.com/google/uuid"
)

type MessageType string

const (
	// Client to Server message types
	MessageTypeSubscribe         MessageType = "subscribe"
	MessageTypeUnsubscribe       MessageType = "unsubscribe"
	MessageTypeSubmitBid         MessageType = "submit_bid"
	MessageTypeCreateAuction     MessageType = "create_auction"
	MessageTypeAddItem           MessageType = "add_item"
	MessageTypeGetAuction        MessageType = "get_auction"
	MessageTypeListAuctions      MessageType = "list_auctions"
	MessageTypeCloseAuction      MessageType = "close_auction"
	MessageTypeGetItemRank       MessageType = "get_item_rank"
	MessageTypeGetAuctionSummary MessageType = "get_auction_summary"
	MessageTypeGetAuditTrail     MessageType = "get_audit_trail"
	MessageTypePing              MessageType = "ping"

	// Server to Client message types
	MessageTypeBidSubmitted   MessageType = "bid_submitted"
	MessageTypeAuctionOpened  MessageType = "auction_opened"
	MessageTypeAuctionClosed  MessageType = "auction_closed"
	MessageTypeAuctionCreated MessageType = "auction_created"
	MessageTypeItemAdded      MessageType = "item_added"
	MessageTypeAuctionUpdate  MessageType = "auction_update"
	MessageTypeError          MessageType = "error"
	MessageTypePong           MessageType = "pong"
)

type ClientMessage struct {
	Type      MessageType            `json:"type"`
	AuctionID *uuid.UUID             `json:"auction_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// ServerMessage represents a message sent from server to client
type ServerMessage struct {
	Type      MessageType            `json:"type"`
	AuctionID *uuid.UUID             `json:"auction_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     *string                `json:"error,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

func NewServerMessage(msgType MessageType) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now().Unix(),
	}
}

func NewErrorMessage(err string, auctionID *uuid.UUID) *ServerMessage {
	return &ServerMessage{
		Type:      MessageTypeError,
		AuctionID: auctionID,
		Error:     &err,
		Timestamp: time.Now().Unix(),
	}
}

// ParseClientMessage parses a JSON message from client
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse client message: %w", err)
	}

	if msg.Type == "" {
		return nil, shared.ErrInvalidRequest
	}

	return &msg, nil
}

// DecodeData re-decodes the message payload into a typed request so the
// request struct's validation tags apply.
func (m *ClientMessage) DecodeData(target interface{}) error {
	raw, err := json.Marshal(m.Data)
	if err != nil {
		return fmt.Errorf("failed to encode message data: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidRequest, err)
	}
	return nil
}

func (m *ClientMessage) validateAuctionID() error {
	if m.AuctionID == nil || *m.AuctionID == uuid.Nil {
		return fmt.Errorf("%w: auction_id is required", shared.ErrInvalidRequest)
	}
	return nil
}

// Validate validates a client message's envelope. Payload validation happens
// when the handler decodes the typed request.
func (m *ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe,
		MessageTypeGetAuction, MessageTypeCloseAuction,
		MessageTypeGetAuctionSummary:
		return m.validateAuctionID()

	case MessageTypeSubmitBid, MessageTypeAddItem:
		if err := m.validateAuctionID(); err != nil {
			return err
		}
		if len(m.Data) == 0 {
			return shared.ErrInvalidRequest
		}
		return nil

	case MessageTypeCreateAuction, MessageTypeGetItemRank, MessageTypeGetAuditTrail:
		if len(m.Data) == 0 {
			return shared.ErrInvalidRequest
		}
		return nil

	case MessageTypeListAuctions, MessageTypePing:
		return nil

	default:
		return shared.ErrUnknownMessageType
	}
}
