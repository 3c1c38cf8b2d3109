package ws

import (
	"testing"

	"procurex-bidding-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestParseClientMessage(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		msg, err := ParseClientMessage([]byte(`{"type":"ping"}`))
		require.NoError(t, err)
		require.Equal(t, MessageTypePing, msg.Type)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := ParseClientMessage([]byte(`{`))
		require.Error(t, err)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := ParseClientMessage([]byte(`{"data":{}}`))
		require.ErrorIs(t, err, shared.ErrInvalidRequest)
	})
}

func TestClientMessageValidate(t *testing.T) {
	auctionID := uuid.New()

	tests := []struct {
		name    string
		msg     ClientMessage
		wantErr bool
	}{
		{"ping needs nothing", ClientMessage{Type: MessageTypePing}, false},
		{"list needs nothing", ClientMessage{Type: MessageTypeListAuctions}, false},
		{"subscribe needs auction id", ClientMessage{Type: MessageTypeSubscribe}, true},
		{"subscribe with auction id", ClientMessage{Type: MessageTypeSubscribe, AuctionID: &auctionID}, false},
		{"subscribe with nil uuid", ClientMessage{Type: MessageTypeSubscribe, AuctionID: &uuid.Nil}, true},
		{"submit bid needs payload", ClientMessage{Type: MessageTypeSubmitBid, AuctionID: &auctionID}, true},
		{
			"submit bid with payload",
			ClientMessage{Type: MessageTypeSubmitBid, AuctionID: &auctionID, Data: map[string]interface{}{"item_id": "x", "amount": "700"}},
			false,
		},
		{"create auction needs payload", ClientMessage{Type: MessageTypeCreateAuction}, true},
		{"unknown type", ClientMessage{Type: MessageType("launch_missiles")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDecodeData(t *testing.T) {
	msg := ClientMessage{
		Type: MessageTypeSubmitBid,
		Data: map[string]interface{}{"item_id": uuid.New().String(), "amount": "699.99"},
	}

	var req struct {
		ItemID uuid.UUID `json:"item_id"`
		Amount string    `json:"amount"`
	}
	require.NoError(t, msg.DecodeData(&req))
	require.Equal(t, "699.99", req.Amount)
	require.NotEqual(t, uuid.Nil, req.ItemID)
}
