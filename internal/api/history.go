package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/matheus3301/helpline/internal/message"
	"github.com/matheus3301/helpline/internal/room"
	"github.com/matheus3301/helpline/internal/wire"
)

// History fetches the stored messages of a room in server order. Every
// failure matches ErrHistoryUnavailable as well as its cause.
func (c *Client) History(ctx context.Context, roomID room.ID, token string) ([]message.Message, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/messages/"+escape(roomID.String()), token, nil, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}
	msgs, err := wire.DecodeMessages(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}
	return msgs, nil
}
