package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/matheus3301/helpline/internal/geo"
)

// Nearby lists open help requests around p. radiusKm is passed as a hint;
// servers that ignore it return their default radius.
func (c *Client) Nearby(ctx context.Context, token string, p geo.Point, radiusKm float64) ([]HelpRequest, error) {
	q := url.Values{}
	q.Set("longitude", strconv.FormatFloat(p.Longitude, 'f', -1, 64))
	q.Set("latitude", strconv.FormatFloat(p.Latitude, 'f', -1, 64))
	if radiusKm > 0 {
		q.Set("radiusKm", strconv.FormatFloat(radiusKm, 'f', -1, 64))
	}
	var out []HelpRequest
	if err := c.do(ctx, http.MethodGet, "/help/nearby?"+q.Encode(), token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PostHelp creates a help request at p.
func (c *Client) PostHelp(ctx context.Context, token, description string, p geo.Point) error {
	req := postHelpRequest{Description: description, Coordinates: p.LonLat()}
	return c.do(ctx, http.MethodPost, "/help", token, req, nil)
}

// Accept claims a help request. The server arbitrates concurrent accepts;
// losers get ErrAcceptRejected.
func (c *Client) Accept(ctx context.Context, token, requestID string) error {
	err := c.do(ctx, http.MethodPut, "/help/"+escape(requestID)+"/accept", token, struct{}{}, nil)
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: %w", ErrAcceptRejected, err)
	}
	return err
}
