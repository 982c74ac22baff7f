// Package availability queries the external calendar service for open
// lodging dates. Read-only: the booking itself always goes through a human.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Availability is the calendar answer for one date range.
type Availability struct {
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Available bool      `json:"available"`
	Detail    string    `json:"detail,omitempty"`
}

// Checker answers whether a date range is open.
type Checker interface {
	CheckRange(ctx context.Context, from, to time.Time) (*Availability, error)
}

// Client is the HTTP Checker against the calendar service.
type Client struct {
	client  *resty.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient builds a Checker against the configured calendar URL. A zero
// timeout defaults to 10 seconds.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		client:  resty.New().SetTimeout(timeout),
		baseURL: baseURL,
		log:     log.With().Str("component", "availability-client").Logger(),
	}
}

var _ Checker = (*Client)(nil)

// CheckRange asks the calendar service whether [from, to] is open. Callers
// treat any error as "make no availability claim" and fall through to the
// default conversational path.
func (c *Client) CheckRange(ctx context.Context, from, to time.Time) (*Availability, error) {
	var result Availability

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"from": from.Format("2006-01-02"),
			"to":   to.Format("2006-01-02"),
		}).
		SetResult(&result).
		Get(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("availability check: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("availability check: status %d", resp.StatusCode())
	}

	result.From = from
	result.To = to
	return &result, nil
}
