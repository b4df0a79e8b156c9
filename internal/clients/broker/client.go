// Package broker provides the HTTP client for the broker gateway: account
// summaries and open positions.
package broker

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Config holds broker gateway settings
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the broker gateway over REST
type Client struct {
	client *resty.Client
	log    zerolog.Logger
}

type apiError struct {
	Error string `json:"error"`
}

type positionsResponse struct {
	Positions []domain.BrokerPosition `json:"positions"`
}

// NewClient creates a broker gateway client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}

	return &Client{
		client: client,
		log:    log.With().Str("client", "broker").Logger(),
	}
}

// GetAccountSummary fetches the account's net liquidation value and cash
func (c *Client) GetAccountSummary(ctx context.Context, accountID string) (*domain.AccountSummary, error) {
	var summary domain.AccountSummary
	if err := c.get(ctx, "/accounts/{accountID}/summary", accountID, &summary); err != nil {
		return nil, err
	}
	if summary.AccountID == "" {
		summary.AccountID = accountID
	}

	c.log.Debug().
		Str("account_id", accountID).
		Str("net_liquidation", summary.NetLiquidation.String()).
		Msg("Fetched account summary")
	return &summary, nil
}

// GetPositions fetches the account's open positions
func (c *Client) GetPositions(ctx context.Context, accountID string) ([]domain.BrokerPosition, error) {
	var result positionsResponse
	if err := c.get(ctx, "/accounts/{accountID}/positions", accountID, &result); err != nil {
		return nil, err
	}
	if result.Positions == nil {
		result.Positions = []domain.BrokerPosition{}
	}
	return result.Positions, nil
}

func (c *Client) get(ctx context.Context, path, accountID string, out interface{}) error {
	var apiErr apiError
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("accountID", accountID).
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		return fmt.Errorf("broker request %s failed: %w", path, err)
	}

	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		c.log.Warn().
			Int("status", resp.StatusCode()).
			Str("account_id", accountID).
			Str("error", msg).
			Msg("Broker returned an error")
		return fmt.Errorf("broker returned status %d: %s", resp.StatusCode(), msg)
	}
	return nil
}
