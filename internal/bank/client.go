// Package bank resolves a bank name from its BIC through the DaData directory.
package bank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Armour007/parcelclaims-backend/internal/config"
	"github.com/Armour007/parcelclaims-backend/internal/remote"
	"github.com/Armour007/parcelclaims-backend/internal/telemetry"
)

const findPath = "/suggestions/api/4_1/rs/findById/bank"

// ErrNotFound means the directory has no bank for the BIC.
var ErrNotFound = errors.New("bank not found")

type Client struct {
	baseURL string
	token   string
	rc      *remote.Client
}

func NewClient(cfg config.Remote, breaker *telemetry.CircuitBreaker) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		rc:      remote.New("bank_lookup", cfg.Timeout, breaker),
	}
}

type suggestions struct {
	Suggestions []struct {
		Value string `json:"value"`
	} `json:"suggestions"`
}

// Name returns the first suggestion's name for bic.
func (c *Client) Name(ctx context.Context, bic string) (string, error) {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Token "+c.token)
	}
	resp, err := c.rc.PostJSON(ctx, c.baseURL+findPath, h, map[string]string{"query": strings.TrimSpace(bic)})
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.rc.StatusError(resp)
	}
	var s suggestions
	if err := json.Unmarshal(resp.Body, &s); err != nil {
		return "", c.rc.MalformedError(resp, err)
	}
	if len(s.Suggestions) == 0 || strings.TrimSpace(s.Suggestions[0].Value) == "" {
		return "", ErrNotFound
	}
	return s.Suggestions[0].Value, nil
}
