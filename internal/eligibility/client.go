// Package eligibility asks the parcel-tracking service whether a parcel can be insured.
package eligibility

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Armour007/parcelclaims-backend/internal/config"
	"github.com/Armour007/parcelclaims-backend/internal/remote"
	"github.com/Armour007/parcelclaims-backend/internal/telemetry"
)

const checkPath = "/ext/v1/insurance/event_check"

// Remote statuses with a meaning for intake.
const (
	StatusError    = "error"
	StatusDeclined = "declined"
)

// PriceInvalid is the sentinel price the service returns for data it could not match.
const PriceInvalid = -1

// RemoteError is returned for timeouts, unexpected statuses, malformed bodies and an open breaker.
type RemoteError = remote.Error

// Verdict is the service's answer. Either field may be absent.
type Verdict struct {
	Status string
	Price  *float64
}

type Client struct {
	baseURL string
	token   string
	rc      *remote.Client
}

func NewClient(cfg config.Remote, breaker *telemetry.CircuitBreaker) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		rc:      remote.New("eligibility_check", cfg.Timeout, breaker),
	}
}

type checkRequest struct {
	Phone    string `json:"phone"`
	Tracking string `json:"tracking"`
}

// Check makes one call. A 4xx that still carries a JSON status is treated as the
// service's verdict; anything else that is not 2xx is a RemoteError.
func (c *Client) Check(ctx context.Context, phone, trackNumber string) (*Verdict, error) {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.rc.PostJSON(ctx, c.baseURL+checkPath, h, checkRequest{Phone: phone, Tracking: strings.TrimSpace(trackNumber)})
	if err != nil {
		return nil, err
	}
	v, perr := parseVerdict(resp.Body)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if perr != nil {
			return nil, c.rc.MalformedError(resp, perr)
		}
		return v, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && perr == nil && v.Status != "":
		return v, nil
	default:
		return nil, c.rc.StatusError(resp)
	}
}

// parseVerdict reads status and price without trusting their types: price may
// come as a number or a numeric string. Null and unknown shapes are dropped.
func parseVerdict(body []byte) (*Verdict, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("empty body")
	}
	v := &Verdict{}
	if s, ok := raw["status"]; ok {
		var status string
		if json.Unmarshal(s, &status) == nil {
			v.Status = strings.ToLower(strings.TrimSpace(status))
		}
	}
	if p, ok := raw["price"]; ok && !bytes.Equal(bytes.TrimSpace(p), []byte("null")) {
		var n float64
		var s string
		switch {
		case json.Unmarshal(p, &n) == nil:
			v.Price = &n
		case json.Unmarshal(p, &s) == nil:
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				v.Price = &f
			}
		}
	}
	return v, nil
}
