// Package claims is a small client for the parcel claims HTTP API.
package claims

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:3001"
	}
	return &Client{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

// ClaimForm is the body of createClaim and preview requests.
type ClaimForm struct {
	Phone          string `json:"phone"`
	TrackNumber    string `json:"trackNumber"`
	LastName       string `json:"lastName,omitempty"`
	FirstName      string `json:"firstName,omitempty"`
	Patronymic     string `json:"patronymic,omitempty"`
	BirthDate      string `json:"birthDate,omitempty"`
	DocumentType   string `json:"documentType,omitempty"`
	PassportSeries string `json:"passportSeries,omitempty"`
	PassportNumber string `json:"passportNumber,omitempty"`
	PaymentMethod  string `json:"paymentMethod,omitempty"`
	BankName       string `json:"bankName,omitempty"`
	RecipientPhone string `json:"recipientPhone,omitempty"`
	CardNumber     string `json:"cardNumber,omitempty"`
	BankBIC        string `json:"bankBic,omitempty"`
	AccountNumber  string `json:"accountNumber,omitempty"`
}

type ParcelCheck struct {
	Success bool     `json:"success"`
	Price   *float64 `json:"price,omitempty"`
	Message string   `json:"message,omitempty"`
}

type CreatedClaim struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	ClaimID     string    `json:"claimId"`
	ClaimNumber string    `json:"claimNumber"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Conflict is returned by CreateClaim when a claim for the same phone and
// track number already exists.
type Conflict struct {
	Message     string    `json:"error"`
	ClaimID     string    `json:"claimId"`
	ClaimNumber string    `json:"claimNumber"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (c *Conflict) Error() string {
	return fmt.Sprintf("claim %s already exists", c.ClaimNumber)
}

// APIError carries a non-success response the client does not model.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("claims api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("claims api: status %d: %s", e.StatusCode, e.Message)
}

func (c *Client) CheckParcel(ctx context.Context, phone, trackNumber string) (*ParcelCheck, error) {
	body := map[string]string{"phone": phone, "trackNumber": trackNumber}
	resp, err := c.post(ctx, "/api/checkParcel", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var out ParcelCheck
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateClaim submits form. A duplicate yields a *Conflict error.
func (c *Client) CreateClaim(ctx context.Context, form ClaimForm) (*CreatedClaim, error) {
	resp, err := c.post(ctx, "/api/createClaim", form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusCreated:
		var out CreatedClaim
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, err
		}
		return &out, nil
	case http.StatusConflict:
		var cf Conflict
		if err := json.NewDecoder(resp.Body).Decode(&cf); err != nil {
			return nil, err
		}
		return nil, &cf
	default:
		return nil, apiError(resp)
	}
}

// PreviewPDF renders the claim document without storing the claim.
func (c *Client) PreviewPDF(ctx context.Context, form ClaimForm) ([]byte, error) {
	resp, err := c.post(ctx, "/api/claims/preview", form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) post(ctx context.Context, path string, in any) (*http.Response, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return hc.Do(req)
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(data, &body)
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}

// IsConflict reports whether err is a duplicate-claim response.
func IsConflict(err error) (*Conflict, bool) {
	var cf *Conflict
	if errors.As(err, &cf) {
		return cf, true
	}
	return nil, false
}
