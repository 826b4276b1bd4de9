// Package gocardless is a thin client for the GoCardless Bank Account Data
// API. Token lifecycle is deliberately not managed here: the linking flow
// stores the refresh token in the remote bank context, and the query path
// exchanges it for a fresh access token on every request, so every data call
// takes the access token explicitly.
package gocardless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to one aggregator deployment. Safe for concurrent use.
type Client struct {
	baseURL    string
	secretID   string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a client for the aggregator API at baseURL using the
// given portal credentials.
func NewClient(baseURL, secretID, secretKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		secretID:   secretID,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GenerateToken obtains a fresh access/refresh pair from the portal
// credentials.
func (c *Client) GenerateToken(ctx context.Context) (TokenPair, error) {
	var pair TokenPair
	body := map[string]string{"secret_id": c.secretID, "secret_key": c.secretKey}
	if err := c.do(ctx, http.MethodPost, "/token/new/", "", body, &pair); err != nil {
		return TokenPair{}, fmt.Errorf("GenerateToken: %w", err)
	}
	return pair, nil
}

// ExchangeToken trades a stored refresh token for a new access token.
func (c *Client) ExchangeToken(ctx context.Context, refresh string) (string, error) {
	var resp struct {
		Access        string `json:"access"`
		AccessExpires int    `json:"access_expires"`
	}
	body := map[string]string{"refresh": refresh}
	if err := c.do(ctx, http.MethodPost, "/token/refresh/", "", body, &resp); err != nil {
		return "", fmt.Errorf("ExchangeToken: %w", err)
	}
	return resp.Access, nil
}

// Institutions lists the banks available in a country.
func (c *Client) Institutions(ctx context.Context, access, country string) ([]Institution, error) {
	var institutions []Institution
	path := "/institutions/?country=" + url.QueryEscape(country)
	if err := c.do(ctx, http.MethodGet, path, access, nil, &institutions); err != nil {
		return nil, fmt.Errorf("Institutions: %w", err)
	}
	return institutions, nil
}

// Institution fetches one institution's metadata.
func (c *Client) Institution(ctx context.Context, access, id string) (Institution, error) {
	var institution Institution
	path := "/institutions/" + url.PathEscape(id) + "/"
	if err := c.do(ctx, http.MethodGet, path, access, nil, &institution); err != nil {
		return Institution{}, fmt.Errorf("Institution: %w", err)
	}
	return institution, nil
}

// CreateRequisition initializes an authorization session. The aggregator
// sends the user agent back to redirect once the bank accepts, and reference
// ties the requisition to our correlation id.
func (c *Client) CreateRequisition(ctx context.Context, access, redirect, institutionID, reference string) (Requisition, error) {
	var requisition Requisition
	body := map[string]string{
		"redirect":       redirect,
		"institution_id": institutionID,
		"reference":      reference,
	}
	if err := c.do(ctx, http.MethodPost, "/requisitions/", access, body, &requisition); err != nil {
		return Requisition{}, fmt.Errorf("CreateRequisition: %w", err)
	}
	return requisition, nil
}

// Requisition resolves an authorization session to its linked account ids.
func (c *Client) Requisition(ctx context.Context, access, id string) (Requisition, error) {
	var requisition Requisition
	path := "/requisitions/" + url.PathEscape(id) + "/"
	if err := c.do(ctx, http.MethodGet, path, access, nil, &requisition); err != nil {
		return Requisition{}, fmt.Errorf("Requisition: %w", err)
	}
	return requisition, nil
}

// AccountMetadata fetches the aggregator's account header record.
func (c *Client) AccountMetadata(ctx context.Context, access, id string) (AccountMetadata, error) {
	var meta AccountMetadata
	path := "/accounts/" + url.PathEscape(id) + "/"
	if err := c.do(ctx, http.MethodGet, path, access, nil, &meta); err != nil {
		return AccountMetadata{}, fmt.Errorf("AccountMetadata: %w", err)
	}
	return meta, nil
}

// AccountDetails fetches the bank-reported account attributes.
func (c *Client) AccountDetails(ctx context.Context, access, id string) (AccountDetails, error) {
	var details AccountDetails
	path := "/accounts/" + url.PathEscape(id) + "/details/"
	if err := c.do(ctx, http.MethodGet, path, access, nil, &details); err != nil {
		return AccountDetails{}, fmt.Errorf("AccountDetails: %w", err)
	}
	return details, nil
}

// AccountBalances fetches the balance list for an account.
func (c *Client) AccountBalances(ctx context.Context, access, id string) ([]Balance, error) {
	var resp struct {
		Balances []Balance `json:"balances"`
	}
	path := "/accounts/" + url.PathEscape(id) + "/balances/"
	if err := c.do(ctx, http.MethodGet, path, access, nil, &resp); err != nil {
		return nil, fmt.Errorf("AccountBalances: %w", err)
	}
	return resp.Balances, nil
}

// AccountTransactions fetches transactions in [from, to]. The upstream date
// filter is unreliable; callers must re-filter the mapped result.
func (c *Client) AccountTransactions(ctx context.Context, access, id, from, to string) (Transactions, error) {
	var resp struct {
		Transactions Transactions `json:"transactions"`
	}
	query := url.Values{}
	if from != "" {
		query.Set("date_from", from)
	}
	if to != "" {
		query.Set("date_to", to)
	}
	path := "/accounts/" + url.PathEscape(id) + "/transactions/"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	if err := c.do(ctx, http.MethodGet, path, access, nil, &resp); err != nil {
		return Transactions{}, fmt.Errorf("AccountTransactions: %w", err)
	}
	return resp.Transactions, nil
}

// do performs one JSON round trip. No retries: failures bubble up to the
// caller and are surfaced through the generic error responder.
func (c *Client) do(ctx context.Context, method, path, access string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, detail)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
