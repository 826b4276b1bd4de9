// Package actualbudget is the client for the finance-tracking backend that
// owns bank contexts. The backend is a remote key-value store reached over
// HTTP; payloads are encrypted before leaving the process and decrypted on
// the way back. No call is retried: a failure surfaces to the caller as an
// upstream error.
package actualbudget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dvloznov/bank-bridge/internal/apperr"
	"github.com/dvloznov/bank-bridge/internal/crypto"
	"github.com/dvloznov/bank-bridge/internal/gocardless"
	"github.com/dvloznov/bank-bridge/internal/plaid"
)

// BankContext is the record stored under a caller-supplied context id once a
// link completes: the aggregator token pair plus the linked account ids. The
// linking flow writes it exactly once; the query API reads it on every call.
type BankContext struct {
	gocardless.TokenPair
	Accounts []string `json:"accounts"`
}

// Client talks to one backend deployment. Safe for concurrent use.
type Client struct {
	baseURL    string
	secret     string
	key        []byte
	httpClient *http.Client
}

// NewClient creates a backend client. secret authenticates every call; key
// is the AES-256 key protecting context payloads.
func NewClient(baseURL, secret string, key []byte) *Client {
	return &Client{
		baseURL:    baseURL,
		secret:     secret,
		key:        key,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBankContext encrypts and stores a bank context under contextID, tagged
// with externalID as the correlation id. A storage failure is reported
// rather than swallowed so the caller never believes a lost write succeeded.
func (c *Client) SetBankContext(ctx context.Context, contextID, externalID string, bankCtx BankContext) error {
	plaintext, err := json.Marshal(bankCtx)
	if err != nil {
		return fmt.Errorf("SetBankContext: encoding payload: %w", err)
	}
	envelope, err := crypto.Encrypt(c.key, plaintext)
	if err != nil {
		return fmt.Errorf("SetBankContext: %w", err)
	}

	body := map[string]any{
		"token":      c.secret,
		"contextId":  contextID,
		"externalId": externalID,
		"payload":    envelope,
	}
	if err := c.post(ctx, "/integrations/set-context", body, nil); err != nil {
		return apperr.Upstream(fmt.Errorf("SetBankContext: %w", err))
	}
	return nil
}

// GetBankContext fetches and decrypts the bank context stored under
// contextID.
func (c *Client) GetBankContext(ctx context.Context, contextID string) (BankContext, error) {
	body := map[string]string{
		"token":     c.secret,
		"contextId": contextID,
	}
	var resp struct {
		Data crypto.Envelope `json:"data"`
	}
	if err := c.post(ctx, "/integrations/get-context", body, &resp); err != nil {
		return BankContext{}, apperr.Upstream(fmt.Errorf("GetBankContext: %w", err))
	}

	plaintext, err := crypto.Decrypt(c.key, resp.Data)
	if err != nil {
		return BankContext{}, fmt.Errorf("GetBankContext: %w", err)
	}
	var bankCtx BankContext
	if err := json.Unmarshal(plaintext, &bankCtx); err != nil {
		return BankContext{}, fmt.Errorf("GetBankContext: decoding payload: %w", err)
	}
	return bankCtx, nil
}

// PutWebTokenContent delivers the linking result to the backend so it can
// finish its own onboarding for the token id handed to us at install time.
func (c *Client) PutWebTokenContent(ctx context.Context, tokenID, publicToken string, institution plaid.Institution, accounts []plaid.Account) error {
	body := map[string]any{
		"token": tokenID,
		"data": map[string]any{
			"publicToken": publicToken,
			"metadata": map[string]any{
				"institution": institution,
				"accounts":    accounts,
			},
		},
	}
	if err := c.post(ctx, "/plaid/put-web-token-contents", body, nil); err != nil {
		return apperr.Upstream(fmt.Errorf("PutWebTokenContent: %w", err))
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, detail)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
