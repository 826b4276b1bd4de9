package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-bridge/internal/actualbudget"
	"github.com/dvloznov/bank-bridge/internal/gocardless"
	"github.com/dvloznov/bank-bridge/internal/linking"
	"github.com/dvloznov/bank-bridge/internal/linking/memstore"
	"github.com/dvloznov/bank-bridge/internal/plaid"
	"github.com/dvloznov/bank-bridge/internal/web"
)

type fakeQueryAPI struct {
	exchangeCalls int
	lastRefresh   string
	transactions  gocardless.Transactions
	lastWindow    [2]string
}

func (f *fakeQueryAPI) ExchangeToken(ctx context.Context, refresh string) (string, error) {
	f.exchangeCalls++
	f.lastRefresh = refresh
	return "fresh-access", nil
}

func (f *fakeQueryAPI) AccountTransactions(ctx context.Context, access, id, from, to string) (gocardless.Transactions, error) {
	if access != "fresh-access" {
		return gocardless.Transactions{}, fmt.Errorf("unexpected access token %q", access)
	}
	f.lastWindow = [2]string{from, to}
	return f.transactions, nil
}

type fakeContexts struct {
	bankCtx actualbudget.BankContext
	calls   int
}

func (f *fakeContexts) GetBankContext(ctx context.Context, contextID string) (actualbudget.BankContext, error) {
	f.calls++
	return f.bankCtx, nil
}

type fakeQueryMapper struct {
	accounts   map[string]plaid.Account
	lastAccess string
}

func (f *fakeQueryMapper) Account(ctx context.Context, access, id string) (plaid.Account, error) {
	f.lastAccess = access
	return f.accounts[id], nil
}

func (f *fakeQueryMapper) Accounts(ctx context.Context, access string, ids []string) ([]plaid.Account, error) {
	f.lastAccess = access
	out := make([]plaid.Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.accounts[id])
	}
	return out, nil
}

func newQueryHandler(api *fakeQueryAPI, contexts *fakeContexts, mapper *fakeQueryMapper) *QueryHandler {
	return NewQueryHandler(api, contexts, mapper, "shared-secret", false, zerolog.Nop())
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestQueryUnauthorized(t *testing.T) {
	api := &fakeQueryAPI{}
	contexts := &fakeContexts{}
	handler := newQueryHandler(api, contexts, &fakeQueryMapper{})

	for _, endpoint := range []http.HandlerFunc{handler.Accounts, handler.Transactions} {
		rec := postJSON(t, endpoint, `{"token":"wrong","bankCtx":"ctx-1"}`)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("response is not JSON: %v", err)
		}
		want := map[string]string{"status": "error", "reason": "unauthorized", "details": "token-not-found"}
		for k, v := range want {
			if body[k] != v {
				t.Errorf("body[%q] = %q, want %q", k, body[k], v)
			}
		}
	}
	if contexts.calls != 0 || api.exchangeCalls != 0 {
		t.Error("rejected request still reached the backend or aggregator")
	}
}

func TestAccountsHappyPath(t *testing.T) {
	api := &fakeQueryAPI{}
	contexts := &fakeContexts{bankCtx: actualbudget.BankContext{
		TokenPair: gocardless.TokenPair{Refresh: "stored-refresh"},
		Accounts:  []string{"acc-1", "acc-2"},
	}}
	mapper := &fakeQueryMapper{accounts: map[string]plaid.Account{
		"acc-1": {ID: "acc-1", Name: "One"},
		"acc-2": {ID: "acc-2", Name: "Two"},
	}}
	handler := newQueryHandler(api, contexts, mapper)

	rec := postJSON(t, handler.Accounts, `{"token":"shared-secret","bankCtx":"ctx-1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if api.lastRefresh != "stored-refresh" {
		t.Errorf("refresh token sent upstream = %q", api.lastRefresh)
	}
	if mapper.lastAccess != "fresh-access" {
		t.Errorf("mapper access token = %q", mapper.lastAccess)
	}

	var resp struct {
		Status string          `json:"status"`
		Data   []plaid.Account `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status field = %q", resp.Status)
	}
	if len(resp.Data) != 2 || resp.Data[0].ID != "acc-1" || resp.Data[1].ID != "acc-2" {
		t.Errorf("data = %+v", resp.Data)
	}
}

func TestTransactionsResponse(t *testing.T) {
	api := &fakeQueryAPI{transactions: gocardless.Transactions{
		Booked: []gocardless.Transaction{
			{TransactionID: "old", BookingDate: "2024-01-05", TransactionAmount: gocardless.Amount{Amount: "1.00", Currency: "EUR"}},
			{TransactionID: "kept", BookingDate: "2024-01-20", TransactionAmount: gocardless.Amount{Amount: "12.50", Currency: "EUR"}, CreditorName: "Shop"},
		},
		Pending: []gocardless.Transaction{
			{TransactionID: "pending", BookingDate: "2024-01-21", TransactionAmount: gocardless.Amount{Amount: "2.00"}},
		},
	}}
	contexts := &fakeContexts{bankCtx: actualbudget.BankContext{
		TokenPair: gocardless.TokenPair{Refresh: "stored-refresh"},
	}}
	mapper := &fakeQueryMapper{accounts: map[string]plaid.Account{
		"acc-1": {ID: "acc-1", Name: "One"},
	}}
	handler := newQueryHandler(api, contexts, mapper)

	rec := postJSON(t, handler.Transactions,
		`{"token":"shared-secret","bankCtx":"ctx-1","acctId":"acc-1","startDate":"2024-01-10","endDate":"2024-01-31"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if api.lastWindow != [2]string{"2024-01-10", "2024-01-31"} {
		t.Errorf("upstream window = %v", api.lastWindow)
	}

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Accounts          []plaid.Account     `json:"accounts"`
			Transactions      []plaid.Transaction `json:"transactions"`
			TotalTransactions int                 `json:"total_transactions"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if len(resp.Data.Accounts) != 1 || resp.Data.Accounts[0].ID != "acc-1" {
		t.Errorf("accounts = %+v", resp.Data.Accounts)
	}
	// Only the booked entry inside the window survives; pending entries and
	// entries before startDate are dropped.
	if len(resp.Data.Transactions) != 1 || resp.Data.Transactions[0].TransactionID != "kept" {
		t.Errorf("transactions = %+v", resp.Data.Transactions)
	}
	if resp.Data.Transactions[0].Amount != -12.5 {
		t.Errorf("amount = %v, want inverted sign", resp.Data.Transactions[0].Amount)
	}
	if resp.Data.TotalTransactions != 1 {
		t.Errorf("total_transactions = %d", resp.Data.TotalTransactions)
	}
}

func TestQueryRejectsBadBody(t *testing.T) {
	handler := newQueryHandler(&fakeQueryAPI{}, &fakeContexts{}, &fakeQueryMapper{})

	rec := postJSON(t, handler.Accounts, `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	assertErrorEnvelope(t, rec.Body.Bytes())
}

// fakeLinkAggregator backs the install handler test; the bad-options path
// must never reach it.
type fakeLinkAggregator struct{ calls int }

func (f *fakeLinkAggregator) GenerateToken(ctx context.Context) (gocardless.TokenPair, error) {
	f.calls++
	return gocardless.TokenPair{Access: "a"}, nil
}

func (f *fakeLinkAggregator) Institutions(ctx context.Context, access, country string) ([]gocardless.Institution, error) {
	f.calls++
	return nil, nil
}

func (f *fakeLinkAggregator) Institution(ctx context.Context, access, id string) (gocardless.Institution, error) {
	f.calls++
	return gocardless.Institution{}, nil
}

func (f *fakeLinkAggregator) CreateRequisition(ctx context.Context, access, redirect, institutionID, reference string) (gocardless.Requisition, error) {
	f.calls++
	return gocardless.Requisition{}, nil
}

func (f *fakeLinkAggregator) Requisition(ctx context.Context, access, id string) (gocardless.Requisition, error) {
	f.calls++
	return gocardless.Requisition{}, nil
}

type noopContextStore struct{}

func (noopContextStore) SetBankContext(ctx context.Context, contextID, externalID string, bankCtx actualbudget.BankContext) error {
	return nil
}

func (noopContextStore) PutWebTokenContent(ctx context.Context, tokenID, publicToken string, institution plaid.Institution, accounts []plaid.Account) error {
	return nil
}

type noopMapper struct{}

func (noopMapper) Accounts(ctx context.Context, access string, ids []string) ([]plaid.Account, error) {
	return nil, nil
}

func TestInstallRejectsBadOptions(t *testing.T) {
	renderer, err := web.NewRenderer()
	if err != nil {
		t.Fatalf("building renderer: %v", err)
	}
	aggregator := &fakeLinkAggregator{}
	flow := linking.NewFlow(aggregator, noopContextStore{}, noopMapper{}, memstore.New(time.Hour), "NL", "https://bridge.example.com/results", zerolog.Nop())
	handler := NewLinkHandler(flow, renderer, false, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/install?options=not-base64!!", nil)
	rec := httptest.NewRecorder()
	handler.Install(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	assertErrorEnvelope(t, rec.Body.Bytes())
	if aggregator.calls != 0 {
		t.Error("aggregator was contacted despite invalid options")
	}
}

func assertErrorEnvelope(t *testing.T, body []byte) {
	t.Helper()
	var envelope struct {
		Errors struct {
			Status string `json:"status"`
			Reason string `json:"reason"`
			Debug  []any  `json:"debug"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("response is not the error envelope: %v (%s)", err, body)
	}
	if envelope.Errors.Status != "error" || envelope.Errors.Reason != "internal-error" {
		t.Errorf("envelope fields = %+v", envelope.Errors)
	}
	if len(envelope.Errors.Debug) != 1 {
		t.Errorf("debug = %v, want a single entry", envelope.Errors.Debug)
	}
}
