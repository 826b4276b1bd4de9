package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-bridge/internal/actualbudget"
	"github.com/dvloznov/bank-bridge/internal/api/middleware"
	"github.com/dvloznov/bank-bridge/internal/apperr"
	"github.com/dvloznov/bank-bridge/internal/gocardless"
	"github.com/dvloznov/bank-bridge/internal/linking"
	"github.com/dvloznov/bank-bridge/internal/plaid"
	"github.com/dvloznov/bank-bridge/internal/web"
)

// LinkHandler serves the browser-facing linking flow.
type LinkHandler struct {
	flow       *linking.Flow
	renderer   *web.Renderer
	production bool
	log        zerolog.Logger
}

// NewLinkHandler creates the linking flow handler.
func NewLinkHandler(flow *linking.Flow, renderer *web.Renderer, production bool, log zerolog.Logger) *LinkHandler {
	return &LinkHandler{
		flow:       flow,
		renderer:   renderer,
		production: production,
		log:        log,
	}
}

type indexData struct {
	Institutions []gocardless.Institution
}

// Install handles GET /install?options=<base64(JSON)>
func (h *LinkHandler) Install(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionID(r.Context())

	institutions, err := h.flow.Install(r.Context(), sessionID, r.URL.Query().Get("options"))
	if err != nil {
		middleware.WriteError(w, h.log, err, h.production)
		return
	}

	h.render(w, "index", indexData{Institutions: institutions})
}

// SelectInstitution handles GET /agreements/{institutionId}
func (h *LinkHandler) SelectInstitution(w http.ResponseWriter, r *http.Request, institutionID string) {
	sessionID := middleware.SessionID(r.Context())

	link, err := h.flow.SelectInstitution(r.Context(), sessionID, institutionID)
	if err != nil {
		middleware.WriteError(w, h.log, err, h.production)
		return
	}
	if link == "" {
		// Stale or missing session: show the start view instead of failing.
		h.render(w, "index", indexData{})
		return
	}

	http.Redirect(w, r, link, http.StatusFound)
}

// Results handles GET /results
func (h *LinkHandler) Results(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionID(r.Context())

	if _, err := h.flow.Finalize(r.Context(), sessionID); err != nil {
		middleware.WriteError(w, h.log, err, h.production)
		return
	}

	w.WriteHeader(http.StatusOK)
	h.render(w, "success", nil)
}

func (h *LinkHandler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.renderer.Render(w, name, data); err != nil {
		h.log.Error().Err(err).Str("view", name).Msg("Failed to render view")
	}
}

// AggregatorAPI is the slice of the aggregator surface the query API needs.
type AggregatorAPI interface {
	ExchangeToken(ctx context.Context, refresh string) (string, error)
	AccountTransactions(ctx context.Context, access, id, from, to string) (gocardless.Transactions, error)
}

// ContextReader reads stored bank contexts from the backend.
type ContextReader interface {
	GetBankContext(ctx context.Context, contextID string) (actualbudget.BankContext, error)
}

// AccountMapper normalizes aggregator accounts.
type AccountMapper interface {
	Account(ctx context.Context, access, id string) (plaid.Account, error)
	Accounts(ctx context.Context, access string, ids []string) ([]plaid.Account, error)
}

// QueryHandler serves the shared-secret-authenticated query API. Each
// request re-derives an access token from the stored refresh token; nothing
// is cached across calls.
type QueryHandler struct {
	api        AggregatorAPI
	contexts   ContextReader
	mapper     AccountMapper
	secret     string
	production bool
	log        zerolog.Logger
}

// NewQueryHandler creates the query API handler.
func NewQueryHandler(api AggregatorAPI, contexts ContextReader, mapper AccountMapper, secret string, production bool, log zerolog.Logger) *QueryHandler {
	return &QueryHandler{
		api:        api,
		contexts:   contexts,
		mapper:     mapper,
		secret:     secret,
		production: production,
		log:        log,
	}
}

// Accounts handles POST /api/plaid/accounts
func (h *QueryHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token   string `json:"token"`
		BankCtx string `json:"bankCtx"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, h.log, apperr.BadRequest("invalid request body: %v", err), h.production)
		return
	}
	if !h.authorized(w, req.Token) {
		return
	}

	bankCtx, access, err := h.openContext(r.Context(), req.BankCtx)
	if err != nil {
		middleware.WriteError(w, h.log, err, h.production)
		return
	}

	accounts, err := h.mapper.Accounts(r.Context(), access, bankCtx.Accounts)
	if err != nil {
		middleware.WriteError(w, h.log, err, h.production)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"data":   accounts,
	})
}

// Transactions handles POST /api/plaid/transactions
func (h *QueryHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token     string `json:"token"`
		BankCtx   string `json:"bankCtx"`
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
		AcctID    string `json:"acctId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, h.log, apperr.BadRequest("invalid request body: %v", err), h.production)
		return
	}
	if !h.authorized(w, req.Token) {
		return
	}

	_, access, err := h.openContext(r.Context(), req.BankCtx)
	if err != nil {
		middleware.WriteError(w, h.log, err, h.production)
		return
	}

	account, err := h.mapper.Account(r.Context(), access, req.AcctID)
	if err != nil {
		middleware.WriteError(w, h.log, err, h.production)
		return
	}

	fetched, err := h.api.AccountTransactions(r.Context(), access, req.AcctID, req.StartDate, req.EndDate)
	if err != nil {
		middleware.WriteError(w, h.log, apperr.Upstream(fmt.Errorf("fetching transactions: %w", err)), h.production)
		return
	}

	// Only booked entries are exposed; the mapped result is re-filtered
	// against startDate because the upstream window is unreliable.
	transactions, err := plaid.MapTransactions(req.AcctID, fetched.Booked, req.StartDate)
	if err != nil {
		middleware.WriteError(w, h.log, err, h.production)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"data": map[string]any{
			"accounts":           []plaid.Account{account},
			"transactions":       transactions,
			"total_transactions": len(transactions),
		},
	})
}

// authorized enforces the exact-match shared secret. A mismatch answers 401
// with the literal body the backend expects and returns false.
func (h *QueryHandler) authorized(w http.ResponseWriter, token string) bool {
	if token != h.secret {
		middleware.WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"status":  "error",
			"reason":  "unauthorized",
			"details": "token-not-found",
		})
		return false
	}
	return true
}

// openContext loads the bank context and exchanges its refresh token for a
// transient access token, the shared preamble of both query endpoints.
func (h *QueryHandler) openContext(ctx context.Context, contextID string) (actualbudget.BankContext, string, error) {
	bankCtx, err := h.contexts.GetBankContext(ctx, contextID)
	if err != nil {
		return actualbudget.BankContext{}, "", err
	}
	access, err := h.api.ExchangeToken(ctx, bankCtx.Refresh)
	if err != nil {
		return actualbudget.BankContext{}, "", apperr.Upstream(fmt.Errorf("exchanging refresh token: %w", err))
	}
	return bankCtx, access, nil
}
