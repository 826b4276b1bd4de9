package plaid

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/bank-bridge/internal/apperr"
	"github.com/dvloznov/bank-bridge/internal/gocardless"
)

const dateLayout = "2006-01-02"

// AccountAPI is the slice of the aggregator surface the mapper needs.
type AccountAPI interface {
	AccountMetadata(ctx context.Context, access, id string) (gocardless.AccountMetadata, error)
	AccountDetails(ctx context.Context, access, id string) (gocardless.AccountDetails, error)
	AccountBalances(ctx context.Context, access, id string) ([]gocardless.Balance, error)
}

// Mapper normalizes aggregator accounts into the target schema.
type Mapper struct {
	api         AccountAPI
	concurrency int
}

// NewMapper creates a mapper that fetches source data through api and maps
// up to concurrency accounts in parallel within a batch.
func NewMapper(api AccountAPI, concurrency int) *Mapper {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Mapper{api: api, concurrency: concurrency}
}

// Account fetches metadata, details and balances for one aggregator account
// and maps them to a normalized account. An account with no balance entries
// fails with NoBalanceData: the consuming backend cannot represent an
// account without a balance, so the whole enclosing batch must abort.
func (m *Mapper) Account(ctx context.Context, access, id string) (Account, error) {
	meta, err := m.api.AccountMetadata(ctx, access, id)
	if err != nil {
		return Account{}, apperr.Upstream(fmt.Errorf("account %s metadata: %w", id, err))
	}
	details, err := m.api.AccountDetails(ctx, access, id)
	if err != nil {
		return Account{}, apperr.Upstream(fmt.Errorf("account %s details: %w", id, err))
	}
	balances, err := m.api.AccountBalances(ctx, access, id)
	if err != nil {
		return Account{}, apperr.Upstream(fmt.Errorf("account %s balances: %w", id, err))
	}
	if len(balances) == 0 {
		return Account{}, apperr.NoBalanceData(id)
	}

	// The aggregator may report several balance types; the first entry wins.
	balance := balances[0]
	amount, err := parseAmount(balance.BalanceAmount.Amount)
	if err != nil {
		return Account{}, apperr.Upstream(fmt.Errorf("account %s balance: %w", id, err))
	}

	name := details.Account.Name
	if name == "" {
		name = "Unknown"
	}
	currency := balance.BalanceAmount.Currency
	if currency == "" {
		currency = "EUR"
	}

	return Account{
		ID:           meta.ID,
		AccountID:    meta.ID,
		Mask:         mask(details.Account.IBAN),
		Name:         name,
		OfficialName: name,
		Type:         "depository",
		Subtype:      "checking",
		Balances: Balances{
			Available:       amount,
			Current:         amount,
			ISOCurrencyCode: currency,
		},
	}, nil
}

// Accounts maps a batch of account ids, preserving input order. At most the
// configured concurrency is in flight at once; the first failure cancels the
// rest and aborts the batch.
func (m *Mapper) Accounts(ctx context.Context, access string, ids []string) ([]Account, error) {
	accounts := make([]Account, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			account, err := m.Account(gctx, access, id)
			if err != nil {
				return err
			}
			accounts[i] = account
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// MapTransaction maps one raw transaction. The amount sign is inverted: the
// aggregator reports debits negative, the target schema reports them
// positive. The display name prefers the creditor, falling back to the
// debtor.
func MapTransaction(accountID string, raw gocardless.Transaction) (Transaction, error) {
	amount, err := decimal.NewFromString(raw.TransactionAmount.Amount)
	if err != nil {
		return Transaction{}, apperr.Upstream(fmt.Errorf("transaction %s amount %q: %w", raw.TransactionID, raw.TransactionAmount.Amount, err))
	}

	name := raw.CreditorName
	if name == "" {
		name = raw.DebtorName
	}

	return Transaction{
		TransactionID:   raw.TransactionID,
		AccountID:       accountID,
		Name:            name,
		Amount:          amount.Neg().InexactFloat64(),
		ISOCurrencyCode: raw.TransactionAmount.Currency,
		Date:            raw.BookingDate,
		Pending:         false,
		TransactionType: "unresolved",
		PaymentChannel:  "other",
		PaymentMeta:     map[string]any{},
	}, nil
}

// MapTransactions maps a list of booked transactions and drops every entry
// dated strictly before notBefore. The aggregator already received the same
// window but its filter cannot be trusted, so this runs unconditionally.
// Entries whose date does not parse are kept.
func MapTransactions(accountID string, booked []gocardless.Transaction, notBefore string) ([]Transaction, error) {
	floor, floorErr := time.Parse(dateLayout, notBefore)

	transactions := make([]Transaction, 0, len(booked))
	for _, raw := range booked {
		tx, err := MapTransaction(accountID, raw)
		if err != nil {
			return nil, err
		}
		if floorErr == nil {
			if date, err := time.Parse(dateLayout, tx.Date); err == nil && date.Before(floor) {
				continue
			}
		}
		transactions = append(transactions, tx)
	}
	return transactions, nil
}

func mask(iban string) string {
	if iban == "" {
		return "0000"
	}
	if len(iban) <= 4 {
		return iban
	}
	return iban[len(iban)-4:]
}

func parseAmount(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}
