// Package plaid holds the target response schema the bridge re-exposes
// aggregator data in, plus the normalizer that maps aggregator records into
// it. The consuming backend speaks Plaid's shapes, so field names and filler
// values follow that API even where the aggregator has no equivalent.
package plaid

// Balances is the balance block of a normalized account. The aggregator
// reports a single figure, so available always equals current and limit is
// never set.
type Balances struct {
	Available              float64  `json:"available"`
	Current                float64  `json:"current"`
	Limit                  *float64 `json:"limit"`
	ISOCurrencyCode        string   `json:"iso_currency_code"`
	UnofficialCurrencyCode *string  `json:"unofficial_currency_code"`
}

// Account is one normalized account record.
type Account struct {
	ID           string   `json:"id"`
	AccountID    string   `json:"account_id"`
	Mask         string   `json:"mask"`
	Name         string   `json:"name"`
	OfficialName string   `json:"official_name"`
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype"`
	Balances     Balances `json:"balances"`
}

// Transaction is one normalized transaction record. Fields the aggregator
// cannot provide are emitted as the literal nulls and placeholders the
// consuming backend expects.
type Transaction struct {
	TransactionID        string         `json:"transaction_id"`
	AccountID            string         `json:"account_id"`
	Name                 string         `json:"name"`
	Amount               float64        `json:"amount"`
	ISOCurrencyCode      string         `json:"iso_currency_code"`
	Date                 string         `json:"date"`
	Pending              bool           `json:"pending"`
	MerchantName         *string        `json:"merchant_name"`
	CheckNumber          *string        `json:"check_number"`
	OriginalDescription  *string        `json:"original_description"`
	TransactionType      string         `json:"transaction_type"`
	PaymentChannel       string         `json:"payment_channel"`
	PendingTransactionID *string        `json:"pending_transaction_id"`
	CategoryID           *string        `json:"category_id"`
	Category             []string       `json:"category"`
	Location             map[string]any `json:"location"`
	PaymentMeta          map[string]any `json:"payment_meta"`
}

// Institution is the narrowed institution record delivered with web token
// content.
type Institution struct {
	InstitutionID string `json:"institution_id"`
	Name          string `json:"name"`
}
