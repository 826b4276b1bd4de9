package gocardless

// Wire types for the GoCardless Bank Account Data API (v2). Field names
// mirror the upstream JSON; amounts stay strings until the normalizer
// parses them.

// TokenPair is the credential pair issued by POST /token/new/. The access
// token authorizes data calls for a short period; the refresh token is kept
// in the bank context so later query requests can mint fresh access tokens.
type TokenPair struct {
	Access         string `json:"access"`
	AccessExpires  int    `json:"access_expires"`
	Refresh        string `json:"refresh"`
	RefreshExpires int    `json:"refresh_expires"`
}

// Institution describes one bank available through the aggregator.
type Institution struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	BIC                  string   `json:"bic,omitempty"`
	TransactionTotalDays string   `json:"transaction_total_days,omitempty"`
	Countries            []string `json:"countries,omitempty"`
	Logo                 string   `json:"logo,omitempty"`
}

// Requisition is one authorization session on the aggregator side. Link is
// where the user agent must be sent to authenticate with the bank; Accounts
// is populated once authorization completes.
type Requisition struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	InstitutionID string   `json:"institution_id"`
	Reference     string   `json:"reference"`
	Redirect      string   `json:"redirect"`
	Link          string   `json:"link"`
	Accounts      []string `json:"accounts"`
}

// AccountMetadata is the aggregator's account header record.
type AccountMetadata struct {
	ID            string `json:"id"`
	IBAN          string `json:"iban"`
	InstitutionID string `json:"institution_id"`
	Status        string `json:"status"`
	OwnerName     string `json:"owner_name"`
}

// AccountDetails carries the bank-reported account attributes.
type AccountDetails struct {
	Account struct {
		IBAN     string `json:"iban"`
		Name     string `json:"name"`
		Product  string `json:"product"`
		Currency string `json:"currency"`
	} `json:"account"`
}

// Amount is a money value as the aggregator reports it.
type Amount struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// Balance is one entry of an account's balance list.
type Balance struct {
	BalanceAmount Amount `json:"balanceAmount"`
	BalanceType   string `json:"balanceType"`
	ReferenceDate string `json:"referenceDate,omitempty"`
}

// Transaction is one raw bank transaction.
type Transaction struct {
	TransactionID                     string `json:"transactionId"`
	BookingDate                       string `json:"bookingDate"`
	ValueDate                         string `json:"valueDate,omitempty"`
	TransactionAmount                 Amount `json:"transactionAmount"`
	CreditorName                      string `json:"creditorName,omitempty"`
	DebtorName                        string `json:"debtorName,omitempty"`
	RemittanceInformationUnstructured string `json:"remittanceInformationUnstructured,omitempty"`
}

// Transactions is the booked/pending split returned by the transactions
// endpoint. Only booked entries are normalized downstream.
type Transactions struct {
	Booked  []Transaction `json:"booked"`
	Pending []Transaction `json:"pending"`
}
