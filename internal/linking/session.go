// Package linking drives the three-step bank-linking handshake: install,
// institution selection, results. State lives in a per-browser-session
// record reached only through the Store interface, so the flow logic is
// independent of the backing store.
package linking

import (
	"encoding/base64"
	"encoding/json"

	"github.com/dvloznov/bank-bridge/internal/apperr"
	"github.com/dvloznov/bank-bridge/internal/gocardless"
)

// Options is the opaque blob the caller hands to /install. BankCtxID keys
// the bank context write at the end of the flow; TokenID addresses the web
// token content delivery. Raw keeps the undecoded blob so extra caller
// fields survive the session round trip.
type Options struct {
	BankCtxID string          `json:"bankCtxId"`
	TokenID   string          `json:"tokenId"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// DecodeOptions parses the base64 JSON options blob from the install
// request. Anything short of a JSON object carrying both required ids is a
// bad request.
func DecodeOptions(encoded string) (Options, error) {
	if encoded == "" {
		return Options{}, apperr.BadRequest("options parameter is required")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Options{}, apperr.BadRequest("options is not valid base64: %v", err)
	}
	var opts Options
	if err := json.Unmarshal(data, &opts); err != nil {
		return Options{}, apperr.BadRequest("options is not valid JSON: %v", err)
	}
	if opts.BankCtxID == "" {
		return Options{}, apperr.BadRequest("options is missing bankCtxId")
	}
	if opts.TokenID == "" {
		return Options{}, apperr.BadRequest("options is missing tokenId")
	}
	opts.Raw = data
	return opts, nil
}

// Session is the server-side state of one linking attempt. It is created at
// install, gains a requisition once an institution is chosen, and is
// discarded after the terminal step. RequisitionID and InstitutionID are
// only ever set after ReferenceID.
type Session struct {
	Options        Options              `json:"options"`
	HandshakeToken gocardless.TokenPair `json:"handshakeToken"`
	ReferenceID    string               `json:"referenceId"`
	RequisitionID  string               `json:"requisitionId,omitempty"`
	InstitutionID  string               `json:"institutionId,omitempty"`
}
