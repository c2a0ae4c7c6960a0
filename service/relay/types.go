package relay

// CreditAccount is the relay-side prepaid balance as last observed from the
// info endpoint. The client holds no durable copy of this state; callers must
// not cache a stale balance to gate decisions beyond informational display,
// since the authoritative balance lives server-side and changes on every
// submission.
type CreditAccount struct {
	TokenID          string `json:"token_id"`
	CreditsRemaining int64  `json:"credits_remaining"`
	Activated        bool   `json:"activated"`
}

// SubmitRequest describes one submission. Exactly one of Wire or
// HostFunction must be set; supplying both or neither is a contract violation
// rejected before anything is sent.
type SubmitRequest struct {
	// Wire is a pre-built base64 transaction envelope.
	Wire string

	// HostFunction and AuthEntries are the base64 host-function form,
	// mutually exclusive with Wire.
	HostFunction string
	AuthEntries  []string

	// SkipSimulation asks the relay not to simulate before submitting.
	// The zero value keeps the relay's default of simulating.
	SkipSimulation bool
}

// SubmissionResult is the relay's answer to one submission attempt. It is
// terminal: constructed once, never mutated.
type SubmissionResult struct {
	TxHash string `json:"tx_hash"`

	// CreditsRemaining is the balance reported in the response header, nil
	// when the relay omitted it. The client never computes spend locally.
	CreditsRemaining *int64 `json:"credits_remaining,omitempty"`

	// RawDetails is the relay's response body, preserved verbatim.
	RawDetails string `json:"raw_details,omitempty"`
}
