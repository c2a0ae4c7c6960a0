package stellar

// IntentKind identifies which ledger operation a TransactionIntent requests.
type IntentKind string

const (
	IntentPayment       IntentKind = "payment"
	IntentCreateAccount IntentKind = "createAccount"
	IntentChangeTrust   IntentKind = "changeTrust"
	IntentPathPayment   IntentKind = "pathPayment"
	IntentRawWire       IntentKind = "rawWire"
)

// MemoKind identifies how the Memo field of an intent should be encoded.
type MemoKind string

const (
	MemoKindText   MemoKind = "text"
	MemoKindID     MemoKind = "id"
	MemoKindHash   MemoKind = "hash"
	MemoKindReturn MemoKind = "return"
)

// AssetRef names a fungible asset. An empty Code, "XLM", or "native" refers
// to the native asset; any other code is an issued asset and requires a valid
// issuer account address.
type AssetRef struct {
	Code   string `json:"code,omitempty"`
	Issuer string `json:"issuer,omitempty"`
}

// Native reports whether the reference resolves to the native asset.
func (a AssetRef) Native() bool {
	return a.Code == "" || a.Code == "XLM" || a.Code == "native"
}

// String returns a short human-readable form, "XLM" for native or
// "CODE:ISSUER" for issued assets.
func (a AssetRef) String() string {
	if a.Native() {
		return "XLM"
	}
	return a.Code + ":" + a.Issuer
}

// TransactionIntent is a structured description of a requested ledger
// operation, produced by the NL-extraction collaborator upstream of this
// service. It is a tagged union over Kind; only the fields relevant to the
// kind are consulted by the compiler.
type TransactionIntent struct {
	Kind IntentKind `json:"kind"`

	// Common optional fields.
	SourceAccount string   `json:"source_account,omitempty"`
	Memo          string   `json:"memo,omitempty"`
	MemoKind      MemoKind `json:"memo_kind,omitempty"`

	// payment / pathPayment / createAccount
	DestinationAccount string `json:"destination_account,omitempty"`

	// payment
	Amount string    `json:"amount,omitempty"`
	Asset  *AssetRef `json:"asset,omitempty"`

	// createAccount
	StartingBalance string `json:"starting_balance,omitempty"`

	// changeTrust
	TrustAsset *AssetRef `json:"trust_asset,omitempty"`
	TrustLimit string    `json:"trust_limit,omitempty"`

	// pathPayment
	SendAsset  *AssetRef  `json:"send_asset,omitempty"`
	SendMax    string     `json:"send_max,omitempty"`
	DestAsset  *AssetRef  `json:"dest_asset,omitempty"`
	DestAmount string     `json:"dest_amount,omitempty"`
	Path       []AssetRef `json:"path,omitempty"`

	// rawWire: a pre-built base64 transaction envelope that bypasses the
	// builder stage entirely.
	Wire string `json:"wire,omitempty"`
}

// CompiledTransaction is the output of the compiler: an opaque base64
// transaction envelope (signed when the compiler holds a signer) plus
// metadata for audit and logging. Summary is derived deterministically from
// the intent, never re-derived from the wire bytes.
type CompiledTransaction struct {
	Kind          IntentKind `json:"kind"`
	SourceAccount string     `json:"source_account"`
	Wire          string     `json:"wire"`
	Summary       string     `json:"summary"`
}
