package stellar

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/stellar/go/amount"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
)

// memoTextMaxBytes is the ledger's limit on text memos. Oversized memos are
// rejected, never truncated.
const memoTextMaxBytes = 28

// maxTimeout is the ceiling on transaction timebounds. The relay enforces its
// own fee/timeout ceilings when asked to skip simulation, so an unbounded
// transaction is never built.
const maxTimeout = 30 * time.Second

// minStartingBalance is the network minimum for funding a new account
// (two base reserves at 0.5 XLM each).
const minStartingBalance = "1"

// AccountLoader is the narrow slice of the Horizon client the compiler needs:
// a fresh sequence number for the source account and the current base fee.
// This allows mocking the ledger in tests without hitting real Horizon nodes.
type AccountLoader interface {
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	FeeStats() (hProtocol.FeeStats, error)
}

// CompilerOptions holds the optional knobs for a Compiler.
type CompilerOptions struct {
	// Timeout bounds the transaction's timebounds. Zero means maxTimeout;
	// values above maxTimeout are capped.
	Timeout time.Duration

	// BaseFee overrides the ledger's base fee when non-zero. Values below
	// the protocol minimum are raised to it.
	BaseFee int64

	// Signer, when set, signs the compiled envelope. The compiled wire is
	// returned unsigned otherwise.
	Signer *keypair.Full
}

// Compiler maps a TransactionIntent to a wire-format transaction envelope.
// Compilation is deterministic and side-effect free apart from one required
// network read: the source account's current sequence number (and, unless
// overridden, the base fee). It either returns a complete CompiledTransaction
// or an error; no partial builder state escapes a call.
type Compiler struct {
	loader            AccountLoader
	networkPassphrase string
	timeout           time.Duration
	baseFee           int64
	signer            *keypair.Full
	logger            *slog.Logger
}

// NewCompiler creates a Compiler bound to an account loader and network
// passphrase. The passphrase only matters when a signer is configured.
func NewCompiler(loader AccountLoader, networkPassphrase string, opts CompilerOptions, logger *slog.Logger) *Compiler {
	timeout := opts.Timeout
	if timeout <= 0 || timeout > maxTimeout {
		timeout = maxTimeout
	}
	return &Compiler{
		loader:            loader,
		networkPassphrase: networkPassphrase,
		timeout:           timeout,
		baseFee:           opts.BaseFee,
		signer:            opts.Signer,
		logger:            logger,
	}
}

// Compile validates the intent, loads the source account's sequence number,
// and builds exactly one ledger operation wrapped in a transaction envelope.
// Local validation runs in full before the account load, so a malformed
// intent never touches the network. rawWire intents skip the builder stage:
// the supplied envelope is checked for base64 shape and passed through.
func (c *Compiler) Compile(ctx context.Context, intent *TransactionIntent) (*CompiledTransaction, error) {
	if intent == nil {
		return nil, compileErr(ErrMissingRequiredField, "intent", "intent is required")
	}

	if intent.Kind == IntentRawWire {
		return c.passthrough(intent)
	}

	op, err := c.buildOperation(intent)
	if err != nil {
		return nil, err
	}

	memo, err := buildMemo(intent)
	if err != nil {
		return nil, err
	}

	source, err := c.resolveSource(intent)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, compileErrWrap(ErrSourceAccountLoad, "source_account", err, "compile cancelled before account load")
	}

	account, err := c.loader.AccountDetail(horizonclient.AccountRequest{AccountID: source})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to load source account", "source_account", source, "error", err)
		return nil, compileErrWrap(ErrSourceAccountLoad, "source_account", err, "failed to load account %s", source)
	}

	baseFee := c.resolveBaseFee(ctx)

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{op},
		BaseFee:              baseFee,
		Memo:                 memo,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(int64(c.timeout.Seconds())),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	if c.signer != nil {
		tx, err = tx.Sign(c.networkPassphrase, c.signer)
		if err != nil {
			return nil, fmt.Errorf("failed to sign transaction: %w", err)
		}
	}

	wire, err := tx.Base64()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	compiled := &CompiledTransaction{
		Kind:          intent.Kind,
		SourceAccount: source,
		Wire:          wire,
		Summary:       summarize(intent),
	}

	c.logger.DebugContext(ctx, "compiled transaction",
		"kind", intent.Kind,
		"source_account", source,
		"sequence", account.Sequence,
		"base_fee", baseFee,
	)

	return compiled, nil
}

// passthrough handles rawWire intents: no builder stage, no account load.
func (c *Compiler) passthrough(intent *TransactionIntent) (*CompiledTransaction, error) {
	if intent.Wire == "" {
		return nil, compileErr(ErrMissingRequiredField, "wire", "rawWire intent requires a wire payload")
	}
	if _, err := base64.StdEncoding.DecodeString(intent.Wire); err != nil {
		return nil, compileErrWrap(ErrMemoEncoding, "wire", err, "wire payload is not valid base64")
	}
	source := intent.SourceAccount
	if source != "" && !IsValidAddress(source) {
		return nil, compileErr(ErrInvalidAddress, "source_account", "invalid account address %q", source)
	}
	return &CompiledTransaction{
		Kind:          IntentRawWire,
		SourceAccount: source,
		Wire:          intent.Wire,
		Summary:       "pre-built wire transaction",
	}, nil
}

// resolveSource picks the source account: the intent's when present, else the
// configured signer's. Either way it must pass address validation.
func (c *Compiler) resolveSource(intent *TransactionIntent) (string, error) {
	source := intent.SourceAccount
	if source == "" && c.signer != nil {
		source = c.signer.Address()
	}
	if source == "" {
		return "", compileErr(ErrMissingRequiredField, "source_account", "no source account in intent and no signer configured")
	}
	if !IsValidAddress(source) {
		return "", compileErr(ErrInvalidAddress, "source_account", "invalid account address %q", source)
	}
	return source, nil
}

// resolveBaseFee returns the caller override when set, else the ledger's
// current base fee, floored at the protocol minimum. A fee-stats failure is
// not fatal; the protocol minimum is a safe floor.
func (c *Compiler) resolveBaseFee(ctx context.Context) int64 {
	if c.baseFee > 0 {
		if c.baseFee < txnbuild.MinBaseFee {
			return txnbuild.MinBaseFee
		}
		return c.baseFee
	}
	stats, err := c.loader.FeeStats()
	if err != nil {
		c.logger.WarnContext(ctx, "failed to load fee stats, using protocol minimum", "error", err)
		return txnbuild.MinBaseFee
	}
	if stats.LastLedgerBaseFee < txnbuild.MinBaseFee {
		return txnbuild.MinBaseFee
	}
	return stats.LastLedgerBaseFee
}

// buildOperation is the closed switch over intent kinds. An unrecognized
// kind is a hard error, never a silent no-op.
func (c *Compiler) buildOperation(intent *TransactionIntent) (txnbuild.Operation, error) {
	switch intent.Kind {
	case IntentPayment:
		return buildPayment(intent)
	case IntentCreateAccount:
		return buildCreateAccount(intent)
	case IntentChangeTrust:
		return buildChangeTrust(intent)
	case IntentPathPayment:
		return buildPathPayment(intent)
	default:
		return nil, compileErr(ErrUnknownIntentKind, "kind", "unrecognized intent kind %q", intent.Kind)
	}
}

func buildPayment(intent *TransactionIntent) (txnbuild.Operation, error) {
	if intent.DestinationAccount == "" {
		return nil, compileErr(ErrMissingRequiredField, "destination_account", "payment requires a destination account")
	}
	if !IsValidAddress(intent.DestinationAccount) {
		return nil, compileErr(ErrInvalidAddress, "destination_account", "invalid account address %q", intent.DestinationAccount)
	}
	if err := validateAmount("amount", intent.Amount); err != nil {
		return nil, err
	}
	asset, err := resolveAsset("asset", intent.Asset)
	if err != nil {
		return nil, err
	}
	return &txnbuild.Payment{
		Destination: intent.DestinationAccount,
		Amount:      intent.Amount,
		Asset:       asset,
	}, nil
}

func buildCreateAccount(intent *TransactionIntent) (txnbuild.Operation, error) {
	if intent.DestinationAccount == "" {
		return nil, compileErr(ErrMissingRequiredField, "destination_account", "createAccount requires a destination account")
	}
	if !IsValidAddress(intent.DestinationAccount) {
		return nil, compileErr(ErrInvalidAddress, "destination_account", "invalid account address %q", intent.DestinationAccount)
	}
	if err := validateAmount("starting_balance", intent.StartingBalance); err != nil {
		return nil, err
	}
	parsed, _ := amount.ParseInt64(intent.StartingBalance)
	minimum, _ := amount.ParseInt64(minStartingBalance)
	if parsed < minimum {
		return nil, compileErr(ErrInvalidAmount, "starting_balance",
			"starting balance %s is below the network minimum of %s XLM", intent.StartingBalance, minStartingBalance)
	}
	return &txnbuild.CreateAccount{
		Destination: intent.DestinationAccount,
		Amount:      intent.StartingBalance,
	}, nil
}

func buildChangeTrust(intent *TransactionIntent) (txnbuild.Operation, error) {
	if intent.TrustAsset == nil {
		return nil, compileErr(ErrMissingRequiredField, "trust_asset", "changeTrust requires a trust asset")
	}
	if intent.TrustAsset.Native() {
		return nil, compileErr(ErrUnsupportedAsset, "trust_asset", "cannot establish a trustline to the native asset")
	}
	if intent.TrustAsset.Code == "" || len(intent.TrustAsset.Code) > 12 {
		return nil, compileErr(ErrUnsupportedAsset, "trust_asset", "asset code %q must be 1-12 characters", intent.TrustAsset.Code)
	}
	if intent.TrustAsset.Issuer == "" {
		return nil, compileErr(ErrMissingRequiredField, "trust_asset.issuer", "issued asset requires an issuer account")
	}
	if !IsValidAddress(intent.TrustAsset.Issuer) {
		return nil, compileErr(ErrInvalidAddress, "trust_asset.issuer", "invalid account address %q", intent.TrustAsset.Issuer)
	}
	limit := intent.TrustLimit
	if limit == "" {
		limit = txnbuild.MaxTrustlineLimit
	} else if err := validateAmount("trust_limit", limit); err != nil {
		return nil, err
	}
	return &txnbuild.ChangeTrust{
		Line: txnbuild.ChangeTrustAssetWrapper{
			Asset: txnbuild.CreditAsset{Code: intent.TrustAsset.Code, Issuer: intent.TrustAsset.Issuer},
		},
		Limit: limit,
	}, nil
}

func buildPathPayment(intent *TransactionIntent) (txnbuild.Operation, error) {
	if intent.DestinationAccount == "" {
		return nil, compileErr(ErrMissingRequiredField, "destination_account", "pathPayment requires a destination account")
	}
	if !IsValidAddress(intent.DestinationAccount) {
		return nil, compileErr(ErrInvalidAddress, "destination_account", "invalid account address %q", intent.DestinationAccount)
	}
	if err := validateAmount("send_max", intent.SendMax); err != nil {
		return nil, err
	}
	if err := validateAmount("dest_amount", intent.DestAmount); err != nil {
		return nil, err
	}
	sendAsset, err := resolveAsset("send_asset", intent.SendAsset)
	if err != nil {
		return nil, err
	}
	destAsset, err := resolveAsset("dest_asset", intent.DestAsset)
	if err != nil {
		return nil, err
	}
	// Intermediate hops resolve in order; an empty path is allowed.
	path := make([]txnbuild.Asset, 0, len(intent.Path))
	for i := range intent.Path {
		hop, err := resolveAsset(fmt.Sprintf("path[%d]", i), &intent.Path[i])
		if err != nil {
			return nil, err
		}
		path = append(path, hop)
	}
	return &txnbuild.PathPaymentStrictReceive{
		SendAsset:   sendAsset,
		SendMax:     intent.SendMax,
		Destination: intent.DestinationAccount,
		DestAsset:   destAsset,
		DestAmount:  intent.DestAmount,
		Path:        path,
	}, nil
}

// buildMemo maps the intent's memo fields to a txnbuild.Memo. A memo kind
// with no memo value, or a value that does not fit the kind's encoding, is a
// compile error rather than a warning.
func buildMemo(intent *TransactionIntent) (txnbuild.Memo, error) {
	if intent.Memo == "" {
		if intent.MemoKind != "" {
			return nil, compileErr(ErrMemoEncoding, "memo", "memo kind %q given without a memo value", intent.MemoKind)
		}
		return nil, nil
	}

	kind := intent.MemoKind
	if kind == "" {
		kind = MemoKindText
	}

	switch kind {
	case MemoKindText:
		if len(intent.Memo) > memoTextMaxBytes {
			return nil, compileErr(ErrMemoEncoding, "memo", "text memo is %d bytes, limit is %d", len(intent.Memo), memoTextMaxBytes)
		}
		return txnbuild.MemoText(intent.Memo), nil
	case MemoKindID:
		id, err := strconv.ParseUint(intent.Memo, 10, 64)
		if err != nil {
			return nil, compileErrWrap(ErrMemoEncoding, "memo", err, "id memo %q is not an unsigned 64-bit integer", intent.Memo)
		}
		return txnbuild.MemoID(id), nil
	case MemoKindHash:
		h, err := decodeMemoHash(intent.Memo)
		if err != nil {
			return nil, err
		}
		return txnbuild.MemoHash(h), nil
	case MemoKindReturn:
		h, err := decodeMemoHash(intent.Memo)
		if err != nil {
			return nil, err
		}
		return txnbuild.MemoReturn(h), nil
	default:
		return nil, compileErr(ErrMemoEncoding, "memo_kind", "unrecognized memo kind %q", intent.MemoKind)
	}
}

// decodeMemoHash accepts a 32-byte value as 64 hex characters or as standard
// base64.
func decodeMemoHash(s string) ([32]byte, error) {
	var out [32]byte
	if raw, err := hex.DecodeString(s); err == nil {
		if len(raw) != 32 {
			return out, compileErr(ErrMemoEncoding, "memo", "hash memo decodes to %d bytes, want 32", len(raw))
		}
		copy(out[:], raw)
		return out, nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return out, compileErrWrap(ErrMemoEncoding, "memo", err, "hash memo is neither hex nor base64")
	}
	if len(raw) != 32 {
		return out, compileErr(ErrMemoEncoding, "memo", "hash memo decodes to %d bytes, want 32", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// validateAmount checks that s parses as a positive decimal within the
// ledger's 7-digit fractional precision.
func validateAmount(field, s string) error {
	if s == "" {
		return compileErr(ErrMissingRequiredField, field, "%s is required", field)
	}
	parsed, err := amount.ParseInt64(s)
	if err != nil {
		return compileErrWrap(ErrInvalidAmount, field, err, "%s %q is not a valid amount", field, s)
	}
	if parsed <= 0 {
		return compileErr(ErrInvalidAmount, field, "%s must be greater than zero, got %q", field, s)
	}
	return nil
}

// resolveAsset maps an AssetRef to a txnbuild asset. A nil reference means
// native. Issued assets require a 1-12 character code and a valid issuer.
func resolveAsset(field string, ref *AssetRef) (txnbuild.Asset, error) {
	if ref == nil || ref.Native() {
		return txnbuild.NativeAsset{}, nil
	}
	if len(ref.Code) > 12 {
		return nil, compileErr(ErrUnsupportedAsset, field, "asset code %q must be 1-12 characters", ref.Code)
	}
	if ref.Issuer == "" {
		return nil, compileErr(ErrUnsupportedAsset, field, "issued asset %q requires an issuer account", ref.Code)
	}
	if !IsValidAddress(ref.Issuer) {
		return nil, compileErr(ErrInvalidAddress, field, "invalid issuer address %q", ref.Issuer)
	}
	return txnbuild.CreditAsset{Code: ref.Code, Issuer: ref.Issuer}, nil
}

// summarize renders a deterministic human-readable description of the intent
// for audit trails. It reads only the intent, never the wire bytes.
func summarize(intent *TransactionIntent) string {
	switch intent.Kind {
	case IntentPayment:
		return fmt.Sprintf("payment of %s %s to %s", intent.Amount, assetLabel(intent.Asset), intent.DestinationAccount)
	case IntentCreateAccount:
		return fmt.Sprintf("create account %s with starting balance %s XLM", intent.DestinationAccount, intent.StartingBalance)
	case IntentChangeTrust:
		limit := intent.TrustLimit
		if limit == "" {
			limit = "max"
		}
		return fmt.Sprintf("change trustline for %s with limit %s", intent.TrustAsset.String(), limit)
	case IntentPathPayment:
		return fmt.Sprintf("path payment of %s %s to %s (max %s %s, %d hops)",
			intent.DestAmount, assetLabel(intent.DestAsset), intent.DestinationAccount,
			intent.SendMax, assetLabel(intent.SendAsset), len(intent.Path))
	default:
		return string(intent.Kind)
	}
}

func assetLabel(ref *AssetRef) string {
	if ref == nil {
		return "XLM"
	}
	return ref.String()
}
