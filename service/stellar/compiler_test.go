package stellar

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stellar/go/amount"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLoader implements AccountLoader for testing. It counts calls so tests
// can assert that local validation failures never touch the network.
type mockLoader struct {
	sequence    int64
	baseFee     int64
	err         error
	loadCalls   int
	feeCalls    int
	lastAccount string
}

func (m *mockLoader) AccountDetail(req horizonclient.AccountRequest) (hProtocol.Account, error) {
	m.loadCalls++
	m.lastAccount = req.AccountID
	if m.err != nil {
		return hProtocol.Account{}, m.err
	}
	return hProtocol.Account{AccountID: req.AccountID, Sequence: m.sequence}, nil
}

func (m *mockLoader) FeeStats() (hProtocol.FeeStats, error) {
	m.feeCalls++
	if m.baseFee == 0 {
		return hProtocol.FeeStats{}, errors.New("fee stats unavailable")
	}
	return hProtocol.FeeStats{LastLedgerBaseFee: m.baseFee}, nil
}

func newTestCompiler(loader *mockLoader, opts CompilerOptions) *Compiler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCompiler(loader, network.TestNetworkPassphrase, opts, logger)
}

func paymentIntent(source, dest string) *TransactionIntent {
	return &TransactionIntent{
		Kind:               IntentPayment,
		SourceAccount:      source,
		DestinationAccount: dest,
		Amount:             "10.5",
	}
}

func decodeTx(t *testing.T, wire string) *txnbuild.Transaction {
	t.Helper()
	generic, err := txnbuild.TransactionFromXDR(wire)
	require.NoError(t, err)
	tx, ok := generic.Transaction()
	require.True(t, ok)
	return tx
}

func TestCompile_PaymentNative_RoundTrip(t *testing.T) {
	source := keypair.MustRandom().Address()
	dest := keypair.MustRandom().Address()
	loader := &mockLoader{sequence: 41, baseFee: 100}
	compiler := newTestCompiler(loader, CompilerOptions{})

	intent := paymentIntent(source, dest)
	compiled, err := compiler.Compile(context.Background(), intent)
	require.NoError(t, err)

	assert.Equal(t, IntentPayment, compiled.Kind)
	assert.Equal(t, source, compiled.SourceAccount)
	assert.Equal(t, 1, loader.loadCalls)
	assert.Equal(t, source, loader.lastAccount)
	assert.Contains(t, compiled.Summary, dest)
	assert.Contains(t, compiled.Summary, "10.5")

	tx := decodeTx(t, compiled.Wire)
	require.Len(t, tx.Operations(), 1)
	op, ok := tx.Operations()[0].(*txnbuild.Payment)
	require.True(t, ok)
	assert.Equal(t, dest, op.Destination)

	// Decimal strings survive the wire encoding without precision loss.
	wantAmount, err := amount.ParseInt64(intent.Amount)
	require.NoError(t, err)
	gotAmount, err := amount.ParseInt64(op.Amount)
	require.NoError(t, err)
	assert.Equal(t, wantAmount, gotAmount)
	assert.Equal(t, txnbuild.NativeAsset{}, op.Asset)

	// Sequence was incremented from the freshly loaded account.
	assert.Equal(t, int64(42), tx.SequenceNumber())

	// No signer configured, so the envelope is unsigned.
	assert.Empty(t, tx.Signatures())
}

func TestCompile_SignsWhenSignerConfigured(t *testing.T) {
	signer := keypair.MustRandom()
	dest := keypair.MustRandom().Address()
	loader := &mockLoader{sequence: 7, baseFee: 100}
	compiler := newTestCompiler(loader, CompilerOptions{Signer: signer})

	// Source defaults to the signer's address when the intent omits it.
	compiled, err := compiler.Compile(context.Background(), paymentIntent("", dest))
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), compiled.SourceAccount)

	tx := decodeTx(t, compiled.Wire)
	assert.Len(t, tx.Signatures(), 1)
}

func TestCompile_TimeoutIsBounded(t *testing.T) {
	dest := keypair.MustRandom().Address()
	loader := &mockLoader{sequence: 1, baseFee: 100}
	compiler := newTestCompiler(loader, CompilerOptions{})

	compiled, err := compiler.Compile(context.Background(), paymentIntent(keypair.MustRandom().Address(), dest))
	require.NoError(t, err)

	tx := decodeTx(t, compiled.Wire)
	bounds := tx.Timebounds()
	require.NotZero(t, bounds.MaxTime)
	assert.LessOrEqual(t, bounds.MaxTime-bounds.MinTime, int64(maxTimeout.Seconds())+1)
}

func TestCompile_InvalidAmount_NoNetworkAccess(t *testing.T) {
	source := keypair.MustRandom().Address()
	dest := keypair.MustRandom().Address()

	for _, amt := range []string{"-5", "0", "abc", "", "1.23456789"} {
		loader := &mockLoader{sequence: 1, baseFee: 100}
		compiler := newTestCompiler(loader, CompilerOptions{})

		intent := paymentIntent(source, dest)
		intent.Amount = amt
		_, err := compiler.Compile(context.Background(), intent)
		require.Error(t, err, "amount %q", amt)

		ce, ok := AsCompileError(err)
		require.True(t, ok)
		if amt == "" {
			assert.Equal(t, ErrMissingRequiredField, ce.Kind)
		} else {
			assert.Equal(t, ErrInvalidAmount, ce.Kind)
		}
		assert.False(t, ce.Retryable())
		assert.Zero(t, loader.loadCalls, "amount %q must be rejected before any account load", amt)
		assert.Zero(t, loader.feeCalls)
	}
}

func TestCompile_InvalidDestination_NoNetworkAccess(t *testing.T) {
	loader := &mockLoader{sequence: 1, baseFee: 100}
	compiler := newTestCompiler(loader, CompilerOptions{})

	intent := paymentIntent(keypair.MustRandom().Address(), "not-an-address")
	_, err := compiler.Compile(context.Background(), intent)
	require.Error(t, err)

	ce, ok := AsCompileError(err)
	require.True(t, ok)
	assert.Equal(t, ErrInvalidAddress, ce.Kind)
	assert.Zero(t, loader.loadCalls)
}

func TestCompile_IssuedAssetRequiresValidIssuer(t *testing.T) {
	loader := &mockLoader{sequence: 1, baseFee: 100}
	compiler := newTestCompiler(loader, CompilerOptions{})

	intent := paymentIntent(keypair.MustRandom().Address(), keypair.MustRandom().Address())
	intent.Asset = &AssetRef{Code: "USDC"}
	_, err := compiler.Compile(context.Background(), intent)
	require.Error(t, err)

	ce, ok := AsCompileError(err)
	require.True(t, ok)
	assert.Equal(t, ErrUnsupportedAsset, ce.Kind)
	assert.Zero(t, loader.loadCalls)

	// XLM shorthand resolves to native without an issuer.
	intent.Asset = &AssetRef{Code: "XLM"}
	compiled, err := compiler.Compile(context.Background(), intent)
	require.NoError(t, err)
	tx := decodeTx(t, compiled.Wire)
	op := tx.Operations()[0].(*txnbuild.Payment)
	assert.Equal(t, txnbuild.NativeAsset{}, op.Asset)
}

func TestCompile_ChangeTrust(t *testing.T) {
	issuer := keypair.MustRandom().Address()
	source := keypair.MustRandom().Address()

	t.Run("missing issuer fails before account load", func(t *testing.T) {
		loader := &mockLoader{sequence: 1, baseFee: 100}
		compiler := newTestCompiler(loader, CompilerOptions{})

		intent := &TransactionIntent{
			Kind:          IntentChangeTrust,
			SourceAccount: source,
			TrustAsset:    &AssetRef{Code: "USDC"},
		}
		_, err := compiler.Compile(context.Background(), intent)
		require.Error(t, err)

		ce, ok := AsCompileError(err)
		require.True(t, ok)
		assert.Equal(t, ErrMissingRequiredField, ce.Kind)
		assert.Equal(t, "trust_asset.issuer", ce.Field)
		assert.Zero(t, loader.loadCalls)
	})

	t.Run("defaults to max trustline limit", func(t *testing.T) {
		loader := &mockLoader{sequence: 1, baseFee: 100}
		compiler := newTestCompiler(loader, CompilerOptions{})

		intent := &TransactionIntent{
			Kind:          IntentChangeTrust,
			SourceAccount: source,
			TrustAsset:    &AssetRef{Code: "USDC", Issuer: issuer},
		}
		compiled, err := compiler.Compile(context.Background(), intent)
		require.NoError(t, err)

		tx := decodeTx(t, compiled.Wire)
		op := tx.Operations()[0].(*txnbuild.ChangeTrust)
		assert.Equal(t, txnbuild.MaxTrustlineLimit, op.Limit)
	})

	t.Run("native trustline is unsupported", func(t *testing.T) {
		loader := &mockLoader{sequence: 1, baseFee: 100}
		compiler := newTestCompiler(loader, CompilerOptions{})

		intent := &TransactionIntent{
			Kind:          IntentChangeTrust,
			SourceAccount: source,
			TrustAsset:    &AssetRef{Code: "XLM"},
		}
		_, err := compiler.Compile(context.Background(), intent)
		require.Error(t, err)
		ce, _ := AsCompileError(err)
		assert.Equal(t, ErrUnsupportedAsset, ce.Kind)
	})
}

func TestCompile_CreateAccount_MinimumBalance(t *testing.T) {
	loader := &mockLoader{sequence: 1, baseFee: 100}
	compiler := newTestCompiler(loader, CompilerOptions{})

	intent := &TransactionIntent{
		Kind:               IntentCreateAccount,
		SourceAccount:      keypair.MustRandom().Address(),
		DestinationAccount: keypair.MustRandom().Address(),
		StartingBalance:    "0.5",
	}
	_, err := compiler.Compile(context.Background(), intent)
	require.Error(t, err)
	ce, _ := AsCompileError(err)
	assert.Equal(t, ErrInvalidAmount, ce.Kind)
	assert.Zero(t, loader.loadCalls)

	intent.StartingBalance = "1"
	_, err = compiler.Compile(context.Background(), intent)
	require.NoError(t, err)
}

func TestCompile_PathPayment(t *testing.T) {
	issuer := keypair.MustRandom().Address()
	loader := &mockLoader{sequence: 1, baseFee: 100}
	compiler := newTestCompiler(loader, CompilerOptions{})

	intent := &TransactionIntent{
		Kind:               IntentPathPayment,
		SourceAccount:      keypair.MustRandom().Address(),
		DestinationAccount: keypair.MustRandom().Address(),
		SendAsset:          &AssetRef{},
		SendMax:            "100",
		DestAsset:          &AssetRef{Code: "USDC", Issuer: issuer},
		DestAmount:         "25",
		Path:               []AssetRef{{Code: "EURT", Issuer: issuer}},
	}
	compiled, err := compiler.Compile(context.Background(), intent)
	require.NoError(t, err)

	tx := decodeTx(t, compiled.Wire)
	op := tx.Operations()[0].(*txnbuild.PathPaymentStrictReceive)
	assert.Equal(t, intent.DestinationAccount, op.Destination)
	require.Len(t, op.Path, 1)
	assert.Equal(t, txnbuild.CreditAsset{Code: "EURT", Issuer: issuer}, op.Path[0])
}

func TestCompile_Memos(t *testing.T) {
	source := keypair.MustRandom().Address()
	dest := keypair.MustRandom().Address()

	cases := []struct {
		name     string
		memo     string
		memoKind MemoKind
		wantErr  bool
	}{
		{"text within limit", "thanks for lunch", MemoKindText, false},
		{"text at limit", strings.Repeat("a", 28), MemoKindText, false},
		{"text over limit rejected", strings.Repeat("a", 29), MemoKindText, true},
		{"id numeric", "18446744073709551615", MemoKindID, false},
		{"id non-numeric rejected", "abc", MemoKindID, true},
		{"id negative rejected", "-1", MemoKindID, true},
		{"hash hex", strings.Repeat("ab", 32), MemoKindHash, false},
		{"hash base64", base64.StdEncoding.EncodeToString(make([]byte, 32)), MemoKindReturn, false},
		{"hash wrong width rejected", strings.Repeat("ab", 16), MemoKindHash, true},
		{"kind without value rejected", "", MemoKindText, true},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			loader := &mockLoader{sequence: 1, baseFee: 100}
			compiler := newTestCompiler(loader, CompilerOptions{})

			intent := paymentIntent(source, dest)
			intent.Memo = tt.memo
			intent.MemoKind = tt.memoKind
			_, err := compiler.Compile(context.Background(), intent)

			if tt.wantErr {
				require.Error(t, err)
				ce, ok := AsCompileError(err)
				require.True(t, ok)
				assert.Equal(t, ErrMemoEncoding, ce.Kind)
				assert.Zero(t, loader.loadCalls, "memo errors are local")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCompile_UnknownKind(t *testing.T) {
	loader := &mockLoader{sequence: 1, baseFee: 100}
	compiler := newTestCompiler(loader, CompilerOptions{})

	_, err := compiler.Compile(context.Background(), &TransactionIntent{Kind: "teleport"})
	require.Error(t, err)
	ce, ok := AsCompileError(err)
	require.True(t, ok)
	assert.Equal(t, ErrUnknownIntentKind, ce.Kind)
	assert.Zero(t, loader.loadCalls)
}

func TestCompile_SourceAccountLoadFailed_IsRetryable(t *testing.T) {
	loader := &mockLoader{err: errors.New("horizon: connection refused")}
	compiler := newTestCompiler(loader, CompilerOptions{})

	intent := paymentIntent(keypair.MustRandom().Address(), keypair.MustRandom().Address())
	_, err := compiler.Compile(context.Background(), intent)
	require.Error(t, err)

	ce, ok := AsCompileError(err)
	require.True(t, ok)
	assert.Equal(t, ErrSourceAccountLoad, ce.Kind)
	assert.True(t, ce.Retryable())
}

func TestCompile_SequenceReadFreshPerCompile(t *testing.T) {
	loader := &mockLoader{sequence: 10, baseFee: 100}
	compiler := newTestCompiler(loader, CompilerOptions{})
	intent := paymentIntent(keypair.MustRandom().Address(), keypair.MustRandom().Address())

	first, err := compiler.Compile(context.Background(), intent)
	require.NoError(t, err)

	loader.sequence = 11
	second, err := compiler.Compile(context.Background(), intent)
	require.NoError(t, err)

	assert.Equal(t, 2, loader.loadCalls, "no caching across compiles")
	assert.Equal(t, int64(11), decodeTx(t, first.Wire).SequenceNumber())
	assert.Equal(t, int64(12), decodeTx(t, second.Wire).SequenceNumber())
}

func TestCompile_RawWirePassthrough(t *testing.T) {
	compiler := newTestCompiler(&mockLoader{}, CompilerOptions{})

	wire := base64.StdEncoding.EncodeToString([]byte("envelope"))
	compiled, err := compiler.Compile(context.Background(), &TransactionIntent{Kind: IntentRawWire, Wire: wire})
	require.NoError(t, err)
	assert.Equal(t, wire, compiled.Wire)
	assert.Equal(t, IntentRawWire, compiled.Kind)

	_, err = compiler.Compile(context.Background(), &TransactionIntent{Kind: IntentRawWire, Wire: "%%%not-base64%%%"})
	require.Error(t, err)

	_, err = compiler.Compile(context.Background(), &TransactionIntent{Kind: IntentRawWire})
	require.Error(t, err)
	ce, _ := AsCompileError(err)
	assert.Equal(t, ErrMissingRequiredField, ce.Kind)
}
