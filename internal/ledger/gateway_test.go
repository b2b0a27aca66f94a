package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickthelegend/0rca-agent-template/internal/domain"
)

const (
	testSender   = "NICKXD44FJQJZ2O5QLHS4FQSRX6WHHTSZG6HBQK4TJIOMHNVUSML33XITQ"
	testReceiver = "WAKOSD5LW5FQ5LZZ5AXNWIKGS6QIDMJWCHAMSWV7YRLBD6NYZMLHVNVOOY"
	testAppID    = uint64(749378614)
)

type fakeNode struct {
	params types.SuggestedParams
	err    error
}

func (f *fakeNode) SuggestedParams(ctx context.Context) (types.SuggestedParams, error) {
	if f.err != nil {
		return types.SuggestedParams{}, f.err
	}
	return f.params, nil
}

type fakeIndexer struct {
	txns map[string]models.Transaction
	err  error
}

func (f *fakeIndexer) LookupTransaction(ctx context.Context, txnID string) (models.Transaction, error) {
	if f.err != nil {
		return models.Transaction{}, f.err
	}
	txn, ok := f.txns[txnID]
	if !ok {
		return models.Transaction{}, fmt.Errorf("HTTP 404: no transaction found for %s", txnID)
	}
	return txn, nil
}

func testnetParams(t *testing.T) types.SuggestedParams {
	t.Helper()

	genesisHash, err := base64.StdEncoding.DecodeString("SGO1GKSzyE7IEPItTxCByw9x8FmnrCDexi9/cOUJOiI=")
	require.NoError(t, err)

	return types.SuggestedParams{
		Fee:             0,
		GenesisID:       "testnet-v1.0",
		GenesisHash:     genesisHash,
		FirstRoundValid: 1000,
		LastRoundValid:  2000,
		MinFee:          1000,
	}
}

func testConfig() Config {
	return Config{
		AlgodURL:      "https://testnet-api.algonode.cloud",
		IndexerURL:    "https://testnet-idx.algonode.cloud",
		Receiver:      testReceiver,
		AppID:         testAppID,
		Method:        "pay(pay)void",
		PaymentAmount: 1_000_000,
		FlatFee:       2000,
	}
}

func newTestGateway(t *testing.T, node NodeAPI, idx IndexerAPI) *Gateway {
	t.Helper()

	g, err := NewWithClients(testConfig(), node, idx, slog.Default())
	require.NoError(t, err)
	return g
}

func TestNewWithClients(t *testing.T) {
	t.Run("rejects invalid receiver", func(t *testing.T) {
		cfg := testConfig()
		cfg.Receiver = "not-an-address"

		_, err := NewWithClients(cfg, &fakeNode{}, &fakeIndexer{}, slog.Default())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid receiver address")
	})

	t.Run("rejects invalid method signature", func(t *testing.T) {
		cfg := testConfig()
		cfg.Method = "pay(pay"

		_, err := NewWithClients(cfg, &fakeNode{}, &fakeIndexer{}, slog.Default())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid method signature")
	})

	t.Run("exposes a 4-byte method selector", func(t *testing.T) {
		g := newTestGateway(t, &fakeNode{}, &fakeIndexer{})
		assert.Len(t, g.MethodSelector(), 4)
		assert.Equal(t, uint64(1_000_000), g.PaymentAmount())
	})
}

func TestGateway_BuildPaymentGroup(t *testing.T) {
	t.Run("builds a two-transaction group", func(t *testing.T) {
		g := newTestGateway(t, &fakeNode{params: testnetParams(t)}, &fakeIndexer{})

		group, err := g.BuildPaymentGroup(context.Background(), testSender, "job-1")
		require.NoError(t, err)

		require.Len(t, group.UnsignedTxns, 2)
		require.Len(t, group.TxnIDs, 2)
		assert.NotEqual(t, group.TxnIDs[0], group.TxnIDs[1])

		var payTxn, appTxn types.Transaction
		require.NoError(t, msgpack.Decode(group.UnsignedTxns[0], &payTxn))
		require.NoError(t, msgpack.Decode(group.UnsignedTxns[1], &appTxn))

		// Payment leg: fixed amount to the fixed receiver, job ID in the note.
		assert.Equal(t, types.PaymentTx, payTxn.Type)
		assert.Equal(t, testSender, payTxn.Sender.String())
		assert.Equal(t, testReceiver, payTxn.Receiver.String())
		assert.Equal(t, types.MicroAlgos(1_000_000), payTxn.Amount)
		assert.Equal(t, []byte("job-1"), payTxn.Note)
		assert.Equal(t, types.MicroAlgos(2000), payTxn.Fee)

		// Application leg: configured app with the method selector.
		assert.Equal(t, types.ApplicationCallTx, appTxn.Type)
		assert.Equal(t, types.AppIndex(testAppID), appTxn.ApplicationID)
		require.Len(t, appTxn.ApplicationArgs, 1)
		assert.Equal(t, g.MethodSelector(), appTxn.ApplicationArgs[0])

		// Both members carry the same non-zero group ID.
		assert.NotEqual(t, types.Digest{}, payTxn.Group)
		assert.Equal(t, payTxn.Group, appTxn.Group)
	})

	t.Run("same inputs produce the same transaction ids", func(t *testing.T) {
		g := newTestGateway(t, &fakeNode{params: testnetParams(t)}, &fakeIndexer{})

		first, err := g.BuildPaymentGroup(context.Background(), testSender, "job-1")
		require.NoError(t, err)
		second, err := g.BuildPaymentGroup(context.Background(), testSender, "job-1")
		require.NoError(t, err)

		assert.Equal(t, first.TxnIDs, second.TxnIDs)
	})

	t.Run("rejects invalid sender address", func(t *testing.T) {
		g := newTestGateway(t, &fakeNode{params: testnetParams(t)}, &fakeIndexer{})

		_, err := g.BuildPaymentGroup(context.Background(), "bogus", "job-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidSenderAddress)
	})

	t.Run("reports node unavailability", func(t *testing.T) {
		g := newTestGateway(t, &fakeNode{err: errors.New("connection refused")}, &fakeIndexer{})

		_, err := g.BuildPaymentGroup(context.Background(), testSender, "job-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	})
}

func TestGateway_ConfirmTransaction(t *testing.T) {
	t.Run("reduces a payment transaction", func(t *testing.T) {
		idx := &fakeIndexer{txns: map[string]models.Transaction{
			"PAYTXN": {
				Sender: testSender,
				Type: "pay",
				PaymentTransaction: models.TransactionPayment{
					Receiver: testReceiver,
					Amount:   1_000_000,
				},
			},
		}}
		g := newTestGateway(t, &fakeNode{}, idx)

		rec, err := g.ConfirmTransaction(context.Background(), "PAYTXN")
		require.NoError(t, err)

		assert.Equal(t, "PAYTXN", rec.ID)
		assert.Equal(t, "pay", rec.RawType)
		assert.Equal(t, testSender, rec.Sender)
		assert.Equal(t, testReceiver, rec.Receiver)
		assert.Equal(t, uint64(1_000_000), rec.Amount)
	})

	t.Run("reduces an application call", func(t *testing.T) {
		g := newTestGateway(t, &fakeNode{}, &fakeIndexer{})
		selector := g.MethodSelector()

		idx := &fakeIndexer{txns: map[string]models.Transaction{
			"APPTXN": {
				Sender: testSender,
				Type: "appl",
				ApplicationTransaction: models.TransactionApplication{
					ApplicationId:   testAppID,
					ApplicationArgs: [][]byte{selector},
				},
			},
		}}
		g = newTestGateway(t, &fakeNode{}, idx)

		rec, err := g.ConfirmTransaction(context.Background(), "APPTXN")
		require.NoError(t, err)

		assert.Equal(t, "appl", rec.RawType)
		assert.Equal(t, testAppID, rec.ApplicationID)
		assert.Equal(t, selector, rec.MethodSelector)
	})

	t.Run("unknown transaction maps to not found", func(t *testing.T) {
		g := newTestGateway(t, &fakeNode{}, &fakeIndexer{txns: map[string]models.Transaction{}})

		_, err := g.ConfirmTransaction(context.Background(), "MISSING")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrTxnNotFound)
	})

	t.Run("transport failure maps to indexer unavailable", func(t *testing.T) {
		g := newTestGateway(t, &fakeNode{}, &fakeIndexer{err: errors.New("connection reset")})

		_, err := g.ConfirmTransaction(context.Background(), "PAYTXN")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrIndexerUnavailable)
	})
}
