package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/algorand/go-algorand-sdk/v2/abi"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/nickthelegend/0rca-agent-template/internal/domain"
)

// Config holds the two service endpoints and the fixed payment parameters.
// Construction talks to the node; confirmation talks to the indexer. Keeping
// them separate means verification never trusts anything the client asserts
// about its own payment beyond the transaction ID string.
type Config struct {
	AlgodURL      string
	AlgodToken    string
	IndexerURL    string
	IndexerToken  string
	Receiver      string
	AppID         uint64
	Method        string
	PaymentAmount uint64
	FlatFee       uint64
}

// NodeAPI is the slice of the algod client the gateway needs.
type NodeAPI interface {
	SuggestedParams(ctx context.Context) (types.SuggestedParams, error)
}

// IndexerAPI is the slice of the indexer client the gateway needs.
type IndexerAPI interface {
	LookupTransaction(ctx context.Context, txnID string) (models.Transaction, error)
}

// PaymentGroup is an unsigned atomic transaction group together with the
// broker-computed transaction IDs. The broker never signs; each member is
// returned msgpack-encoded for the client to sign and submit.
type PaymentGroup struct {
	UnsignedTxns [][]byte
	TxnIDs       []string
}

// TransactionRecord is a confirmed transaction as reported by the indexer,
// reduced to the fields the payment verifier compares.
type TransactionRecord struct {
	ID             string
	Sender         string
	Receiver       string
	Amount         uint64
	ApplicationID  uint64
	MethodSelector []byte
	RawType        string
}

// Gateway builds unsigned payment groups against the ledger node and
// re-derives confirmed transactions from the independent indexer.
type Gateway struct {
	cfg     Config
	node    NodeAPI
	indexer IndexerAPI
	method  abi.Method
	logger  *slog.Logger
}

// New creates a Gateway connected to the configured algod node and indexer.
func New(cfg Config, logger *slog.Logger) (*Gateway, error) {
	node, err := newAlgodConn(cfg.AlgodURL, cfg.AlgodToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create algod client: %w", err)
	}

	idx, err := newIndexerConn(cfg.IndexerURL, cfg.IndexerToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer client: %w", err)
	}

	return NewWithClients(cfg, node, idx, logger)
}

// NewWithClients creates a Gateway with explicit node/indexer clients.
func NewWithClients(cfg Config, node NodeAPI, idx IndexerAPI, logger *slog.Logger) (*Gateway, error) {
	if _, err := types.DecodeAddress(cfg.Receiver); err != nil {
		return nil, fmt.Errorf("invalid receiver address: %w", err)
	}

	method, err := abi.MethodFromSignature(cfg.Method)
	if err != nil {
		return nil, fmt.Errorf("invalid method signature %q: %w", cfg.Method, err)
	}

	return &Gateway{
		cfg:     cfg,
		node:    node,
		indexer: idx,
		method:  method,
		logger:  logger,
	}, nil
}

// MethodSelector returns the 4-byte ABI selector of the configured method.
func (g *Gateway) MethodSelector() []byte {
	return g.method.GetSelector()
}

// PaymentAmount returns the fixed price in microAlgos.
func (g *Gateway) PaymentAmount() uint64 {
	return g.cfg.PaymentAmount
}

// BuildPaymentGroup constructs the unsigned two-transaction group a client
// must sign to pay for a job: a payment of the fixed amount to the fixed
// receiver, wrapped by an application call carrying the method selector.
// The payment note carries the job ID for on-chain auditability.
func (g *Gateway) BuildPaymentGroup(ctx context.Context, senderAddress, jobID string) (*PaymentGroup, error) {
	sender, err := types.DecodeAddress(senderAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSenderAddress, err)
	}

	sp, err := g.node.SuggestedParams(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	// Flat, non-negotiable fee; no fee bidding.
	sp.FlatFee = true
	sp.Fee = types.MicroAlgos(g.cfg.FlatFee)

	payTxn, err := transaction.MakePaymentTxn(
		senderAddress,
		g.cfg.Receiver,
		g.cfg.PaymentAmount,
		[]byte(jobID),
		"",
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: payment txn: %v", domain.ErrTxnConstruction, err)
	}

	appTxn, err := transaction.MakeApplicationNoOpTx(
		g.cfg.AppID,
		[][]byte{g.method.GetSelector()},
		nil,
		nil,
		nil,
		sp,
		sender,
		nil,
		types.Digest{},
		[32]byte{},
		types.ZeroAddress,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: application call txn: %v", domain.ErrTxnConstruction, err)
	}

	// Transaction arguments precede the method call in the group.
	grouped, err := transaction.AssignGroupID([]types.Transaction{payTxn, appTxn}, "")
	if err != nil {
		return nil, fmt.Errorf("%w: group assignment: %v", domain.ErrTxnConstruction, err)
	}

	group := &PaymentGroup{
		UnsignedTxns: make([][]byte, 0, len(grouped)),
		TxnIDs:       make([]string, 0, len(grouped)),
	}

	for i := range grouped {
		group.TxnIDs = append(group.TxnIDs, crypto.GetTxID(grouped[i]))
		group.UnsignedTxns = append(group.UnsignedTxns, msgpack.Encode(&grouped[i]))
	}

	g.logger.Info("Payment group built",
		slog.String("job_id", jobID),
		slog.String("sender", senderAddress),
		slog.Int("txn_count", len(group.TxnIDs)),
		slog.Uint64("amount", g.cfg.PaymentAmount),
	)

	return group, nil
}

// ConfirmTransaction looks up a transaction on the indexer and reduces it to
// the fields used for the accept/reject decision. Returns ErrTxnNotFound
// when the transaction is not (yet) indexed and ErrIndexerUnavailable on
// transport failure.
func (g *Gateway) ConfirmTransaction(ctx context.Context, txnID string) (*TransactionRecord, error) {
	txn, err := g.indexer.LookupTransaction(ctx, txnID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTxnNotFound, txnID)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexerUnavailable, err)
	}

	rec := &TransactionRecord{
		ID:      txnID,
		Sender:  txn.Sender,
		RawType: txn.Type,
	}

	switch txn.Type {
	case "pay":
		rec.Receiver = txn.PaymentTransaction.Receiver
		rec.Amount = txn.PaymentTransaction.Amount
	case "appl":
		rec.ApplicationID = txn.ApplicationTransaction.ApplicationId
		if len(txn.ApplicationTransaction.ApplicationArgs) > 0 {
			rec.MethodSelector = txn.ApplicationTransaction.ApplicationArgs[0]
		}
	}

	return rec, nil
}
