package ledger

import (
	"context"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/indexer"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// algodConn adapts the SDK algod client to NodeAPI.
type algodConn struct {
	client *algod.Client
}

func newAlgodConn(url, token string) (*algodConn, error) {
	client, err := algod.MakeClient(url, token)
	if err != nil {
		return nil, err
	}
	return &algodConn{client: client}, nil
}

func (a *algodConn) SuggestedParams(ctx context.Context) (types.SuggestedParams, error) {
	return a.client.SuggestedParams().Do(ctx)
}

// indexerConn adapts the SDK indexer client to IndexerAPI.
type indexerConn struct {
	client *indexer.Client
}

func newIndexerConn(url, token string) (*indexerConn, error) {
	client, err := indexer.MakeClient(url, token)
	if err != nil {
		return nil, err
	}
	return &indexerConn{client: client}, nil
}

func (i *indexerConn) LookupTransaction(ctx context.Context, txnID string) (models.Transaction, error) {
	resp, err := i.client.LookupTransaction(txnID).Do(ctx)
	if err != nil {
		return models.Transaction{}, err
	}
	return resp.Transaction, nil
}

// isNotFound distinguishes "not indexed yet" from transport failure. The
// indexer answers 404 with "no transaction found" for unknown IDs.
func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "404") || strings.Contains(msg, "no transaction found")
}
