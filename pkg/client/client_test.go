package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/deploycheck/internal/chains/evm"
	"github.com/pendergraft/deploycheck/internal/sandbox"
	"github.com/pendergraft/deploycheck/internal/sandbox/sandboxtest"
)

var initCode = []byte{0x60, 0x80, 0x60, 0x40, 0x52}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestDial_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "localhost:8545", "http://"} {
		_, err := Dial(context.Background(), endpoint)
		assert.Error(t, err, endpoint)
	}
}

func TestClient_NodeInfo(t *testing.T) {
	node := sandboxtest.Start(t, sandbox.WithAccounts(3))
	c := dial(t, node.URL+"/")
	ctx := context.Background()

	assert.Equal(t, node.URL, c.Endpoint())
	require.NoError(t, c.Health(ctx))

	version, err := c.ClientVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, sandbox.ClientVersion, version)

	chainID, err := c.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(sandbox.DefaultChainID), chainID.Int64())

	accounts, err := c.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, node.Backend.Accounts(), accounts)
}

func TestClient_HealthUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := dial(t, url)
	assert.Error(t, c.Health(context.Background()))
}

func TestClient_TransactionStatus(t *testing.T) {
	node := sandboxtest.Start(t)
	c := dial(t, node.URL)
	ctx := context.Background()
	from := node.Backend.Accounts()[0]
	factory := node.Backend.Factory()

	var salt [32]byte
	salt[31] = 7
	data := evm.Create2Scheme{}.CallData(salt, initCode)

	hash, err := c.SendTransaction(ctx, TransactionArgs{From: from, To: &factory, Data: data})
	require.NoError(t, err)

	status, err := c.TransactionStatus(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, TxPending, status.State)
	assert.Nil(t, status.Receipt)

	_, err = c.TransactionReceipt(ctx, hash)
	assert.True(t, errors.Is(err, ethereum.NotFound))

	node.Mine()

	status, err = c.TransactionStatus(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, TxMined, status.State)
	assert.NotZero(t, status.BlockNumber)
	assert.NotZero(t, status.GasUsed)
	require.NotNil(t, status.Receipt)

	got, ok := evm.DeployedAddress(status.Receipt, factory)
	require.True(t, ok)
	assert.Equal(t, evm.Create2Scheme{}.Address(factory, from, salt, initCode), got)

	receipt, err := c.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
}

func TestClient_TransactionStatusFailed(t *testing.T) {
	node := sandboxtest.Start(t)
	c := dial(t, node.URL)
	ctx := context.Background()
	factory := node.Backend.Factory()

	var salt [32]byte
	data := evm.Create2Scheme{}.CallData(salt, []byte{0xfe, 0x00})

	hash, err := c.SendTransaction(ctx, TransactionArgs{From: node.Backend.Accounts()[0], To: &factory, Data: data})
	require.NoError(t, err)
	node.Mine()

	status, err := c.TransactionStatus(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, TxFailed, status.State)
	assert.Equal(t, sandbox.ReasonInvalidOpcode, status.Reason)
}

func TestReceiptWithReason_UnmarshalJSON(t *testing.T) {
	raw, err := json.Marshal(&types.Receipt{
		Status:      types.ReceiptStatusFailed,
		TxHash:      common.HexToHash("0x01"),
		BlockNumber: big.NewInt(3),
		GasUsed:     21000,
		Logs:        []*types.Log{},
	})
	require.NoError(t, err)

	var plain receiptWithReason
	require.NoError(t, json.Unmarshal(raw, &plain))
	assert.Equal(t, types.ReceiptStatusFailed, plain.Status)
	assert.EqualValues(t, 21000, plain.GasUsed)
	assert.Empty(t, plain.RevertReason)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	fields["revertReason"] = "out of gas"
	withReason, err := json.Marshal(fields)
	require.NoError(t, err)

	var rec receiptWithReason
	require.NoError(t, json.Unmarshal(withReason, &rec))
	assert.Equal(t, "out of gas", rec.RevertReason)
	assert.Equal(t, uint64(3), rec.BlockNumber.Uint64())

	assert.Error(t, json.Unmarshal([]byte(`{"status":"0x0"}`), &rec), "receipt fields are still required")
}

func TestClient_SendRawTransaction(t *testing.T) {
	node := sandboxtest.Start(t)
	c := dial(t, node.URL)
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	factory := node.Backend.Factory()
	data := evm.Create2Scheme{}.CallData([32]byte{1}, initCode)

	nonce, err := c.PendingNonceAt(ctx, from)
	require.NoError(t, err)
	gasPrice, err := c.SuggestGasPrice(ctx)
	require.NoError(t, err)
	gas, err := c.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &factory, Data: data})
	require.NoError(t, err)
	chainID, err := c.ChainID(ctx)
	require.NoError(t, err)

	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &factory,
		Gas:      gas,
		GasPrice: gasPrice,
		Value:    big.NewInt(0),
		Data:     data,
	}), types.LatestSignerForChainID(chainID), key)
	require.NoError(t, err)

	hash, err := c.SendRawTransaction(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), hash)

	_, err = c.SendRawTransaction(ctx, tx)
	assert.Error(t, err, "resubmission is rejected")
}

func TestRPCErrorCode(t *testing.T) {
	node := sandboxtest.Start(t)
	c := dial(t, node.URL)

	unknown := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	_, err := c.SendTransaction(context.Background(), TransactionArgs{From: unknown, Data: initCode})
	require.Error(t, err)

	code, ok := RPCErrorCode(err)
	assert.True(t, ok)
	assert.Equal(t, -32000, code)

	_, ok = RPCErrorCode(errors.New("plain"))
	assert.False(t, ok)
}

func TestClient_Deployments(t *testing.T) {
	node := sandboxtest.Start(t)
	c := dial(t, node.URL)
	ctx := context.Background()
	from := node.Backend.Accounts()[0]
	factory := node.Backend.Factory()

	for i := byte(0); i < 3; i++ {
		data := evm.Create2Scheme{}.CallData([32]byte{i}, initCode)
		_, err := c.SendTransaction(ctx, TransactionArgs{From: from, To: &factory, Data: data})
		require.NoError(t, err)
	}

	list, err := c.ListDeployments(ctx, 10, "")
	require.NoError(t, err)
	assert.Empty(t, list.Data, "pending deployments are not listed")

	node.Mine()

	list, err = c.ListDeployments(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, list.Data, 2)
	assert.True(t, list.Pagination.HasMore)

	rest, err := c.ListDeployments(ctx, 2, list.Pagination.NextCursor)
	require.NoError(t, err)
	assert.Len(t, rest.Data, 1)

	d, err := c.GetDeployment(ctx, list.Data[0].Address)
	require.NoError(t, err)
	assert.Equal(t, from.Hex(), d.Deployer)
	assert.Equal(t, factory.Hex(), d.Factory)
}

func TestClient_GetDeploymentNotFound(t *testing.T) {
	node := sandboxtest.Start(t)
	c := dial(t, node.URL)

	_, err := c.GetDeployment(context.Background(), "0x000000000000000000000000000000000000dEaD")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
}

func TestClient_ParseErrorFallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode("upstream down")
	}))
	defer ts.Close()

	c := dial(t, ts.URL)
	_, err := c.ListDeployments(context.Background(), 0, "")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "HTTP_502", apiErr.Code)
}
