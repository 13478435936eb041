package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode answers Starknet JSON-RPC methods from a handler table.
type fakeNode struct {
	mu       sync.Mutex
	calls    map[string][]rpcRequest
	handlers map[string]func(params []json.RawMessage) any
}

func newFakeNode(t *testing.T, handlers map[string]func([]json.RawMessage) any) (*fakeNode, *rpc.Client) {
	t.Helper()
	node := &fakeNode{calls: make(map[string][]rpcRequest), handlers: handlers}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	client, err := rpc.DialContext(context.Background(), srv.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return node, client
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.calls[req.Method] = append(n.calls[req.Method], req)
	h, ok := n.handlers[req.Method]
	n.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if ok {
		resp["result"] = h(req.Params)
	} else {
		resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) requests(method string) []rpcRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]rpcRequest(nil), n.calls[method]...)
}

func TestRPCAccount_CallAndNonce(t *testing.T) {
	node, client := newFakeNode(t, map[string]func([]json.RawMessage) any{
		"starknet_call":     func([]json.RawMessage) any { return []string{"0xabc", "0x1f4", "0xdef"} },
		"starknet_getNonce": func([]json.RawMessage) any { return "0x7" },
	})
	account := newTestAccount(t, client, nil)

	res, err := account.Call(context.Background(), Call{To: mustFelt(t, "0x99"), Selector: Selector("get_state")})
	require.NoError(t, err)
	require.Equal(t, []string{"0xabc", "0x1f4", "0xdef"}, feltStrings(res))

	reqs := node.requests("starknet_call")
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Params, 2)
	var fc functionCall
	require.NoError(t, json.Unmarshal(reqs[0].Params[0], &fc))
	require.Equal(t, "0x99", fc.ContractAddress)
	require.Equal(t, Selector("get_state").String(), fc.EntryPointSelector)
	require.JSONEq(t, `"latest"`, string(reqs[0].Params[1]))

	nonce, err := account.Nonce(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0x7", nonce.String())
}

func TestRPCAccount_Execute(t *testing.T) {
	node, client := newFakeNode(t, map[string]func([]json.RawMessage) any{
		"starknet_chainId": func([]json.RawMessage) any { return "0x534e5f5345504f4c4941" },
		"starknet_addInvokeTransaction": func([]json.RawMessage) any {
			return map[string]string{"transaction_hash": "0x1234"}
		},
	})
	account := newTestAccount(t, client, nil)

	call := Call{To: mustFelt(t, "0x99"), Selector: Selector("update_state"), Calldata: []*felt.Felt{mustFelt(t, "0x5")}}
	hash, err := account.Execute(context.Background(), mustFelt(t, "0x3"), call)
	require.NoError(t, err)
	require.Equal(t, "0x1234", hash.String())

	// chain id is cached after the first lookup
	_, err = account.Execute(context.Background(), mustFelt(t, "0x4"), call)
	require.NoError(t, err)
	require.Len(t, node.requests("starknet_chainId"), 1)

	reqs := node.requests("starknet_addInvokeTransaction")
	require.Len(t, reqs, 2)
	var tx invokeTxV1
	require.NoError(t, json.Unmarshal(reqs[0].Params[0], &tx))
	require.Equal(t, "INVOKE", tx.Type)
	require.Equal(t, "0x1", tx.Version)
	require.Equal(t, "0x3", tx.Nonce)
	require.Equal(t, "0xabc", tx.SenderAddress)
	require.Len(t, tx.Signature, 2)
	require.Equal(t, feltStrings(executeCalldata([]Call{call})), tx.Calldata)
}

func TestRPCAccount_NodeErrorWrapsErrChain(t *testing.T) {
	_, client := newFakeNode(t, nil)
	account := newTestAccount(t, client, mustFelt(t, "0x1"))

	_, err := account.Nonce(context.Background())
	require.ErrorIs(t, err, ErrChain)
	_, err = account.Execute(context.Background(), mustFelt(t, "0x1"), Call{To: mustFelt(t, "0x1"), Selector: mustFelt(t, "0x2")})
	require.ErrorIs(t, err, ErrChain)
}

func TestInvokeV1HashDependsOnNonce(t *testing.T) {
	sender := mustFelt(t, "0xabc")
	calldata := []*felt.Felt{mustFelt(t, "0x1")}
	a := invokeV1Hash(sender, calldata, mustFelt(t, "0x10"), mustFelt(t, "0x1"), mustFelt(t, "0x1"))
	b := invokeV1Hash(sender, calldata, mustFelt(t, "0x10"), mustFelt(t, "0x1"), mustFelt(t, "0x2"))
	require.False(t, a.Equal(b))
}

func newTestAccount(t *testing.T, client *rpc.Client, chainID *felt.Felt) *RPCAccount {
	t.Helper()
	signer, err := NewStarkSigner("0x1")
	require.NoError(t, err)
	account, err := NewRPCAccount(client, mustFelt(t, "0xabc"), signer, mustFelt(t, "0x100"), chainID, zerolog.Nop())
	require.NoError(t, err)
	return account
}

func mustFelt(t *testing.T, s string) *felt.Felt {
	t.Helper()
	f, err := ParseFelt(s)
	require.NoError(t, err)
	return f
}
