package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/NethermindEth/juno/core/crypto"
	"github.com/NethermindEth/juno/core/felt"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

const blockTagLatest = "latest"

// Account is the chain account boundary used by the settlement client.
type Account interface {
	Address() *felt.Felt
	Nonce(ctx context.Context) (*felt.Felt, error)
	Call(ctx context.Context, call Call) ([]*felt.Felt, error)
	// Execute signs and submits one transaction carrying calls, returning its hash.
	Execute(ctx context.Context, nonce *felt.Felt, calls ...Call) (*felt.Felt, error)
}

// RPCAccount is an account driven over Starknet JSON-RPC. It submits INVOKE v1
// transactions with a fixed max fee.
type RPCAccount struct {
	client  *rpc.Client
	address *felt.Felt
	signer  Signer
	maxFee  *felt.Felt
	log     zerolog.Logger

	chainMu sync.Mutex
	chainID *felt.Felt
}

var _ Account = (*RPCAccount)(nil)

// NewRPCAccount wraps an RPC client. chainID may be nil, in which case it is
// fetched on first use.
func NewRPCAccount(client *rpc.Client, address *felt.Felt, signer Signer, maxFee, chainID *felt.Felt, log zerolog.Logger) (*RPCAccount, error) {
	if client == nil {
		return nil, errors.New("rpc client is required")
	}
	if address == nil || signer == nil {
		return nil, errors.New("account address and signer are required")
	}
	if maxFee == nil {
		maxFee = new(felt.Felt)
	}
	return &RPCAccount{
		client:  client,
		address: address,
		signer:  signer,
		maxFee:  maxFee,
		chainID: chainID,
		log:     log.With().Str("component", "starknet-account").Str("address", address.String()).Logger(),
	}, nil
}

func (a *RPCAccount) Address() *felt.Felt { return a.address }

func (a *RPCAccount) Nonce(ctx context.Context) (*felt.Felt, error) {
	var res string
	if err := a.client.CallContext(ctx, &res, "starknet_getNonce", blockTagLatest, a.address.String()); err != nil {
		return nil, fmt.Errorf("%w: get nonce: %v", ErrChain, err)
	}
	return ParseFelt(res)
}

func (a *RPCAccount) Call(ctx context.Context, call Call) ([]*felt.Felt, error) {
	req := functionCall{
		ContractAddress:    call.To.String(),
		EntryPointSelector: call.Selector.String(),
		Calldata:           feltStrings(call.Calldata),
	}
	var res []string
	if err := a.client.CallContext(ctx, &res, "starknet_call", req, blockTagLatest); err != nil {
		return nil, fmt.Errorf("%w: call %s: %v", ErrChain, call.Selector.String(), err)
	}
	return parseFelts(res)
}

func (a *RPCAccount) Execute(ctx context.Context, nonce *felt.Felt, calls ...Call) (*felt.Felt, error) {
	if len(calls) == 0 {
		return nil, errors.New("no calls to execute")
	}
	chainID, err := a.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	calldata := executeCalldata(calls)
	hash := invokeV1Hash(a.address, calldata, a.maxFee, chainID, nonce)
	sig, err := a.signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("sign invoke: %w", err)
	}

	tx := invokeTxV1{
		Type:          "INVOKE",
		SenderAddress: a.address.String(),
		Calldata:      feltStrings(calldata),
		MaxFee:        a.maxFee.String(),
		Version:       hexutil.EncodeUint64(1),
		Signature:     feltStrings(sig),
		Nonce:         nonce.String(),
	}

	var res invokeResult
	if err := a.client.CallContext(ctx, &res, "starknet_addInvokeTransaction", tx); err != nil {
		return nil, fmt.Errorf("%w: add invoke transaction: %v", ErrChain, err)
	}
	txHash, err := ParseFelt(res.TransactionHash)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction hash: %v", ErrChain, err)
	}
	if !txHash.Equal(hash) {
		a.log.Warn().
			Str("local_hash", hash.String()).
			Str("node_hash", txHash.String()).
			Msg("Node reported a different transaction hash")
	}

	a.log.Info().
		Str("tx_hash", txHash.String()).
		Str("nonce", nonce.String()).
		Int("calls", len(calls)).
		Msg("Invoke transaction submitted")
	return txHash, nil
}

// ChainID returns the configured chain id or fetches and caches it.
func (a *RPCAccount) ChainID(ctx context.Context) (*felt.Felt, error) {
	a.chainMu.Lock()
	defer a.chainMu.Unlock()
	if a.chainID != nil {
		return a.chainID, nil
	}
	var res string
	if err := a.client.CallContext(ctx, &res, "starknet_chainId"); err != nil {
		return nil, fmt.Errorf("%w: chain id: %v", ErrChain, err)
	}
	id, err := ParseFelt(res)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %v", ErrChain, err)
	}
	a.chainID = id
	return id, nil
}

// invokeV1Hash computes the INVOKE v1 transaction hash:
// h("invoke", 1, sender, 0, h(calldata), max_fee, chain_id, nonce) with h = Pedersen array hash.
func invokeV1Hash(sender *felt.Felt, calldata []*felt.Felt, maxFee, chainID, nonce *felt.Felt) *felt.Felt {
	return crypto.PedersenArray(
		feltFromShortString("invoke"),
		feltFromUint64(1),
		sender,
		new(felt.Felt),
		crypto.PedersenArray(calldata...),
		maxFee,
		chainID,
		nonce,
	)
}

type functionCall struct {
	ContractAddress    string   `json:"contract_address"`
	EntryPointSelector string   `json:"entry_point_selector"`
	Calldata           []string `json:"calldata"`
}

type invokeTxV1 struct {
	Type          string   `json:"type"`
	SenderAddress string   `json:"sender_address"`
	Calldata      []string `json:"calldata"`
	MaxFee        string   `json:"max_fee"`
	Version       string   `json:"version"`
	Signature     []string `json:"signature"`
	Nonce         string   `json:"nonce"`
}

type invokeResult struct {
	TransactionHash string `json:"transaction_hash"`
}
