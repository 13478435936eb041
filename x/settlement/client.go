// Package settlement submits proven blocks to the Piltover core contract on Starknet.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/crypto"
	"github.com/NethermindEth/juno/core/felt"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

var (
	// ErrDecode marks a proof or chain value that could not be decoded.
	ErrDecode = errors.New("decode error")
	// ErrChain marks a failed interaction with the settlement chain.
	ErrChain = errors.New("chain error")
)

const (
	entrypointGetState    = "get_state"
	entrypointUpdateState = "update_state"
)

// State is the settled state reported by the core contract.
type State struct {
	StateRoot   *felt.Felt
	BlockNumber uint64
	BlockHash   *felt.Felt
}

// UpdateResult describes a submitted update_state transaction.
type UpdateResult struct {
	TxHash         *felt.Felt
	Nonce          *felt.Felt
	SnosOutputHash *felt.Felt
	OutputHash     *felt.Felt
}

// Client reads and advances the Piltover contract state.
type Client struct {
	contract *felt.Felt
	account  Account
	parser   ProofParser
	log      zerolog.Logger
}

func NewClient(contract *felt.Felt, account Account, parser ProofParser, log zerolog.Logger) (*Client, error) {
	if contract == nil {
		return nil, errors.New("contract address is required")
	}
	if account == nil {
		return nil, errors.New("account is required")
	}
	if parser == nil {
		parser = NewStarkProofParser()
	}
	return &Client{
		contract: contract,
		account:  account,
		parser:   parser,
		log:      log.With().Str("component", "piltover").Str("contract", contract.String()).Logger(),
	}, nil
}

// GetState calls get_state at the latest block.
func (c *Client) GetState(ctx context.Context) (State, error) {
	res, err := c.account.Call(ctx, Call{
		To:       c.contract,
		Selector: Selector(entrypointGetState),
	})
	if err != nil {
		return State{}, err
	}
	if len(res) < 3 {
		return State{}, fmt.Errorf("%w: get_state returned %d values", ErrDecode, len(res))
	}
	block, err := feltToUint64(res[1])
	if err != nil {
		return State{}, fmt.Errorf("get_state block number: %w", err)
	}
	return State{StateRoot: res[0], BlockNumber: block, BlockHash: res[2]}, nil
}

// UpdateState parses both proofs and submits a single update_state invocation.
// Data availability fields are sent as zero.
func (c *Client) UpdateState(ctx context.Context, pieProof, bridgeProof string) (*UpdateResult, error) {
	snosOutput, err := c.parser.ParseOutput(pieProof)
	if err != nil {
		return nil, fmt.Errorf("pie proof: %w", err)
	}
	programOutput, err := c.parser.ParseOutput(bridgeProof)
	if err != nil {
		return nil, fmt.Errorf("bridge proof: %w", err)
	}

	snosHash := crypto.PoseidonArray(snosOutput...)
	outputHash := crypto.PoseidonArray(programOutput...)
	c.log.Info().
		Str("snos_output_hash", snosHash.String()).
		Str("output_hash", outputHash.String()).
		Int("snos_output_len", len(snosOutput)).
		Int("program_output_len", len(programOutput)).
		Msg("Prepared update_state")

	calldata := UpdateStateCalldata{
		ProgramSnosOutput: snosOutput,
		ProgramOutput:     programOutput,
		OnchainDataHash:   new(felt.Felt),
		OnchainDataSize:   new(uint256.Int),
	}

	nonce, err := c.account.Nonce(ctx)
	if err != nil {
		return nil, err
	}
	txHash, err := c.account.Execute(ctx, nonce, Call{
		To:       c.contract,
		Selector: Selector(entrypointUpdateState),
		Calldata: calldata.Felts(),
	})
	if err != nil {
		return nil, err
	}

	c.log.Info().Str("tx_hash", txHash.String()).Msg("update_state transaction sent")
	return &UpdateResult{
		TxHash:         txHash,
		Nonce:          nonce,
		SnosOutputHash: snosHash,
		OutputHash:     outputHash,
	}, nil
}

// ParseOutput exposes the client's proof parser for validation.
func (c *Client) ParseOutput(proof string) ([]*felt.Felt, error) {
	return c.parser.ParseOutput(proof)
}
