package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"onchain-intel/internal/domain"
)

const erc20MetadataABIJSON = `[
{"inputs":[],"name":"symbol","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"name","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20MetadataABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 metadata ABI: " + err.Error())
	}
	erc20ABI = parsed
}

// ERC20Options parameterise the on-chain metadata source.
type ERC20Options struct {
	RPCURL  string
	Chain   string
	Timeout time.Duration
}

// ERC20 reads symbol, name and decimals from token contracts over JSON-RPC.
type ERC20 struct {
	opts      ERC20Options
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewERC20 builds an on-chain metadata source.
func NewERC20(opts ERC20Options, logger zerolog.Logger) *ERC20 {
	if opts.Chain == "" {
		opts.Chain = DefaultChain
	}
	return &ERC20{opts: opts, logger: logger.With().Str("component", "erc20_source").Logger()}
}

var _ MetadataSource = (*ERC20)(nil)

// Lookup calls the ERC-20 metadata getters of address.
func (e *ERC20) Lookup(ctx context.Context, address, chain string) (domain.TokenInfo, error) {
	if e.opts.RPCURL == "" {
		return domain.TokenInfo{}, fmt.Errorf("%w: ethereum rpc url not configured", ErrUnresolvable)
	}
	if !strings.EqualFold(chain, e.opts.Chain) {
		return domain.TokenInfo{}, fmt.Errorf("%w: chain %s not served by rpc for %s", ErrUnresolvable, chain, e.opts.Chain)
	}
	if !common.IsHexAddress(address) {
		return domain.TokenInfo{}, fmt.Errorf("%w: invalid contract address %q", ErrUnresolvable, address)
	}

	timeout := e.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := e.getClient(ctx)
	if err != nil {
		return domain.TokenInfo{}, err
	}

	contract := common.HexToAddress(address)
	symbol, err := callString(ctx, client, contract, "symbol")
	if err != nil {
		return domain.TokenInfo{}, err
	}
	name, err := callString(ctx, client, contract, "name")
	if err != nil {
		name = symbol
	}

	out, err := call(ctx, client, contract, "decimals")
	if err != nil {
		return domain.TokenInfo{}, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return domain.TokenInfo{}, errors.New("failed to decode decimals output")
	}

	return domain.TokenInfo{
		Address:  strings.ToLower(contract.Hex()),
		Chain:    strings.ToLower(chain),
		Symbol:   symbol,
		Name:     name,
		Decimals: int(decimals),
	}, nil
}

func callString(ctx context.Context, client *ethclient.Client, contract common.Address, method string) (string, error) {
	out, err := call(ctx, client, contract, method)
	if err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("failed to decode %s output", method)
	}
	return s, nil
}

func call(ctx context.Context, client *ethclient.Client, contract common.Address, method string) ([]interface{}, error) {
	payload, err := erc20ABI.Pack(method)
	if err != nil {
		return nil, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := erc20ABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected %s response", method)
	}
	return out, nil
}

func (e *ERC20) getClient(ctx context.Context) (*ethclient.Client, error) {
	e.clientMux.Lock()
	defer e.clientMux.Unlock()

	if e.client != nil {
		return e.client, nil
	}

	client, err := ethclient.DialContext(ctx, e.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	e.client = client
	return client, nil
}

// Close releases the RPC connection.
func (e *ERC20) Close() {
	e.clientMux.Lock()
	defer e.clientMux.Unlock()
	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
}
