package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/blue-carbon-registry/apiserver/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const receiptPollInterval = 2 * time.Second

// Client wraps an ethclient connection with the expected chain id, an
// optional transactor key, and bounded receipt waits. It is the only path
// through which the contracts are reached.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	txWait  time.Duration
	key     *ecdsa.PrivateKey
	from    common.Address
	log     *zap.SugaredLogger
}

// Dial connects to the RPC node and verifies it serves the configured
// chain before any contract call is trusted.
func Dial(ctx context.Context, cfg config.ChainConfig, log *zap.SugaredLogger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}

	c := &Client{
		eth:     eth,
		chainID: big.NewInt(cfg.ChainID),
		txWait:  cfg.TxWait,
		log:     log,
	}

	if strings.TrimSpace(cfg.AdminKey) != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.AdminKey, "0x"))
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("invalid admin key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	if err := c.VerifyNetwork(ctx); err != nil {
		eth.Close()
		return nil, err
	}
	return c, nil
}

// VerifyNetwork checks the node's chain id against the configured one.
func (c *Client) VerifyNetwork(ctx context.Context) error {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}
	if id.Cmp(c.chainID) != 0 {
		return fmt.Errorf("%w: node reports chain %s, expected %s", ErrWrongNetwork, id, c.chainID)
	}
	return nil
}

// TransactorAddress returns the address of the configured signing key.
func (c *Client) TransactorAddress() common.Address {
	return c.from
}

func (c *Client) Close() {
	c.eth.Close()
}

// call performs a read-only contract call. The chain id is re-verified on
// every call so a node that switched networks mid-session cannot satisfy a
// role check.
func (c *Client) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	if err := c.VerifyNetwork(ctx); err != nil {
		return nil, err
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	results, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return results, nil
}

// transact signs, submits, and awaits a state-changing call. The returned
// hash is valid even on error so callers can report a stuck or reverted
// transaction.
func (c *Client) transact(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, ErrNoTransactor
	}
	if err := c.VerifyNetwork(ctx); err != nil {
		return common.Hash{}, err
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas for %s: %w", method, err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit + gasLimit/5,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send %s: %w", method, err)
	}

	c.log.Debugw("transaction submitted", "method", method, "tx", signed.Hash().Hex())
	return c.waitMined(ctx, signed.Hash())
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (common.Hash, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.txWait)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(waitCtx, hash)
		if err == nil {
			if receipt.Status == ethtypes.ReceiptStatusSuccessful {
				return hash, nil
			}
			return hash, fmt.Errorf("%w: %s", ErrTxReverted, hash.Hex())
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.log.Debugw("receipt poll failed", "tx", hash.Hex(), "error", err)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				// Caller cancelled; report the cancellation, not a timeout.
				return hash, ctx.Err()
			}
			return hash, fmt.Errorf("%w after %s: %s", ErrTxTimeout, c.txWait, hash.Hex())
		case <-ticker.C:
		}
	}
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: invalid embedded ABI: " + err.Error())
	}
	return parsed
}
