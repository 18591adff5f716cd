package token

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"github.com/yishin/mimbonode/utils"
)

// Client moves reward tokens on-chain. It satisfies the engine's Transferer
// interface; the engine never touches chain primitives directly.
type Client struct {
	pool   *liteclient.ConnectionPool
	api    *ton.APIClient
	logger *utils.Logger
}

func NewClient(ctx context.Context, configURL string, logger *utils.Logger) (*Client, error) {
	pool := liteclient.NewConnectionPool()

	if err := pool.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
		return nil, fmt.Errorf("failed to connect to network: %w", err)
	}

	logger.Info("✅ Token network client ready")
	return &Client{
		pool:   pool,
		api:    ton.NewAPIClient(pool),
		logger: logger,
	}, nil
}

// Send transfers amount from the seed-derived wallet to toAddress and
// returns the transaction hash. The wallet's sequence number is fetched by
// the library immediately before signing; callers chaining sends from one
// wallet must still space them out.
func (c *Client) Send(ctx context.Context, fromSeed, toAddress string, amount float64) (string, error) {
	sendCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	to, err := address.ParseAddr(toAddress)
	if err != nil {
		return "", fmt.Errorf("invalid recipient address: %w", err)
	}

	coins, err := tlb.FromTON(formatAmount(amount))
	if err != nil {
		return "", fmt.Errorf("invalid amount %f: %w", amount, err)
	}

	w, err := wallet.FromSeed(c.api, strings.Split(fromSeed, " "), wallet.V3R2)
	if err != nil {
		return "", fmt.Errorf("failed to open wallet from seed: %w", err)
	}

	balance, err := c.Balance(sendCtx, w.Address().String())
	if err != nil {
		return "", fmt.Errorf("failed to check source balance: %w", err)
	}
	if balance < amount {
		return "", fmt.Errorf("insufficient balance: have %f, need %f", balance, amount)
	}

	tx, _, err := w.SendWaitTransaction(sendCtx, &wallet.Message{
		Mode: 1, // pay fees separately
		InternalMessage: &tlb.InternalMessage{
			Bounce:  true,
			DstAddr: to,
			Amount:  coins,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	txHash := hex.EncodeToString(tx.Hash)
	c.logger.Infof("sent %f to %s (tx %s)", amount, toAddress, txHash)
	return txHash, nil
}

// Balance reads the confirmed on-chain balance for an address, retrying
// transient failures with backoff.
func (c *Client) Balance(ctx context.Context, addressStr string) (float64, error) {
	addr, err := address.ParseAddr(addressStr)
	if err != nil {
		return 0, fmt.Errorf("invalid address: %w", err)
	}

	var balance float64
	err = retry.Do(
		func() error {
			block, err := c.api.CurrentMasterchainInfo(ctx)
			if err != nil {
				return fmt.Errorf("failed to get current block: %w", err)
			}

			account, err := c.api.GetAccount(ctx, block, addr)
			if err != nil {
				return fmt.Errorf("failed to get account: %w", err)
			}

			if !account.IsActive {
				balance = 0
				return nil
			}

			balance, err = strconv.ParseFloat(account.State.Balance.String(), 64)
			if err != nil {
				return fmt.Errorf("unparseable balance: %w", err)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(1*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warnf("balance read retry %d for %s: %v", n, addressStr, err)
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance after retries: %w", err)
	}

	return balance, nil
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(utils.RoundTo(amount, 6), 'f', -1, 64)
}
