// Package clients builds the exchange SDK clients used as price sources.
// Read-only market data endpoints work without API keys on every supported
// venue, so credentials are optional everywhere except Hyperliquid, whose
// SDK needs a signing key to construct the exchange handle.
package clients

import (
	"context"
	"crypto/ecdsa"

	"github.com/adshao/go-binance/v2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}

func NewBybitClient(apiKey, apiSecret string) *bybit.Client {
	if apiKey == "" && apiSecret == "" {
		return bybit.NewClient()
	}
	return bybit.NewClient().WithAuth(apiKey, apiSecret)
}

// HyperliquidClient wraps the exchange handle together with the account
// address derived from the signing key.
type HyperliquidClient struct {
	exchange    *hyperliquid.Exchange
	accountAddr string
}

func NewHyperliquidClient(privateKeyHex, baseURL string) (*HyperliquidClient, error) {
	key := privateKeyHex
	if len(key) >= 2 && (key[:2] == "0x" || key[:2] == "0X") {
		key = key[2:]
	}

	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, errors.Wrap(err, "parse hyperliquid private key")
	}

	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("error casting public key to ECDSA")
	}
	accountAddr := crypto.PubkeyToAddress(*pub).Hex()

	ex := hyperliquid.NewExchange(
		context.Background(),
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return &HyperliquidClient{exchange: ex, accountAddr: accountAddr}, nil
}

// Info returns the market data handle used by the price source.
func (c *HyperliquidClient) Info() *hyperliquid.Info { return c.exchange.Info() }

func (c *HyperliquidClient) AccountAddress() string { return c.accountAddr }
