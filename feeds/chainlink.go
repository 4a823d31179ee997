package feeds

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CHAINLINK - On-chain aggregator used as secondary reference price
// ═══════════════════════════════════════════════════════════════════════════════
//
// Reads the same BTC/USD feed the market resolves against. Used to pin the
// round-open price when the venue klines endpoint is unavailable.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	// ABI function selectors
	latestRoundDataSelector = "feaf968c" // latestRoundData()
	getRoundDataSelector    = "9a6fc8f5" // getRoundData(uint80)

	chainlinkDecimals   = 8
	roundSearchMaxDepth = 100
	chainlinkTimeout    = 8 * time.Second
)

// ChainlinkClient reads aggregator rounds over JSON-RPC
type ChainlinkClient struct {
	client *ethclient.Client
	feed   common.Address
	scale  *big.Float
}

// NewChainlinkClient dials the RPC endpoint. A dial failure is returned to
// the caller; the engine treats the secondary provider as optional.
func NewChainlinkClient(rpcURL, feedAddress string) (*ChainlinkClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chainlink dial: %w", err)
	}
	return &ChainlinkClient{
		client: client,
		feed:   common.HexToAddress(feedAddress),
		scale:  big.NewFloat(1e8),
	}, nil
}

// Close releases the underlying RPC connection
func (c *ChainlinkClient) Close() {
	c.client.Close()
}

// LatestPrice returns the aggregator's current answer
func (c *ChainlinkClient) LatestPrice(ctx context.Context) (*float64, error) {
	data, err := c.call(ctx, latestRoundDataSelector)
	if err != nil {
		return nil, err
	}
	round, err := parseRoundData(data)
	if err != nil {
		return nil, err
	}
	price := c.toPrice(round.answer)
	return &price, nil
}

// PriceAtTime walks aggregator rounds backwards to the answer in effect at
// targetTs. Returns nil when no round at or before the target is found
// within the search depth.
func (c *ChainlinkClient) PriceAtTime(ctx context.Context, targetTs float64) *float64 {
	ctx, cancel := context.WithTimeout(ctx, chainlinkTimeout)
	defer cancel()

	data, err := c.call(ctx, latestRoundDataSelector)
	if err != nil {
		log.Debug().Err(err).Msg("Chainlink latestRoundData failed")
		return nil
	}
	latest, err := parseRoundData(data)
	if err != nil {
		return nil
	}

	target := int64(targetTs)
	for offset := int64(0); offset < roundSearchMaxDepth; offset++ {
		roundID := new(big.Int).Sub(latest.roundID, big.NewInt(offset))
		if roundID.Sign() <= 0 {
			break
		}

		payload := getRoundDataSelector + fmt.Sprintf("%064x", roundID)
		roundBytes, err := c.call(ctx, payload)
		if err != nil {
			continue
		}
		round, err := parseRoundData(roundBytes)
		if err != nil {
			continue
		}

		if round.updatedAt <= target {
			price := c.toPrice(round.answer)
			log.Debug().
				Float64("price", price).
				Int64("round_ts", round.updatedAt).
				Int64("target_ts", target).
				Msg("⛓️ Found historical Chainlink price")
			return &price
		}
	}
	return nil
}

type aggregatorRound struct {
	roundID   *big.Int
	answer    *big.Int
	updatedAt int64
}

// parseRoundData decodes the 5-word
// (roundId, answer, startedAt, updatedAt, answeredInRound) tuple
func parseRoundData(data []byte) (*aggregatorRound, error) {
	if len(data) < 160 {
		return nil, fmt.Errorf("short round data: %d bytes", len(data))
	}
	return &aggregatorRound{
		roundID:   new(big.Int).SetBytes(data[0:32]),
		answer:    new(big.Int).SetBytes(data[32:64]),
		updatedAt: new(big.Int).SetBytes(data[96:128]).Int64(),
	}, nil
}

func (c *ChainlinkClient) call(ctx context.Context, selectorHex string) ([]byte, error) {
	data, err := hex.DecodeString(selectorHex)
	if err != nil {
		return nil, err
	}
	msg := ethereum.CallMsg{To: &c.feed, Data: data}
	return c.client.CallContract(ctx, msg, nil)
}

func (c *ChainlinkClient) toPrice(answer *big.Int) float64 {
	value := new(big.Float).SetInt(answer)
	value.Quo(value, c.scale)
	price, _ := value.Float64()
	return price
}
