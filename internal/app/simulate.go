package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/ranking"
)

// simulatedToken is the JSON shape accepted by SimulateRanking.
type simulatedToken struct {
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name"`
	ContractAddress string  `json:"contractAddress"`
	ChainID         int64   `json:"chainId"`
	MarketCap       float64 `json:"marketCap"`
	Volume24h       float64 `json:"volume24h"`
	PriceUSD        float64 `json:"priceUsd"`
	PriceChange24h  float64 `json:"priceChange24h"`
}

// SimulateRanking ranks a JSON token list with the configured weights without
// touching any store. path "-" reads stdin.
func (a *App) SimulateRanking(path string, asJSON bool) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	tokens, err := decodeTokens(r)
	if err != nil {
		return err
	}

	result := ranking.Compute(tokens, a.Config.Ranking, time.Now().UTC())
	if asJSON {
		return writeJSON(os.Stdout, result.Records)
	}

	fmt.Fprintln(os.Stdout, result.String())
	if len(result.Records) > 0 {
		fmt.Fprintln(os.Stdout)
		printRankings(os.Stdout, result.Records)
	}
	return nil
}

func decodeTokens(r io.Reader) ([]domain.Token, error) {
	var in []simulatedToken
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode tokens: %w", err)
	}
	if len(in) == 0 {
		return nil, errors.New("token list is empty")
	}

	out := make([]domain.Token, 0, len(in))
	for i, t := range in {
		if t.Symbol == "" {
			return nil, fmt.Errorf("token %d: symbol is required", i)
		}
		chain := t.ChainID
		if chain == 0 {
			chain = domain.ChainIDEthereum
		}
		out = append(out, domain.Token{
			Symbol:          t.Symbol,
			Name:            t.Name,
			ContractAddress: t.ContractAddress,
			ChainID:         chain,
			MarketCap:       t.MarketCap,
			Volume24h:       t.Volume24h,
			PriceUSD:        t.PriceUSD,
			PriceChange24h:  t.PriceChange24h,
			Active:          true,
		})
	}
	return out, nil
}
