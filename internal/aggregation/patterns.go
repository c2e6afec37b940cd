package aggregation

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/resolver"
)

// Address behavior patterns.
const (
	PatternAccumulator   = "concentrated_accumulator"
	PatternDistributor   = "concentrated_distributor"
	PatternHighFrequency = "high_frequency"
	PatternDiversified   = "diversified"
	PatternLowActivity   = "low_activity"
)

const (
	concentrationShare = 0.7
	highFrequencyTx    = 5.0
	diversifiedTokens  = 5
	dominantTokenCount = 3
)

var patternDescriptions = map[string]string{
	PatternAccumulator:   "Mostly one token, net receiving",
	PatternDistributor:   "Mostly one token, net sending",
	PatternHighFrequency: "Many transfers per active day",
	PatternDiversified:   "Moves a broad set of tokens",
	PatternLowActivity:   "Few transfers, no dominant behavior",
}

type tokenActivity struct {
	symbol  string
	txCount int
	net     decimal.Decimal
}

// addressStats summarises one address's transfer history.
type addressStats struct {
	address    string
	role       domain.AddressRole
	txCount    int
	sumUSD     decimal.Decimal
	priced     int
	tokens     map[tokenKey]*tokenActivity
	activeDays map[time.Time]struct{}
	lastActive time.Time
}

func (s *addressStats) record(t domain.Transfer, symbol string) {
	s.txCount++
	if t.AmountUSD.Valid {
		s.sumUSD = s.sumUSD.Add(t.AmountUSD.Decimal.Abs())
		s.priced++
	}

	k := keyOf(t)
	act, ok := s.tokens[k]
	if !ok {
		act = &tokenActivity{symbol: symbol}
		s.tokens[k] = act
	}
	act.txCount++
	if strings.EqualFold(t.To, s.address) {
		act.net = act.net.Add(t.Amount)
	}
	if strings.EqualFold(t.From, s.address) {
		act.net = act.net.Sub(t.Amount)
	}

	s.activeDays[t.Timestamp.UTC().Truncate(day)] = struct{}{}
	if t.Timestamp.After(s.lastActive) {
		s.lastActive = t.Timestamp
	}
}

// ranked returns token activity by tx count, ties broken by symbol.
func (s *addressStats) ranked() []*tokenActivity {
	out := make([]*tokenActivity, 0, len(s.tokens))
	for _, a := range s.tokens {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].txCount != out[j].txCount {
			return out[i].txCount > out[j].txCount
		}
		return out[i].symbol < out[j].symbol
	})
	return out
}

// classify assigns a pattern and a 0-100 score to the address.
func (s *addressStats) classify() (string, float64) {
	if s.txCount == 0 {
		return PatternLowActivity, 0
	}

	ranked := s.ranked()
	top := ranked[0]
	share := float64(top.txCount) / float64(s.txCount)
	txPerDay := float64(s.txCount) / float64(len(s.activeDays))

	switch {
	case share >= concentrationShare && top.net.Sign() > 0:
		return PatternAccumulator, share * 100
	case share >= concentrationShare && top.net.Sign() < 0:
		return PatternDistributor, share * 100
	case txPerDay >= highFrequencyTx:
		return PatternHighFrequency, math.Min(100, txPerDay/highFrequencyTx*50)
	case len(s.tokens) >= diversifiedTokens:
		return PatternDiversified, math.Min(100, float64(len(s.tokens))/diversifiedTokens*50)
	default:
		return PatternLowActivity, math.Min(100, float64(s.txCount)*10)
	}
}

func (s *addressStats) pattern() domain.AddressPattern {
	p := domain.AddressPattern{
		Address:        s.address,
		Short:          resolver.ShortAddress(s.address),
		Role:           s.role,
		TxCount:        s.txCount,
		AvgValueUSD:    decimal.Zero,
		DominantTokens: []string{},
	}
	if s.priced > 0 {
		p.AvgValueUSD = s.sumUSD.Div(decimal.NewFromInt(int64(s.priced))).Round(2)
	}
	for i, a := range s.ranked() {
		if i == dominantTokenCount {
			break
		}
		p.DominantTokens = append(p.DominantTokens, a.symbol)
	}
	if !s.lastActive.IsZero() {
		last := s.lastActive.UTC()
		p.LastActive = &last
	}
	return p
}

// PatternBridge groups the entity's addresses by observed transfer behavior.
func (e *Engine) PatternBridge(ctx context.Context, slug string) domain.PatternResult {
	started := time.Now()
	slug = normalizeSlug(slug)

	var result domain.PatternResult
	if e.cached(ctx, OpPatterns, slug, 0, &result) {
		return result
	}

	result = e.patternBridge(ctx, slug)
	e.store(ctx, OpPatterns, slug, 0, result.Source, result)
	e.observe(OpPatterns, started, result.Source)
	return result
}

func (e *Engine) patternBridge(ctx context.Context, slug string) domain.PatternResult {
	result := domain.PatternResult{Entity: slug, Patterns: []domain.PatternGroup{}}

	sc, err := e.loadScope(ctx, slug)
	if err != nil {
		result.Source, result.Error = e.classify(OpPatterns, slug, err)
		return result
	}
	result.TotalAddresses = len(sc.addresses)

	transfers, err := e.ledger.FindTransfers(ctx, domain.TransferFilter{Addresses: sc.addresses})
	if err != nil {
		result.Source, result.Error = e.classify(OpPatterns, slug, err)
		return result
	}
	if len(transfers) == 0 {
		result.Source = domain.SourceNoData
		return result
	}

	stats := make(map[string]*addressStats, len(sc.addresses))
	for _, a := range sc.entity.Addresses {
		addr := strings.ToLower(a.Address)
		if _, ok := stats[addr]; ok {
			continue
		}
		stats[addr] = &addressStats{
			address:    addr,
			role:       a.Role,
			sumUSD:     decimal.Zero,
			tokens:     make(map[tokenKey]*tokenActivity),
			activeDays: make(map[time.Time]struct{}),
		}
	}

	symbols := make(map[tokenKey]string)
	for _, t := range transfers {
		k := keyOf(t)
		symbol, ok := symbols[k]
		if !ok {
			symbol = e.tokenInfo(ctx, t).Symbol
			symbols[k] = symbol
		}
		for _, addr := range uniqueParties(t) {
			if s, ok := stats[addr]; ok {
				s.record(t, symbol)
			}
		}
	}

	groups := make(map[string]*domain.PatternGroup)
	for _, s := range stats {
		name, score := s.classify()
		g, ok := groups[name]
		if !ok {
			g = &domain.PatternGroup{Pattern: name, Description: patternDescriptions[name]}
			groups[name] = g
		}
		p := s.pattern()
		p.PatternScore = math.Round(score*100) / 100
		g.Addresses = append(g.Addresses, p)
		g.TotalTxCount += p.TxCount
	}

	out := make([]domain.PatternGroup, 0, len(groups))
	for _, g := range groups {
		sort.Slice(g.Addresses, func(i, j int) bool {
			a, b := g.Addresses[i], g.Addresses[j]
			if a.PatternScore != b.PatternScore {
				return a.PatternScore > b.PatternScore
			}
			return a.Address < b.Address
		})
		var sum float64
		for _, a := range g.Addresses {
			sum += a.PatternScore
		}
		g.AvgPatternScore = math.Round(sum/float64(len(g.Addresses))*100) / 100
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalTxCount != out[j].TotalTxCount {
			return out[i].TotalTxCount > out[j].TotalTxCount
		}
		return out[i].Pattern < out[j].Pattern
	})

	result.Patterns = out
	result.Source = domain.SourceIndexed
	return result
}

// uniqueParties returns the lowercase sender and receiver, once each.
func uniqueParties(t domain.Transfer) []string {
	from := strings.ToLower(t.From)
	to := strings.ToLower(t.To)
	if from == to {
		return []string{from}
	}
	return []string{from, to}
}
