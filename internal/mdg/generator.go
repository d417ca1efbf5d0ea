package mdg

import (
	"fmt"
	"time"

	"main/internal/model"
	"main/internal/schema"
)

// Generator creates synthetic ticks for every symbol in a registry, cycling
// through the symbols with a deterministic price walk. Used by the daemon's
// synthetic feed mode and by tests that need offline tick flow.
type Generator struct {
	symbols   []schema.Symbol
	basePrice int64
	baseSize  int64
	spread    int64
	index     int
	step      int64
}

// NewGenerator creates a generator over all registry symbols.
func NewGenerator(reg *schema.Registry, basePrice, baseSize, spread int64) (*Generator, error) {
	if reg == nil || reg.SymbolCount() == 0 {
		return nil, fmt.Errorf("registry has no symbols")
	}
	symbols := make([]schema.Symbol, 0, reg.SymbolCount())
	for i := 0; i < reg.SymbolCount(); i++ {
		symbol, ok := reg.SymbolAt(i)
		if !ok {
			continue
		}
		symbols = append(symbols, symbol)
	}
	if basePrice <= 0 {
		basePrice = 1
	}
	if baseSize <= 0 {
		baseSize = 1
	}
	if spread < 0 {
		spread = 0
	}
	return &Generator{
		symbols:   symbols,
		basePrice: basePrice,
		baseSize:  baseSize,
		spread:    spread,
	}, nil
}

// Next creates the next tick in sequence.
func (g *Generator) Next(now time.Time) model.Tick {
	symbol := g.symbols[g.index]
	g.index = (g.index + 1) % len(g.symbols)
	if g.index == 0 {
		g.step++
	}
	// Bounded sawtooth keeps prices positive and repeatable.
	price := g.basePrice + (g.step % 100) + int64(symbol.ID)
	ts := now.UnixNano()
	return model.Tick{
		SymbolID: uint32(symbol.ID),
		Symbol:   symbol.Name,
		Kind:     model.TickKindQuote,
		Price:    price,
		Size:     g.baseSize,
		BidPrice: price - g.spread,
		BidSize:  g.baseSize,
		AskPrice: price + g.spread,
		AskSize:  g.baseSize,
		TsEvent:  ts,
		TsRecv:   ts,
	}
}
