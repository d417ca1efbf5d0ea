package ingest

import (
	"time"

	"github.com/yanun0323/errors"

	"main/internal/model"
	"main/internal/schema"
)

// Normalizer maps raw feed payloads to model.Tick using registry scales.
type Normalizer struct {
	reg *schema.Registry
}

// NewNormalizer creates a normalizer for a registry.
func NewNormalizer(reg *schema.Registry) *Normalizer {
	return &Normalizer{reg: reg}
}

// NormalizeBookTicker converts a raw book ticker into a quote tick. Unknown
// symbols are rejected so a stray stream cannot pollute the grid.
func (n *Normalizer) NormalizeBookTicker(raw BinanceBookTicker, now time.Time) (model.Tick, error) {
	if n.reg == nil {
		return model.Tick{}, errors.New("registry is nil")
	}
	sym, ok := n.reg.SymbolByName(raw.Symbol)
	if !ok {
		return model.Tick{}, errors.Errorf("symbol not found: %s", raw.Symbol)
	}

	bidPrice, err := sym.Scale.ParsePrice(raw.BidPrice.String())
	if err != nil {
		return model.Tick{}, errors.Wrap(err, "parse bid price")
	}
	askPrice, err := sym.Scale.ParsePrice(raw.AskPrice.String())
	if err != nil {
		return model.Tick{}, errors.Wrap(err, "parse ask price")
	}
	bidSize, err := sym.Scale.ParseQuantity(raw.BidQty.String())
	if err != nil {
		return model.Tick{}, errors.Wrap(err, "parse bid qty")
	}
	askSize, err := sym.Scale.ParseQuantity(raw.AskQty.String())
	if err != nil {
		return model.Tick{}, errors.Wrap(err, "parse ask qty")
	}

	ts := now.UnixNano()
	return model.Tick{
		SymbolID: uint32(sym.ID),
		Symbol:   sym.Name,
		Kind:     model.TickKindQuote,
		Price:    (bidPrice + askPrice) / 2,
		BidPrice: bidPrice,
		BidSize:  bidSize,
		AskPrice: askPrice,
		AskSize:  askSize,
		TsEvent:  ts,
		TsRecv:   ts,
	}, nil
}
