package model

// TickKind classifies a normalized market data update.
type TickKind uint8

const (
	TickKindUnknown TickKind = iota
	TickKindQuote
	TickKindTrade
)

func (k TickKind) String() string {
	switch k {
	case TickKindQuote:
		return "quote"
	case TickKindTrade:
		return "trade"
	default:
		return "unknown"
	}
}

// Tick is one normalized market data update for a single symbol. Prices and
// sizes are scaled integers; the scale lives with the symbol in the registry.
type Tick struct {
	SymbolID uint32
	Symbol   string
	Kind     TickKind
	Price    int64
	Size     int64
	BidPrice int64
	BidSize  int64
	AskPrice int64
	AskSize  int64
	TsEvent  int64
	TsRecv   int64
}
