package grid

import (
	"encoding/json"

	"main/internal/conflate"
	"main/internal/model"
	"main/internal/schema"
)

// RowTransaction is the wire form of one conflated batch: an upsert-by-id
// transaction the grid applies atomically.
type RowTransaction struct {
	Type string `json:"type"`
	Rows []Row  `json:"rows"`
}

// Row is one per-symbol upsert within a transaction.
type Row struct {
	ID   string  `json:"id"`
	Data RowData `json:"data"`
}

// RowData carries display-ready fields; prices and sizes are rendered with
// the symbol's registry scale.
type RowData struct {
	Symbol  string `json:"symbol"`
	Kind    string `json:"kind"`
	Price   string `json:"price"`
	Bid     string `json:"bid"`
	BidSize string `json:"bidSize"`
	Ask     string `json:"ask"`
	AskSize string `json:"askSize"`
	TsEvent int64  `json:"tsEvent"`
}

// EncodeBatch renders a conflated batch as a row transaction. Symbols
// missing from the registry fall back to raw integer rendering rather than
// dropping the row.
func EncodeBatch(reg *schema.Registry, batch conflate.Batch[string, model.Tick]) ([]byte, error) {
	tx := RowTransaction{
		Type: "update",
		Rows: make([]Row, 0, len(batch)),
	}
	for _, u := range batch {
		scale := schema.ScaleSpec{}
		if reg != nil {
			if sym, ok := reg.SymbolByName(u.Key); ok {
				scale = sym.Scale
			}
		}
		t := u.Value
		tx.Rows = append(tx.Rows, Row{
			ID: u.Key,
			Data: RowData{
				Symbol:  t.Symbol,
				Kind:    t.Kind.String(),
				Price:   scale.FormatPrice(t.Price),
				Bid:     scale.FormatPrice(t.BidPrice),
				BidSize: scale.FormatQuantity(t.BidSize),
				Ask:     scale.FormatPrice(t.AskPrice),
				AskSize: scale.FormatQuantity(t.AskSize),
				TsEvent: t.TsEvent,
			},
		})
	}
	return json.Marshal(tx)
}
