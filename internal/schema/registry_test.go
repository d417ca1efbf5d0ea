package schema

import "testing"

func TestRegistryAddAndLookup(t *testing.T) {
	reg := NewRegistry()

	venueID, err := reg.AddVenue("BINANCE")
	if err != nil {
		t.Fatal(err)
	}
	again, err := reg.AddVenue("BINANCE")
	if err != nil || again != venueID {
		t.Fatalf("re-adding venue: id %d err %v", again, err)
	}

	symbolID, err := reg.AddSymbol("BTCUSDT", venueID, ScaleSpec{PriceScale: 2, QuantityScale: 8})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := reg.AddSymbol("BTCUSDT", venueID, ScaleSpec{}); err == nil {
		t.Fatal("duplicate symbol expected error")
	}
	if _, err := reg.AddSymbol("ETHUSDT", 99, ScaleSpec{}); err == nil {
		t.Fatal("unknown venue expected error")
	}
	if _, err := reg.AddSymbol("ETHUSDT", venueID, ScaleSpec{PriceScale: -1}); err == nil {
		t.Fatal("negative scale expected error")
	}

	sym, ok := reg.SymbolByName("BTCUSDT")
	if !ok || sym.ID != symbolID || sym.VenueID != venueID {
		t.Fatalf("symbol lookup mismatch: %+v ok=%v", sym, ok)
	}
	if id, ok := reg.SymbolIDByName("BTCUSDT"); !ok || id != symbolID {
		t.Fatalf("symbol id lookup mismatch: %d ok=%v", id, ok)
	}
	if reg.SymbolCount() != 1 {
		t.Fatalf("symbol count = %d, want 1", reg.SymbolCount())
	}
	if at, ok := reg.SymbolAt(0); !ok || at.Name != "BTCUSDT" {
		t.Fatalf("SymbolAt(0) = %+v ok=%v", at, ok)
	}
	if _, ok := reg.SymbolAt(1); ok {
		t.Fatal("SymbolAt(1) expected miss")
	}
}
