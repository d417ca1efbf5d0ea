package store

import (
	"context"

	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/pkg/conn"
)

// Instrument is one row of the reference-data catalog backing the registry.
// Nothing conflated is ever written here; the table holds static instrument
// definitions only.
type Instrument struct {
	ID            uint   `gorm:"primaryKey"`
	Symbol        string `gorm:"uniqueIndex;size:64"`
	Venue         string `gorm:"size:64"`
	PriceScale    int32
	QuantityScale int32
	Enabled       bool
}

// TableName pins the catalog table.
func (Instrument) TableName() string {
	return "instruments"
}

// Store reads the instrument catalog from PostgreSQL.
type Store struct {
	client *conn.Client
}

// New creates a store over an open connection.
func New(client *conn.Client) *Store {
	return &Store{client: client}
}

// Migrate creates or updates the catalog table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.client.DB().WithContext(ctx).AutoMigrate(&Instrument{}); err != nil {
		return errors.Wrap(err, "migrate instruments")
	}
	return nil
}

// LoadRegistry builds a registry from all enabled instruments, in catalog
// order.
func (s *Store) LoadRegistry(ctx context.Context) (*schema.Registry, error) {
	var rows []Instrument
	err := s.client.DB().WithContext(ctx).
		Where("enabled = ?", true).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "load instruments")
	}
	if len(rows) == 0 {
		return nil, errors.New("instrument catalog is empty")
	}

	reg := schema.NewRegistry()
	for _, row := range rows {
		venueID, err := reg.AddVenue(row.Venue)
		if err != nil {
			return nil, errors.Wrap(err, "add venue").With("venue", row.Venue)
		}
		scale := schema.ScaleSpec{
			PriceScale:    schema.Scale(row.PriceScale),
			QuantityScale: schema.Scale(row.QuantityScale),
		}
		if _, err := reg.AddSymbol(row.Symbol, venueID, scale); err != nil {
			return nil, errors.Wrap(err, "add symbol").With("symbol", row.Symbol)
		}
	}
	return reg, nil
}
