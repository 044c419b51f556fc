package store

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry.
type Product struct {
	ProductID      string
	Version        string
	ProductName    string
	Description    string
	Price          decimal.Decimal
	StockAvailable int
	ImageURL       string
}

type productRecord struct {
	ProductName    string `dynamodbav:"product_name"`
	Description    string `dynamodbav:"description"`
	Price          string `dynamodbav:"price"`
	StockAvailable int    `dynamodbav:"stock_available"`
	ImageURL       string `dynamodbav:"image_url"`
}

func (p Product) Kind() Kind { return KindProduct }
func (p Product) ID() string { return p.ProductID }

func (p Product) ToRow() (*Row, error) {
	return encodeRow(KindProduct, p.ProductID, p.Version, productRecord{
		ProductName:    p.ProductName,
		Description:    p.Description,
		Price:          formatMoney(p.Price),
		StockAvailable: p.StockAvailable,
		ImageURL:       p.ImageURL,
	})
}

func (p *Product) FromRow(row *Row) error {
	var rec productRecord
	if err := decodeRow(KindProduct, row, &rec); err != nil {
		return err
	}
	price, err := parseMoney(rec.Price)
	if err != nil {
		return fmt.Errorf("product %s price: %w", row.Key, err)
	}
	*p = Product{
		ProductID:      row.Key,
		Version:        row.Version,
		ProductName:    rec.ProductName,
		Description:    rec.Description,
		Price:          price,
		StockAvailable: rec.StockAvailable,
		ImageURL:       rec.ImageURL,
	}
	return nil
}

// formatMoney renders an amount with two fractional digits.
func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// parseMoney reads an amount; an empty string is zero.
func parseMoney(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
