package domain

import "time"

// DefaultWeightGrams is assumed for any product without a recorded weight,
// so chargeable-weight estimates never drop to zero for a real item.
const DefaultWeightGrams = 500

// Product is the catalog data fulfillment needs to build carrier payloads.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SKU         string    `json:"sku"`
	Color       string    `json:"color,omitempty"`
	HSN         string    `json:"hsn,omitempty"`
	WeightGrams int       `json:"weight_grams"`
	Price       int64     `json:"price"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EffectiveWeightGrams returns the recorded weight, or the default when the
// catalog has none.
func (p *Product) EffectiveWeightGrams() int {
	if p.WeightGrams <= 0 {
		return DefaultWeightGrams
	}
	return p.WeightGrams
}

// DisplaySKU returns the SKU with the color variant appended when present,
// e.g. "KRT-102 (Indigo)".
func (p *Product) DisplaySKU() string {
	if p.Color == "" {
		return p.SKU
	}
	return p.SKU + " (" + p.Color + ")"
}
