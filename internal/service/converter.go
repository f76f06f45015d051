package service

import (
	"context"
	"fmt"

	"github.com/vastraline/fulfillment/internal/carrier"
	"github.com/vastraline/fulfillment/internal/domain"
	"github.com/vastraline/fulfillment/internal/repository"
	apperrors "github.com/vastraline/fulfillment/pkg/errors"
)

// Package dimensions used when no measured dimensions exist for an order.
const (
	defaultLengthCm  = 20
	defaultBreadthCm = 15
	defaultHeightCm  = 5
)

// Converter builds carrier order payloads from domain orders, resolving
// catalog data for weights and SKU variants.
type Converter struct {
	products       repository.ProductRepository
	pickupLocation string
}

// NewConverter creates a converter using the given catalog and the
// configured pickup location label registered with the carrier.
func NewConverter(products repository.ProductRepository, pickupLocation string) *Converter {
	return &Converter{
		products:       products,
		pickupLocation: pickupLocation,
	}
}

// ToCarrierPayload converts an order into the carrier's adhoc order format.
// Line weights fall back to the catalog default when a product has no
// recorded weight, so only an order with no resolvable items produces a
// zero total weight.
func (c *Converter) ToCarrierPayload(ctx context.Context, order *domain.Order) (*carrier.OrderPayload, error) {
	if order.ShippingAddress == nil {
		return nil, apperrors.InvalidInput("order has no shipping address")
	}

	productIDs := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
	}

	products, err := c.products.GetByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}

	items := make([]carrier.OrderItem, 0, len(order.Items))
	var weightGrams int

	for _, item := range order.Items {
		sku := item.SKU
		hsn := ""
		itemWeight := domain.DefaultWeightGrams

		if p, ok := products[item.ProductID]; ok {
			sku = p.DisplaySKU()
			hsn = p.HSN
			itemWeight = p.EffectiveWeightGrams()
		} else if item.Color != "" {
			sku = item.SKU + " (" + item.Color + ")"
		}

		items = append(items, carrier.OrderItem{
			Name:         item.Name,
			SKU:          sku,
			Units:        item.Quantity,
			SellingPrice: float64(item.Price),
			Discount:     0,
			Tax:          0,
			HSN:          hsn,
		})

		weightGrams += itemWeight * item.Quantity
	}

	paymentMethod := carrier.PaymentMethodCOD
	if order.IsPaid() {
		paymentMethod = carrier.PaymentMethodPrepaid
	}

	addr := order.ShippingAddress
	payload := &carrier.OrderPayload{
		OrderID:           order.ID,
		OrderDate:         order.CreatedAt.Format("2006-01-02"),
		PickupLocation:    c.pickupLocation,
		BillingName:       addr.Name,
		BillingAddress:    addr.Line,
		BillingAddress2:   addr.Line2,
		BillingCity:       addr.City,
		BillingPincode:    addr.PostalCode,
		BillingState:      addr.State,
		BillingCountry:    addr.Country,
		BillingEmail:      addr.Email,
		BillingPhone:      addr.Phone,
		ShippingIsBilling: true,
		OrderItems:        items,
		PaymentMethod:     paymentMethod,
		SubTotal:          float64(order.TotalAmount),
		Length:            defaultLengthCm,
		Breadth:           defaultBreadthCm,
		Height:            defaultHeightCm,
		Weight:            float64(weightGrams) / 1000,
	}

	return payload, nil
}
