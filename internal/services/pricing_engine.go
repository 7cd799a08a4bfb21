package services

import (
	"errors"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/config"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/repositories"
)

// PricingEngineDeps bundles configuration for the pricing engine.
type PricingEngineDeps struct {
	Config config.PricingConfig
}

// PricingEngine computes order totals from captured line prices. Totals are
// computed once, inside the order-creation transaction, and never recomputed.
type PricingEngine struct {
	threshold int64
	discount  int64
	shipping  int64
}

var _ PricingQuoter = (*PricingEngine)(nil)

// NewPricingEngine validates configuration and constructs a PricingEngine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	cfg := deps.Config
	if cfg.DiscountThreshold < 0 {
		return nil, errors.New("pricing engine: discount threshold must not be negative")
	}
	if cfg.DiscountAmount < 0 {
		return nil, errors.New("pricing engine: discount amount must not be negative")
	}
	if cfg.ShippingFee < 0 {
		return nil, errors.New("pricing engine: shipping fee must not be negative")
	}
	return &PricingEngine{
		threshold: cfg.DiscountThreshold,
		discount:  cfg.DiscountAmount,
		shipping:  cfg.ShippingFee,
	}, nil
}

// Quote prices the given lines: subtotal from captured unit prices, a flat
// discount when the subtotal reaches the threshold, and the configured
// shipping fee. The discount never exceeds subtotal plus shipping.
func (e *PricingEngine) Quote(items []domain.OrderItem) repositories.OrderTotals {
	var subtotal int64
	for _, item := range items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}

	var discount int64
	if subtotal >= e.threshold {
		discount = e.discount
	}
	if max := subtotal + e.shipping; discount > max {
		discount = max
	}

	return repositories.OrderTotals{
		Subtotal:    subtotal,
		ShippingFee: e.shipping,
		Discount:    discount,
		Total:       subtotal + e.shipping - discount,
	}
}
