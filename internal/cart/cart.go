// Package cart resolves checkout lines against the live catalog.
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iliamunaev/checkout-core/internal/apperr"
	"github.com/iliamunaev/checkout-core/internal/model"
)

// DefaultCurrency applies to products stored without a currency code.
const DefaultCurrency = "usd"

// Bounds on what one checkout may charge. MaxAmountCents is the largest
// amount the payment processor accepts.
const (
	MaxLineQuantity = 10_000
	MaxAmountCents  = 99_999_999
)

var (
	errQuantityTooLarge = apperr.BadRequest(fmt.Sprintf("quantity must not exceed %d", MaxLineQuantity))
	// ErrAmountTooLarge rejects carts and orders above MaxAmountCents.
	ErrAmountTooLarge = apperr.BadRequest("order total exceeds the maximum chargeable amount")
)

// Catalog reads products and variants by id. Missing ids are simply absent
// from the result.
type Catalog interface {
	Products(ctx context.Context, ids []string) (map[string]model.Product, error)
	Variants(ctx context.Context, ids []string) (map[string]model.Variant, error)
}

// Line is a priced cart line.
type Line struct {
	Product        model.Product
	Variant        *model.Variant
	Quantity       int64
	UnitPriceCents int64
	TotalCents     int64
}

// ProviderVariantID is the fulfillment provider's id for this line, if mapped.
func (l Line) ProviderVariantID() string {
	if l.Variant == nil {
		return ""
	}
	return l.Variant.ProviderVariantID
}

// Title prefers "Product - Variant" when a variant is selected.
func (l Line) Title() string {
	if l.Variant != nil && l.Variant.Title != "" {
		return l.Product.Title + " - " + l.Variant.Title
	}
	return l.Product.Title
}

// Cart is the assembled, priced cart.
type Cart struct {
	Lines         []Line
	SubtotalCents int64
	Currency      string
}

// ShippingRequired reports whether any line needs physical fulfillment.
func (c Cart) ShippingRequired() bool {
	for _, l := range c.Lines {
		if l.Product.Ships() {
			return true
		}
	}
	return false
}

// Assembler prices cart lines.
type Assembler struct {
	catalog Catalog
	log     *slog.Logger
}

// NewAssembler returns an Assembler reading from c.
func NewAssembler(c Catalog, log *slog.Logger) *Assembler {
	if c == nil {
		panic("cart: nil catalog")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Assembler{catalog: c, log: log}
}

// Assemble keeps active lines that belong to sellingGroupID. Unknown or
// inactive products and variants are dropped, not erred. Zero kept lines
// returns apperr.ErrEmptyCart.
func (a *Assembler) Assemble(ctx context.Context, sellingGroupID string, lines []model.CartLine) (Cart, error) {
	if len(lines) == 0 {
		return Cart{}, apperr.ErrEmptyCart
	}

	productIDs := make([]string, 0, len(lines))
	variantIDs := make([]string, 0, len(lines))
	for _, l := range lines {
		productIDs = append(productIDs, l.ProductID)
		if l.VariantID != "" {
			variantIDs = append(variantIDs, l.VariantID)
		}
	}

	products, err := a.catalog.Products(ctx, productIDs)
	if err != nil {
		return Cart{}, fmt.Errorf("load products: %w", err)
	}
	variants := map[string]model.Variant{}
	if len(variantIDs) > 0 {
		variants, err = a.catalog.Variants(ctx, variantIDs)
		if err != nil {
			return Cart{}, fmt.Errorf("load variants: %w", err)
		}
	}

	var c Cart
	for _, in := range lines {
		if in.Quantity > MaxLineQuantity {
			return Cart{}, errQuantityTooLarge
		}
		p, ok := products[in.ProductID]
		if !ok || !p.Active || (sellingGroupID != "" && p.SellingGroupID != sellingGroupID) {
			a.log.DebugContext(ctx, "cart line dropped", "product", in.ProductID)
			continue
		}

		line := Line{Product: p, Quantity: max(in.Quantity, 1), UnitPriceCents: p.PriceCents}
		if in.VariantID != "" {
			v, ok := variants[in.VariantID]
			if !ok || !v.Active || v.ProductID != p.ID {
				a.log.DebugContext(ctx, "cart line dropped", "product", in.ProductID, "variant", in.VariantID)
				continue
			}
			line.Variant = &v
			if v.PriceCents != nil {
				line.UnitPriceCents = *v.PriceCents
			}
		}

		cur := strings.ToLower(p.Currency)
		if cur == "" {
			cur = DefaultCurrency
		}
		if c.Currency == "" {
			c.Currency = cur
		} else if cur != c.Currency {
			a.log.WarnContext(ctx, "cart line dropped: currency mismatch", "product", p.ID, "currency", cur)
			continue
		}

		if line.UnitPriceCents < 0 || line.UnitPriceCents > MaxAmountCents/line.Quantity {
			return Cart{}, ErrAmountTooLarge
		}
		line.TotalCents = line.UnitPriceCents * line.Quantity
		if c.SubtotalCents > MaxAmountCents-line.TotalCents {
			return Cart{}, ErrAmountTooLarge
		}
		c.SubtotalCents += line.TotalCents
		c.Lines = append(c.Lines, line)
	}

	if len(c.Lines) == 0 {
		return Cart{}, apperr.ErrEmptyCart
	}
	return c, nil
}
