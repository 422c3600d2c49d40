package model

import "time"

// Fulfillment kinds.
const (
	KindDownload = "download"
	KindShip     = "ship"
	KindPhysical = "physical"
	KindExternal = "external"
)

// Product is a catalog item.
type Product struct {
	ID              string `json:"id"`
	SellingGroupID  string `json:"sellingGroupId"`
	Title           string `json:"title"`
	PriceCents      int64  `json:"priceCents"`
	Currency        string `json:"currency"`
	Active          bool   `json:"active"`
	FulfillmentKind string `json:"fulfillmentKind"`
}

// Ships reports whether the product needs physical fulfillment.
func (p Product) Ships() bool {
	return p.FulfillmentKind == KindShip || p.FulfillmentKind == KindPhysical
}

// Variant overrides product price/SKU and maps to the provider's variant.
type Variant struct {
	ID                string `json:"id"`
	ProductID         string `json:"productId"`
	Title             string `json:"title,omitempty"`
	SKU               string `json:"sku,omitempty"`
	PriceCents        *int64 `json:"priceCents,omitempty"`
	Active            bool   `json:"active"`
	ProviderVariantID string `json:"providerVariantId,omitempty"`
}

// CartLine is an ephemeral checkout input line.
type CartLine struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int64  `json:"quantity"`
}

// ConnectAccount is a selling group's payment sub-account snapshot.
type ConnectAccount struct {
	SellingGroupID   string         `json:"sellingGroupId"`
	AccountID        string         `json:"accountId"`
	ChargesEnabled   bool           `json:"chargesEnabled"`
	PayoutsEnabled   bool           `json:"payoutsEnabled"`
	DetailsSubmitted bool           `json:"detailsSubmitted"`
	Requirements     map[string]any `json:"requirements,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	SyncedAt         time.Time      `json:"syncedAt"`
}

// OnboardingComplete is derived from the three capability flags.
func (a ConnectAccount) OnboardingComplete() bool {
	return a.ChargesEnabled && a.PayoutsEnabled && a.DetailsSubmitted
}

// FeeSettings configures the platform split.
type FeeSettings struct {
	Enabled        bool `json:"enabled"`
	BasisPoints    int  `json:"platformFeeBasisPoints"`
	RequireAccount bool `json:"requireAccount"`
}

// Recipient is a notification target.
type Recipient struct {
	UserID      string `json:"userId"`
	Email       string `json:"email,omitempty"`
	EmailOptIn  bool   `json:"emailOptIn"`
	DisplayName string `json:"displayName,omitempty"`
}

// Notification is an in-app message row.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Kind      string         `json:"kind"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	OrderID   string         `json:"orderId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
