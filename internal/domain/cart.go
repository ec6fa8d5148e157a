package domain

import (
	"strings"
	"time"
)

const DefaultCurrency = "usd"

type Cart struct {
	ID        string     `bson:"_id" json:"id"`
	TenantID  string     `bson:"tenant_id" json:"tenant_id"`
	Items     []CartItem `bson:"items" json:"items"`
	Currency  string     `bson:"currency" json:"currency"`
	Version   int64      `bson:"version" json:"version"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

// CartItem is an untrusted line: it references catalog entries and never
// carries a price.
type CartItem struct {
	ProductID string    `bson:"product_id" json:"product_id"`
	VariantID string    `bson:"variant_id,omitempty" json:"variant_id,omitempty"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	AddedAt   time.Time `bson:"added_at" json:"added_at"`
}

// LineKey identifies a cart line. Two items with the same product but
// different variants are different lines.
type LineKey struct {
	ProductID string
	VariantID string
}

func (i CartItem) Key() LineKey {
	return LineKey{ProductID: i.ProductID, VariantID: i.VariantID}
}

// ValidateItems checks a batch of incoming items before any of them is applied.
func ValidateItems(items []CartItem) error {
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return NewValidationError("items[%d]: product_id is required", i)
		}
		if item.Quantity < 1 {
			return NewValidationError("items[%d]: quantity must be at least 1", i)
		}
	}
	return nil
}

// AddItems merges items into the cart: an item whose line already exists has
// its quantity summed into that line, anything else is appended.
func (c *Cart) AddItems(items []CartItem, now time.Time) {
	for _, item := range items {
		if idx := c.indexOf(item.Key()); idx >= 0 {
			c.Items[idx].Quantity += item.Quantity
			continue
		}
		item.AddedAt = now
		c.Items = append(c.Items, item)
	}
	c.UpdatedAt = now
}

// SetQuantity overwrites the quantity of an existing line; quantity <= 0
// deletes it. It never creates a line.
func (c *Cart) SetQuantity(key LineKey, quantity int, now time.Time) error {
	idx := c.indexOf(key)
	if idx < 0 {
		return ErrItemNotFound
	}
	if quantity <= 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	} else {
		c.Items[idx].Quantity = quantity
	}
	c.UpdatedAt = now
	return nil
}

// RemoveItem deletes a line if present and reports whether anything changed.
func (c *Cart) RemoveItem(key LineKey, now time.Time) bool {
	idx := c.indexOf(key)
	if idx < 0 {
		return false
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.UpdatedAt = now
	return true
}

func (c *Cart) indexOf(key LineKey) int {
	for i := range c.Items {
		if c.Items[i].Key() == key {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so a cart can be mutated without touching a
// cached or shared instance.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]CartItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}

// HydratedCart is a priced view of a cart, rebuilt from the catalog on every read.
type HydratedCart struct {
	CartID        string         `json:"cart_id"`
	Lines         []HydratedLine `json:"lines"`
	SubtotalCents int64          `json:"subtotal_cents"`
	Currency      string         `json:"currency"`
}

type HydratedLine struct {
	Product        Product  `json:"product"`
	Variant        *Variant `json:"variant,omitempty"`
	UnitPriceCents int64    `json:"unit_price_cents"`
	Quantity       int      `json:"quantity"`
	LineTotalCents int64    `json:"line_total_cents"`
}
