package domain

import "time"

// CartLine is a single purchasable line in a cart. Lines are unique per
// (ProductID, VariantKey); adding the same key again sums quantities.
type CartLine struct {
	ProductID  string `bson:"product_id" json:"product_id"`
	VariantKey string `bson:"variant_key" json:"variant_key"`
	Quantity   int    `bson:"quantity" json:"quantity"`
	UnitPrice  Paise  `bson:"unit_price" json:"unit_price"`
	Name       string `bson:"name" json:"name"`
	ImageRef   string `bson:"image_ref" json:"image_ref"`

	AddedAt time.Time `bson:"added_at" json:"added_at"`
}

// LineKey identifies a cart line.
type LineKey struct {
	ProductID  string
	VariantKey string
}

func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, VariantKey: l.VariantKey}
}

// Subtotal is the line contribution to the cart subtotal.
func (l CartLine) Subtotal() Paise {
	return l.UnitPrice * Paise(l.Quantity)
}

// Cart is a user's (or device's) full cart state.
type Cart struct {
	OwnerID   string     `bson:"owner_id" json:"owner_id"`
	Lines     []CartLine `bson:"lines" json:"lines"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

// Find returns the line with the given key, or nil.
func (c *Cart) Find(key LineKey) *CartLine {
	for i := range c.Lines {
		if c.Lines[i].Key() == key {
			return &c.Lines[i]
		}
	}
	return nil
}

// Subtotal sums unit price times quantity over all lines.
func (c *Cart) Subtotal() Paise {
	var total Paise
	for _, l := range c.Lines {
		total += l.Subtotal()
	}
	return total
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}
