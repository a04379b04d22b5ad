package domain

// Wishlist is a set of product IDs. No duplicates, no ordering guarantee.
type Wishlist struct {
	OwnerID    string   `bson:"owner_id" json:"owner_id"`
	ProductIDs []string `bson:"product_ids" json:"product_ids"`
}

func (w *Wishlist) Contains(productID string) bool {
	for _, id := range w.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// Add inserts the product ID if absent and reports whether it was added.
func (w *Wishlist) Add(productID string) bool {
	if w.Contains(productID) {
		return false
	}
	w.ProductIDs = append(w.ProductIDs, productID)
	return true
}

// Remove deletes the product ID if present. Removing an absent ID is a no-op.
func (w *Wishlist) Remove(productID string) {
	for i, id := range w.ProductIDs {
		if id == productID {
			w.ProductIDs = append(w.ProductIDs[:i], w.ProductIDs[i+1:]...)
			return
		}
	}
}
