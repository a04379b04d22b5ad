// Package reconcile keeps one logically consistent set of cart lines and
// wishlist entries across the per-device snapshot store and the server-side
// store, whichever of the two the shopper's identity currently reaches.
package reconcile

import "github.com/rajbirverr/centurionintimates-sub000/internal/domain"

// Diff describes the mutations needed to make the remote cart match a
// desired snapshot. Apply order is Remove, Update, Add so an update never
// races a removal of the same key.
type Diff struct {
	ToAdd    []domain.CartLine
	ToRemove []domain.LineKey
	ToUpdate []QuantityChange
}

// QuantityChange is an in-place quantity replacement for an existing key.
type QuantityChange struct {
	Key         domain.LineKey
	OldQuantity int
	NewQuantity int
}

func (d *Diff) IsEmpty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 && len(d.ToUpdate) == 0
}

// DiffLines computes the delta between the current (remote) lines and the
// desired (local) lines. Matching is by (ProductID, VariantKey).
func DiffLines(current, desired []domain.CartLine) *Diff {
	diff := &Diff{}

	currentByKey := make(map[domain.LineKey]domain.CartLine, len(current))
	for _, line := range current {
		currentByKey[line.Key()] = line
	}

	desiredByKey := make(map[domain.LineKey]domain.CartLine, len(desired))
	for _, line := range desired {
		desiredByKey[line.Key()] = line
	}

	for key, want := range desiredByKey {
		if have, exists := currentByKey[key]; exists {
			if have.Quantity != want.Quantity {
				diff.ToUpdate = append(diff.ToUpdate, QuantityChange{
					Key:         key,
					OldQuantity: have.Quantity,
					NewQuantity: want.Quantity,
				})
			}
		} else {
			diff.ToAdd = append(diff.ToAdd, want)
		}
	}

	for key := range currentByKey {
		if _, exists := desiredByKey[key]; !exists {
			diff.ToRemove = append(diff.ToRemove, key)
		}
	}

	return diff
}
