package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
)

func line(productID, variant string, qty int) domain.CartLine {
	return domain.CartLine{ProductID: productID, VariantKey: variant, Quantity: qty, UnitPrice: 10000}
}

func TestDiffLines_EmptyToLines(t *testing.T) {
	diff := DiffLines(nil, []domain.CartLine{
		line("P1", "M", 2),
		line("P2", "", 1),
	})

	assert.Len(t, diff.ToAdd, 2)
	assert.Empty(t, diff.ToRemove)
	assert.Empty(t, diff.ToUpdate)
}

func TestDiffLines_LinesToEmpty(t *testing.T) {
	diff := DiffLines([]domain.CartLine{
		line("P1", "M", 2),
		line("P2", "", 1),
	}, nil)

	assert.Empty(t, diff.ToAdd)
	assert.Len(t, diff.ToRemove, 2)
	assert.Empty(t, diff.ToUpdate)
}

func TestDiffLines_QuantityChange(t *testing.T) {
	diff := DiffLines(
		[]domain.CartLine{line("P1", "M", 2)},
		[]domain.CartLine{line("P1", "M", 5)},
	)

	assert.Empty(t, diff.ToAdd)
	assert.Empty(t, diff.ToRemove)
	assert.Equal(t, []QuantityChange{{
		Key:         domain.LineKey{ProductID: "P1", VariantKey: "M"},
		OldQuantity: 2,
		NewQuantity: 5,
	}}, diff.ToUpdate)
}

func TestDiffLines_VariantsAreDistinctKeys(t *testing.T) {
	diff := DiffLines(
		[]domain.CartLine{line("P1", "M", 1)},
		[]domain.CartLine{line("P1", "M", 1), line("P1", "L", 1)},
	)

	assert.Len(t, diff.ToAdd, 1)
	assert.Equal(t, "L", diff.ToAdd[0].VariantKey)
	assert.Empty(t, diff.ToRemove)
	assert.Empty(t, diff.ToUpdate)
}

func TestDiffLines_IdenticalIsEmpty(t *testing.T) {
	lines := []domain.CartLine{line("P1", "M", 2), line("P2", "", 4)}
	diff := DiffLines(lines, lines)
	assert.True(t, diff.IsEmpty())
}
