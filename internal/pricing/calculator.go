// Package pricing computes quote line totals, GST and grand totals.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"tradiehub-backend/internal/apperr"
	"tradiehub-backend/internal/models"
)

type Calculator struct {
	gstRate decimal.Decimal
}

func NewCalculator(gstRate float64) *Calculator {
	return &Calculator{gstRate: decimal.NewFromFloat(gstRate)}
}

func (c *Calculator) GSTRate() decimal.Decimal {
	return c.gstRate
}

// Calculate totals the items. It has no side effects.
func (c *Calculator) Calculate(items []models.QuoteItemInput, gstEnabled bool) (*models.QuoteCalculation, error) {
	if err := Validate(items); err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	lineTotals := make([]decimal.Decimal, len(items))
	for i, item := range items {
		lineTotals[i] = item.Quantity.Mul(item.UnitPrice).Round(2)
		subtotal = subtotal.Add(lineTotals[i])
	}
	subtotal = subtotal.Round(2)

	gstAmount := decimal.Zero
	if gstEnabled {
		gstAmount = subtotal.Mul(c.gstRate).Round(2)
	}

	return &models.QuoteCalculation{
		Subtotal:    subtotal,
		GSTAmount:   gstAmount,
		TotalAmount: subtotal.Add(gstAmount),
		LineTotals:  lineTotals,
	}, nil
}

// Validate reports every invalid field rather than stopping at the first.
func Validate(items []models.QuoteItemInput) error {
	if len(items) == 0 {
		return apperr.ValidationField("items", "at least one item is required")
	}

	fields := make(map[string]string)
	for i, item := range items {
		if !item.Quantity.IsPositive() {
			fields[fmt.Sprintf("items[%d].quantity", i)] = "quantity must be greater than 0"
		}
		if item.UnitPrice.IsNegative() {
			fields[fmt.Sprintf("items[%d].unit_price", i)] = "unit price cannot be negative"
		}
		if item.ItemType != "" && !item.ItemType.Valid() {
			fields[fmt.Sprintf("items[%d].item_type", i)] = "item type must be material, labor or other"
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid quote items", fields)
	}
	return nil
}

// BuildItems converts validated inputs into quote items with their line totals.
func BuildItems(inputs []models.QuoteItemInput, calc *models.QuoteCalculation) []models.QuoteItem {
	items := make([]models.QuoteItem, len(inputs))
	for i, in := range inputs {
		itemType := in.ItemType
		if itemType == "" {
			itemType = models.ItemTypeOther
		}
		items[i] = models.QuoteItem{
			ItemType:    itemType,
			Description: in.Description,
			Quantity:    in.Quantity,
			Unit:        in.Unit,
			UnitPrice:   in.UnitPrice,
			LineTotal:   calc.LineTotals[i],
			SortOrder:   i,
		}
	}
	return items
}

// Inputs converts stored items back into calculator inputs.
func Inputs(items []models.QuoteItem) []models.QuoteItemInput {
	inputs := make([]models.QuoteItemInput, len(items))
	for i, item := range items {
		inputs[i] = models.QuoteItemInput{
			ItemType:    item.ItemType,
			Description: item.Description,
			Quantity:    item.Quantity,
			Unit:        item.Unit,
			UnitPrice:   item.UnitPrice,
		}
	}
	return inputs
}

// ToCents converts a dollar amount into the smallest currency unit.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromCents is the inverse of ToCents.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
