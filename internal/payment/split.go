package payment

import "github.com/shopspring/decimal"

var oneHundred = decimal.NewFromInt(100)

// Split divides a payment between the platform and the restaurant. The fee
// is feePercent of the total rounded half-up to whole minor units; the
// restaurant gets the remainder, so the two always sum exactly to the total.
func Split(totalCents int64, feePercent decimal.Decimal) (platformFeeCents, restaurantAmountCents int64) {
	fee := decimal.NewFromInt(totalCents).
		Mul(feePercent).
		Div(oneHundred).
		Round(0)
	platformFeeCents = fee.IntPart()
	return platformFeeCents, totalCents - platformFeeCents
}
