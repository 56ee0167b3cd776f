package payroll

import (
	"github.com/shopspring/decimal"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
)

// moneyPlaces is the scale every stored amount is rounded to.
const moneyPlaces = 2

// standardMonthlyHours converts a monthly base salary to an hourly rate.
var standardMonthlyHours = decimal.NewFromInt(173)

// standardDailyHours converts a daily rate to an hourly rate.
var standardDailyHours = decimal.NewFromInt(8)

var minutesPerHour = decimal.NewFromInt(60)

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// progressiveTax taxes each slice of taxable income at the rate of the bracket
// it falls in. Income below the first bracket is untaxed.
func progressiveTax(taxable decimal.Decimal, brackets []payroll.Bracket) decimal.Decimal {
	total := decimal.Zero
	if !taxable.IsPositive() {
		return total
	}
	for _, b := range brackets {
		if taxable.LessThanOrEqual(b.From) {
			continue
		}
		upper := taxable
		if b.To != nil && b.To.LessThan(upper) {
			upper = *b.To
		}
		total = total.Add(upper.Sub(b.From).Mul(b.Rate))
	}
	return total
}

// insuranceContribution charges gross at the rate of the single bracket containing it.
func insuranceContribution(gross decimal.Decimal, brackets []payroll.Bracket) decimal.Decimal {
	for _, b := range brackets {
		if b.Contains(gross) {
			return gross.Mul(b.Rate)
		}
	}
	return decimal.Zero
}

func minutesToHours(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(minutesPerHour)
}
