package domain

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Payment-method fields of the sales-summary family.
const (
	FieldCash               = "cash"
	FieldTransfer           = "transfer"
	FieldCard               = "card"
	FieldFoxieUsageRevenue  = "foxieUsageRevenue"
	FieldWalletUsageRevenue = "walletUsageRevenue"
)

// PaymentFields are summed into a day's total.
var PaymentFields = []string{FieldCash, FieldTransfer, FieldCard}

// SummaryFields are the numeric fields merged across branches.
var SummaryFields = []string{
	FieldCash,
	FieldTransfer,
	FieldCard,
	FieldFoxieUsageRevenue,
	FieldWalletUsageRevenue,
}

// ParseAmount converts a JSON value into a decimal. Strings may be locale
// formatted ("1.234.567 ₫"); every character other than digits and a leading
// minus sign is stripped. Unparseable values count as zero.
func ParseAmount(v any) decimal.Decimal {
	switch n := v.(type) {
	case nil:
		return decimal.Zero
	case json.Number:
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d
		}
		return ParseAmount(n.String())
	case float64:
		return decimal.NewFromFloat(n)
	case float32:
		return decimal.NewFromFloat32(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case decimal.Decimal:
		return n
	case string:
		return parseAmountString(n)
	default:
		return decimal.Zero
	}
}

func parseAmountString(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	negative := strings.HasPrefix(s, "-")

	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Zero
	}
	if negative {
		d = d.Neg()
	}
	return d
}

// IsAmountLike reports whether v looks like a numeric field value.
func IsAmountLike(v any) bool {
	switch n := v.(type) {
	case json.Number, float64, float32, int, int64, decimal.Decimal:
		return true
	case string:
		hasDigit := false
		for _, r := range n {
			switch {
			case r >= '0' && r <= '9':
				hasDigit = true
			case r == '.' || r == ',' || r == '-' || r == ' ' || r == '₫' || r == 'đ':
			default:
				return false
			}
		}
		return hasDigit
	default:
		return false
	}
}

// Amount returns the decimal value of field, zero when absent.
func (p Payload) Amount(field string) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return ParseAmount(p[field])
}

// PaymentTotal is cash + transfer + card.
func (p Payload) PaymentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, f := range PaymentFields {
		total = total.Add(p.Amount(f))
	}
	return total
}

// IsZeroPayment reports whether every payment field is zero.
func (p Payload) IsZeroPayment() bool {
	for _, f := range PaymentFields {
		if !p.Amount(f).IsZero() {
			return false
		}
	}
	return true
}
