package aggregate

import (
	"encoding/json"

	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
)

// CombineFunc merges two branch payloads. It must be associative and
// commutative; the aggregator makes no assumption about payload schema.
type CombineFunc func(acc, next domain.Payload) domain.Payload

// SumFields returns a CombineFunc adding the named numeric fields. With no
// fields, every amount-like field found in either payload is summed.
// Non-numeric fields keep the first value seen.
func SumFields(fields ...string) CombineFunc {
	return func(acc, next domain.Payload) domain.Payload {
		out := make(domain.Payload, len(acc)+len(next))
		for k, v := range acc {
			out[k] = v
		}
		for k, v := range next {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}

		names := fields
		if len(names) == 0 {
			names = amountFields(acc, next)
		}
		for _, f := range names {
			sum := acc.Amount(f).Add(next.Amount(f))
			out[f] = json.Number(sum.String())
		}
		return out
	}
}

// SumSummary adds the sales-summary money fields.
var SumSummary = SumFields(domain.SummaryFields...)

func amountFields(payloads ...domain.Payload) []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range payloads {
		for k, v := range p {
			if !seen[k] && domain.IsAmountLike(v) {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	return names
}
