/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	amountPrefix = regexp.MustCompile(`^([+-]?)(\d+(?:\.\d+)?|\.\d+)(?:[eE]([+-]?\d+))?`)

	// Differences smaller than one cent count as an exact match.
	matchEpsilon = decimal.New(1, -2)
)

// maxAmountExponent bounds a written exponent such as "1e30". Anything
// larger would expand to an enormous integer on the first Add.
const maxAmountExponent = 30

// ParseAmount reads the leading number out of s. Empty or unparseable input
// is zero, never an error.
func ParseAmount(s string) decimal.Decimal {
	m := amountPrefix.FindStringSubmatch(strings.TrimLeft(s, " \t\r\n"))
	if m == nil {
		return decimal.Zero
	}

	mantissa := m[2]
	if strings.HasPrefix(mantissa, ".") {
		mantissa = "0" + mantissa
	}

	literal := mantissa
	if m[1] == "-" {
		literal = "-" + literal
	}
	if m[3] != "" {
		exp, err := strconv.Atoi(m[3])
		if err != nil || exp > maxAmountExponent || exp < -maxAmountExponent {
			return decimal.Zero
		}
		literal += "e" + strconv.Itoa(exp)
	}

	d, err := decimal.NewFromString(literal)
	if err != nil {
		return decimal.Zero
	}

	return d
}

type Outcome int

const (
	OutcomeExact Outcome = iota
	OutcomeSurplus
	OutcomeShortfall
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExact:
		return "exact"
	case OutcomeSurplus:
		return "surplus"
	case OutcomeShortfall:
		return "shortfall"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "exact":
		*o = OutcomeExact
	case "surplus":
		*o = OutcomeSurplus
	case "shortfall":
		*o = OutcomeShortfall
	default:
		return fmt.Errorf("unknown outcome %q", text)
	}

	return nil
}

// Confetti describes the burst a client fires for an outcome.
type Confetti struct {
	Particles int      `json:"particles"`
	Spread    int      `json:"spread"`
	Colors    []string `json:"colors"`
}

type Feedback struct {
	Headline string    `json:"headline"`
	Message  string    `json:"message"`
	Button   string    `json:"button"`
	Confetti *Confetti `json:"confetti,omitempty"`
}

var feedbacks = map[Outcome]Feedback{
	OutcomeExact: {
		Headline: "MISSION PASSED!",
		Message:  "ครบจบ แยกย้าย! (Mission Passed)",
		Button:   "แยกย้าย!",
		Confetti: &Confetti{
			Particles: 200,
			Spread:    160,
			Colors:    []string{"#10B981", "#34D399", "#059669", "#FBBF24"},
		},
	},
	OutcomeSurplus: {
		Headline: "STONKS! 📈",
		Message:  "กำไรว่ะ! เอาไปเลี้ยงหนมต่อ (Stonks)",
		Button:   "หวานเจี๊ยบ!",
		Confetti: &Confetti{
			Particles: 150,
			Spread:    100,
			Colors:    []string{"#EAB308", "#FACC15", "#FEF08A"},
		},
	},
	OutcomeShortfall: {
		Headline: "WASTED",
		Message:  "เงินไม่ครบ! ใครเนียนไม่จ่าย? (Wasted)",
		Button:   "ลองใหม่",
	},
}

// Settlement compares the money gathered against the bill.
type Settlement struct {
	Bill        decimal.Decimal
	PayerShare  decimal.Decimal
	Contributed decimal.Decimal
	Collected   decimal.Decimal
	Difference  decimal.Decimal
	Outcome     Outcome
}

// Settle totals the payer's share and every contribution and classifies the
// difference against the bill. Inputs are raw form values.
func Settle(bill, payerShare string, contributions map[string]string) Settlement {
	s := Settlement{
		Bill:        ParseAmount(bill),
		PayerShare:  ParseAmount(payerShare),
		Contributed: decimal.Zero,
	}

	for _, raw := range contributions {
		s.Contributed = s.Contributed.Add(ParseAmount(raw))
	}

	s.Collected = s.PayerShare.Add(s.Contributed)
	s.Difference = s.Collected.Sub(s.Bill)

	switch {
	case s.Difference.Abs().LessThan(matchEpsilon):
		s.Outcome = OutcomeExact
	case s.Difference.IsPositive():
		s.Outcome = OutcomeSurplus
	default:
		s.Outcome = OutcomeShortfall
	}

	return s
}

func (s Settlement) Feedback() Feedback {
	return feedbacks[s.Outcome]
}

// SignedDifference renders the difference with two decimals and an explicit
// plus sign for a surplus.
func (s Settlement) SignedDifference() string {
	if s.Difference.IsPositive() {
		return "+" + s.Difference.StringFixed(2)
	}

	return s.Difference.StringFixed(2)
}
