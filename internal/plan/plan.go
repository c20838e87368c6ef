package plan

import "fmt"

// ID identifies an application plan.
type ID string

const (
	Basic        ID = "basic"
	Pro          ID = "pro"
	Verification ID = "verification"
)

// Default is the plan an unrecognized price resolves to. A misclassified
// plan is less harmful than a dropped event, so resolution never fails.
const Default = Basic

// Interval is a billing interval.
type Interval string

const (
	IntervalMonthly Interval = "monthly"
	IntervalAnnual  Interval = "annual"
)

// ParseInterval normalizes client and Stripe interval spellings.
func ParseInterval(s string) (Interval, error) {
	switch s {
	case "monthly", "month":
		return IntervalMonthly, nil
	case "annual", "year", "yearly":
		return IntervalAnnual, nil
	default:
		return "", fmt.Errorf("invalid billing interval: %q", s)
	}
}

// Plan describes a purchasable plan and its Stripe prices per interval.
// Plans without prices (the free tier) cannot be checked out.
type Plan struct {
	ID       ID
	Name     string
	Features []string
	Prices   map[Interval]string
}
