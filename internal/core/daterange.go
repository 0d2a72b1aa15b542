package core

import "time"

const (
	Range7Days  = "7d"
	Range30Days = "30d"
	Range90Days = "90d"
	Range1Year  = "1y"
	RangeAll    = "all"
)

// RangeTokens lists the accepted range tokens in picker order.
var RangeTokens = []string{Range7Days, Range30Days, Range90Days, Range1Year, RangeAll}

// DateRange is an inclusive [From, To] filter.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the inclusive bounds.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// ResolveRange turns a range token into a concrete window ending at now.
//
// "all", the empty string and unknown tokens return nil, meaning no filter.
// The bool reports whether token was one of RangeTokens.
func ResolveRange(token string, now time.Time) (*DateRange, bool) {
	var from time.Time
	switch token {
	case Range7Days:
		from = now.AddDate(0, 0, -7)
	case Range30Days:
		from = now.AddDate(0, 0, -30)
	case Range90Days:
		from = now.AddDate(0, 0, -90)
	case Range1Year:
		from = now.AddDate(-1, 0, 0)
	case RangeAll:
		return nil, true
	default:
		return nil, false
	}
	return &DateRange{From: from, To: now}, true
}

// RangeLabel is the human text for a token.
func RangeLabel(token string) string {
	switch token {
	case Range7Days:
		return "Last 7 days"
	case Range30Days:
		return "Last 30 days"
	case Range90Days:
		return "Last 90 days"
	case Range1Year:
		return "Last year"
	default:
		return "All time"
	}
}
