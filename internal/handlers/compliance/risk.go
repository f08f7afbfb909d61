package compliance

import (
	"sort"
	"strconv"
	"strings"

	"orqon-dispatch/internal/models"
)

const maxScore = 100

const (
	unsolicitedWeight = 30
	meetingsWeight    = 20
	reviewWeight      = 50
	meetingsThreshold = 2
)

// score computes the risk profile of one client from their trades.
func score(rec models.Record, recent int) Profile {
	p := Profile{
		Name:        rec.FullName,
		Email:       rec.Email,
		Account:     rec.Account,
		TotalTrades: len(rec.Trades),
	}
	for _, t := range rec.Trades {
		if t.Solicited {
			p.Solicited++
		} else {
			p.Unsolicited++
		}
		if t.MeetingNeeded {
			p.MeetingsNeeded++
		}
		if strings.EqualFold(t.Stage, models.StageComplianceReview) {
			p.ComplianceReviews++
		}
	}
	if p.ComplianceReviews == 0 && strings.EqualFold(rec.Stage, models.StageComplianceReview) {
		p.ComplianceReviews = 1
	}

	if p.Unsolicited > p.Solicited {
		p.RiskScore += unsolicitedWeight
		p.Factors = append(p.Factors, "unsolicited trades outnumber solicited ones")
	}
	if p.MeetingsNeeded > meetingsThreshold {
		p.RiskScore += meetingsWeight
		p.Factors = append(p.Factors, plural(p.MeetingsNeeded, "trade needs", "trades need")+" a meeting")
	}
	if p.ComplianceReviews > 0 {
		p.RiskScore += reviewWeight
		p.Factors = append(p.Factors, plural(p.ComplianceReviews, "trade", "trades")+" under compliance review")
	}
	if p.RiskScore > maxScore {
		p.RiskScore = maxScore
	}

	trades := append([]models.Trade(nil), rec.Trades...)
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].Timestamp.After(trades[j].Timestamp) })
	if len(trades) > recent {
		trades = trades[:recent]
	}
	for _, t := range trades {
		line := TradeLine{TicketID: t.TicketID, Side: t.Side, Ticker: t.Ticker, Quantity: t.Quantity, Stage: t.Stage}
		if !t.Timestamp.IsZero() {
			line.Date = t.Timestamp.Format("2006-01-02")
		}
		p.RecentTrades = append(p.RecentTrades, line)
	}
	return p
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}
