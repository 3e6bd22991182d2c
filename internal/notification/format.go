package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trendbot/internal/model"
	"trendbot/internal/portfolio"
)

const timeLayout = "2006-01-02 15:04:05"

func fmtPrice(v float64) string { return decimal.NewFromFloat(v).String() }

// DecisionAlert renders an engine decision. Entries list the protective
// levels from the highest price to the lowest; exits carry the percent PnL
// against the entry level.
func DecisionAlert(d model.Decision, size string, loc *time.Location) Alert {
	in := d.Intent
	ts := in.CreatedAt
	if ts.IsZero() {
		ts = in.BarTime
	}
	if loc == nil {
		loc = time.UTC
	}
	when := ts.In(loc).Format(timeLayout)

	dec := d
	if in.Action.Opens() {
		return Alert{
			Level:    AlertInfo,
			Title:    "PLACE NEW ORDER",
			Message:  entryMessage(d, size, when),
			Decision: &dec,
		}
	}

	level := AlertInfo
	if in.Reason == model.ReasonStopLoss {
		level = AlertWarning
	}
	return Alert{
		Level:    level,
		Title:    exitTitle(in.Reason),
		Message:  exitMessage(d, when),
		Decision: &dec,
	}
}

func entryMessage(d model.Decision, size, when string) string {
	in := d.Intent
	side := in.Action.Side()

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", side, in.Symbol)
	fmt.Fprintf(&b, "Time:  %s\n", when)
	if size != "" {
		fmt.Fprintf(&b, "Size:  %s\n", size)
	}
	b.WriteString("\n")

	lv := d.After.Levels
	if lv == nil {
		fmt.Fprintf(&b, "Entry: %s", fmtPrice(in.ReferencePrice))
		return b.String()
	}
	if side == model.SideShort {
		fmt.Fprintf(&b, "SL:    %s\n", fmtPrice(lv.StopLoss))
		fmt.Fprintf(&b, "Entry: %s\n", fmtPrice(lv.Entry))
		fmt.Fprintf(&b, "TS:    %s\n", fmtPrice(lv.TrailingActivation))
		fmt.Fprintf(&b, "TP:    %s", fmtPrice(lv.TakeProfit))
	} else {
		fmt.Fprintf(&b, "TP:    %s\n", fmtPrice(lv.TakeProfit))
		fmt.Fprintf(&b, "TS:    %s\n", fmtPrice(lv.TrailingActivation))
		fmt.Fprintf(&b, "Entry: %s\n", fmtPrice(lv.Entry))
		fmt.Fprintf(&b, "SL:    %s", fmtPrice(lv.StopLoss))
	}
	return b.String()
}

func exitTitle(r model.Reason) string {
	switch r {
	case model.ReasonTakeProfit:
		return "TAKE PROFIT"
	case model.ReasonStopLoss:
		return "STOP LOSS"
	case model.ReasonTrailingStop:
		return "TRAILING STOP"
	default:
		return "SIGNAL EXIT"
	}
}

func exitMessage(d model.Decision, when string) string {
	in := d.Intent

	var b strings.Builder
	fmt.Fprintf(&b, "CLOSE %s %s\n", in.Action.Side(), in.Symbol)
	fmt.Fprintf(&b, "Time:  %s\n", when)
	fmt.Fprintf(&b, "Exit:  %s", fmtPrice(in.ReferencePrice))

	if lv := d.Before.Levels; lv != nil && lv.Entry > 0 {
		fmt.Fprintf(&b, "\nEntry: %s\n", fmtPrice(lv.Entry))
		fmt.Fprintf(&b, "PnL:   %s%%", ExitPnLPct(in.Action.Side(), lv.Entry, in.ReferencePrice).StringFixed(2))
	}
	return b.String()
}

// ExitPnLPct is the percent return of closing side at exit after entering at entry.
func ExitPnLPct(side model.Side, entry, exit float64) decimal.Decimal {
	e := decimal.NewFromFloat(entry)
	diff := decimal.NewFromFloat(exit).Sub(e)
	if side == model.SideShort {
		diff = diff.Neg()
	}
	return diff.Div(e).Mul(decimal.NewFromInt(100))
}

// ReportAlert renders a periodic PnL summary.
func ReportAlert(title string, s portfolio.PnLSummary) Alert {
	var b strings.Builder
	fmt.Fprintf(&b, "Trades:   %d (%d won, %d lost)\n", s.Trades, s.Wins, s.Losses)
	fmt.Fprintf(&b, "Win rate: %s%%\n", s.WinRate.StringFixed(1))
	fmt.Fprintf(&b, "PnL:      %s (%s%%)\n", s.TotalPnL.StringFixed(2), s.TotalPct.StringFixed(2))
	fmt.Fprintf(&b, "Max DD:   %s%%\n", s.MaxDrawdown.StringFixed(2))
	fmt.Fprintf(&b, "Open:     %d", s.Open)
	return Alert{Level: AlertInfo, Title: title, Message: b.String()}
}
