package strategy

import "github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"

// Eligibility derives the gate inputs from a most-recent-first list of trades.
// Groups may close out of id order, so the last closed trade is the one with
// the latest exit time; on a tie the newer group wins.
func Eligibility(trades []model.TradeSummary) model.EligibilityState {
	var st model.EligibilityState
	for _, t := range trades {
		if !t.Closed {
			st.OpenTrades++
			continue
		}
		if !st.HasClosedTrade || t.ExitTime.After(st.LastClosedExitAt) {
			st.HasClosedTrade = true
			st.LastClosedPnL = t.RealizedPnL
			st.LastClosedExitAt = t.ExitTime
		}
	}
	return st
}
