// Package sim runs a session in demo mode: the broker connection and trade
// cycle are replaced by a synthetic outcome model so the same strategies and
// bookkeeping can be exercised without real money or a live socket.
package sim

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"derivbot/internal/domain"
)

// payoutRate is the gross return on a winning contract. Digit over/under
// rates depend on the barrier because the broker prices them by how many
// digits win.
func payoutRate(ct domain.ContractType, barrier string) float64 {
	switch ct {
	case domain.DigitDiff:
		return 0.0619
	case domain.DigitOver, domain.DigitUnder:
		return 0.95
	case domain.DigitEven, domain.DigitOdd:
		return 0.96
	case domain.Call, domain.Put:
		return 0.75
	case domain.NoTouch:
		return 1.5
	}
	return 0
}

// winProbability is the raw chance of a winning draw before the fairness
// constraints are applied.
func winProbability(ct domain.ContractType, barrier string) float64 {
	switch ct {
	case domain.DigitDiff:
		return 0.90
	case domain.DigitOver:
		if barrier == "0" {
			return 0.90 // Digits 1-9 win, only 0 loses
		}
		return 0.60
	case domain.DigitUnder:
		if barrier == "9" {
			return 0.90 // Digits 0-8 win, only 9 loses
		}
		return 0.60
	case domain.DigitEven, domain.DigitOdd, domain.Call, domain.Put:
		return 0.50
	case domain.NoTouch:
		return 0.30
	}
	return 0.50
}

// settlementProfit computes the signed profit for one settled trade: the
// full stake is lost on a loss, the payout rate earned on a win.
func settlementProfit(stake decimal.Decimal, ct domain.ContractType, barrier string, win bool) decimal.Decimal {
	if !win {
		return stake.Neg()
	}
	return stake.Mul(decimal.NewFromFloat(payoutRate(ct, barrier))).Round(2)
}

// drawOutcome decides a synthetic trade result. Two fairness constraints
// keep demo sessions watchable and are checked before the random draw:
// digit bots win once two losses are in a row, and every strategy wins when
// losing again would put three losses in the last ten trades.
func drawOutcome(rnd *rand.Rand, ct domain.ContractType, barrier string, digitBot bool, stats domain.SessionStats) bool {
	if digitBot && stats.ConsecutiveLosses >= 2 {
		return true
	}
	if stats.LossesInLast(10) >= 2 {
		return true
	}
	return rnd.Float64() < winProbability(ct, barrier)
}
