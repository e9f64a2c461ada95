package analytics

import (
	"sort"
	"strconv"
	"time"

	"trade-journal/internal/journal"

	"github.com/shopspring/decimal"
)

// EquityPoint is the cumulative net profit after a closed trade
type EquityPoint struct {
	Time    time.Time `json:"time"`
	TradeID string    `json:"tradeId"`
	Equity  float64   `json:"equity"`
}

// Bucket aggregates trades sharing a key (symbol, weekday, hour)
type Bucket struct {
	Key       string  `json:"key"`
	Trades    int     `json:"trades"`
	Wins      int     `json:"wins"`
	NetProfit float64 `json:"netProfit"`
	WinRate   float64 `json:"winRate"`
}

// Stats summarises closed trades. Money values are summed as decimals and
// rounded to cents.
type Stats struct {
	TotalTrades int `json:"totalTrades"`
	OpenTrades  int `json:"openTrades"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	Breakeven   int `json:"breakeven"`

	WinRate      float64 `json:"winRate"`
	NetProfit    float64 `json:"netProfit"`
	GrossProfit  float64 `json:"grossProfit"`
	GrossLoss    float64 `json:"grossLoss"`
	ProfitFactor float64 `json:"profitFactor"` // 0 when there are no losses
	AverageWin   float64 `json:"averageWin"`
	AverageLoss  float64 `json:"averageLoss"`
	LargestWin   float64 `json:"largestWin"`
	LargestLoss  float64 `json:"largestLoss"`
	AverageScore float64 `json:"averageScore"`

	LongestWinStreak  int `json:"longestWinStreak"`
	LongestLossStreak int `json:"longestLossStreak"`
	// CurrentStreak is positive for wins, negative for losses
	CurrentStreak int `json:"currentStreak"`

	MaxDrawdown        float64 `json:"maxDrawdown"`
	MaxDrawdownPercent float64 `json:"maxDrawdownPercent"`

	EquityCurve []EquityPoint `json:"equityCurve"`
	BySymbol    []Bucket      `json:"bySymbol"`
	ByWeekday   []Bucket      `json:"byWeekday"`
	ByHour      []Bucket      `json:"byHour"`
}

type bucketAcc struct {
	trades int
	wins   int
	net    decimal.Decimal
}

// Compute derives Stats from trades. Open trades are counted but excluded
// from every profit figure. Weekday and hour buckets use loc (UTC if nil).
func Compute(trades []journal.Trade, loc *time.Location) Stats {
	if loc == nil {
		loc = time.UTC
	}

	closed := make([]journal.Trade, 0, len(trades))
	var s Stats
	for _, t := range trades {
		if t.IsClosed() {
			closed = append(closed, t)
		} else {
			s.OpenTrades++
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].CloseTime.Before(*closed[j].CloseTime)
	})

	s.TotalTrades = len(closed)
	s.EquityCurve = make([]EquityPoint, 0, len(closed))

	var (
		gross, loss, equity, peak, maxDD, maxDDPct decimal.Decimal
		largestWin, largestLoss                    decimal.Decimal
		scoreSum, winStreak, lossStreak            int
	)
	hundred := decimal.NewFromInt(100)
	bySymbol := map[string]*bucketAcc{}
	byWeekday := map[string]*bucketAcc{}
	byHour := map[string]*bucketAcc{}

	for _, t := range closed {
		p := decimal.NewFromFloat(t.NetProfit)
		win := p.IsPositive()

		switch {
		case win:
			s.Wins++
			gross = gross.Add(p)
			if p.GreaterThan(largestWin) {
				largestWin = p
			}
			winStreak++
			lossStreak = 0
		case p.IsNegative():
			s.Losses++
			loss = loss.Add(p.Abs())
			if p.LessThan(largestLoss) {
				largestLoss = p
			}
			lossStreak++
			winStreak = 0
		default:
			s.Breakeven++
		}
		if winStreak > s.LongestWinStreak {
			s.LongestWinStreak = winStreak
		}
		if lossStreak > s.LongestLossStreak {
			s.LongestLossStreak = lossStreak
		}
		switch {
		case winStreak > 0:
			s.CurrentStreak = winStreak
		case lossStreak > 0:
			s.CurrentStreak = -lossStreak
		}

		equity = equity.Add(p)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if dd := peak.Sub(equity); dd.GreaterThan(maxDD) {
			maxDD = dd
			if peak.IsPositive() {
				maxDDPct = dd.Div(peak).Mul(hundred)
			}
		}
		s.EquityCurve = append(s.EquityCurve, EquityPoint{
			Time:    *t.CloseTime,
			TradeID: t.ID,
			Equity:  money(equity),
		})

		scoreSum += QualityScore(t)

		open := t.OpenTime.In(loc)
		addBucket(bySymbol, t.Symbol, p, win)
		addBucket(byWeekday, open.Weekday().String(), p, win)
		addBucket(byHour, strconv.Itoa(open.Hour()), p, win)
	}

	s.GrossProfit = money(gross)
	s.GrossLoss = money(loss)
	s.NetProfit = money(gross.Sub(loss))
	s.LargestWin = money(largestWin)
	s.LargestLoss = money(largestLoss)
	s.MaxDrawdown = money(maxDD)
	s.MaxDrawdownPercent = money(maxDDPct)

	if s.TotalTrades > 0 {
		s.WinRate = percent(s.Wins, s.TotalTrades)
		s.AverageScore = money(decimal.NewFromInt(int64(scoreSum)).Div(decimal.NewFromInt(int64(s.TotalTrades))))
	}
	if s.Wins > 0 {
		s.AverageWin = money(gross.Div(decimal.NewFromInt(int64(s.Wins))))
	}
	if s.Losses > 0 {
		s.AverageLoss = money(loss.Div(decimal.NewFromInt(int64(s.Losses))))
	}
	if loss.IsPositive() {
		s.ProfitFactor = money(gross.Div(loss))
	}

	s.BySymbol = flatten(bySymbol, func(a, b string) bool { return a < b })
	s.ByWeekday = flatten(byWeekday, func(a, b string) bool { return weekdayIndex(a) < weekdayIndex(b) })
	s.ByHour = flatten(byHour, func(a, b string) bool {
		x, _ := strconv.Atoi(a)
		y, _ := strconv.Atoi(b)
		return x < y
	})
	return s
}

func addBucket(m map[string]*bucketAcc, key string, p decimal.Decimal, win bool) {
	acc, ok := m[key]
	if !ok {
		acc = &bucketAcc{}
		m[key] = acc
	}
	acc.trades++
	if win {
		acc.wins++
	}
	acc.net = acc.net.Add(p)
}

func flatten(m map[string]*bucketAcc, less func(a, b string) bool) []Bucket {
	out := make([]Bucket, 0, len(m))
	for k, acc := range m {
		out = append(out, Bucket{
			Key:       k,
			Trades:    acc.trades,
			Wins:      acc.wins,
			NetProfit: money(acc.net),
			WinRate:   percent(acc.wins, acc.trades),
		})
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Key, out[j].Key) })
	return out
}

func weekdayIndex(name string) int {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == name {
			return int(d)
		}
	}
	return 7
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return money(decimal.NewFromInt(int64(part)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(total))))
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
