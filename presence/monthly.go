/*
monthly.go - Trailing-window presence report

PURPOSE:
  Runs the daily resolver over the WindowDays calendar days ending at a
  reference date (inclusive) and summarizes the result.

COUNTING:
  TotalDays        scheduled days (days with no shift are skipped entirely)
  PresentDays      status Present
  AbsentDays       status Absent
  StillInsideDays  counted in TotalDays, neither present nor absent
  UnknownDays      scheduled days whose events could not be read
  PresenceRate     PresentDays / TotalDays * 100, 2 decimals, "N/A" if TotalDays == 0

CONCURRENCY:
  Days are resolved in parallel (bounded by Concurrency). Each result lands
  in its own slot, so Days is chronological whatever the completion order.
  A failed day becomes Unknown and the rest continue. When ctx is done no
  further days are started; whatever finished is summarized and returned
  together with ctx.Err().
*/
package presence

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWindowDays  = 30
	DefaultConcurrency = 4
)

// RateNotAvailable is rendered when there were no scheduled days.
const RateNotAvailable = "N/A"

// =============================================================================
// REPORT
// =============================================================================

type MonthlyReport struct {
	EmployeeID EmployeeID
	From       Day
	To         Day

	TotalDays       int
	PresentDays     int
	AbsentDays      int
	StillInsideDays int
	UnknownDays     int

	LateMinutes  int
	EarlyMinutes int

	// Days holds every scheduled day, oldest first.
	Days []DailyStatus
}

func (m MonthlyReport) TotalLate() string        { return FormatMinutes(m.LateMinutes) }
func (m MonthlyReport) TotalEarlyLeaves() string { return FormatMinutes(m.EarlyMinutes) }

// PresenceRate returns the rate in percent rounded to 2 places. ok is false
// when there were no scheduled days.
func (m MonthlyReport) PresenceRate() (rate decimal.Decimal, ok bool) {
	if m.TotalDays == 0 {
		return decimal.Zero, false
	}
	rate = decimal.NewFromInt(int64(m.PresentDays)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(m.TotalDays))).
		Round(2)
	return rate, true
}

// FormattedPresenceRate renders "NN.NN%" or RateNotAvailable.
func (m MonthlyReport) FormattedPresenceRate() string {
	rate, ok := m.PresenceRate()
	if !ok {
		return RateNotAvailable
	}
	return rate.StringFixed(2) + "%"
}

func (m *MonthlyReport) add(st DailyStatus) {
	m.TotalDays++
	switch st.Status {
	case StatusPresent:
		m.PresentDays++
	case StatusAbsent:
		m.AbsentDays++
	case StatusStillInside:
		m.StillInsideDays++
	case StatusUnknown:
		m.UnknownDays++
	}
	m.LateMinutes += st.LateMinutes
	m.EarlyMinutes += st.EarlyMinutes
	m.Days = append(m.Days, st)
}

// =============================================================================
// AGGREGATOR
// =============================================================================

type Aggregator struct {
	Resolver    *Resolver
	WindowDays  int
	Concurrency int
	Logger      *zap.Logger
}

// NewAggregator resolves DefaultWindowDays days with DefaultConcurrency
// lookups in flight.
func NewAggregator(resolver *Resolver) *Aggregator {
	return &Aggregator{
		Resolver:    resolver,
		WindowDays:  DefaultWindowDays,
		Concurrency: DefaultConcurrency,
		Logger:      zap.NewNop(),
	}
}

type dayOutcome int

const (
	dayPending dayOutcome = iota
	daySkipped
	dayResolved
)

type dayResult struct {
	outcome dayOutcome
	status  DailyStatus
}

// ResolveMonth builds the report for the window ending at ref.
func (a *Aggregator) ResolveMonth(ctx context.Context, rec EmployeeRecord, ref Day) (MonthlyReport, error) {
	days := TrailingDays(ref, a.windowDays())
	results := make([]dayResult, len(days))

	var g errgroup.Group
	g.SetLimit(a.concurrency())

	for i, day := range days {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = a.resolve(ctx, rec, day)
			return nil
		})
	}
	_ = g.Wait()

	report := MonthlyReport{EmployeeID: rec.Employee.ID}
	if len(days) > 0 {
		report.From, report.To = days[0], days[len(days)-1]
	}
	for _, r := range results {
		if r.outcome == dayResolved {
			report.add(r.status)
		}
	}
	return report, ctx.Err()
}

func (a *Aggregator) resolve(ctx context.Context, rec EmployeeRecord, day Day) dayResult {
	st, err := a.Resolver.ResolveDay(ctx, rec, day)
	switch {
	case err == nil:
		return dayResult{outcome: dayResolved, status: st}
	case errors.Is(err, ErrNotScheduled):
		return dayResult{outcome: daySkipped}
	case ctx.Err() != nil:
		// Abandoned by the caller, not a failure of this day.
		return dayResult{outcome: dayPending}
	}

	a.logger().Warn("day unavailable in monthly report",
		zap.String("employee_id", string(rec.Employee.ID)),
		zap.String("day", day.String()),
		zap.Error(err))
	st.Status = StatusUnknown
	if st.Error == "" {
		st.Error = err.Error()
	}
	return dayResult{outcome: dayResolved, status: st}
}

func (a *Aggregator) windowDays() int {
	if a.WindowDays <= 0 {
		return DefaultWindowDays
	}
	return a.WindowDays
}

func (a *Aggregator) concurrency() int {
	if a.Concurrency <= 0 {
		return 1
	}
	return a.Concurrency
}

func (a *Aggregator) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}
