package presence_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/checkmate/lock"
	"github.com/warp/checkmate/presence"
	"github.com/warp/checkmate/presence/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var alice = presence.Credential{Tag: "A1B2C3", PIN: 1234}

func clock(s string) presence.ClockTime { return presence.MustParseClockTime(s) }

// march returns a local time in March 2025; the 10th is a Monday.
func march(day, hour, minute int) time.Time {
	return time.Date(2025, time.March, day, hour, minute, 0, 0, time.Local)
}

func officeHours() presence.Schedule {
	return presence.Schedule{
		ID:   "office",
		Name: "Office hours",
		Shifts: []presence.Shift{
			{StartDay: time.Monday, EndDay: time.Friday, Start: clock("09:00"), End: clock("17:00")},
		},
	}
}

func mondaysOnly() presence.Schedule {
	return presence.Schedule{
		ID:   "mondays",
		Name: "Mondays",
		Shifts: []presence.Shift{
			{StartDay: time.Monday, EndDay: time.Monday, Start: clock("09:00"), End: clock("17:00")},
		},
	}
}

// everyWeekday has one shift per weekday, so reporting counts each of them.
func everyWeekday() presence.Schedule {
	sched := presence.Schedule{ID: "weekdays", Name: "Weekdays"}
	for d := time.Monday; d <= time.Friday; d++ {
		sched.Shifts = append(sched.Shifts, presence.Shift{StartDay: d, EndDay: d, Start: clock("09:00"), End: clock("17:00")})
	}
	return sched
}

// newEngine seeds a memory store with one employee on sched.
func newEngine(t *testing.T, sched presence.Schedule) (*store.Memory, *presence.Validator) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()

	require.NoError(t, s.SaveDepartment(ctx, presence.Department{ID: "eng", Name: "Engineering"}))
	require.NoError(t, s.SaveSchedule(ctx, sched))
	require.NoError(t, s.SaveEmployee(ctx, presence.Employee{
		ID:           "emp-1",
		Tag:          alice.Tag,
		PIN:          alice.PIN,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Status:       "active",
		DepartmentID: "eng",
		ScheduleID:   sched.ID,
	}))

	v := presence.NewValidator(s)
	v.Locker = lock.NewKeyedMutex()
	return s, v
}

func record(t *testing.T, s *store.Memory) presence.EmployeeRecord {
	t.Helper()
	rec, err := s.FindEmployeeByID(context.Background(), "emp-1")
	require.NoError(t, err)
	return rec
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("redis: connection refused")
}

// =============================================================================
// ADMISSION
// =============================================================================

func TestAdmit_DailyCycle(t *testing.T) {
	ctx := context.Background()
	s, v := newEngine(t, officeHours())

	// GIVEN: Monday 09:10, ten minutes into the shift
	// WHEN: The employee scans
	a, err := v.Admit(ctx, alice, march(10, 9, 10))

	// THEN: Attendance is recorded
	require.NoError(t, err)
	assert.True(t, a.Granted)
	assert.Equal(t, presence.ActionAttendanceRecorded, a.Action)
	assert.Equal(t, presence.EmployeeID("emp-1"), a.EmployeeID)
	require.NotNil(t, a.Event)
	assert.Equal(t, presence.KindAttendance, a.Event.Kind)
	assert.True(t, a.Match.WithinShift)

	// WHEN: They scan again at 17:05 (inside the trailing buffer)
	a, err = v.Admit(ctx, alice, march(10, 17, 5))

	// THEN: Leave is recorded
	require.NoError(t, err)
	assert.True(t, a.Granted)
	assert.Equal(t, presence.ActionLeaveRecorded, a.Action)
	assert.False(t, a.Match.WithinShift)
	assert.True(t, a.Match.WithinBuffer)

	// WHEN: A third scan the same day
	a, err = v.Admit(ctx, alice, march(10, 17, 20))

	// THEN: Denied, nothing new is written
	require.NoError(t, err)
	assert.False(t, a.Granted)
	assert.Equal(t, presence.ReasonAlreadyComplete, a.Reason)

	all, err := s.ListEvents(ctx, presence.EventFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// AND: The day reads as present, ten minutes late, not early
	st, err := presence.NewResolver(s).ResolveDay(ctx, record(t, s), presence.NewDay(2025, time.March, 10))
	require.NoError(t, err)
	assert.Equal(t, presence.StatusPresent, st.Status)
	assert.Equal(t, "0h 10m", st.LateBy())
	assert.Equal(t, "0h 0m", st.EarlyBy())
	assert.Equal(t, "7h 55m", st.PresenceDuration())
}

func TestAdmit_NextDayStartsFresh(t *testing.T) {
	ctx := context.Background()
	_, v := newEngine(t, officeHours())

	for _, ts := range []time.Time{march(10, 9, 0), march(10, 17, 0)} {
		_, err := v.Admit(ctx, alice, ts)
		require.NoError(t, err)
	}

	a, err := v.Admit(ctx, alice, march(11, 8, 55))
	require.NoError(t, err)
	assert.True(t, a.Granted)
	assert.Equal(t, presence.ActionAttendanceRecorded, a.Action)
}

func TestAdmit_OutsideWindow(t *testing.T) {
	ctx := context.Background()
	s, v := newEngine(t, officeHours())

	// GIVEN: Monday 07:00, more than an hour before the shift
	a, err := v.Admit(ctx, alice, march(10, 7, 0))

	// THEN: Denied without writing
	require.NoError(t, err)
	assert.False(t, a.Granted)
	assert.Equal(t, presence.ReasonOutsideWindow, a.Reason)
	assert.Nil(t, a.Event)

	all, err := s.ListEvents(ctx, presence.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAdmit_UnknownCredential(t *testing.T) {
	ctx := context.Background()
	_, v := newEngine(t, officeHours())

	tests := []struct {
		name string
		cred presence.Credential
	}{
		{"unknown tag", presence.Credential{Tag: "FFFFFF", PIN: 1234}},
		{"wrong pin", presence.Credential{Tag: alice.Tag, PIN: 9999}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := v.Admit(ctx, tt.cred, march(10, 9, 0))
			require.NoError(t, err)
			assert.False(t, a.Granted)
			assert.Empty(t, a.EmployeeID)
		})
	}
}

func TestAdmit_EmptyTag(t *testing.T) {
	_, v := newEngine(t, officeHours())

	_, err := v.Admit(context.Background(), presence.Credential{PIN: 1234}, march(10, 9, 0))

	require.Error(t, err)
	assert.ErrorIs(t, err, presence.ErrValidation)
	assert.True(t, presence.IsClientError(err))
}

func TestAdmit_NoSchedule(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.SaveEmployee(ctx, presence.Employee{ID: "emp-2", Tag: "NOSCHED", PIN: 1}))
	v := presence.NewValidator(s)

	a, err := v.Admit(ctx, presence.Credential{Tag: "NOSCHED", PIN: 1}, march(10, 9, 0))

	require.NoError(t, err)
	assert.False(t, a.Granted)
	assert.Equal(t, presence.ReasonOutsideWindow, a.Reason)
}

func TestAdmit_LockUnavailable(t *testing.T) {
	ctx := context.Background()
	s, v := newEngine(t, officeHours())
	v.Locker = failingLocker{}

	_, err := v.Admit(ctx, alice, march(10, 9, 0))

	require.Error(t, err)
	assert.ErrorIs(t, err, presence.ErrLockUnavailable)

	all, err := s.ListEvents(ctx, presence.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, all, "no decision is made without the lock")
}

func TestAdmit_ConcurrentScans(t *testing.T) {
	tests := []struct {
		name   string
		locker presence.Locker
	}{
		{"keyed mutex", lock.NewKeyedMutex()},
		{"store constraint only", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, v := newEngine(t, officeHours())
			v.Locker = tt.locker

			// GIVEN: Many simultaneous scans for the same employee and day
			const scans = 16
			results := make([]presence.Admission, scans)
			errs := make([]error, scans)

			var wg sync.WaitGroup
			for i := range scans {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results[i], errs[i] = v.Admit(ctx, alice, march(10, 9, 5))
				}()
			}
			wg.Wait()

			// THEN: Exactly one attendance and one leave are written
			actions := map[presence.Action]int{}
			for i := range scans {
				require.NoError(t, errs[i])
				if results[i].Granted {
					actions[results[i].Action]++
				}
			}
			assert.Equal(t, 1, actions[presence.ActionAttendanceRecorded])
			assert.Equal(t, 1, actions[presence.ActionLeaveRecorded])

			for _, kind := range []presence.EventKind{presence.KindAttendance, presence.KindLeave} {
				evs, err := s.ListEvents(ctx, presence.EventFilter{Kind: kind, EmployeeID: "emp-1"})
				require.NoError(t, err)
				assert.Len(t, evs, 1, "kind %s", kind)
			}
		})
	}
}

// =============================================================================
// RECORDER
// =============================================================================

func TestRecorder_Duplicate(t *testing.T) {
	ctx := context.Background()
	s, _ := newEngine(t, officeHours())
	r := presence.NewRecorder(s)

	first, err := r.Record(ctx, presence.KindAttendance, "emp-1", alice, march(10, 9, 0))
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	// Same day, different time: still the same slot
	_, err = r.Record(ctx, presence.KindAttendance, "emp-1", alice, march(10, 14, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, presence.ErrDuplicateEvent)

	var dup *presence.DuplicateEventError
	require.True(t, errors.As(err, &dup))
	require.NotNil(t, dup.Existing)
	assert.Equal(t, first.ID, dup.Existing.ID)

	// Other kind is a separate slot
	_, err = r.Record(ctx, presence.KindLeave, "emp-1", alice, march(10, 14, 0))
	assert.NoError(t, err)
}

func TestRecorder_InvalidKind(t *testing.T) {
	s, _ := newEngine(t, officeHours())
	_, err := presence.NewRecorder(s).Record(context.Background(), "lunch", "emp-1", alice, march(10, 12, 0))
	assert.ErrorIs(t, err, presence.ErrValidation)
}

// =============================================================================
// DAILY RESOLUTION
// =============================================================================

func TestResolveDay_NotScheduled(t *testing.T) {
	s, _ := newEngine(t, officeHours())

	// Sunday
	_, err := presence.NewResolver(s).ResolveDay(context.Background(), record(t, s), presence.NewDay(2025, time.March, 9))
	assert.ErrorIs(t, err, presence.ErrNotScheduled)
}

func TestResolveDay_StillInside(t *testing.T) {
	ctx := context.Background()
	s, v := newEngine(t, officeHours())

	_, err := v.Admit(ctx, alice, march(10, 9, 0))
	require.NoError(t, err)

	st, err := presence.NewResolver(s).ResolveDay(ctx, record(t, s), presence.NewDay(2025, time.March, 10))
	require.NoError(t, err)
	assert.Equal(t, presence.StatusStillInside, st.Status)
	assert.Equal(t, "0h 0m", st.EarlyBy())
}

func TestResolveDay_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, v := newEngine(t, officeHours())
	for _, ts := range []time.Time{march(10, 9, 20), march(10, 16, 30)} {
		_, err := v.Admit(ctx, alice, ts)
		require.NoError(t, err)
	}

	r := presence.NewResolver(s)
	day := presence.NewDay(2025, time.March, 10)
	first, err := r.ResolveDay(ctx, record(t, s), day)
	require.NoError(t, err)
	second, err := r.ResolveDay(ctx, record(t, s), day)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 20, first.LateMinutes)
	assert.Equal(t, 30, first.EarlyMinutes)
}

func TestResolveDay_StoreFailure(t *testing.T) {
	s, _ := newEngine(t, officeHours())
	s.FailEvents = func(presence.Day) error { return errors.New("disk full") }

	st, err := presence.NewResolver(s).ResolveDay(context.Background(), record(t, s), presence.NewDay(2025, time.March, 10))

	require.Error(t, err)
	assert.ErrorIs(t, err, presence.ErrStore)
	assert.Equal(t, presence.StatusUnknown, st.Status)
	assert.Equal(t, clock("09:00"), st.Shift.Start)
}

// =============================================================================
// MONTHLY AGGREGATION
// =============================================================================

func TestResolveMonth_MondaysOnly(t *testing.T) {
	ctx := context.Background()
	s, v := newEngine(t, mondaysOnly())

	// GIVEN: One complete Monday in the window
	for _, ts := range []time.Time{march(10, 9, 10), march(10, 16, 50)} {
		a, err := v.Admit(ctx, alice, ts)
		require.NoError(t, err)
		require.True(t, a.Granted)
	}

	// WHEN: The 30-day report ending Monday 2025-03-31 is built
	agg := presence.NewAggregator(presence.NewResolver(s))
	report, err := agg.ResolveMonth(ctx, record(t, s), presence.NewDay(2025, time.March, 31))
	require.NoError(t, err)

	// THEN: Only the five Mondays count
	assert.Equal(t, "2025-03-02", report.From.String())
	assert.Equal(t, "2025-03-31", report.To.String())
	assert.Equal(t, 5, report.TotalDays)
	assert.Equal(t, 1, report.PresentDays)
	assert.Equal(t, 4, report.AbsentDays)
	assert.Equal(t, "20.00%", report.FormattedPresenceRate())
	assert.Equal(t, "0h 10m", report.TotalLate())
	assert.Equal(t, "0h 10m", report.TotalEarlyLeaves())

	var dates []string
	for _, d := range report.Days {
		assert.Equal(t, time.Monday, d.Date.Weekday())
		dates = append(dates, d.Date.String())
	}
	assert.Equal(t, []string{"2025-03-03", "2025-03-10", "2025-03-17", "2025-03-24", "2025-03-31"}, dates)
}

func TestResolveMonth_RangeShiftCountsStartDayOnly(t *testing.T) {
	ctx := context.Background()
	s, v := newEngine(t, officeHours())

	// GIVEN: A Mon-Fri shift admits on a Wednesday
	a, err := v.Admit(ctx, alice, march(12, 9, 0))
	require.NoError(t, err)
	require.True(t, a.Granted)

	// WHEN: The report ending 2025-03-31 is built
	report, err := presence.NewAggregator(presence.NewResolver(s)).
		ResolveMonth(ctx, record(t, s), presence.NewDay(2025, time.March, 31))
	require.NoError(t, err)

	// THEN: Only the shift's start day (Monday) is a reporting day
	assert.Equal(t, 5, report.TotalDays)
	assert.Zero(t, report.PresentDays)
	assert.Equal(t, 5, report.AbsentDays)
}

func TestResolveMonth_LeaveOnlyDayCountsEarly(t *testing.T) {
	ctx := context.Background()
	s, _ := newEngine(t, mondaysOnly())
	r := presence.NewRecorder(s)

	// GIVEN: Monday 2025-03-17 has a leave at 15:00 and no attendance
	_, err := r.Record(ctx, presence.KindLeave, "emp-1", alice, march(17, 15, 0))
	require.NoError(t, err)

	// WHEN: The monthly report covering it is built
	report, err := presence.NewAggregator(presence.NewResolver(s)).
		ResolveMonth(ctx, record(t, s), presence.NewDay(2025, time.March, 31))
	require.NoError(t, err)

	// THEN: The day is absent but its early leave is totalled
	assert.Equal(t, 5, report.AbsentDays)
	assert.Equal(t, 120, report.EarlyMinutes)
	assert.Equal(t, "2h 0m", report.TotalEarlyLeaves())
	assert.Equal(t, "0.00%", report.FormattedPresenceRate())
}

func TestResolveMonth_NoShifts(t *testing.T) {
	ctx := context.Background()
	s, _ := newEngine(t, presence.Schedule{ID: "empty", Name: "Nothing"})

	report, err := presence.NewAggregator(presence.NewResolver(s)).
		ResolveMonth(ctx, record(t, s), presence.NewDay(2025, time.March, 31))

	require.NoError(t, err)
	assert.Zero(t, report.TotalDays)
	assert.Empty(t, report.Days)
	assert.Equal(t, presence.RateNotAvailable, report.FormattedPresenceRate())
}

func TestResolveMonth_FailingDaysAreUnknown(t *testing.T) {
	ctx := context.Background()
	s, _ := newEngine(t, everyWeekday())
	broken := presence.NewDay(2025, time.March, 12)
	s.FailEvents = func(d presence.Day) error {
		if d.Equal(broken) {
			return errors.New("timeout")
		}
		return nil
	}

	agg := presence.NewAggregator(presence.NewResolver(s))
	agg.Concurrency = 3
	report, err := agg.ResolveMonth(ctx, record(t, s), presence.NewDay(2025, time.March, 14))

	// THEN: The report completes and the broken day is marked unknown
	require.NoError(t, err)
	assert.Equal(t, 1, report.UnknownDays)
	assert.Equal(t, report.TotalDays, report.AbsentDays+report.UnknownDays)

	var found bool
	for _, d := range report.Days {
		if d.Date.Equal(broken) {
			found = true
			assert.Equal(t, presence.StatusUnknown, d.Status)
			assert.NotEmpty(t, d.Error)
		}
	}
	assert.True(t, found)
}

func TestResolveMonth_Chronological(t *testing.T) {
	ctx := context.Background()
	s, _ := newEngine(t, everyWeekday())

	// GIVEN: Earlier days are slower to fetch, so lookups finish newest first
	var (
		mu       sync.Mutex
		finished []string
	)
	s.FailEvents = func(d presence.Day) error {
		time.Sleep(time.Duration(32-d.Time.Day()) * 2 * time.Millisecond)
		mu.Lock()
		finished = append(finished, d.String())
		mu.Unlock()
		return nil
	}

	// WHEN: Every day runs at once
	agg := presence.NewAggregator(presence.NewResolver(s))
	agg.Concurrency = 32
	report, err := agg.ResolveMonth(ctx, record(t, s), presence.NewDay(2025, time.March, 31))
	require.NoError(t, err)

	// THEN: Lookups completed out of order but the report is chronological
	require.NotEmpty(t, finished)
	assert.Equal(t, "2025-03-31", finished[0], "latest day finished first")

	// 2025-03-02..31 holds 21 weekdays.
	require.Equal(t, 21, report.TotalDays)
	assert.Equal(t, "2025-03-03", report.Days[0].Date.String())
	assert.Equal(t, "2025-03-31", report.Days[20].Date.String())
	for i := 1; i < len(report.Days); i++ {
		assert.True(t, report.Days[i-1].Date.Before(report.Days[i].Date))
	}
}

func TestResolveMonth_Canceled(t *testing.T) {
	s, _ := newEngine(t, officeHours())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := presence.NewAggregator(presence.NewResolver(s)).
		ResolveMonth(ctx, record(t, s), presence.NewDay(2025, time.March, 31))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.TotalDays)
}
