package schedule_test

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/xraph/cadence/schedule"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return loc
}

func mustNext(t *testing.T, s schedule.Schedule, ref time.Time) time.Time {
	t.Helper()
	next, ok := s.Next(ref)
	if !ok {
		t.Fatalf("Next(%v) reported exhausted", ref)
	}
	return next
}

func TestCronNext(t *testing.T) {
	utc := time.UTC
	tests := []struct {
		name string
		expr string
		ref  time.Time
		want time.Time
	}{
		{"every minute", "* * * * *", time.Date(2025, 1, 1, 10, 0, 30, 0, utc), time.Date(2025, 1, 1, 10, 1, 0, 0, utc)},
		{"strictly after match", "0 * * * *", time.Date(2025, 1, 1, 10, 0, 0, 0, utc), time.Date(2025, 1, 1, 11, 0, 0, 0, utc)},
		{"seconds field", "*/10 * * * * *", time.Date(2025, 1, 1, 10, 0, 1, 0, utc), time.Date(2025, 1, 1, 10, 0, 10, 0, utc)},
		{"daily descriptor", "@daily", time.Date(2025, 1, 1, 10, 0, 0, 0, utc), time.Date(2025, 1, 2, 0, 0, 0, 0, utc)},
		{"every descriptor", "@every 90s", time.Date(2025, 1, 1, 10, 0, 0, 0, utc), time.Date(2025, 1, 1, 10, 1, 30, 0, utc)},
		{"weekday names", "0 9 * * MON", time.Date(2025, 1, 1, 0, 0, 0, 0, utc), time.Date(2025, 1, 6, 9, 0, 0, 0, utc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := schedule.NewCron(tt.expr)
			if err != nil {
				t.Fatalf("NewCron: %v", err)
			}
			if got := mustNext(t, c, tt.ref); !got.Equal(tt.want) {
				t.Errorf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCronParseError(t *testing.T) {
	for _, expr := range []string{"", "not a cron", "61 * * * *", "* * * * * * *", "@fortnightly"} {
		_, err := schedule.NewCron(expr)
		var pe *schedule.ParseError
		if !errors.As(err, &pe) {
			t.Errorf("NewCron(%q) = %v, want *ParseError", expr, err)
			continue
		}
		if pe.Kind != "cron" || pe.Expr != expr {
			t.Errorf("ParseError = %+v", pe)
		}
	}
}

func TestCronEvaluatesInReferenceZone(t *testing.T) {
	tokyo := mustLoad(t, "Asia/Tokyo")
	c := schedule.MustCron("0 30 9 * * *")
	ref := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) // 09:00 in Tokyo
	got := mustNext(t, c, ref.In(tokyo))
	want := time.Date(2025, 6, 1, 9, 30, 0, 0, tokyo)
	if !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestCronTZPrefix(t *testing.T) {
	c := schedule.MustCron("CRON_TZ=Asia/Tokyo 0 9 * * *")
	ref := time.Date(2025, 6, 1, 0, 30, 0, 0, time.UTC) // 09:30 Tokyo
	got := mustNext(t, c, ref)
	want := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC) // 09:00 Tokyo next day
	if !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
	if got.Location() != time.UTC {
		t.Errorf("result should stay in the reference zone, got %v", got.Location())
	}
}

func TestDSTGapSkipsForward(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	c := schedule.MustCron("30 2 * * *")

	// 2025-03-09 02:00 EST jumps to 03:00 EDT.
	ref := time.Date(2025, 3, 9, 0, 0, 0, 0, ny)
	got := mustNext(t, c, ref)
	want := time.Date(2025, 3, 9, 7, 0, 0, 0, time.UTC) // 03:00 EDT
	if !got.Equal(want) {
		t.Fatalf("gap Next = %v, want %v", got, want)
	}

	got = mustNext(t, c, got)
	want = time.Date(2025, 3, 10, 2, 30, 0, 0, ny)
	if !got.Equal(want) {
		t.Fatalf("after gap Next = %v, want %v", got, want)
	}
}

func TestDSTGapCollapsesFirings(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	c := schedule.MustCron("*/15 2 * * *")

	ref := time.Date(2025, 3, 9, 1, 0, 0, 0, ny)
	first := mustNext(t, c, ref)
	if want := time.Date(2025, 3, 9, 7, 0, 0, 0, time.UTC); !first.Equal(want) {
		t.Fatalf("first = %v, want %v", first, want)
	}
	second := mustNext(t, c, first)
	if want := time.Date(2025, 3, 10, 2, 0, 0, 0, ny); !second.Equal(want) {
		t.Fatalf("second = %v, want %v", second, want)
	}
}

func TestDSTFoldFiresOnceAtEarliest(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	c := schedule.MustCron("30 1 * * *")

	// 2025-11-02 01:00-02:00 happens twice (EDT, then EST).
	ref := time.Date(2025, 11, 2, 0, 0, 0, 0, ny)
	got := mustNext(t, c, ref)
	want := time.Date(2025, 11, 2, 5, 30, 0, 0, time.UTC) // 01:30 EDT
	if !got.Equal(want) {
		t.Fatalf("fold Next = %v, want %v", got, want)
	}

	got = mustNext(t, c, got)
	want = time.Date(2025, 11, 3, 1, 30, 0, 0, ny)
	if !got.Equal(want) {
		t.Fatalf("after fold Next = %v, want %v (no second 01:30)", got, want)
	}
}

func TestResolve(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	tests := []struct {
		name string
		wall time.Time
		want time.Time
	}{
		{"ordinary", time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC), time.Date(2025, 7, 4, 16, 0, 0, 0, time.UTC)},
		{"fold earliest", time.Date(2025, 11, 2, 1, 15, 0, 0, time.UTC), time.Date(2025, 11, 2, 5, 15, 0, 0, time.UTC)},
		{"gap start", time.Date(2025, 3, 9, 2, 0, 0, 0, time.UTC), time.Date(2025, 3, 9, 7, 0, 0, 0, time.UTC)},
		{"gap middle", time.Date(2025, 3, 9, 2, 59, 59, 0, time.UTC), time.Date(2025, 3, 9, 7, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := schedule.Resolve(tt.wall, ny)
			if !got.Equal(tt.want) {
				t.Errorf("Resolve = %v, want %v", got, tt.want)
			}
			if got.Location() != ny {
				t.Errorf("location = %v", got.Location())
			}
		})
	}
}

func TestScheduleStrictlyIncreasing(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	c := schedule.MustCron("*/20 * * * *")
	ref := time.Date(2025, 3, 8, 0, 0, 0, 0, ny)
	end := time.Date(2025, 11, 4, 0, 0, 0, 0, ny)
	for ref.Before(end) {
		next := mustNext(t, c, ref)
		if !next.After(ref) {
			t.Fatalf("Next(%v) = %v, not strictly after", ref, next)
		}
		if next.Sub(ref) > 2*time.Hour {
			t.Fatalf("Next(%v) = %v, skipped too far", ref, next)
		}
		ref = next
	}
}

func TestBuilder(t *testing.T) {
	tests := []struct {
		name string
		b    *schedule.Builder
		want string
	}{
		{"each day at", schedule.Each().Day().At("9:30"), "0 30 9 * * *"},
		{"each day default midnight", schedule.Each().Day(), "0 0 0 * * *"},
		{"every 15 minutes", schedule.Every(15).Minutes(), "0 */15 * * * *"},
		{"each second", schedule.Each().Second(), "* * * * * *"},
		{"every 2 hours", schedule.Every(2).Hours(), "0 0 */2 * * *"},
		{"monday", schedule.Each().Monday().At("08:00:15"), "15 0 8 * * 1"},
		{"weekdays", schedule.Each().Weekdays().At("17:00"), "0 0 17 * * 1,2,3,4,5"},
		{"weekends", schedule.Each().Weekends(), "0 0 0 * * 0,6"},
		{"weekly default sunday", schedule.Each().Week(), "0 0 0 * * 0"},
		{"month on", schedule.Each().Month().On(15).At("12:00"), "0 0 12 15 * *"},
		{"every 3 months", schedule.Every(3).Months(), "0 0 0 1 */3 *"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tt.b.Build()
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if c.Expr() != tt.want {
				t.Errorf("Expr = %q, want %q", c.Expr(), tt.want)
			}
		})
	}
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name string
		b    *schedule.Builder
	}{
		{"bad time", schedule.Each().Day().At("25:00")},
		{"bad minutes", schedule.Each().Day().At("9:3")},
		{"zero interval", schedule.Every(0).Days()},
		{"no unit", schedule.Each()},
		{"two units", schedule.Each().Day().Hour()},
		{"at on minutes", schedule.Each().Minute().At("1:00")},
		{"every 2 weeks", schedule.Every(2).Weeks()},
		{"on without month", schedule.Each().Day().On(3)},
		{"day of month range", schedule.Each().Month().On(32)},
		{"seconds past range", schedule.Every(90).Seconds()},
		{"minutes past range", schedule.Every(60).Minutes()},
		{"hours past range", schedule.Every(36).Hours()},
		{"days past range", schedule.Every(45).Days()},
		{"months past range", schedule.Every(13).Months()},
		{"minutes not dividing hour", schedule.Every(7).Minutes()},
		{"seconds not dividing minute", schedule.Every(45).Seconds()},
		{"hours not dividing day", schedule.Every(5).Hours()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			var pe *schedule.ParseError
			if !errors.As(err, &pe) || pe.Kind != "builder" {
				t.Fatalf("Build = %v, want builder ParseError", err)
			}
		})
	}
}

func TestBuilderIntervalGapIsConstant(t *testing.T) {
	c := schedule.Every(20).Minutes().MustBuild()
	ref := time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC)
	prev := mustNext(t, c, ref)
	for range 6 {
		next := mustNext(t, c, prev)
		if gap := next.Sub(prev); gap != 20*time.Minute {
			t.Fatalf("gap after %s = %s, want 20m", prev, gap)
		}
		prev = next
	}
}

func TestBuilderDayStepRestartsAtMonth(t *testing.T) {
	c := schedule.Every(2).Days().MustBuild()
	first := mustNext(t, c, time.Date(2025, 1, 30, 12, 0, 0, 0, time.UTC))
	if want := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC); !first.Equal(want) {
		t.Fatalf("first = %s, want %s", first, want)
	}
	second := mustNext(t, c, first)
	if want := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC); !second.Equal(want) {
		t.Fatalf("second = %s, want %s", second, want)
	}
}

func TestBuilderDailyFiresOncePerDay(t *testing.T) {
	c := schedule.Each().Day().At("9:30").MustBuild()
	ref := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := range 5 {
		next := mustNext(t, c, ref)
		want := time.Date(2025, 1, 2+i, 9, 30, 0, 0, time.UTC)
		if !next.Equal(want) {
			t.Fatalf("firing %d = %v, want %v", i, next, want)
		}
		ref = next
	}
}

func TestParseEnglish(t *testing.T) {
	tests := []struct {
		phrase string
		want   string
	}{
		{"every day", "0 0 0 * * *"},
		{"Every day at 9:30", "0 30 9 * * *"},
		{"daily at 9am", "0 0 9 * * *"},
		{"daily at 9 pm", "0 0 21 * * *"},
		{"every day at noon", "0 0 12 * * *"},
		{"every day at midnight", "0 0 0 * * *"},
		{"every day at 12am", "0 0 0 * * *"},
		{"at 6:45pm every day", "0 45 18 * * *"},
		{"every 15 minutes", "0 */15 * * * *"},
		{"every other day", "0 0 0 */2 * *"},
		{"every 30 seconds", "*/30 * * * * *"},
		{"hourly", "0 0 * * * *"},
		{"every hour", "0 0 * * * *"},
		{"every monday at 8am", "0 0 8 * * 1"},
		{"every tuesday and thursday at 17:00", "0 0 17 * * 2,4"},
		{"every mon, wed, fri at 7:15", "0 15 7 * * 1,3,5"},
		{"every weekday at 9:00", "0 0 9 * * 1,2,3,4,5"},
		{"every weekend at 10am", "0 0 10 * * 0,6"},
		{"every month on the 1st at midnight", "0 0 0 1 * *"},
		{"monthly", "0 0 0 1 * *"},
	}
	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			c, err := schedule.ParseEnglish(tt.phrase)
			if err != nil {
				t.Fatalf("ParseEnglish: %v", err)
			}
			if c.Expr() != tt.want {
				t.Errorf("Expr = %q, want %q", c.Expr(), tt.want)
			}
			if c.String() != tt.phrase {
				t.Errorf("String = %q, want the phrase", c.String())
			}
		})
	}
}

func TestParseEnglishErrors(t *testing.T) {
	for _, phrase := range []string{
		"", "sometimes", "every", "every fortnight", "every day at", "every day at 25:00",
		"every day at 13pm", "every monday and someday", "daily at 9 at 10", "every 0 days",
		"every month on the", "hourly please",
		"every 90 seconds", "every 36 hours", "every 45 days", "every 7 minutes",
	} {
		_, err := schedule.ParseEnglish(phrase)
		var pe *schedule.ParseError
		if !errors.As(err, &pe) || pe.Kind != "english" {
			t.Errorf("ParseEnglish(%q) = %v, want english ParseError", phrase, err)
		}
	}
}

func TestParseTagged(t *testing.T) {
	tests := []struct {
		spec string
		want string
	}{
		{"cron:*/5 * * * *", "*/5 * * * *"},
		{"english:every day at 9:30", "0 30 9 * * *"},
		{"0 9 * * 1-5", "0 9 * * 1-5"},
		{"@hourly", "@hourly"},
		{"every 5 minutes", "0 */5 * * * *"},
	}
	for _, tt := range tests {
		c, err := schedule.Parse(tt.spec)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.spec, err)
		}
		if c.Expr() != tt.want {
			t.Errorf("Parse(%q).Expr = %q, want %q", tt.spec, c.Expr(), tt.want)
		}
	}
}

func TestBetween(t *testing.T) {
	c := schedule.MustCron("0 * * * *")
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	w := schedule.Between(c, start, end)

	ref := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var got []time.Time
	for {
		next, ok := w.Next(ref)
		if !ok {
			break
		}
		got = append(got, next)
		ref = next
	}
	if len(got) != 3 || !got[0].Equal(start) || !got[2].Equal(end) {
		t.Fatalf("window firings = %v", got)
	}
}

func TestFuncExhaustion(t *testing.T) {
	limit := time.Date(2025, 1, 1, 0, 3, 0, 0, time.UTC)
	s := schedule.Func(func(ref time.Time) (time.Time, bool) {
		next := ref.Truncate(time.Minute).Add(time.Minute)
		if next.After(limit) {
			return time.Time{}, false
		}
		return next, true
	})
	ref := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	for {
		next, ok := s.Next(ref)
		if !ok {
			break
		}
		n++
		ref = next
	}
	if n != 3 {
		t.Fatalf("fired %d times, want 3", n)
	}
}

func TestBinding(t *testing.T) {
	tokyo := mustLoad(t, "Asia/Tokyo")
	b := schedule.Bind(schedule.Each().Day().At("9:30").MustBuild(), tokyo)
	ref := time.Date(2025, 6, 1, 1, 0, 0, 0, time.UTC) // 10:00 Tokyo
	got := mustNext(t, b, ref)
	want := time.Date(2025, 6, 2, 9, 30, 0, 0, tokyo)
	if !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
	if got.Location() != tokyo || b.Location() != tokyo {
		t.Errorf("binding zone not applied")
	}

	if schedule.Bind(b.Schedule(), nil).Location() != time.Local {
		t.Error("nil location should bind to Local")
	}
}
