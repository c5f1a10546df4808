package schedule

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

type unit int

const (
	unitNone unit = iota
	unitSecond
	unitMinute
	unitHour
	unitDay
	unitWeek
	unitMonth
)

var unitNames = map[unit]string{
	unitSecond: "second",
	unitMinute: "minute",
	unitHour:   "hour",
	unitDay:    "day",
	unitWeek:   "week",
	unitMonth:  "month",
}

// Builder assembles a calendar rule fluently:
//
//	schedule.Each().Day().At("9:30").Build()
//	schedule.Every(15).Minutes().Build()
//	schedule.Each().Monday().At("08:00").Build()
//	schedule.Each().Month().On(1).At("12:00").Build()
//
// Errors are collected and reported by Build.
type Builder struct {
	n        int
	unit     unit
	weekdays []time.Weekday
	dom      int

	hasAt      bool
	hh, mm, ss int
	atRaw      string
	errs       []error
}

// Each starts a rule that fires on every unit.
func Each() *Builder { return &Builder{n: 1} }

// Every starts a rule that fires on every n-th unit. Seconds, minutes and
// hours take an n that divides 60, 60 and 24 respectively, so the gap stays
// constant across the boundary; other values fail in Build.
//
// Days and months follow cron step semantics: the count restarts at each
// month (days) or year (months) boundary. Every(2).Days() fires on the 1st,
// 3rd, ... 31st and then again on the 1st.
func Every(n int) *Builder {
	b := &Builder{n: n}
	if n < 1 {
		b.fail(fmt.Errorf("interval %d must be at least 1", n))
	}
	return b
}

func (b *Builder) fail(err error) *Builder {
	b.errs = append(b.errs, err)
	return b
}

func (b *Builder) setUnit(u unit) *Builder {
	if b.unit != unitNone && b.unit != u {
		return b.fail(fmt.Errorf("unit already set to %s", unitNames[b.unit]))
	}
	b.unit = u
	return b
}

// Second selects a per-second rule.
func (b *Builder) Second() *Builder { return b.setUnit(unitSecond) }

// Seconds is Second, for use after Every.
func (b *Builder) Seconds() *Builder { return b.setUnit(unitSecond) }

// Minute selects a per-minute rule.
func (b *Builder) Minute() *Builder { return b.setUnit(unitMinute) }

// Minutes is Minute, for use after Every.
func (b *Builder) Minutes() *Builder { return b.setUnit(unitMinute) }

// Hour selects an hourly rule, fired on the hour.
func (b *Builder) Hour() *Builder { return b.setUnit(unitHour) }

// Hours is Hour, for use after Every.
func (b *Builder) Hours() *Builder { return b.setUnit(unitHour) }

// Day selects a daily rule, fired at midnight unless At is given.
func (b *Builder) Day() *Builder { return b.setUnit(unitDay) }

// Days is Day, for use after Every.
func (b *Builder) Days() *Builder { return b.setUnit(unitDay) }

// Week selects a weekly rule, fired on Sunday unless a weekday is given.
func (b *Builder) Week() *Builder { return b.setUnit(unitWeek) }

// Weeks is Week. Only an interval of one week can be expressed.
func (b *Builder) Weeks() *Builder { return b.setUnit(unitWeek) }

// Month selects a monthly rule, fired on the 1st unless On is given.
func (b *Builder) Month() *Builder { return b.setUnit(unitMonth) }

// Months is Month, for use after Every.
func (b *Builder) Months() *Builder { return b.setUnit(unitMonth) }

// Weekday restricts a weekly rule to the given days.
func (b *Builder) Weekday(days ...time.Weekday) *Builder {
	b.setUnit(unitWeek)
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday {
			return b.fail(fmt.Errorf("invalid weekday %d", d))
		}
		if !slices.Contains(b.weekdays, d) {
			b.weekdays = append(b.weekdays, d)
		}
	}
	return b
}

// Monday restricts a weekly rule to Mondays. The other day methods below
// work the same way and may be chained to select several days.
func (b *Builder) Monday() *Builder { return b.Weekday(time.Monday) }

// Tuesday adds Tuesday to a weekly rule.
func (b *Builder) Tuesday() *Builder { return b.Weekday(time.Tuesday) }

// Wednesday adds Wednesday to a weekly rule.
func (b *Builder) Wednesday() *Builder { return b.Weekday(time.Wednesday) }

// Thursday adds Thursday to a weekly rule.
func (b *Builder) Thursday() *Builder { return b.Weekday(time.Thursday) }

// Friday adds Friday to a weekly rule.
func (b *Builder) Friday() *Builder { return b.Weekday(time.Friday) }

// Saturday adds Saturday to a weekly rule.
func (b *Builder) Saturday() *Builder { return b.Weekday(time.Saturday) }

// Sunday adds Sunday to a weekly rule.
func (b *Builder) Sunday() *Builder { return b.Weekday(time.Sunday) }

// Weekdays restricts a weekly rule to Monday through Friday.
func (b *Builder) Weekdays() *Builder {
	return b.Weekday(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)
}

// Weekends restricts a weekly rule to Saturday and Sunday.
func (b *Builder) Weekends() *Builder {
	return b.Weekday(time.Saturday, time.Sunday)
}

// On sets the day of month for a monthly rule.
func (b *Builder) On(dayOfMonth int) *Builder {
	if dayOfMonth < 1 || dayOfMonth > 31 {
		return b.fail(fmt.Errorf("day of month %d out of range", dayOfMonth))
	}
	b.dom = dayOfMonth
	return b
}

// At sets the wall-clock time of day as "H:MM" or "H:MM:SS" (24-hour).
func (b *Builder) At(clock string) *Builder {
	h, m, s, err := parseClock(clock)
	if err != nil {
		return b.fail(err)
	}
	b.hasAt = true
	b.hh, b.mm, b.ss = h, m, s
	b.atRaw = clock
	return b
}

func parseClock(clock string) (h, m, s int, err error) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, 0, fmt.Errorf("time %q must be H:MM or H:MM:SS", clock)
	}
	vals := make([]int, 3)
	limits := []int{23, 59, 59}
	for i, p := range parts {
		if p == "" || (i > 0 && len(p) != 2) {
			return 0, 0, 0, fmt.Errorf("time %q must be H:MM or H:MM:SS", clock)
		}
		v, convErr := strconv.Atoi(p)
		if convErr != nil || v < 0 || v > limits[i] {
			return 0, 0, 0, fmt.Errorf("time %q out of range", clock)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}

// Build compiles the rule into a Cron schedule.
func (b *Builder) Build() (*Cron, error) {
	expr, err := b.compile()
	if err != nil {
		return nil, &ParseError{Kind: "builder", Expr: b.describe(), Err: err}
	}
	c, err := compileCron(expr)
	if err != nil {
		return nil, &ParseError{Kind: "builder", Expr: b.describe(), Err: err}
	}
	c.source = b.describe()
	return c, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *Cron {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

func (b *Builder) compile() (string, error) {
	if len(b.errs) > 0 {
		return "", errors.Join(b.errs...)
	}
	step := func(n int) string {
		if n == 1 {
			return "*"
		}
		return "*/" + strconv.Itoa(n)
	}
	if b.hasAt && b.unit < unitDay {
		return "", fmt.Errorf("At is only valid for day, week or month rules")
	}
	if b.dom != 0 && b.unit != unitMonth {
		return "", fmt.Errorf("On is only valid for month rules")
	}
	if err := b.checkInterval(); err != nil {
		return "", err
	}
	clock := fmt.Sprintf("%d %d %d", b.ss, b.mm, b.hh)

	switch b.unit {
	case unitSecond:
		return step(b.n) + " * * * * *", nil
	case unitMinute:
		return "0 " + step(b.n) + " * * * *", nil
	case unitHour:
		return "0 0 " + step(b.n) + " * * *", nil
	case unitDay:
		return clock + " " + step(b.n) + " * *", nil
	case unitWeek:
		if b.n != 1 {
			return "", fmt.Errorf("every %d weeks cannot be expressed as a calendar rule", b.n)
		}
		days := b.weekdays
		if len(days) == 0 {
			days = []time.Weekday{time.Sunday}
		}
		sorted := slices.Clone(days)
		slices.Sort(sorted)
		names := make([]string, len(sorted))
		for i, d := range sorted {
			names[i] = strconv.Itoa(int(d))
		}
		return clock + " * * " + strings.Join(names, ","), nil
	case unitMonth:
		dom := b.dom
		if dom == 0 {
			dom = 1
		}
		return fmt.Sprintf("%s %d %s *", clock, dom, step(b.n)), nil
	default:
		return "", errors.New("no unit set")
	}
}

// intervalLimits holds, per unit, the largest step the cron field accepts
// and the cycle a step must divide to keep a constant gap. A zero cycle
// means the step restarts at the field boundary.
var intervalLimits = map[unit]struct{ max, cycle int }{
	unitSecond: {max: 59, cycle: 60},
	unitMinute: {max: 59, cycle: 60},
	unitHour:   {max: 23, cycle: 24},
	unitDay:    {max: 31},
	unitMonth:  {max: 12},
}

func (b *Builder) checkInterval() error {
	lim, ok := intervalLimits[b.unit]
	if !ok || b.n == 1 {
		return nil
	}
	name := unitNames[b.unit]
	if b.n > lim.max {
		return fmt.Errorf("every %d %ss exceeds the %s range (max %d)", b.n, name, name, lim.max)
	}
	if lim.cycle > 0 && lim.cycle%b.n != 0 {
		return fmt.Errorf("every %d %ss does not divide %d and would drift at the boundary", b.n, name, lim.cycle)
	}
	return nil
}

func (b *Builder) describe() string {
	var sb strings.Builder
	if b.n == 1 {
		sb.WriteString("each")
	} else {
		fmt.Fprintf(&sb, "every %d", b.n)
	}
	switch {
	case len(b.weekdays) > 0:
		for i, d := range b.weekdays {
			if i > 0 {
				sb.WriteString(",")
			} else {
				sb.WriteString(" ")
			}
			sb.WriteString(strings.ToLower(d.String()))
		}
	case b.unit != unitNone:
		sb.WriteString(" " + unitNames[b.unit])
	}
	if b.dom != 0 {
		fmt.Fprintf(&sb, " on %d", b.dom)
	}
	if b.hasAt {
		sb.WriteString(" at " + b.atRaw)
	}
	return sb.String()
}
