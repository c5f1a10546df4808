package schedule

import (
	"errors"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser accepts standard five-field expressions, an optional leading
// seconds field, descriptors (@daily, @every 5m, ...) and CRON_TZ/TZ prefixes.
var cronParser = cronlib.NewParser(
	cronlib.SecondOptional | cronlib.Minute | cronlib.Hour |
		cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Cron is a Schedule backed by a cron expression. Builder and English
// schedules compile to a Cron as well.
type Cron struct {
	source string // what the caller wrote
	expr   string // the cron expression actually evaluated

	spec  *cronlib.SpecSchedule
	every time.Duration
	loc   *time.Location // non-nil when the expression pins a zone
}

var _ Schedule = (*Cron)(nil)

// NewCron parses a cron expression.
func NewCron(expr string) (*Cron, error) {
	c, err := compileCron(expr)
	if err != nil {
		return nil, &ParseError{Kind: "cron", Expr: expr, Err: err}
	}
	c.source = expr
	return c, nil
}

// MustCron is like NewCron but panics on error.
func MustCron(expr string) *Cron {
	c, err := NewCron(expr)
	if err != nil {
		panic(err)
	}
	return c
}

func compileCron(expr string) (*Cron, error) {
	if expr == "" {
		return nil, errors.New("empty expression")
	}
	parsed, err := cronParser.Parse(expr)
	if err != nil {
		return nil, err
	}
	c := &Cron{expr: expr}
	switch s := parsed.(type) {
	case *cronlib.SpecSchedule:
		if s.Location != time.Local {
			c.loc = s.Location
		}
		// Evaluate on floating wall-clock times; the zone is applied by
		// Resolve afterwards.
		s.Location = time.UTC
		c.spec = s
	case cronlib.ConstantDelaySchedule:
		c.every = s.Delay
	default:
		return nil, errors.New("unsupported schedule type")
	}
	return c, nil
}

// Next returns the next matching instant strictly after ref. Calendar
// expressions match against the wall clock of ref's location (or the
// expression's own CRON_TZ); "@every" expressions add a fixed duration.
func (c *Cron) Next(ref time.Time) (time.Time, bool) {
	if c.every > 0 {
		// Same rounding as robfig: whole seconds, aligned to ref's second.
		next := ref.Add(c.every - time.Duration(ref.Nanosecond()))
		return next, true
	}
	loc := ref.Location()
	if c.loc != nil {
		loc = c.loc
	}
	next, ok := nextWall(ref, loc, c.spec.Next)
	if !ok {
		return time.Time{}, false
	}
	return next.In(ref.Location()), true
}

// Expr returns the cron expression evaluated by c.
func (c *Cron) Expr() string { return c.expr }

// String returns the expression or phrase c was created from.
func (c *Cron) String() string {
	if c.source != "" {
		return c.source
	}
	return c.expr
}
