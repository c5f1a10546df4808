package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Schedule yields successive firing instants.
type Schedule interface {
	// Next returns the first instant strictly after ref, or false when the
	// schedule has no further instants. It is evaluated on ref's location.
	Next(ref time.Time) (time.Time, bool)
}

// Func adapts an ordinary function to Schedule. It is the hook for custom
// rules.
type Func func(ref time.Time) (time.Time, bool)

// Next calls f.
func (f Func) Next(ref time.Time) (time.Time, bool) { return f(ref) }

// ParseError reports a malformed schedule expression. It is only returned at
// construction time.
type ParseError struct {
	// Kind is the schedule flavour being parsed: "cron", "builder" or
	// "english".
	Kind string
	Expr string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("schedule: invalid %s expression %q: %v", e.Kind, e.Expr, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var cronField = regexp.MustCompile(`^[0-9*/,\-?]+$`)

// Parse selects a schedule variant from a tagged expression:
//
//	cron:<expr>       cron expression
//	english:<phrase>  English phrase
//
// Untagged input is treated as cron when it starts with '@', a TZ prefix, or
// has five or six numeric-looking fields, and as English otherwise.
func Parse(spec string) (*Cron, error) {
	s := strings.TrimSpace(spec)
	switch {
	case strings.HasPrefix(s, "cron:"):
		return NewCron(strings.TrimSpace(strings.TrimPrefix(s, "cron:")))
	case strings.HasPrefix(s, "english:"):
		return ParseEnglish(strings.TrimSpace(strings.TrimPrefix(s, "english:")))
	case looksLikeCron(s):
		return NewCron(s)
	default:
		return ParseEnglish(s)
	}
}

func looksLikeCron(s string) bool {
	if strings.HasPrefix(s, "@") || strings.HasPrefix(s, "CRON_TZ=") || strings.HasPrefix(s, "TZ=") {
		return true
	}
	fields := strings.Fields(s)
	if len(fields) != 5 && len(fields) != 6 {
		return false
	}
	return cronField.MatchString(fields[0])
}
