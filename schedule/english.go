package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var unitWords = map[string]func(*Builder) *Builder{
	"second": (*Builder).Second, "seconds": (*Builder).Second, "sec": (*Builder).Second, "secs": (*Builder).Second,
	"minute": (*Builder).Minute, "minutes": (*Builder).Minute, "min": (*Builder).Minute, "mins": (*Builder).Minute,
	"hour": (*Builder).Hour, "hours": (*Builder).Hour,
	"day": (*Builder).Day, "days": (*Builder).Day,
	"week": (*Builder).Week, "weeks": (*Builder).Week,
	"month": (*Builder).Month, "months": (*Builder).Month,
}

var aliases = map[string]func() *Builder{
	"secondly": func() *Builder { return Each().Second() },
	"minutely": func() *Builder { return Each().Minute() },
	"hourly":   func() *Builder { return Each().Hour() },
	"daily":    func() *Builder { return Each().Day() },
	"weekly":   func() *Builder { return Each().Week() },
	"monthly":  func() *Builder { return Each().Month() },
}

// ParseEnglish compiles an English phrase into a schedule. Accepted forms
// include:
//
//	every day / daily / every other day / every 3 days
//	every day at 9:30 / every day at 9am / daily at noon
//	every 15 minutes / every hour / hourly / every 30 seconds
//	every monday at 8am / every tuesday and thursday at 17:00
//	every weekday at 9:00 / every weekend at 10am
//	every month on the 1st at midnight / monthly
//	at 6:45pm every day
//
// Times are wall-clock readings in the zone the schedule is bound to.
// Intervals follow Every: second, minute and hour counts must divide the
// minute or day evenly, and day or month counts restart at the month or year
// boundary ("every other day" fires on the 31st and then on the 1st).
func ParseEnglish(phrase string) (*Cron, error) {
	b, err := englishBuilder(phrase)
	if err != nil {
		return nil, &ParseError{Kind: "english", Expr: phrase, Err: err}
	}
	c, err := b.Build()
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			err = pe.Err
		}
		return nil, &ParseError{Kind: "english", Expr: phrase, Err: err}
	}
	c.source = phrase
	return c, nil
}

// MustEnglish is like ParseEnglish but panics on error.
func MustEnglish(phrase string) *Cron {
	c, err := ParseEnglish(phrase)
	if err != nil {
		panic(err)
	}
	return c
}

func tokenize(phrase string) []string {
	s := strings.ToLower(strings.TrimSpace(phrase))
	s = strings.NewReplacer(",", " ", ".", " ").Replace(s)
	raw := strings.Fields(s)
	toks := make([]string, 0, len(raw))
	for _, t := range raw {
		// "9 am" reads as "9am".
		if (t == "am" || t == "pm") && len(toks) > 0 {
			toks[len(toks)-1] += t
			continue
		}
		toks = append(toks, t)
	}
	return toks
}

func englishBuilder(phrase string) (*Builder, error) {
	toks := tokenize(phrase)
	if len(toks) == 0 {
		return nil, errors.New("empty phrase")
	}

	// Pull "at <time>" out wherever it appears.
	var at string
	rest := toks[:0:0]
	for i := 0; i < len(toks); i++ {
		if toks[i] == "at" {
			if i+1 >= len(toks) {
				return nil, errors.New(`"at" must be followed by a time`)
			}
			if at != "" {
				return nil, errors.New("time given twice")
			}
			clock, err := englishClock(toks[i+1])
			if err != nil {
				return nil, err
			}
			at = clock
			i++
			continue
		}
		rest = append(rest, toks[i])
	}
	if len(rest) == 0 {
		if at == "" {
			return nil, errors.New("no recurrence given")
		}
		rest = []string{"daily"}
	}

	b, err := englishRecurrence(rest)
	if err != nil {
		return nil, err
	}
	if at != "" {
		b.At(at)
	}
	return b, nil
}

func englishRecurrence(toks []string) (*Builder, error) {
	if mk, ok := aliases[toks[0]]; ok {
		if len(toks) > 1 {
			return nil, fmt.Errorf("unexpected %q after %q", toks[1], toks[0])
		}
		return mk(), nil
	}
	if toks[0] != "every" && toks[0] != "each" {
		return nil, fmt.Errorf("phrase must start with \"every\", got %q", toks[0])
	}
	toks = toks[1:]
	if len(toks) == 0 {
		return nil, errors.New(`"every" must be followed by a unit or weekday`)
	}

	switch toks[0] {
	case "weekday", "weekdays":
		return expectEnd(Each().Weekdays(), toks[1:])
	case "weekend", "weekends":
		return expectEnd(Each().Weekends(), toks[1:])
	}

	if _, ok := weekdayNames[toks[0]]; ok {
		b := Each()
		for _, t := range toks {
			if t == "and" {
				continue
			}
			d, ok := weekdayNames[t]
			if !ok {
				return nil, fmt.Errorf("unknown weekday %q", t)
			}
			b.Weekday(d)
		}
		return b, nil
	}

	n := 1
	switch {
	case toks[0] == "other":
		n, toks = 2, toks[1:]
	default:
		if v, err := strconv.Atoi(toks[0]); err == nil {
			n, toks = v, toks[1:]
		}
	}
	if len(toks) == 0 {
		return nil, errors.New("missing unit")
	}
	setUnit, ok := unitWords[toks[0]]
	if !ok {
		return nil, fmt.Errorf("unknown unit %q", toks[0])
	}
	b := setUnit(Every(n))
	toks = toks[1:]

	// "on the 15th" for monthly rules.
	if len(toks) > 0 && toks[0] == "on" {
		toks = toks[1:]
		if len(toks) > 0 && toks[0] == "the" {
			toks = toks[1:]
		}
		if len(toks) == 0 {
			return nil, errors.New(`"on" must be followed by a day of month`)
		}
		dom, err := ordinal(toks[0])
		if err != nil {
			return nil, err
		}
		b.On(dom)
		toks = toks[1:]
	}
	return expectEnd(b, toks)
}

func expectEnd(b *Builder, toks []string) (*Builder, error) {
	if len(toks) > 0 {
		return nil, fmt.Errorf("unexpected %q", strings.Join(toks, " "))
	}
	return b, nil
}

func ordinal(tok string) (int, error) {
	for _, suffix := range []string{"st", "nd", "rd", "th"} {
		tok = strings.TrimSuffix(tok, suffix)
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("invalid day of month %q", tok)
	}
	return v, nil
}

// englishClock normalizes "9am", "9:30pm", "17:45", "noon" and friends to
// the "H:MM[:SS]" form Builder.At accepts.
func englishClock(tok string) (string, error) {
	switch tok {
	case "noon", "midday":
		return "12:00", nil
	case "midnight":
		return "0:00", nil
	}
	meridiem := ""
	switch {
	case strings.HasSuffix(tok, "am"):
		meridiem, tok = "am", strings.TrimSuffix(tok, "am")
	case strings.HasSuffix(tok, "pm"):
		meridiem, tok = "pm", strings.TrimSuffix(tok, "pm")
	}
	parts := strings.Split(tok, ":")
	if len(parts) == 1 {
		parts = append(parts, "00")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", fmt.Errorf("invalid time %q", tok+meridiem)
	}
	if meridiem != "" {
		if h < 1 || h > 12 {
			return "", fmt.Errorf("invalid 12-hour time %q", tok+meridiem)
		}
		h %= 12
		if meridiem == "pm" {
			h += 12
		}
	}
	parts[0] = strconv.Itoa(h)
	return strings.Join(parts, ":"), nil
}
