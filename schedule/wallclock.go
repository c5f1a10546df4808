package schedule

import "time"

const day = 24 * time.Hour

// maxWallSteps bounds how many wall-clock candidates nextWall will try
// before giving up. Skips only happen inside a DST fold, where an
// every-second rule needs at most 3600 steps per repeated hour.
const maxWallSteps = 100_000

// Floating returns t's wall-clock reading as a UTC time. Floating times are
// naive: they carry a calendar reading, not an instant.
func Floating(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Resolve maps the wall-clock reading of wall (its location is ignored) to
// an instant in loc. Ambiguous readings resolve to the earliest instant;
// readings inside a gap resolve to the first instant after the gap.
func Resolve(wall time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	w := Floating(wall)

	_, before := w.Add(-day).In(loc).Zone()
	_, after := w.Add(day).In(loc).Zone()

	var best time.Time
	for _, off := range []int{before, after} {
		cand := w.Add(-time.Duration(off) * time.Second)
		if !Floating(cand.In(loc)).Equal(w) {
			continue
		}
		if best.IsZero() || cand.Before(best) {
			best = cand
		}
	}
	if !best.IsZero() {
		return best.In(loc)
	}

	// Gap: the reading under the post-transition offset falls before the
	// transition and the reading under the pre-transition offset after it.
	lo := w.Add(-time.Duration(after) * time.Second).Unix()
	hi := w.Add(-time.Duration(before)*time.Second).Unix() + 1
	if lo > hi {
		lo, hi = hi, lo
	}
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if _, off := time.Unix(mid, 0).In(loc).Zone(); off == after {
			hi = mid
		} else {
			lo = mid
		}
	}
	return time.Unix(hi, 0).In(loc)
}

// nextWall walks wall-clock candidates produced by step, starting from
// ref's reading in loc, and returns the first one whose resolved instant is
// strictly after ref. step receives and returns floating times; a zero
// result means no further candidates.
func nextWall(ref time.Time, loc *time.Location, step func(time.Time) time.Time) (time.Time, bool) {
	wall := Floating(ref.In(loc))
	for range maxWallSteps {
		wall = step(wall)
		if wall.IsZero() {
			return time.Time{}, false
		}
		if at := Resolve(wall, loc); at.After(ref) {
			return at, true
		}
	}
	return time.Time{}, false
}
