// Package calendarrule evaluates a small recurrence-rule dialect into
// concrete busy intervals within a bounded window, and provides interval
// algebra (merge, complement) used by the timeline builder.
//
// The dialect is deliberately narrow: it covers exactly what a vertipad or
// aircraft operating-hours calendar needs and nothing more. A calendar is one
// or more blank-line-separated blocks; each block starts with a header line
//
//	DTSTART:20250106T090000Z;DURATION:PT2H
//
// followed by zero or more recurrence lines:
//
//	RRULE:FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR
//	RDATE:20250111T130000Z
//
// RRULE lines expand weekly on the named weekdays at DTSTART's time-of-day,
// each occurrence lasting DURATION. RDATE lines are one-off occurrences of
// the same duration. A block with no recurrence lines is a single occurrence
// at DTSTART. No other frequency or recurrence field is recognized.
package calendarrule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

// ErrCalendarParse is returned when a calendar expression cannot be parsed.
type ErrCalendarParse struct {
	Reason string
}

func (e *ErrCalendarParse) Error() string {
	return fmt.Sprintf("calendar parse error: %s", e.Reason)
}

const basicISO8601 = "20060102T150405Z"

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

type block struct {
	dtstart  time.Time
	duration time.Duration
	weekdays []time.Weekday // empty if this block only has RDATEs
	rdates   []time.Time
}

// Calendar is a parsed recurrence expression, ready for repeated evaluation.
type Calendar struct {
	blocks []block
	raw    string
}

// Parse parses a calendar expression. An empty expression is valid and
// denotes a resource with no operating-hours restriction (always available,
// i.e. no busy intervals).
func Parse(expr string) (*Calendar, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Calendar{raw: expr}, nil
	}

	cal := &Calendar{raw: expr}
	for _, chunk := range splitBlocks(expr) {
		b, err := parseBlock(chunk)
		if err != nil {
			return nil, err
		}
		cal.blocks = append(cal.blocks, b)
	}
	return cal, nil
}

func splitBlocks(expr string) []string {
	var chunks []string
	var cur []string
	for _, line := range strings.Split(expr, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				chunks = append(chunks, strings.Join(cur, "\n"))
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, "\n"))
	}
	return chunks
}

func parseBlock(chunk string) (block, error) {
	lines := strings.Split(strings.TrimSpace(chunk), "\n")
	if len(lines) == 0 {
		return block{}, &ErrCalendarParse{Reason: "empty block"}
	}

	header := strings.TrimSpace(lines[0])
	if !strings.HasPrefix(header, "DTSTART:") {
		return block{}, &ErrCalendarParse{Reason: "block must start with DTSTART"}
	}
	parts := strings.SplitN(header, ";DURATION:", 2)
	if len(parts) != 2 {
		return block{}, &ErrCalendarParse{Reason: "header missing DURATION"}
	}
	dtstartStr := strings.TrimPrefix(parts[0], "DTSTART:")
	dtstart, err := time.Parse(basicISO8601, dtstartStr)
	if err != nil {
		return block{}, &ErrCalendarParse{Reason: "invalid DTSTART: " + err.Error()}
	}
	dur, err := parseISODuration(parts[1])
	if err != nil {
		return block{}, &ErrCalendarParse{Reason: "invalid DURATION: " + err.Error()}
	}

	b := block{dtstart: dtstart, duration: dur}
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "RRULE:"):
			wds, err := parseRRule(strings.TrimPrefix(line, "RRULE:"))
			if err != nil {
				return block{}, err
			}
			b.weekdays = append(b.weekdays, wds...)
		case strings.HasPrefix(line, "RDATE:"):
			ts, err := time.Parse(basicISO8601, strings.TrimPrefix(line, "RDATE:"))
			if err != nil {
				return block{}, &ErrCalendarParse{Reason: "invalid RDATE: " + err.Error()}
			}
			b.rdates = append(b.rdates, ts)
		default:
			return block{}, &ErrCalendarParse{Reason: "unrecognized line: " + line}
		}
	}
	return b, nil
}

func parseRRule(spec string) ([]time.Weekday, error) {
	fields := strings.Split(spec, ";")
	var freq string
	var days []time.Weekday
	for _, f := range fields {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "FREQ":
			freq = kv[1]
		case "BYDAY":
			for _, code := range strings.Split(kv[1], ",") {
				wd, ok := weekdayCodes[code]
				if !ok {
					return nil, &ErrCalendarParse{Reason: "unknown BYDAY code: " + code}
				}
				days = append(days, wd)
			}
		}
	}
	if freq != "WEEKLY" {
		return nil, &ErrCalendarParse{Reason: "only FREQ=WEEKLY is supported"}
	}
	if len(days) == 0 {
		return nil, &ErrCalendarParse{Reason: "RRULE requires BYDAY"}
	}
	return days, nil
}

// parseISODuration handles the small subset of ISO-8601 durations needed
// here: PnDTnHnMnS, any component optional.
func parseISODuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("duration must start with P")
	}
	s = s[1:]
	var datePart, timePart string
	if idx := strings.Index(s, "T"); idx >= 0 {
		datePart, timePart = s[:idx], s[idx+1:]
	} else {
		datePart = s
	}
	var total time.Duration
	if datePart != "" {
		days, err := consumeNumber(&datePart, 'D')
		if err != nil {
			return 0, err
		}
		total += time.Duration(days) * 24 * time.Hour
	}
	if timePart != "" {
		hours, err := consumeNumber(&timePart, 'H')
		if err != nil {
			return 0, err
		}
		total += time.Duration(hours) * time.Hour
		mins, err := consumeNumber(&timePart, 'M')
		if err != nil {
			return 0, err
		}
		total += time.Duration(mins) * time.Minute
		secs, err := consumeNumber(&timePart, 'S')
		if err != nil {
			return 0, err
		}
		total += time.Duration(secs) * time.Second
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return total, nil
}

func consumeNumber(s *string, unit byte) (int, error) {
	idx := strings.IndexByte(*s, unit)
	if idx < 0 {
		return 0, nil
	}
	numStr := (*s)[:idx]
	*s = (*s)[idx+1:]
	var n int
	if _, err := fmt.Sscanf(numStr, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid number before %c: %s", unit, numStr)
	}
	return n, nil
}

// BusyIntervals expands the calendar into busy timeslots overlapping
// [windowStart, windowEnd). Boundary matching is inclusive of both endpoints
// (a one-second pad is applied before intersecting), and an occurrence that
// begins before windowStart but extends into it is still returned.
func (c *Calendar) BusyIntervals(windowStart, windowEnd time.Time) []domain.Timeslot {
	if c == nil || len(c.blocks) == 0 {
		return nil
	}
	padStart := windowStart.Add(-time.Second)
	padEnd := windowEnd.Add(time.Second)

	var out []domain.Timeslot
	for _, b := range c.blocks {
		for _, occStart := range occurrences(b, padStart, padEnd) {
			slot := domain.Timeslot{Start: occStart, End: occStart.Add(b.duration)}
			if slot.Overlaps(domain.Timeslot{Start: padStart, End: padEnd}) {
				out = append(out, slot)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return MergeOverlapping(out)
}

// occurrences returns every occurrence start time of block b that could
// possibly intersect [from, to), including one occurrence anchored before
// `from` (the last one at or before `from`) so a long event spanning into
// the window is not missed.
func occurrences(b block, from, to time.Time) []time.Time {
	var starts []time.Time
	if len(b.weekdays) == 0 && len(b.rdates) == 0 {
		// A block with no recurrence lines is a single occurrence at DTSTART.
		return []time.Time{b.dtstart}
	}
	starts = append(starts, b.rdates...)

	if len(b.weekdays) > 0 && !to.Before(b.dtstart) {
		// Walk day by day from dtstart's date, at dtstart's time-of-day,
		// starting one duration-window early so an occurrence starting
		// before `from` but overlapping it is still produced.
		cursor := b.dtstart
		lookback := from.Add(-b.duration).Add(-24 * time.Hour)
		if cursor.Before(lookback) {
			days := int(lookback.Sub(cursor).Hours() / 24)
			cursor = cursor.AddDate(0, 0, days)
		}
		for !cursor.After(to) {
			for _, wd := range b.weekdays {
				if cursor.Weekday() == wd {
					starts = append(starts, cursor)
					break
				}
			}
			cursor = cursor.AddDate(0, 0, 1)
		}
	}
	return starts
}

// MergeOverlapping merges a sorted-or-unsorted slice of timeslots into a
// sorted, non-overlapping (touching intervals merged) slice.
func MergeOverlapping(slots []domain.Timeslot) []domain.Timeslot {
	if len(slots) == 0 {
		return nil
	}
	sorted := make([]domain.Timeslot, len(slots))
	copy(sorted, slots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []domain.Timeslot{sorted[0]}
	for _, s := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !s.Start.After(last.End) {
			if s.End.After(last.End) {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Complement returns the free intervals inside [windowStart, windowEnd) that
// are not covered by any of the given (sorted, non-overlapping) busy
// intervals.
func Complement(busy []domain.Timeslot, windowStart, windowEnd time.Time) []domain.Timeslot {
	var free []domain.Timeslot
	cursor := windowStart
	for _, b := range busy {
		if b.End.Before(cursor) || b.Start.After(windowEnd) {
			continue
		}
		if b.Start.After(cursor) {
			free = append(free, domain.Timeslot{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(windowEnd) {
		free = append(free, domain.Timeslot{Start: cursor, End: windowEnd})
	}
	return free
}
