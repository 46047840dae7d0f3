// Package schedule turns free-form weekly schedule text such as
// "T2, T4, T6 14:00-15:30" or "thứ 3 - thứ 5 18h30-20h" into structured
// weekday sets and expands them into bounded calendar date sequences.
// Everything here is a pure function of its inputs.
package schedule

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Schedule is the parsed form of a weekly schedule description. Weekdays
// are 0=Sunday..6=Saturday, deduplicated and sorted ascending. Time is a
// normalized "HH:MM-HH:MM" range, empty when no time was recognized.
type Schedule struct {
	Time     string
	Weekdays []int
}

// SessionDate is one generated calendar date with its weekday label.
type SessionDate struct {
	Date    time.Time
	Weekday string
}

// maxScanDays caps date generation at one year from the start date.
const maxScanDays = 365

var weekdayLabels = [7]string{"CN", "T2", "T3", "T4", "T5", "T6", "T7"}

var (
	abbrevDayRe = regexp.MustCompile(`\bt([2-7])\b`)
	numberDayRe = regexp.MustCompile(`th[uứ]\s*([2-7])`)
	sundayRe    = regexp.MustCompile(`\bcn\b|ch[uủ]\s*nh[aậ]t`)
	timeRangeRe = regexp.MustCompile(`(\d{1,2})(?:[:h](\d{2}))?\s*-\s*(\d{1,2})(?:[:h](\d{2}))?`)
)

// namedDays maps spelled-out Vietnamese weekday names, with and without
// diacritics, onto day numbers.
var namedDays = map[string]int{
	"thứ hai":  1,
	"thu hai":  1,
	"thứ ba":   2,
	"thu ba":   2,
	"thứ tư":   3,
	"thu tu":   3,
	"thứ năm":  4,
	"thu nam":  4,
	"thứ sáu":  5,
	"thu sau":  5,
	"thứ bảy":  6,
	"thu bay":  6,
}

// Parse extracts the weekday set and time range from schedule text. Texts
// with no recognizable weekday yield an empty set, which callers must treat
// as "cannot schedule". A missing or malformed time range still returns
// whatever weekdays were found.
func Parse(text string) Schedule {
	lowered := strings.ToLower(text)
	found := map[int]bool{}

	for _, match := range abbrevDayRe.FindAllStringSubmatch(lowered, -1) {
		if n, err := strconv.Atoi(match[1]); err == nil {
			// "thứ N" counts from Monday: T2 is Monday (1) .. T7 Saturday (6).
			found[n-1] = true
		}
	}
	for _, match := range numberDayRe.FindAllStringSubmatch(lowered, -1) {
		if n, err := strconv.Atoi(match[1]); err == nil {
			found[n-1] = true
		}
	}
	for name, day := range namedDays {
		if strings.Contains(lowered, name) {
			found[day] = true
		}
	}
	if sundayRe.MatchString(lowered) {
		found[0] = true
	}

	weekdays := make([]int, 0, len(found))
	for day := range found {
		weekdays = append(weekdays, day)
	}
	sort.Ints(weekdays)

	return Schedule{Time: parseTimeRange(lowered), Weekdays: weekdays}
}

func parseTimeRange(lowered string) string {
	match := timeRangeRe.FindStringSubmatch(lowered)
	if match == nil {
		return ""
	}
	startH, startM := clockPart(match[1], match[2])
	endH, endM := clockPart(match[3], match[4])
	if startH < 0 || endH < 0 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d", startH, startM, endH, endM)
}

func clockPart(hourRaw, minRaw string) (int, int) {
	hour, err := strconv.Atoi(hourRaw)
	if err != nil || hour > 23 {
		return -1, 0
	}
	minute := 0
	if minRaw != "" {
		minute, err = strconv.Atoi(minRaw)
		if err != nil || minute > 59 {
			return -1, 0
		}
	}
	return hour, minute
}

// SessionDates walks forward one day at a time from start, collecting every
// date whose weekday is in the set, until total dates are collected or the
// one-year safety cap is reached. Hitting the cap first returns a short
// list, not an error.
func SessionDates(start time.Time, total int, weekdays []int) []SessionDate {
	if total <= 0 || len(weekdays) == 0 {
		return nil
	}
	wanted := map[int]bool{}
	for _, day := range weekdays {
		wanted[day] = true
	}

	out := make([]SessionDate, 0, total)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	for offset := 0; offset < maxScanDays && len(out) < total; offset++ {
		if wanted[int(day.Weekday())] {
			out = append(out, SessionDate{Date: day, Weekday: weekdayLabels[int(day.Weekday())]})
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// WeeklyCount reports how many sessions per week the schedule text implies,
// never less than one so expected-end math cannot divide by zero.
func WeeklyCount(text string) int {
	count := len(Parse(text).Weekdays)
	if count < 1 {
		return 1
	}
	return count
}

// WeekdayLabel renders a 0=Sunday..6=Saturday day number in the store's
// notation.
func WeekdayLabel(day int) string {
	if day < 0 || day > 6 {
		return ""
	}
	return weekdayLabels[day]
}
