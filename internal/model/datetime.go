package model

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// DateTimeLayout is the textual form accepted by ParseDateTime.
const DateTimeLayout = "YYYY-MM-DD HH:MM:SS"

const SecondsPerDay = 86400

var dateTimePattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2}) (\d{2}):(\d{2}):(\d{2})$`)

// DateTime is a broken-down UTC calendar date. Month is 1-12.
type DateTime struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
	Second int `json:"second"`
}

// ParseDateTime parses "YYYY-MM-DD HH:MM:SS" (24h). Days past the end of the
// month roll over into the next one, so 2013-02-29 becomes 2013-03-01.
func ParseDateTime(s string) (DateTime, error) {
	m := dateTimePattern.FindStringSubmatch(s)
	if m == nil {
		return DateTime{}, fmt.Errorf("malformed date %q: want %s", s, DateTimeLayout)
	}
	var f [6]int
	for i := range f {
		f[i], _ = strconv.Atoi(m[i+1])
	}
	d := DateTime{Year: f[0], Month: f[1], Day: f[2], Hour: f[3], Minute: f[4], Second: f[5]}

	switch {
	case d.Month < 1 || d.Month > 12:
		return DateTime{}, fmt.Errorf("malformed date %q: month %d out of range", s, d.Month)
	case d.Day < 1 || d.Day > 31:
		return DateTime{}, fmt.Errorf("malformed date %q: day %d out of range", s, d.Day)
	case d.Hour > 23:
		return DateTime{}, fmt.Errorf("malformed date %q: hour %d out of range", s, d.Hour)
	case d.Minute > 59:
		return DateTime{}, fmt.Errorf("malformed date %q: minute %d out of range", s, d.Minute)
	case d.Second > 59:
		return DateTime{}, fmt.Errorf("malformed date %q: second %d out of range", s, d.Second)
	}
	return d.Normalize(), nil
}

// MustParseDateTime is ParseDateTime for literals known to be valid.
func MustParseDateTime(s string) DateTime {
	d, err := ParseDateTime(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromTime converts t to a DateTime in UTC, dropping sub-second precision.
func FromTime(t time.Time) DateTime {
	t = t.UTC()
	return DateTime{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

// DaysInMonth returns the length of month (1-12) of year in the Gregorian calendar.
func DaysInMonth(year, month int) int {
	switch month {
	case 2:
		if julian.LeapYearGregorian(year) {
			return 29
		}
		return 28
	case 4, 6, 9, 11:
		return 30
	default:
		return 31
	}
}

// Normalize carries out-of-range fields upward (seconds into minutes and so on
// up to years) so that every field is back in its calendar range.
func (d DateTime) Normalize() DateTime {
	var carry int
	carry, d.Second = floorDivMod(d.Second, 60)
	d.Minute += carry
	carry, d.Minute = floorDivMod(d.Minute, 60)
	d.Hour += carry
	carry, d.Hour = floorDivMod(d.Hour, 24)
	d.Day += carry

	carry, d.Month = floorDivMod(d.Month-1, 12)
	d.Month++
	d.Year += carry

	for d.Day > DaysInMonth(d.Year, d.Month) {
		d.Day -= DaysInMonth(d.Year, d.Month)
		d.Month++
		if d.Month > 12 {
			d.Month = 1
			d.Year++
		}
	}
	for d.Day < 1 {
		d.Month--
		if d.Month < 1 {
			d.Month = 12
			d.Year--
		}
		d.Day += DaysInMonth(d.Year, d.Month)
	}
	return d
}

// AddSeconds returns d advanced by n seconds with calendar rollover.
func (d DateTime) AddSeconds(n int) DateTime {
	d.Second += n
	return d.Normalize()
}

// DecimalHours returns the time of day in hours.
func (d DateTime) DecimalHours() float64 {
	return float64(d.Hour) + (float64(d.Minute)+float64(d.Second)/60.0)/60.0
}

// SecondOfDay returns the number of seconds elapsed since midnight.
func (d DateTime) SecondOfDay() int {
	return d.Hour*3600 + d.Minute*60 + d.Second
}

// StartOfDay returns midnight of the same calendar day.
func (d DateTime) StartOfDay() DateTime {
	return DateTime{Year: d.Year, Month: d.Month, Day: d.Day}
}

// SameDay reports whether both dates fall on the same calendar day.
func (d DateTime) SameDay(o DateTime) bool {
	return d.Year == o.Year && d.Month == o.Month && d.Day == o.Day
}

func (d DateTime) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour, d.Minute, d.Second, 0, time.UTC)
}

func (d DateTime) IsZero() bool {
	return d == DateTime{}
}

func (d DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

func floorDivMod(a, b int) (q, r int) {
	q, r = a/b, a%b
	if r < 0 {
		q--
		r += b
	}
	return q, r
}
