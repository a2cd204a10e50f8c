package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/empresamix/mixbi/internal/domain"
)

var (
	ErrBadDate   = errors.New("unparseable date")
	ErrBadNumber = errors.New("unparseable number")
)

// dateLayouts are tried in order. ISO forms come first because the cube
// emits them for every view checked so far.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"02/01/2006 15:04:05",
	"20060102",
}

// Unix timestamps above unixMillisThreshold are taken as milliseconds.
// Anything below unixSecondsFloor (2001-09-09) is too old to be a real
// emission date.
const (
	unixMillisThreshold = 1e11
	unixSecondsFloor    = 1e9
)

// ParseDate reads a cube date and returns its calendar day, taken in the
// value's own offset when it carries one and in UTC otherwise.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrBadDate)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= unixSecondsFloor {
		if n >= unixMillisThreshold {
			return day(time.UnixMilli(n).UTC()), nil
		}
		return day(time.Unix(n, 0).UTC()), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, s)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseAmount reads a money column. Empty text is zero. When both a comma
// and a dot appear, the last one is the decimal separator and the other
// groups thousands, so "1.234,56" and "1,234.56" agree. A lone comma is the
// pt-BR decimal separator.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	if s == "" {
		return decimal.Zero, nil
	}
	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrBadNumber, s)
	}
	return d, nil
}

// ParseStatus reads an integer status code. Integral decimals such as "4.0"
// are accepted.
func ParseStatus(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.StatusUnknown, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return domain.StatusUnknown, false
	}
	return int(d.IntPart()), true
}
