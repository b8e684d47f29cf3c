// Package jsonx holds jx decoding helpers for money and timestamps.
package jsonx

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// LocalLayout is accepted for timestamps without a zone, read as UTC.
const LocalLayout = "2006-01-02T15:04:05"

// Decimal reads a JSON number or a string holding one.
func Decimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch tt := d.Next(); tt {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = strings.TrimSpace(s)
	default:
		return decimal.Decimal{}, errors.Errorf("unexpected %s", tt)
	}
	return decimal.NewFromString(raw)
}

// Time reads a timestamp string. See ParseTime.
func Time(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return ParseTime(s)
}

// ParseTime parses RFC 3339 or LocalLayout and returns the instant in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(LocalLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.Errorf("timestamp %q is neither RFC 3339 nor %s", s, LocalLayout)
	}
	return t, nil
}
