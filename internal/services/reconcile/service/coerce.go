package service

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"visawh/internal/adapters/aliasmap"
	perr "visawh/internal/platform/errors"
	ptime "visawh/internal/platform/time"
	"visawh/internal/services/reconcile/domain"
)

var nullTokens = map[string]bool{"": true, "NA": true, "N/A": true, "NULL": true, "NAN": true, "NONE": true, "-": true}

var leadingNumber = regexp.MustCompile(`^-?\d+(?:\.\d+)?`)

// annual pay multipliers keyed by a folded unit name
var payUnits = map[string]float64{
	"hour": 2080, "hr": 2080, "hourly": 2080, "perhour": 2080,
	"week": 52, "wk": 52, "weekly": 52, "perweek": 52,
	"biweekly": 26, "biweek": 26, "fortnight": 26,
	"month": 12, "mth": 12, "mo": 12, "monthly": 12, "permonth": 12,
	"year": 1, "yr": 1, "yearly": 1, "annual": 1, "annually": 1, "peryear": 1,
}

var cutoffLayouts = []string{"02Jan06", "02-Jan-06", "02Jan2006", "2006-01-02", "01/02/2006", "1/2/2006"}

func isNull(raw string, f aliasmap.Field) bool {
	up := strings.ToUpper(raw)
	if nullTokens[up] {
		return true
	}
	for _, n := range f.Nulls {
		if strings.EqualFold(n, raw) {
			return true
		}
	}
	return false
}

func coerceText(raw string) domain.Value {
	return domain.Value{Kind: aliasmap.KindText, Text: strings.Join(strings.Fields(raw), " ")}
}

func coerceCode(raw string, f aliasmap.Field) domain.Value {
	v := strings.TrimSpace(raw)
	if len(f.Values) > 0 {
		up := strings.ToUpper(v)
		if mapped, ok := f.Values[up]; ok {
			v = mapped
		} else {
			v = up
		}
	}
	return domain.Value{Kind: aliasmap.KindCode, Text: v}
}

func coerceDate(raw string, f aliasmap.Field) (domain.Value, error) {
	for _, layout := range f.Layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return domain.Value{Kind: aliasmap.KindDate, Time: ptime.DateOnly(t)}, nil
		}
	}
	return domain.Value{}, perr.RecordParsef(f.Name, "%s: unparseable date %q", f.Name, raw)
}

// parseMoney strips currency noise and takes the leading number of a range such as "66000 - 70000"
func parseMoney(raw string) (float64, bool) {
	s := strings.NewReplacer("$", "", ",", "", " ", "").Replace(raw)
	m := leadingNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	return v, err == nil
}

// PayMultiplier annualizes a pay unit; empty means yearly
func PayMultiplier(unit string) (float64, bool) {
	key := foldUnit(unit)
	if key == "" {
		return 1, true
	}
	m, ok := payUnits[key]
	return m, ok
}

func foldUnit(unit string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(unit) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func coerceMoney(raw, unit string, f aliasmap.Field) (domain.Value, error) {
	v, ok := parseMoney(raw)
	if !ok {
		return domain.Value{}, perr.RecordParsef(f.Name, "%s: not a number %q", f.Name, raw)
	}
	mul, ok := PayMultiplier(unit)
	if !ok {
		return domain.Value{}, perr.RecordParsef(f.Name, "%s: unknown pay unit %q", f.Name, unit)
	}
	return domain.Value{Kind: aliasmap.KindMoney, Num: round2(v * mul)}, nil
}

func coerceInt(raw string, f aliasmap.Field) (domain.Value, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil || v != math.Trunc(v) {
		return domain.Value{}, perr.RecordParsef(f.Name, "%s: not an integer %q", f.Name, raw)
	}
	return domain.Value{Kind: aliasmap.KindInt, Num: v}, nil
}

func coerceFloat(raw string, f aliasmap.Field) (domain.Value, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return domain.Value{}, perr.RecordParsef(f.Name, "%s: not a number %q", f.Name, raw)
	}
	return domain.Value{Kind: aliasmap.KindFloat, Num: v}, nil
}

func coerceBool(raw string, invert bool, f aliasmap.Field) (domain.Value, error) {
	var b bool
	switch strings.ToUpper(raw) {
	case "Y", "YES", "T", "TRUE", "1", "1.0":
		b = true
	case "N", "NO", "F", "FALSE", "0", "0.0":
		b = false
	default:
		return domain.Value{}, perr.RecordParsef(f.Name, "%s: not a boolean %q", f.Name, raw)
	}
	if invert {
		b = !b
	}
	return domain.Value{Kind: aliasmap.KindBool, Bool: b}, nil
}

func coerceCutoff(raw string, f aliasmap.Field) (domain.Value, error) {
	switch strings.ToUpper(raw) {
	case "C", "CURRENT":
		return domain.Value{Kind: aliasmap.KindCutoff, Cutoff: domain.Cutoff{Status: domain.CutoffCurrent}}, nil
	case "U", "UNAVAILABLE":
		return domain.Value{Kind: aliasmap.KindCutoff, Cutoff: domain.Cutoff{Status: domain.CutoffUnavailable}}, nil
	}
	for _, layout := range cutoffLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return domain.Value{Kind: aliasmap.KindCutoff, Cutoff: domain.Cutoff{Status: domain.CutoffDate, Date: ptime.DateOnly(t)}}, nil
		}
	}
	return domain.Value{}, perr.RecordParsef(f.Name, "%s: unparseable cutoff %q", f.Name, raw)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
