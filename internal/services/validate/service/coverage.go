package service

import (
	"sort"
	"strconv"
	"strings"

	perr "visawh/internal/platform/errors"
)

func monitored(table string, coverage map[string]float64) []string {
	var out []string
	for k := range coverage {
		if t, f, ok := strings.Cut(k, "."); ok && t == table {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// ParseCoverage overlays "table.field=min" entries on DefaultCoverage
func ParseCoverage(entries []string) (map[string]float64, error) {
	out := DefaultCoverage()
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		k = strings.TrimSpace(k)
		if !ok || !strings.Contains(k, ".") {
			return nil, perr.Validationf("coverage entry %q is not table.field=min", e)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < 0 || f > 1 {
			return nil, perr.Validationf("coverage entry %q needs a minimum between 0 and 1", e)
		}
		out[k] = f
	}
	return out, nil
}
