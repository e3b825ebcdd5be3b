package module

import (
	"strings"

	"visawh/internal/platform/config"
	"visawh/internal/services/facts/domain"
)

// Options holds the precedence rule list per domain
type Options struct {
	Precedence map[string][]string
}

// FromConfig reads CORE_FACTS_PRECEDENCE_<DOMAIN>; unset domains keep their defaults
func FromConfig(cfg config.Conf) Options {
	fc := cfg.Prefix("CORE_FACTS_")
	o := Options{Precedence: map[string][]string{}}
	for _, d := range domain.Domains {
		if rs := fc.MayCSV("PRECEDENCE_"+strings.ToUpper(d), nil); len(rs) > 0 {
			o.Precedence[d] = rs
		}
	}
	return o
}
