// Package config reads module settings from prefixed environment keys
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"visawh/internal/platform/config/raw"
	"visawh/internal/platform/logger"
)

// Conf is a prefixed view over a key source, e.g. New().Prefix("CORE_BUILD_")
type Conf struct {
	prefix string
	lookup raw.Lookup
}

// New reads from the process environment
func New() Conf { return Conf{lookup: os.LookupEnv} }

// FromMap reads from m instead of the environment
func FromMap(m map[string]string) Conf {
	return Conf{lookup: func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}}
}

// Prefix narrows the view to keys under p
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p, lookup: c.lookup} }

func (c Conf) key(k string) string { return c.prefix + k }

func (c Conf) value(key string) string {
	if c.lookup == nil {
		return ""
	}
	v, _ := c.lookup(c.key(key))
	return strings.TrimSpace(v)
}

// parseOr parses a set key, warning and falling back to def when it does not parse
func parseOr[T any](c Conf, key string, def T, kind string, parse func(string) (T, error)) T {
	s := c.value(key)
	if s == "" {
		return def
	}
	v, err := parse(s)
	if err != nil {
		logger.Get().Warn().
			Str("key", c.key(key)).
			Str("value", s).
			Interface("default", def).
			Msgf("invalid %s; using default", kind)
		return def
	}
	return v
}

// MayString returns the trimmed value, or def when blank
func (c Conf) MayString(key, def string) string {
	if v := c.value(key); v != "" {
		return v
	}
	return def
}

// MayInt returns the value or def
func (c Conf) MayInt(key string, def int) int {
	return parseOr(c, key, def, "int", strconv.Atoi)
}

// MayFloat64 returns the value or def
func (c Conf) MayFloat64(key string, def float64) float64 {
	return parseOr(c, key, def, "float64", func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// MayBool accepts strconv.ParseBool spellings
func (c Conf) MayBool(key string, def bool) bool {
	return parseOr(c, key, def, "bool", strconv.ParseBool)
}

// MayDuration accepts time.ParseDuration syntax such as 250ms or 2h
func (c Conf) MayDuration(key string, def time.Duration) time.Duration {
	return parseOr(c, key, def, "duration", time.ParseDuration)
}

// MayPath returns a cleaned path, or def when blank
func (c Conf) MayPath(key, def string) string {
	if v := c.MayString(key, def); v != "" {
		return filepath.Clean(v)
	}
	return ""
}

// MayRatio returns a fraction in [0,1]; out of range values fall back to def
func (c Conf) MayRatio(key string, def float64) float64 {
	v := c.MayFloat64(key, def)
	if v < 0 || v > 1 {
		logger.Get().Warn().Str("key", c.key(key)).Float64("value", v).Float64("default", def).
			Msg("ratio out of range [0,1]; using default")
		return def
	}
	return v
}

// MayCSV splits a comma list, dropping blanks; def when nothing remains
func (c Conf) MayCSV(key string, def []string) []string {
	var out []string
	for _, p := range strings.Split(c.value(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// MayEnum returns the value when it is one of allowed (case-insensitive) and panics otherwise
func (c Conf) MayEnum(key, def string, allowed ...string) string {
	v := c.MayString(key, def)
	if v == "" {
		return v
	}
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return v
		}
	}
	logger.Get().Panic().Str("key", c.key(key)).Str("value", v).Strs("allowed", allowed).Msg("invalid enum value")
	return ""
}
