// Package source discovers raw extract files under the data root and streams their rows
// as immutable records with no semantic interpretation
package source

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	perr "visawh/internal/platform/errors"
	"visawh/internal/platform/logger"
)

// Period identifies the reporting period of an extract
// Month is zero for fiscal-year periods
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month,omitempty"`
}

// String renders FY2024 for fiscal periods and 2026-01 for monthly ones
func (p Period) String() string {
	if p.Month == 0 {
		return fmt.Sprintf("FY%04d", p.Year)
	}
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Key orders periods chronologically
func (p Period) Key() int { return p.Year*100 + p.Month }

// IsZero reports an unknown period
func (p Period) IsZero() bool { return p.Year == 0 }

// Layout tells discovery where a domain's extracts live and which files count
type Layout struct {
	Domain  string
	Subdir  string
	Include []string // file name globs, case insensitive; empty means all
	Exclude []string
}

// Extract is one physical source file for one (domain, period)
type Extract struct {
	Domain string
	Period Period
	Path   string   // absolute path
	Rel    string   // slash path relative to the data root, used as source_file
	Name   string   // base name
	Dirs   []string // directories between the domain subdir and the file
}

var (
	reFiscal   = regexp.MustCompile(`(?i)^FY[_-]?(\d{4})`)
	reFiscalIn = regexp.MustCompile(`(?i)FY[_-]?(\d{4})`)
	reBulletin = regexp.MustCompile(`(?i)visa[_-]?bulletin[_-]?([a-z]+)[_-]?(\d{4})`)
	reYear     = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(?:[^0-9]|$)`)
)

var supportedExt = map[string]bool{".csv": true, ".tsv": true, ".txt": true}

// Supported reports whether name is a readable extract, including .gz and .zst wrappers
func Supported(name string) bool {
	n := strings.ToLower(name)
	n = strings.TrimSuffix(strings.TrimSuffix(n, ".gz"), ".zst")
	return supportedExt[filepath.Ext(n)]
}

// Discover walks <root>/<layout.Subdir> and returns extracts sorted by (period, relative path)
// Copies mirrored under extra directories are dropped, keeping the shallower path
func Discover(root string, l Layout) ([]Extract, error) {
	base := filepath.Join(root, l.Subdir)
	fi, err := os.Stat(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "discover %s", l.Domain)
	}
	if !fi.IsDir() {
		return nil, perr.IOf("discover %s: %s is not a directory", l.Domain, base)
	}

	log := logger.Named("source")
	var found []Extract

	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		name := d.Name()
		if d.IsDir() {
			if p != base && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !Supported(name) || !l.wants(name) {
			return nil
		}

		relBase, _ := filepath.Rel(base, p)
		dirs := splitDirs(filepath.Dir(relBase))
		per := PeriodOf(dirs, name)
		if per.IsZero() {
			log.Warn().Str("domain", l.Domain).Str("file", relBase).Msg("source: no period in path, skipped")
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		ex := Extract{
			Domain: l.Domain,
			Period: per,
			Path:   p,
			Rel:    filepath.ToSlash(rel),
			Name:   name,
			Dirs:   dirs,
		}
		found = append(found, ex)
		return nil
	})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "discover %s", l.Domain)
	}

	out := dropMirrors(found, func(keep, drop Extract) {
		log.Warn().Str("domain", l.Domain).Str("keep", keep.Rel).Str("drop", drop.Rel).
			Msg("source: mirrored copy skipped")
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period.Key() != out[j].Period.Key() {
			return out[i].Period.Key() < out[j].Period.Key()
		}
		return out[i].Rel < out[j].Rel
	})
	return out, nil
}

// dropMirrors removes mirrored copies: a file whose period and name match a kept file and whose
// directories contain the kept file's directories in order, e.g. FY2024/x.csv and H1B/FY2024/x.csv.
// Shallower paths are kept first, so the outcome does not depend on walk order
func dropMirrors(exs []Extract, dropped func(keep, drop Extract)) []Extract {
	sort.Slice(exs, func(i, j int) bool {
		if len(exs[i].Dirs) != len(exs[j].Dirs) {
			return len(exs[i].Dirs) < len(exs[j].Dirs)
		}
		return exs[i].Rel < exs[j].Rel
	})
	type group struct {
		period Period
		name   string
	}
	kept := map[group][]Extract{}
	out := make([]Extract, 0, len(exs))
next:
	for _, ex := range exs {
		g := group{ex.Period, strings.ToLower(ex.Name)}
		for _, k := range kept[g] {
			if subsequence(k.Dirs, ex.Dirs) {
				dropped(k, ex)
				continue next
			}
		}
		kept[g] = append(kept[g], ex)
		out = append(out, ex)
	}
	return out
}

// subsequence reports whether every element of short appears in long, in order
func subsequence(short, long []string) bool {
	i := 0
	for _, d := range long {
		if i < len(short) && strings.EqualFold(short[i], d) {
			i++
		}
	}
	return i == len(short)
}

// PeriodOf derives the period from the nearest FYyyyy directory, then from the file name
func PeriodOf(dirs []string, name string) Period {
	for i := len(dirs) - 1; i >= 0; i-- {
		if m := reFiscal.FindStringSubmatch(dirs[i]); m != nil {
			y, _ := strconv.Atoi(m[1])
			return Period{Year: y}
		}
	}
	if m := reBulletin.FindStringSubmatch(name); m != nil {
		if mon, ok := monthByName(m[1]); ok {
			y, _ := strconv.Atoi(m[2])
			return Period{Year: y, Month: mon}
		}
	}
	if m := reFiscalIn.FindStringSubmatch(name); m != nil {
		y, _ := strconv.Atoi(m[1])
		return Period{Year: y}
	}
	if m := reYear.FindStringSubmatch(name); m != nil {
		y, _ := strconv.Atoi(m[1])
		return Period{Year: y}
	}
	return Period{}
}

func monthByName(s string) (int, bool) {
	s = strings.ToLower(s)
	if len(s) < 3 {
		return 0, false
	}
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		if s == full || s == full[:3] {
			return int(m), true
		}
	}
	return 0, false
}

func (l Layout) wants(name string) bool {
	n := strings.ToLower(name)
	for _, pat := range l.Exclude {
		if ok, _ := path.Match(strings.ToLower(pat), n); ok {
			return false
		}
	}
	if len(l.Include) == 0 {
		return true
	}
	for _, pat := range l.Include {
		if ok, _ := path.Match(strings.ToLower(pat), n); ok {
			return true
		}
	}
	return false
}

func splitDirs(rel string) []string {
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" {
		return nil
	}
	return strings.Split(rel, "/")
}
