// Package domain defines the fact table row shapes, candidates and precedence rules
package domain

import (
	"time"

	recdom "visawh/internal/services/reconcile/domain"
)

// Table names
const (
	TableCutoffs    = "fact_cutoffs"
	TablePerm       = "fact_perm"
	TableLCA        = "fact_lca"
	TableWarn       = "fact_warn_events"
	TableBenchmarks = "fact_salary_benchmarks"
)

// Source domains
const (
	DomainCutoffs    = "cutoffs"
	DomainPerm       = "perm"
	DomainLCA        = "lca"
	DomainWarn       = "warn"
	DomainBenchmarks = "benchmarks"
)

// TableOf maps a source domain to its fact table
func TableOf(domain string) string {
	switch domain {
	case DomainCutoffs:
		return TableCutoffs
	case DomainPerm:
		return TablePerm
	case DomainLCA:
		return TableLCA
	case DomainWarn:
		return TableWarn
	case DomainBenchmarks:
		return TableBenchmarks
	}
	return ""
}

// Cutoff is one visa bulletin cell; PK (bulletin_year, bulletin_month, category, country, chart)
type Cutoff struct {
	BulletinYear  int32     `parquet:"bulletin_year"`
	BulletinMonth int32     `parquet:"bulletin_month"`
	Category      string    `parquet:"category"`
	Country       string    `parquet:"country"`
	Chart         string    `parquet:"chart"`
	Status        string    `parquet:"status"`
	CutoffDate    time.Time `parquet:"cutoff_date,optional,timestamp(millisecond)"`
	SourceFile    string    `parquet:"source_file"`
	SourceRow     int32     `parquet:"source_row"`
}

// Filing is one labor-certification or petition case; PK case_id within its table
type Filing struct {
	CaseID               string    `parquet:"case_id"`
	FiscalYear           int32     `parquet:"fiscal_year"`
	EmployerID           string    `parquet:"employer_id"`
	EmployerNameRaw      string    `parquet:"employer_name_raw"`
	CaseStatus           string    `parquet:"case_status"`
	VisaClass            string    `parquet:"visa_class,optional"`
	ReceivedDate         time.Time `parquet:"received_date,optional,timestamp(millisecond)"`
	DecisionDate         time.Time `parquet:"decision_date,optional,timestamp(millisecond)"`
	SOCCode              string    `parquet:"soc_code,optional"`
	JobTitle             string    `parquet:"job_title,optional"`
	WageFrom             *float64  `parquet:"wage_from,optional"`
	WageTo               *float64  `parquet:"wage_to,optional"`
	PrevailingWage       *float64  `parquet:"prevailing_wage,optional"`
	WorksiteCity         string    `parquet:"worksite_city,optional"`
	WorksiteState        string    `parquet:"worksite_state,optional"`
	WorksitePostal       string    `parquet:"worksite_postal,optional"`
	AreaCode             string    `parquet:"area_code,optional"`
	FullTime             *bool     `parquet:"full_time,optional"`
	NAICSCode            string    `parquet:"naics_code,optional"`
	CountryOfCitizenship string    `parquet:"country_of_citizenship,optional"`
	SourceFile           string    `parquet:"source_file"`
	SourceRow            int32     `parquet:"source_row"`
}

// WarnEvent is one WARN Act layoff notice; PK event_key
type WarnEvent struct {
	EventKey          string    `parquet:"event_key"`
	NoticeYear        int32     `parquet:"notice_year"`
	State             string    `parquet:"state"`
	NoticeDate        time.Time `parquet:"notice_date,timestamp(millisecond)"`
	EmployerID        string    `parquet:"employer_id"`
	EmployerNameRaw   string    `parquet:"employer_name_raw"`
	City              string    `parquet:"city,optional"`
	EmployeesAffected int32     `parquet:"employees_affected"`
	SourceFile        string    `parquet:"source_file"`
	SourceRow         int32     `parquet:"source_row"`
}

// Benchmark is one annualized wage percentile row; PK (soc_code, area_code, ref_year)
type Benchmark struct {
	SOCCode    string   `parquet:"soc_code"`
	AreaCode   string   `parquet:"area_code"`
	RefYear    int32    `parquet:"ref_year"`
	P10        *float64 `parquet:"p10,optional"`
	P25        *float64 `parquet:"p25,optional"`
	Median     *float64 `parquet:"median,optional"`
	P75        *float64 `parquet:"p75,optional"`
	P90        *float64 `parquet:"p90,optional"`
	SourceFile string   `parquet:"source_file"`
	SourceRow  int32    `parquet:"source_row"`
}

// Percentiles returns p10, p25, median, p75 and p90 in order
func (b Benchmark) Percentiles() [5]*float64 { return [5]*float64{b.P10, b.P25, b.Median, b.P75, b.P90} }

// Complete reports whether all five percentiles are present
func (b Benchmark) Complete() bool {
	for _, p := range b.Percentiles() {
		if p == nil {
			return false
		}
	}
	return true
}

// Monotonic reports p10 <= p25 <= median <= p75 <= p90. Rows with a missing
// percentile are not held to the ordering and always pass
func (b Benchmark) Monotonic() bool {
	if !b.Complete() {
		return true
	}
	ps := b.Percentiles()
	for i := 1; i < len(ps); i++ {
		if *ps[i] < *ps[i-1] {
			return false
		}
	}
	return true
}

// Input is a reconciled record with its resolved employer, if the domain has one
type Input struct {
	Rec         recdom.Record
	Dirs        []string // extract directories below the domain root
	SourceName  string   // extract base name
	EmployerID  string
	EmployerKey string
	EmployerErr error // resolution failure; the record is rejected
}

// Meta carries the attributes precedence rules compare
type Meta struct {
	PeriodKey  int
	Decision   time.Time
	Complete   int
	SourceFile string
	Row        int
}

// Candidate is a row competing for its primary key
type Candidate[T any] struct {
	Key  string
	Meta Meta
	Row  T
}

// Domains lists the source domains in build order
var Domains = []string{DomainCutoffs, DomainPerm, DomainLCA, DomainWarn, DomainBenchmarks}

// HasEmployer reports whether records of a domain carry an employer name
func HasEmployer(domain string) bool {
	return domain == DomainPerm || domain == DomainLCA || domain == DomainWarn
}
