// Package classify slices a client's ledger account records by compound
// filters and applies classifications to many records in one operation.
package classify

import (
	"github.com/cierreops/cierre-cli/internal/model"
)

// OptionKey names one (set, option value) pair.
type OptionKey struct {
	Set   string
	Value string
}

// Filter is a compound predicate over records. Every non-empty dimension
// must pass (logical AND); within Sets and Options any listed entry
// suffices (logical OR). OnlyUnclassified and OnlyClassified are mutually
// exclusive; setting both matches nothing.
type Filter struct {
	// Text matches the account code or either-language name, as a case-
	// and diacritic-insensitive substring.
	Text string

	// Sets passes records holding a classification in any listed set.
	Sets []string

	// Options passes records matching any listed (set, value) pair.
	Options []OptionKey

	// OnlyUnclassified keeps records with an empty classification map;
	// OnlyClassified keeps records with at least one entry.
	OnlyUnclassified bool
	OnlyClassified   bool

	// MissingInSet keeps records with no entry for the named set.
	MissingInSet string
}

// Empty reports whether the filter constrains nothing.
func (f Filter) Empty() bool {
	return f.Text == "" &&
		len(f.Sets) == 0 &&
		len(f.Options) == 0 &&
		!f.OnlyUnclassified &&
		!f.OnlyClassified &&
		f.MissingInSet == ""
}

// Matches evaluates the filter against one record.
func (f Filter) Matches(r model.Record) bool {
	if f.Text != "" &&
		!foldContains(r.AccountCode, f.Text) &&
		!foldContains(r.Name, f.Text) &&
		!foldContains(r.NameEN, f.Text) {
		return false
	}

	if len(f.Sets) > 0 {
		found := false
		for _, set := range f.Sets {
			if _, ok := r.Classifications[set]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.Options) > 0 {
		found := false
		for _, opt := range f.Options {
			if r.Classifications[opt.Set] == opt.Value && opt.Value != "" {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.OnlyUnclassified && r.Classified() {
		return false
	}
	if f.OnlyClassified && !r.Classified() {
		return false
	}

	if f.MissingInSet != "" {
		if _, ok := r.Classifications[f.MissingInSet]; ok {
			return false
		}
	}

	return true
}

// Apply returns the records passing the filter, preserving input order.
func Apply(records []model.Record, f Filter) []model.Record {
	var out []model.Record
	for _, r := range records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// QuickFilter is one of the derived one-click filters computed over the
// unfiltered collection. It composes with the general filter by AND and
// clears independently of it.
type QuickFilter string

const (
	QuickNone         QuickFilter = ""
	QuickNoName       QuickFilter = "sin_nombre"
	QuickNoNameEN     QuickFilter = "sin_nombre_en"
	QuickUnclassified QuickFilter = "sin_clasificar"
)

// Matches evaluates the quick filter against one record.
func (q QuickFilter) Matches(r model.Record) bool {
	switch q {
	case QuickNoName:
		return r.Name == ""
	case QuickNoNameEN:
		return r.NameEN == ""
	case QuickUnclassified:
		return !r.Classified()
	default:
		return true
	}
}

// Summary holds the quick-filter counts over the unfiltered collection.
// NoNameEN is only meaningful for bilingual clients.
type Summary struct {
	NoName       int `json:"no_name"`
	NoNameEN     int `json:"no_name_en"`
	Unclassified int `json:"unclassified"`
}

// Summarize computes the quick-filter counts.
func Summarize(records []model.Record) Summary {
	var s Summary
	for _, r := range records {
		if r.Name == "" {
			s.NoName++
		}
		if r.NameEN == "" {
			s.NoNameEN++
		}
		if !r.Classified() {
			s.Unclassified++
		}
	}
	return s
}

// Engine owns one view over a record collection: the general filter, the
// quick filter, and a memoized result recomputed whenever any input
// changes. Output order always follows the record collection's order.
type Engine struct {
	records []model.Record
	filter  Filter
	quick   QuickFilter

	memo      []model.Record
	memoValid bool
}

// NewEngine creates an engine over the given records.
func NewEngine(records []model.Record) *Engine {
	return &Engine{records: records}
}

// SetRecords replaces the collection and invalidates the memo.
func (e *Engine) SetRecords(records []model.Record) {
	e.records = records
	e.memoValid = false
}

// SetFilter replaces the general filter.
func (e *Engine) SetFilter(f Filter) {
	e.filter = f
	e.memoValid = false
}

// Filter returns the current general filter.
func (e *Engine) Filter() Filter {
	return e.filter
}

// SetQuick toggles a quick filter: selecting the active one clears it.
func (e *Engine) SetQuick(q QuickFilter) {
	if e.quick == q {
		q = QuickNone
	}
	e.quick = q
	e.memoValid = false
}

// ClearQuick clears the quick filter without touching the general filter.
func (e *Engine) ClearQuick() {
	e.quick = QuickNone
	e.memoValid = false
}

// Quick returns the active quick filter.
func (e *Engine) Quick() QuickFilter {
	return e.quick
}

// Results returns the filtered view. The slice is memoized until records
// or filters change; callers must not mutate it.
func (e *Engine) Results() []model.Record {
	if e.memoValid {
		return e.memo
	}
	var out []model.Record
	for _, r := range e.records {
		if e.filter.Matches(r) && e.quick.Matches(r) {
			out = append(out, r)
		}
	}
	e.memo = out
	e.memoValid = true
	return out
}

// Summary computes quick-filter counts over the unfiltered collection.
func (e *Engine) Summary() Summary {
	return Summarize(e.records)
}
