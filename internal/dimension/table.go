package dimension

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/psytest/internal/catalog"
)

// FallbackLabel is used when a table does not declare a defaultLabel.
const FallbackLabel = "unclassified"

// Entry maps one question to a label.
type Entry struct {
	Question string `yaml:"question"`
	Label    string `yaml:"label"`

	// Weight scales the contribution; zero means 1.
	Weight float64 `yaml:"weight"`

	// Options sends choice answers to per-option labels instead of Label.
	Options map[string]string `yaml:"options"`

	// ReverseBase, when set, turns a numeric answer v into ReverseBase-v
	// (reverse-keyed items).
	ReverseBase float64 `yaml:"reverseBase"`

	// FreeText marks text questions; their answers add nothing.
	FreeText bool `yaml:"freeText"`
}

// PrefixRule maps every question id starting with Prefix to Label.
type PrefixRule struct {
	Prefix string  `yaml:"prefix"`
	Label  string  `yaml:"label"`
	Weight float64 `yaml:"weight"`
}

// Table is a versioned per-test-type lookup table.
type Table struct {
	TestType     string       `yaml:"testType"`
	Version      string       `yaml:"version"`
	DefaultLabel string       `yaml:"defaultLabel"`
	Entries      []Entry      `yaml:"entries"`
	Prefixes     []PrefixRule `yaml:"prefixes"`

	byQuestion map[string]*Entry
}

// resolved is the outcome of looking up one question id.
type resolved struct {
	label    string
	weight   float64
	entry    *Entry
	fallback bool
}

func (t *Table) index() {
	t.byQuestion = make(map[string]*Entry, len(t.Entries))
	for i := range t.Entries {
		t.byQuestion[t.Entries[i].Question] = &t.Entries[i]
	}
	// Longest prefix first so the most specific rule wins.
	sort.SliceStable(t.Prefixes, func(i, j int) bool {
		return len(t.Prefixes[i].Prefix) > len(t.Prefixes[j].Prefix)
	})
	if t.DefaultLabel == "" {
		t.DefaultLabel = FallbackLabel
	}
}

func (t *Table) resolve(questionID string) resolved {
	if e, ok := t.byQuestion[questionID]; ok {
		return resolved{label: e.Label, weight: orOne(e.Weight), entry: e}
	}
	for _, p := range t.Prefixes {
		if strings.HasPrefix(questionID, p.Prefix) {
			return resolved{label: p.Label, weight: orOne(p.Weight)}
		}
	}
	return resolved{label: t.DefaultLabel, weight: 1, fallback: true}
}

func orOne(w float64) float64 {
	if w == 0 {
		return 1
	}
	return w
}

func (t *Table) validate() error {
	var errs []string
	if t.TestType == "" {
		errs = append(errs, "missing testType")
	}
	if !semver.IsValid(t.Version) {
		errs = append(errs, fmt.Sprintf("version %q is not a valid semantic version (want vMAJOR.MINOR.PATCH)", t.Version))
	}
	if len(t.Entries) == 0 && len(t.Prefixes) == 0 {
		errs = append(errs, "no entries or prefixes")
	}
	seen := make(map[string]bool, len(t.Entries))
	for _, e := range t.Entries {
		if e.Question == "" {
			errs = append(errs, "entry with empty question id")
		}
		if seen[e.Question] {
			errs = append(errs, fmt.Sprintf("duplicate entry for %q", e.Question))
		}
		seen[e.Question] = true
		if e.Label == "" && len(e.Options) == 0 {
			errs = append(errs, fmt.Sprintf("entry %q has neither label nor options", e.Question))
		}
	}
	for _, p := range t.Prefixes {
		if p.Prefix == "" || p.Label == "" {
			errs = append(errs, fmt.Sprintf("prefix rule %q needs prefix and label", p.Prefix))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// CheckCoverage verifies a table against the catalog questions of its
// test type: every question must resolve without the default label, and
// every explicit entry must name a catalog question. Text questions may
// be left to the default label since they carry no numeric signal.
func CheckCoverage(t *Table, questions []catalog.Question) error {
	var errs []string
	ids := make(map[string]bool, len(questions))
	for _, q := range questions {
		ids[q.ID] = true
		if q.Format == catalog.FormatText {
			continue
		}
		r := t.resolve(q.ID)
		if r.fallback {
			errs = append(errs, fmt.Sprintf("question %q has no lookup entry", q.ID))
			continue
		}
		if r.entry != nil && len(r.entry.Options) > 0 {
			for _, o := range q.Options {
				if _, ok := r.entry.Options[o.Value]; !ok && r.entry.Label == "" {
					errs = append(errs, fmt.Sprintf("question %q option %q has no label", q.ID, o.Value))
				}
			}
		}
	}
	for _, e := range t.Entries {
		if !ids[e.Question] {
			errs = append(errs, fmt.Sprintf("entry %q does not match any catalog question", e.Question))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("lookup table %s@%s: %s", t.TestType, t.Version, strings.Join(errs, "; "))
	}
	return nil
}

//go:embed tables/*.yaml
var builtinTables embed.FS

// Registry holds the newest table version per test type.
type Registry struct {
	tables map[string]*Table
}

// BuiltinTables loads the lookup tables shipped with the binary.
func BuiltinTables() (*Registry, error) {
	sub, err := fs.Sub(builtinTables, "tables")
	if err != nil {
		return nil, fmt.Errorf("open builtin tables: %w", err)
	}
	return LoadTables(sub)
}

// LoadTables parses every *.yaml file in fsys. When several files declare
// the same test type, the highest version wins.
func LoadTables(fsys fs.FS) (*Registry, error) {
	names, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	sort.Strings(names)

	r := &Registry{tables: make(map[string]*Table)}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var t Table
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
		t.index()

		if prev, ok := r.tables[t.TestType]; ok {
			switch semver.Compare(t.Version, prev.Version) {
			case 0:
				return nil, fmt.Errorf("table %s: duplicate %s@%s", name, t.TestType, t.Version)
			case -1:
				continue
			}
		}
		r.tables[t.TestType] = &t
	}
	return r, nil
}

// Table returns the active table for testType.
func (r *Registry) Table(testType string) (*Table, bool) {
	t, ok := r.tables[testType]
	return t, ok
}

// Tables returns the loaded tables ordered by test type.
func (r *Registry) Tables() []*Table {
	out := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestType < out[j].TestType })
	return out
}

// Verify checks every catalog test type has a table with full coverage.
func (r *Registry) Verify(c catalog.Catalog) error {
	var errs []error
	for _, info := range c.TestTypes() {
		t, ok := r.tables[info.TestType]
		if !ok {
			errs = append(errs, fmt.Errorf("no lookup table for test type %q", info.TestType))
			continue
		}
		qs, err := c.Questions(info.TestType, catalog.DefaultLanguage)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := CheckCoverage(t, qs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
