// Package catalog supplies ordered, typed question sets per test type.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLanguage is used when a question has no text in the requested language.
const DefaultLanguage = "en"

// ErrUnknownTestType is returned for test types the catalog does not define.
var ErrUnknownTestType = errors.New("unknown test type")

// Catalog supplies questions for a test type. Implementations must return
// a non-empty, stably ordered sequence or an error.
type Catalog interface {
	Questions(testType, language string) ([]Question, error)
	TestTypes() []TestInfo
}

//go:embed data/*.yaml
var builtinFS embed.FS

// fileQuestion is the on-disk shape; text is keyed by language.
type fileQuestion struct {
	ID            string            `yaml:"id"`
	Text          map[string]string `yaml:"text"`
	Format        Format            `yaml:"format"`
	Category      string            `yaml:"category"`
	Dimension     string            `yaml:"dimension"`
	Weight        float64           `yaml:"weight"`
	Options       []Option          `yaml:"options"`
	MinSelections int               `yaml:"minSelections"`
	MaxSelections int               `yaml:"maxSelections"`
	Min           *float64          `yaml:"min"`
	Max           *float64          `yaml:"max"`
	Step          float64           `yaml:"step"`
	Points        int               `yaml:"points"`
	MaxLength     int               `yaml:"maxLength"`
}

type fileTest struct {
	TestType    string         `yaml:"testType"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Questions   []fileQuestion `yaml:"questions"`
}

// Static is an in-memory catalog loaded once from YAML definitions.
type Static struct {
	tests map[string]*fileTest
	order []string
}

// Builtin loads the catalog shipped with the binary.
func Builtin() (*Static, error) {
	sub, err := fs.Sub(builtinFS, "data")
	if err != nil {
		return nil, fmt.Errorf("open builtin catalog: %w", err)
	}
	return Load(sub)
}

// Load reads every *.yaml file at the root of fsys as one test definition.
func Load(fsys fs.FS) (*Static, error) {
	names, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list catalog files: %w", err)
	}
	sort.Strings(names)

	c := &Static{tests: make(map[string]*fileTest)}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var ft fileTest
		if err := yaml.Unmarshal(data, &ft); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if ft.TestType == "" {
			ft.TestType = strings.TrimSuffix(path.Base(name), ".yaml")
		}
		if err := validateTest(&ft); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", name, err)
		}
		if _, dup := c.tests[ft.TestType]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate test type %q", name, ft.TestType)
		}
		c.tests[ft.TestType] = &ft
		c.order = append(c.order, ft.TestType)
	}
	return c, nil
}

// Questions returns the questions of testType with text in language,
// falling back to DefaultLanguage per question.
func (c *Static) Questions(testType, language string) ([]Question, error) {
	ft, ok := c.tests[testType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTestType, testType)
	}
	if language == "" {
		language = DefaultLanguage
	}

	out := make([]Question, 0, len(ft.Questions))
	for _, fq := range ft.Questions {
		text, ok := fq.Text[language]
		if !ok {
			text = fq.Text[DefaultLanguage]
		}
		q := Question{
			ID:            fq.ID,
			Text:          text,
			Format:        fq.Format,
			Category:      fq.Category,
			Dimension:     fq.Dimension,
			Weight:        fq.Weight,
			Options:       append([]Option(nil), fq.Options...),
			MinSelections: fq.MinSelections,
			MaxSelections: fq.MaxSelections,
			Step:          fq.Step,
			Points:        fq.Points,
			MaxLength:     fq.MaxLength,
		}
		if fq.Min != nil {
			q.Min = *fq.Min
		}
		if fq.Max != nil {
			q.Max = *fq.Max
		}
		out = append(out, q)
	}
	return out, nil
}

// TestTypes lists the catalog's test types in load order.
func (c *Static) TestTypes() []TestInfo {
	out := make([]TestInfo, 0, len(c.order))
	for _, name := range c.order {
		ft := c.tests[name]
		langs := make(map[string]bool)
		for _, q := range ft.Questions {
			for l := range q.Text {
				langs[l] = true
			}
		}
		var langList []string
		for l := range langs {
			langList = append(langList, l)
		}
		sort.Strings(langList)
		out = append(out, TestInfo{
			TestType:      ft.TestType,
			Title:         ft.Title,
			Description:   ft.Description,
			QuestionCount: len(ft.Questions),
			Languages:     langList,
		})
	}
	return out
}

// validateTest performs structural checks on a test definition.
// Returns a combined error describing all problems found, or nil if valid.
func validateTest(ft *fileTest) error {
	var errs []string

	if len(ft.Questions) == 0 {
		errs = append(errs, "no questions")
	}

	seen := make(map[string]bool, len(ft.Questions))
	for i, q := range ft.Questions {
		where := fmt.Sprintf("question %d (%s)", i+1, q.ID)
		if q.ID == "" {
			errs = append(errs, fmt.Sprintf("question %d: empty id", i+1))
		}
		if seen[q.ID] {
			errs = append(errs, fmt.Sprintf("duplicate question id %q", q.ID))
		}
		seen[q.ID] = true
		if q.Text[DefaultLanguage] == "" {
			errs = append(errs, fmt.Sprintf("%s: missing %q text", where, DefaultLanguage))
		}
		if !q.Format.Valid() {
			errs = append(errs, fmt.Sprintf("%s: unknown format %q", where, q.Format))
			continue
		}

		switch q.Format {
		case FormatSingleChoice, FormatMultipleChoice:
			if len(q.Options) < 2 {
				errs = append(errs, fmt.Sprintf("%s: needs at least 2 options", where))
			}
			optSeen := make(map[string]bool, len(q.Options))
			for _, o := range q.Options {
				if o.Value == "" || optSeen[o.Value] {
					errs = append(errs, fmt.Sprintf("%s: empty or duplicate option %q", where, o.Value))
				}
				optSeen[o.Value] = true
			}
			if q.Format == FormatMultipleChoice && q.MaxSelections > 0 && q.MinSelections > q.MaxSelections {
				errs = append(errs, fmt.Sprintf("%s: minSelections > maxSelections", where))
			}
		case FormatScale:
			if q.Min == nil || q.Max == nil || *q.Min >= *q.Max {
				errs = append(errs, fmt.Sprintf("%s: scale needs min < max", where))
			}
		case FormatLikert:
			if q.Points < 2 {
				errs = append(errs, fmt.Sprintf("%s: likert needs at least 2 points", where))
			}
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
