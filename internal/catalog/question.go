package catalog

// Format selects how a question is answered.
type Format string

const (
	FormatSingleChoice   Format = "single_choice"
	FormatMultipleChoice Format = "multiple_choice"
	FormatScale          Format = "scale"
	FormatText           Format = "text"
	FormatLikert         Format = "likert"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	switch f {
	case FormatSingleChoice, FormatMultipleChoice, FormatScale, FormatText, FormatLikert:
		return true
	}
	return false
}

// Option is one selectable choice.
type Option struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
}

// Question is a single catalog item. The fields after Weight are only
// meaningful for the matching Format. Questions are immutable once loaded.
type Question struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Format    Format  `json:"format"`
	Category  string  `json:"category,omitempty"`
	Dimension string  `json:"dimension,omitempty"`
	Weight    float64 `json:"weight,omitempty"`

	// single_choice, multiple_choice
	Options []Option `json:"options,omitempty"`

	// multiple_choice; zero MaxSelections means len(Options).
	MinSelections int `json:"minSelections,omitempty"`
	MaxSelections int `json:"maxSelections,omitempty"`

	// scale
	Min  float64 `json:"min,omitempty"`
	Max  float64 `json:"max,omitempty"`
	Step float64 `json:"step,omitempty"`

	// likert: values 1..Points
	Points int `json:"points,omitempty"`

	// text; zero means DefaultMaxTextLength.
	MaxLength int `json:"maxLength,omitempty"`
}

// DefaultMaxTextLength bounds free-text answers when a question sets none.
const DefaultMaxTextLength = 2000

// HasOption reports whether v is one of the question's option values.
func (q *Question) HasOption(v string) bool {
	for _, o := range q.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

// SelectionBounds returns the effective [min, max] selection counts for a
// multiple-choice question.
func (q *Question) SelectionBounds() (int, int) {
	lo, hi := q.MinSelections, q.MaxSelections
	if lo <= 0 {
		lo = 1
	}
	if hi <= 0 || hi > len(q.Options) {
		hi = len(q.Options)
	}
	return lo, hi
}

// TextLimit returns the effective maximum text length in runes.
func (q *Question) TextLimit() int {
	if q.MaxLength > 0 {
		return q.MaxLength
	}
	return DefaultMaxTextLength
}

// TestInfo describes a test type for listings.
type TestInfo struct {
	TestType      string   `json:"testType"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	QuestionCount int      `json:"questionCount"`
	Languages     []string `json:"languages"`
}
