// Package contentfilter classifies and redacts free-text submissions.
//
// Categories are pattern sets. Strict-tier matches reject the text; warn-
// tier matches are replaced with a placeholder and the text is kept.
package contentfilter

import (
	"regexp"
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/abhisek/psytest/internal/apperr"
)

// Category names a pattern set.
type Category string

const (
	HateSpeech   Category = "hate_speech"
	Adult        Category = "adult"
	Profanity    Category = "profanity"
	PersonalInfo Category = "personal_info"
	Spam         Category = "spam"
)

// AllCategories lists every built-in category in evaluation order.
var AllCategories = []Category{HateSpeech, Adult, Profanity, PersonalInfo, Spam}

// Severity of a check.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Placeholder replaces redacted spans.
const Placeholder = "[redacted]"

var builtinPatterns = map[Category][]string{
	HateSpeech: {
		`\bsubhumans?\b`,
		`\b(?:kill|exterminate|gas)\s+all\s+(?:the\s+)?\w+`,
		`\bgo\s+back\s+to\s+your\s+(?:own\s+)?country\b`,
		`\b(?:inferior|filthy)\s+race\b`,
	},
	Adult: {
		`\bporn\w*`,
		`\bxxx\b`,
		`\bnudes?\b`,
		`\bonlyfans\b`,
		`\bsex\s*cam\w*`,
	},
	Profanity: {
		`\bf+u+c+k+\w*`,
		`\bsh[i1]t+\w*`,
		`\bb[i1]tch\w*`,
		`\bassholes?\b`,
		`\bbastards?\b`,
		`\bdamn\b`,
	},
	PersonalInfo: {
		`[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`,
		`(?:\+?\d{1,3}[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`,
		`\b\d{3}-\d{2}-\d{4}\b`,
		`\b(?:\d[ \-]?){13,16}\b`,
	},
	Spam: {
		`\bbuy\s+now\b`,
		`\bclick\s+here\b`,
		`\b(?:free|easy)\s+money\b`,
		`\blimited\s+(?:time\s+)?offer\b`,
		`\bact\s+now\b`,
		`https?://\S+`,
		`\bwww\.\S+`,
	},
}

// Result is the outcome of checking one text.
type Result struct {
	IsClean            bool       `json:"isClean"`
	DetectedCategories []Category `json:"detectedCategories"`
	Severity           Severity   `json:"severity"`
	FilteredContent    string     `json:"filteredContent"`

	// Rejected is set when a strict-tier category matched.
	Rejected bool `json:"rejected"`
}

// Filter holds compiled category patterns and the strict tier.
type Filter struct {
	patterns map[Category][]*regexp.Regexp
	strict   map[Category]bool
}

// Default builds a filter with the built-in patterns. hate_speech and
// adult are strict; the rest are warn tier.
func Default() *Filter {
	return New([]Category{HateSpeech, Adult})
}

// New builds a filter with the built-in patterns and the given strict
// categories.
func New(strict []Category) *Filter {
	f := &Filter{
		patterns: make(map[Category][]*regexp.Regexp, len(builtinPatterns)),
		strict:   make(map[Category]bool, len(strict)),
	}
	for cat, pats := range builtinPatterns {
		for _, p := range pats {
			f.patterns[cat] = append(f.patterns[cat], regexp.MustCompile(`(?i)`+p))
		}
	}
	for _, c := range strict {
		f.strict[c] = true
	}
	return f
}

// IsStrict reports whether c rejects outright.
func (f *Filter) IsStrict(c Category) bool {
	return f.strict[c]
}

// Check classifies text against categories (all categories when none are
// given). Matching runs on the NFKC-normalised text so full-width and
// compatibility characters match their plain forms. FilteredContent is
// the original text unless a warn-tier match was redacted, in which case
// it is the redacted normalised text. Strict-tier matches set Rejected.
func (f *Filter) Check(text string, categories ...Category) Result {
	if len(categories) == 0 {
		categories = AllCategories
	}
	normalized := norm.NFKC.String(text)

	res := Result{FilteredContent: text, Severity: SeverityLow}
	redacted := normalized
	var redactedAny bool
	for _, cat := range AllCategories {
		if !slices.Contains(categories, cat) {
			continue
		}
		matched := false
		for _, re := range f.patterns[cat] {
			if re.MatchString(normalized) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		res.DetectedCategories = append(res.DetectedCategories, cat)
		if f.strict[cat] {
			res.Rejected = true
			continue
		}
		for _, re := range f.patterns[cat] {
			redacted = re.ReplaceAllString(redacted, Placeholder)
		}
		redactedAny = true
	}
	if redactedAny {
		res.FilteredContent = redacted
	}

	res.IsClean = len(res.DetectedCategories) == 0
	switch {
	case res.Rejected:
		res.Severity = SeverityHigh
	case len(res.DetectedCategories) > 1 || slices.Contains(res.DetectedCategories, PersonalInfo):
		res.Severity = SeverityMedium
	}
	if res.Rejected {
		res.FilteredContent = ""
	}
	return res
}

// Apply checks text against every category and returns the redacted
// text, or a *apperr.ContentPolicyError when a strict category matched.
func (f *Filter) Apply(text string) (Result, error) {
	res := f.Check(text)
	if !res.Rejected {
		return res, nil
	}
	var cats []string
	for _, c := range res.DetectedCategories {
		if f.strict[c] {
			cats = append(cats, string(c))
		}
	}
	return res, &apperr.ContentPolicyError{Categories: cats}
}
