package smartdelay

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// defaultQuestionMarkers are matched on whole words against normalized text.
var defaultQuestionMarkers = []string{
	// English
	"how much",
	"how many",
	"how long",
	"when",
	"where",
	"what",
	"which",
	"is it available",
	"is this available",
	"do you have",
	"can i",
	// Arabic (Egyptian and MSA)
	"كام",
	"بكام",
	"امتى",
	"إمتى",
	"فين",
	"هل",
	"ليه",
	"ازاي",
	"إزاي",
	"ايه",
	"إيه",
	"متاح",
	"متوفر",
}

type Classification struct {
	Category Category
	Delay    time.Duration
}

// Classifier is a pure function of its config; the zero value is not usable, use NewClassifier.
type Classifier struct {
	delays        Delays
	longThreshold int
	markers       []string
}

func NewClassifier(cfg Config) Classifier {
	markers := make([]string, 0, len(defaultQuestionMarkers))
	for _, m := range defaultQuestionMarkers {
		markers = append(markers, normalize(m))
	}
	return Classifier{
		delays:        cfg.Delays,
		longThreshold: cfg.LongThreshold,
		markers:       markers,
	}
}

func (c Classifier) Classify(text string) Classification {
	category := c.category(text)
	return Classification{
		Category: category,
		Delay:    c.delays.For(category),
	}
}

func (c Classifier) category(text string) Category {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return CategoryShortFragment
	}

	// Questions win over length: they are never held back.
	if c.isQuestion(trimmed) {
		return CategoryDirectQuestion
	}

	if c.longThreshold > 0 && utf8.RuneCountInString(trimmed) > c.longThreshold {
		return CategoryLongStatement
	}

	return CategoryShortFragment
}

func (c Classifier) isQuestion(trimmed string) bool {
	if strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, "؟") {
		return true
	}

	normalized := normalize(trimmed)
	if normalized == "" {
		return false
	}
	padded := " " + normalized + " "
	for _, marker := range c.markers {
		if marker != "" && strings.Contains(padded, " "+marker+" ") {
			return true
		}
	}
	return false
}

// normalize lower-cases text and collapses everything that is not a letter,
// digit or combining mark into single spaces.
func normalize(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.Is(unicode.Mn, r)
	})
	return strings.Join(words, " ")
}
