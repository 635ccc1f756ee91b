package keyword

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bharatsindha/icon-media-web-crawler/internal/rules"
)

// Validator accepts or rejects service-page keyword candidates.
type Validator struct {
	minLength  int
	maxLength  int
	minWords   int
	maxWords   int
	indicators []string
	generic    map[string]struct{}
}

// NewValidator builds a Validator from the validation rule table.
func NewValidator(cfg rules.Validation) *Validator {
	v := &Validator{
		minLength: cfg.MinLength,
		maxLength: cfg.MaxLength,
		minWords:  cfg.MinWords,
		maxWords:  cfg.MaxWords,
		generic:   make(map[string]struct{}, len(cfg.GenericPhrases)),
	}
	for _, term := range cfg.ServiceIndicators {
		if norm := Normalize(term); norm != "" {
			v.indicators = append(v.indicators, norm)
		}
	}
	for _, phrase := range cfg.GenericPhrases {
		v.generic[Normalize(phrase)] = struct{}{}
	}
	return v
}

// Valid reports whether text looks like a service name: bounded length and
// word count, not a generic phrase, and either naming a service activity or
// written mostly as capitalized words.
func (v *Validator) Valid(text string) bool {
	norm := Normalize(text)
	n := utf8.RuneCountInString(norm)
	if n < v.minLength || n > v.maxLength {
		return false
	}
	words := WordCount(norm)
	if words < v.minWords || words > v.maxWords {
		return false
	}
	if _, ok := v.generic[norm]; ok {
		return false
	}
	for _, term := range v.indicators {
		if strings.Contains(norm, term) {
			return true
		}
	}
	return IsMostlyCapitalized(text)
}

// IsMostlyCapitalized reports whether more than half of the words in text
// start with an uppercase letter.
func IsMostlyCapitalized(text string) bool {
	var lettered, capitalized int
	for _, word := range strings.Fields(text) {
		r, _ := utf8.DecodeRuneInString(word)
		if !unicode.IsLetter(r) {
			continue
		}
		lettered++
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			capitalized++
		}
	}
	return lettered > 0 && capitalized*2 > lettered
}
