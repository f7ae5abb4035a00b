// Package textfilter softens strong language in narrator output for
// family-rated scenarios.
package textfilter

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/story-relay/pkg/scenario"
)

const censored = "[censored]"

// substitutions maps a lowercase word or phrase to its mild stand-in.
var substitutions = map[string]string{
	"fuck":         "fudge",
	"fucking":      "flipping",
	"motherfucker": "mother-trucker",
	"shit":         "shoot",
	"bullshit":     "baloney",
	"horseshit":    "nonsense",
	"dipshit":      "dummy",
	"shithead":     "dolt",
	"damn":         "dang",
	"goddamn":      "gosh-dang",
	"hell":         "heck",
	"ass":          "rear",
	"asshole":      "lout",
	"jackass":      "lout",
	"dumbass":      "dummy",
	"bitch":        "wretch",
	"bastard":      "scoundrel",
	"crap":         "rubbish",
	"piss":         "blazes",
	"dick":         "cad",
	"dickhead":     "cad",
	"prick":        "cad",
	"jesus christ": "by the stars",
	"whore":        censored,
	"slut":         censored,
	"cock":         censored,
	"cunt":         censored,
	"pussy":        censored,
	"tits":         censored,
	"retard":       censored,
	"fag":          censored,
}

var (
	upper = cases.Upper(language.English)
	lower = cases.Lower(language.English)
	title = cases.Title(language.English)
)

// Filter replaces listed words, keeping the case shape of the match and
// any plural suffix. A nil *Filter passes text through unchanged.
type Filter struct {
	re *regexp.Regexp
}

// New compiles the word table into a single matcher.
func New() *Filter {
	words := make([]string, 0, len(substitutions))
	for w := range substitutions {
		words = append(words, w)
	}
	// longest first so "bullshit" wins over "shit"
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return &Filter{
		re: regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)(es|s)?\b`),
	}
}

// ForRating returns a filter for ratings that need one and nil otherwise.
func ForRating(rating string) *Filter {
	if !Applies(rating) {
		return nil
	}
	return New()
}

// Applies reports whether text shown for rating should be filtered.
// Unknown or empty ratings are left alone.
func Applies(rating string) bool {
	switch scenario.NormalizeRating(rating) {
	case scenario.RatingG, scenario.RatingPG, scenario.RatingPG13:
		return true
	default:
		return false
	}
}

// Apply returns text with every listed word replaced.
func (f *Filter) Apply(text string) string {
	if f == nil {
		return text
	}
	return f.re.ReplaceAllStringFunc(text, func(match string) string {
		sub := f.re.FindStringSubmatch(match)
		word, suffix := sub[1], sub[2]
		repl := substitutions[strings.ToLower(word)]
		if repl == censored {
			return censored
		}
		return matchCase(word, repl) + suffix
	})
}

// Contains reports whether text holds any listed word.
func (f *Filter) Contains(text string) bool {
	return f != nil && f.re.MatchString(text)
}

// matchCase gives repl the case shape of orig.
func matchCase(orig, repl string) string {
	switch {
	case upper.String(orig) == orig && lower.String(orig) != orig:
		return upper.String(repl)
	case lower.String(orig) == orig:
		return repl
	case title.String(orig) == orig:
		return title.String(repl)
	}

	or := []rune(orig)
	out := []rune(repl)
	for i := range out {
		if i < len(or) && unicode.IsUpper(or[i]) {
			out[i] = unicode.ToUpper(out[i])
		}
	}
	return string(out)
}
