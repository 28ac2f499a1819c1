// Package transcript fixes misheard keywords in finished transcripts.
//
// Speech-to-text backends often mangle names they have never seen, even
// with keyword boosting. A [Corrector] slides over the transcript in word
// windows the size of each keyword and replaces a window that sounds like
// the keyword. A window position agrees with the keyword position when both
// share a Double Metaphone code or their Jaro-Winkler similarity reaches the
// fuzzy threshold. The window is replaced when every position agrees and the
// mean similarity reaches the phonetic threshold, or when the mean alone
// reaches the fuzzy threshold.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Default thresholds.
const (
	DefaultPhoneticThreshold = 0.70
	DefaultFuzzyThreshold    = 0.85
)

// Correction is one substitution made by [Corrector.Correct].
type Correction struct {
	Original  string  `json:"original"`
	Corrected string  `json:"corrected"`
	Score     float64 `json:"score"`
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the mean similarity a phonetically agreeing
// window needs. Default: 0.70.
func WithPhoneticThreshold(v float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = v }
}

// WithFuzzyThreshold sets the similarity at which spelling alone is enough.
// Default: 0.85.
func WithFuzzyThreshold(v float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = v }
}

// Corrector replaces sound-alike word windows with known keywords. It is
// read-only after construction and safe for concurrent use.
type Corrector struct {
	keywords          []keyword
	maxWords          int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

type keyword struct {
	text   string
	tokens []string
	codes  []map[string]struct{}
}

// New prepares a Corrector for keywords. Blank keywords are ignored.
func New(keywords []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: DefaultPhoneticThreshold,
		fuzzyThreshold:    DefaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	for _, k := range keywords {
		tokens := strings.Fields(strings.ToLower(k))
		if len(tokens) == 0 {
			continue
		}
		kw := keyword{text: strings.Join(strings.Fields(k), " "), tokens: tokens}
		for _, t := range tokens {
			kw.codes = append(kw.codes, codes(t))
		}
		c.keywords = append(c.keywords, kw)
		c.maxWords = max(c.maxWords, len(tokens))
	}
	return c
}

// Correct returns text with every matching window replaced by its keyword,
// and the substitutions made. Longer keywords are tried first at each
// position. Punctuation around a replaced window is kept.
func (c *Corrector) Correct(text string) (string, []Correction) {
	words := strings.Fields(text)
	if len(words) == 0 || len(c.keywords) == 0 {
		return text, nil
	}

	var (
		out         []string
		corrections []Correction
		changed     bool
	)
	for i := 0; i < len(words); {
		kw, score, n := c.match(words[i:])
		if n == 0 {
			out = append(out, words[i])
			i++
			continue
		}
		original := strings.Join(words[i:i+n], " ")
		lead, _ := splitPunct(words[i])
		_, trail := splitPunct(words[i+n-1])
		replaced := lead + kw + trail
		if replaced != original {
			corrections = append(corrections, Correction{Original: original, Corrected: kw, Score: score})
			changed = true
		}
		out = append(out, replaced)
		i += n
	}
	if !changed {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

// match finds the best keyword for the longest matching window at the start
// of words. n is 0 when nothing matches.
func (c *Corrector) match(words []string) (text string, score float64, n int) {
	for size := min(c.maxWords, len(words)); size >= 1; size-- {
		window := make([]string, size)
		for i, w := range words[:size] {
			_, core := splitPunctCore(w)
			window[i] = strings.ToLower(core)
		}
		var best float64
		for _, kw := range c.keywords {
			if len(kw.tokens) != size {
				continue
			}
			if s, ok := c.score(window, kw); ok && s > best {
				best, text = s, kw.text
			}
		}
		if best > 0 {
			return text, best, size
		}
	}
	return "", 0, 0
}

// score compares a lower-cased window against kw position by position.
func (c *Corrector) score(window []string, kw keyword) (float64, bool) {
	var sum float64
	agree := true
	for i, w := range window {
		if w == "" {
			return 0, false
		}
		s := matchr.JaroWinkler(w, kw.tokens[i], false)
		sum += s
		if s < c.fuzzyThreshold && !overlap(codes(w), kw.codes[i]) {
			agree = false
		}
	}
	mean := sum / float64(len(window))
	switch {
	case mean >= c.fuzzyThreshold:
		return mean, true
	case agree && mean >= c.phoneticThreshold:
		return mean, true
	}
	return 0, false
}

// codes returns the non-empty Double Metaphone codes of word.
func codes(word string) map[string]struct{} {
	set := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		set[p] = struct{}{}
	}
	if s != "" {
		set[s] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }

// splitPunct returns the punctuation before and after the word core.
func splitPunct(w string) (lead, trail string) {
	lead, core := splitPunctCore(w)
	return lead, w[len(lead)+len(core):]
}

func splitPunctCore(w string) (lead, core string) {
	start := strings.IndexFunc(w, isWordRune)
	if start < 0 {
		return w, ""
	}
	end := strings.LastIndexFunc(w, isWordRune)
	_, size := utf8.DecodeRuneInString(w[end:])
	return w[:start], w[start : end+size]
}
