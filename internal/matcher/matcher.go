package matcher

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloudflare/ahocorasick"
	"golang.org/x/text/unicode/norm"

	"github.com/user/keyword-crawler/internal/domain"
)

const (
	DefaultContextRadius = 80

	// densityCeiling is the occurrences per 1000 characters at which the
	// density part of the score saturates.
	densityCeiling = 10.0

	densityWeight  = 0.6
	positionWeight = 0.25
	titleWeight    = 0.15
)

type keyword struct {
	original string
	folded   string
	runes    int
}

// Matcher finds keyword occurrences in cleaned page text. It is safe for
// concurrent use.
type Matcher struct {
	keywords []keyword
	ac       *ahocorasick.Matcher
	radius   int
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithContextRadius sets how many characters of context are kept on each
// side of the first occurrence.
func WithContextRadius(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.radius = n
		}
	}
}

// New builds a matcher for keywords. Matching is case-insensitive and
// keywords keep the order given.
func New(keywords []string, opts ...Option) *Matcher {
	m := &Matcher{radius: DefaultContextRadius}
	for _, o := range opts {
		o(m)
	}
	patterns := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = norm.NFC.String(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		f := fold(k)
		m.keywords = append(m.keywords, keyword{original: k, folded: f, runes: utf8.RuneCountInString(f)})
		patterns = append(patterns, f)
	}
	m.ac = ahocorasick.NewStringMatcher(patterns)
	return m
}

// Match returns one KeywordMatch per keyword occurring in text, in keyword
// order. Keywords that do not occur produce nothing.
func (m *Matcher) Match(text, title, sourceURL string) []domain.KeywordMatch {
	if text == "" || len(m.keywords) == 0 {
		return nil
	}
	folded := fold(text)
	hits := m.ac.MatchThreadSafe([]byte(folded))
	if len(hits) == 0 {
		return nil
	}
	found := make(map[int]bool, len(hits))
	for _, h := range hits {
		found[h] = true
	}

	textRunes := []rune(text)
	foldedTitle := fold(title)
	var out []domain.KeywordMatch
	for i, k := range m.keywords {
		if !found[i] {
			continue
		}
		first := strings.Index(folded, k.folded)
		if first < 0 {
			continue
		}
		count := strings.Count(folded, k.folded)
		pos := utf8.RuneCountInString(folded[:first])

		out = append(out, domain.KeywordMatch{
			Keyword:        k.original,
			Context:        excerpt(textRunes, pos, k.runes, m.radius),
			CleanedText:    text,
			Count:          count,
			RelevanceScore: score(count, pos, len(textRunes), strings.Contains(foldedTitle, k.folded)),
			SourceURL:      sourceURL,
		})
	}
	return out
}

// fold lower-cases s one rune at a time so rune positions in the result line
// up with rune positions in s.
func fold(s string) string {
	return strings.Map(unicode.ToLower, s)
}

// score combines occurrence density, how early the first occurrence is and
// whether the keyword is in the title into a value in [0, 1].
func score(count, firstRune, textRunes int, inTitle bool) float64 {
	if textRunes <= 0 || count <= 0 {
		return 0
	}
	density := float64(count) * 1000 / float64(textRunes)
	s := densityWeight * math.Min(1, density/densityCeiling)
	s += positionWeight * (1 - float64(firstRune)/float64(textRunes))
	if inTitle {
		s += titleWeight
	}
	s = math.Max(0, math.Min(1, s))
	return math.Round(s*10000) / 10000
}

// excerpt returns up to radius runes either side of the occurrence at pos,
// shrunk so it neither starts nor ends inside a word.
func excerpt(text []rune, pos, length, radius int) string {
	start := max(0, pos-radius)
	end := min(len(text), pos+length+radius)

	if start > 0 && !unicode.IsSpace(text[start-1]) {
		for start < pos && !unicode.IsSpace(text[start]) {
			start++
		}
	}
	if end < len(text) && !unicode.IsSpace(text[end]) {
		for end > pos+length && !unicode.IsSpace(text[end-1]) {
			end--
		}
	}
	return strings.TrimSpace(string(text[start:end]))
}
