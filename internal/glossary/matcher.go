package glossary

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// MatcherOption is a functional option for configuring a [Matcher].
type MatcherOption func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic overlap is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher scores candidate spans against glossary terms. It is read-only
// after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewMatcher returns a [Matcher] configured with the supplied options.
// Default thresholds are 0.70 for phonetic matches and 0.85 for fuzzy
// fallback matches.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the glossary term whose surface form is most similar to span.
//
// Candidates are filtered in two ways before ranking:
//
//   - Word count: span only matches surface forms with the same number of
//     words. Cross-count mishearings ("vox late" heard for "Voxlate") are
//     expressed as explicit variants in the glossary.
//   - Anchoring: a multi-word span must align with the surface form on its
//     first token, either by a shared Double Metaphone code or by a
//     Jaro-Winkler score at or above the fuzzy threshold. This keeps a
//     window that merely overlaps the middle of a term from matching.
//
// Among the remaining candidates, terms sharing at least one phonetic code
// with the span are ranked by Jaro-Winkler against the phonetic threshold;
// when no phonetic candidate qualifies, pure string similarity against the
// fuzzy threshold decides. When matched is false, canonical equals span
// unchanged and confidence is 0.
func (m *Matcher) Match(span string, set *TermSet) (canonical string, confidence float64, matched bool) {
	if set == nil || len(set.entries) == 0 {
		return span, 0, false
	}
	spanLower := strings.ToLower(strings.TrimSpace(span))
	if spanLower == "" {
		return span, 0, false
	}

	tokens := strings.Fields(spanLower)
	spanLower = strings.Join(tokens, " ")
	concat := strings.Join(tokens, "")
	spanCodes := codesForTokens(tokens)
	anchorCodes := codesForTokens(tokens[:1])

	type candidate struct {
		canonical string
		score     float64
		phonetic  bool
	}
	var best candidate

	for i := range set.entries {
		e := &set.entries[i]
		if len(e.tokens) != len(tokens) {
			continue
		}
		if len(tokens) > 1 && !m.anchored(tokens[0], anchorCodes, e) {
			continue
		}

		score := matchr.JaroWinkler(spanLower, e.surface, false)
		if len(tokens) > 1 {
			if s := matchr.JaroWinkler(concat, e.concat, false); s > score {
				score = s
			}
		}

		if codesOverlap(spanCodes, e.codes) {
			if score >= m.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = candidate{canonical: e.canonical, score: score, phonetic: true}
			}
		} else if !best.phonetic && score >= m.fuzzyThreshold && score > best.score {
			best = candidate{canonical: e.canonical, score: score, phonetic: false}
		}
	}

	if best.canonical != "" {
		return best.canonical, best.score, true
	}
	return span, 0, false
}

// anchored reports whether the first token of a span aligns with the first
// word of the surface form.
func (m *Matcher) anchored(first string, firstCodes map[string]struct{}, e *entry) bool {
	if codesOverlap(firstCodes, e.firstCodes) {
		return true
	}
	return matchr.JaroWinkler(first, e.tokens[0], false) >= m.fuzzyThreshold
}

// ─── Prepared term sets ──────────────────────────────────────────────────────

// TermSet is an immutable matching index over glossary terms: every surface
// form (canonical and variants) with its tokens and phonetic codes
// precomputed, so the per-window cost of a correction pass stays flat.
type TermSet struct {
	entries  []entry
	maxWords int
}

type entry struct {
	canonical  string
	surface    string
	tokens     []string
	concat     string
	codes      map[string]struct{}
	firstCodes map[string]struct{}
}

// Prepare builds a [TermSet] from terms. Blank canonical forms and blank
// variants are skipped.
func Prepare(terms []Term) *TermSet {
	set := &TermSet{}
	for _, t := range terms {
		canonical := strings.TrimSpace(t.Canonical)
		if canonical == "" {
			continue
		}
		set.add(canonical, canonical)
		for _, v := range t.Variants {
			set.add(v, canonical)
		}
	}
	return set
}

func (s *TermSet) add(surface, canonical string) {
	tokens := strings.Fields(strings.ToLower(surface))
	if len(tokens) == 0 {
		return
	}
	s.entries = append(s.entries, entry{
		canonical:  canonical,
		surface:    strings.Join(tokens, " "),
		tokens:     tokens,
		concat:     strings.Join(tokens, ""),
		codes:      codesForTokens(tokens),
		firstCodes: codesForTokens(tokens[:1]),
	})
	if len(tokens) > s.maxWords {
		s.maxWords = len(tokens)
	}
}

// Len returns the number of surface forms in the set.
func (s *TermSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// MaxWords returns the word count of the widest surface form, or 0 for an
// empty set.
func (s *TermSet) MaxWords() int {
	if s == nil {
		return 0
	}
	return s.maxWords
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when a token is too short or contains
// no consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
