package glossary

import (
	"strings"
	"unicode"
)

// Correction records one replaced span.
type Correction struct {
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Confidence float64 `json:"confidence"`
}

// Corrector rewrites text so that near-miss spans carry their canonical
// glossary form. It is read-only after construction and safe for concurrent
// use.
type Corrector struct {
	matcher *Matcher
	set     *TermSet
}

// NewCorrector builds a [Corrector] over terms. A nil matcher gets default
// thresholds.
func NewCorrector(matcher *Matcher, terms []Term) *Corrector {
	if matcher == nil {
		matcher = NewMatcher()
	}
	return &Corrector{matcher: matcher, set: Prepare(terms)}
}

// Correct replaces near-miss spans in text with their canonical glossary
// forms and returns the rewritten text plus the corrections applied.
//
// The walk tries n-gram windows at each token position from the widest
// surface form down to a single token; the longest matching span wins and
// the cursor advances past it. Windows never extend across punctuation.
// Leading and trailing punctuation of a replaced span is preserved, and a
// span that differs from its canonical form only by letter case is
// normalized without being recorded as a correction.
func (c *Corrector) Correct(text string) (string, []Correction) {
	raw := strings.Fields(text)
	if len(raw) == 0 || c.set.Len() == 0 {
		return text, nil
	}

	toks := make([]token, len(raw))
	for i, r := range raw {
		toks[i] = splitToken(r)
	}

	var out []string
	var corrections []Correction

	i := 0
	for i < len(raw) {
		maxN := c.set.MaxWords()
		if i+maxN > len(raw) {
			maxN = len(raw) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			span, ok := window(toks, i, n)
			if !ok {
				continue
			}
			canonical, conf, ok := c.matcher.Match(span, c.set)
			if !ok {
				continue
			}
			out = append(out, toks[i].lead+canonical+toks[i+n-1].tail)
			if !strings.EqualFold(span, canonical) {
				corrections = append(corrections, Correction{
					Original:   span,
					Corrected:  canonical,
					Confidence: conf,
				})
			}
			i += n
			matched = true
			break
		}
		if !matched {
			out = append(out, raw[i])
			i++
		}
	}

	return strings.Join(out, " "), corrections
}

// ─── Tokens ──────────────────────────────────────────────────────────────────

// token is one whitespace-separated word split into leading punctuation,
// the word core, and trailing punctuation.
type token struct {
	lead string
	core string
	tail string
}

func splitToken(s string) token {
	core := strings.TrimLeftFunc(s, isPunct)
	lead := s[:len(s)-len(core)]
	rest := strings.TrimRightFunc(core, isPunct)
	tail := core[len(rest):]
	return token{lead: lead, core: rest, tail: tail}
}

func isPunct(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}

// window joins the cores of toks[i:i+n] into a candidate span. It fails when
// any core is empty or when punctuation sits on an interior token boundary,
// so spans never straddle a phrase break.
func window(toks []token, i, n int) (string, bool) {
	for j := i; j < i+n; j++ {
		if toks[j].core == "" {
			return "", false
		}
		if j < i+n-1 && (toks[j].tail != "" || toks[j+1].lead != "") {
			return "", false
		}
	}
	if n == 1 {
		return toks[i].core, true
	}
	parts := make([]string, n)
	for j := 0; j < n; j++ {
		parts[j] = toks[i+j].core
	}
	return strings.Join(parts, " "), true
}
