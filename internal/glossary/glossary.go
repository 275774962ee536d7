// Package glossary corrects recognized and translated text against a
// user-supplied glossary of domain terms before it reaches downstream
// translation and synthesis stages.
//
// A glossary is a list of [Term] entries, each naming a canonical form and
// optional variants — known mishearings or alternate spellings, including
// multi-word ones ("vox late" for "Voxlate"). Correction proceeds in two
// layers:
//
//  1. [Matcher] scores a candidate span against a prepared [TermSet] using
//     Double Metaphone phonetic codes for candidate filtering and
//     Jaro-Winkler similarity for ranking. Spans only match surface forms
//     with the same word count, and multi-word spans must align on their
//     first token, so a window never latches onto the middle of a term.
//
//  2. [Corrector] walks the text with n-gram windows from the widest surface
//     form down to single tokens, replacing the longest matching span with
//     its canonical form. Punctuation around a replaced span is preserved.
//
// Glossary files are YAML:
//
//	terms:
//	  - canonical: Gare du Nord
//	  - canonical: Voxlate
//	    variants: [vox late, voxlite]
package glossary

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Term is one glossary entry: the canonical form plus known variants that
// should be corrected to it.
type Term struct {
	Canonical string   `yaml:"canonical"`
	Variants  []string `yaml:"variants,omitempty"`
}

type glossaryFile struct {
	Terms []Term `yaml:"terms"`
}

// Load reads the YAML glossary file at path and returns its validated terms.
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) ([]Term, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("glossary: open %q: %w", path, err)
	}
	defer f.Close()

	terms, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("glossary: parse %q: %w", path, err)
	}
	return terms, nil
}

// LoadFromReader decodes a YAML glossary from r and validates the result.
// An empty document is a valid, empty glossary.
func LoadFromReader(r io.Reader) ([]Term, error) {
	var doc glossaryFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("glossary: decode yaml: %w", err)
	}
	if err := validateTerms(doc.Terms); err != nil {
		return nil, err
	}
	return doc.Terms, nil
}

// validateTerms checks that every term has a canonical form and that no two
// terms share one (case-insensitively). It returns a joined error listing
// all failures found.
func validateTerms(terms []Term) error {
	var errs []error

	seen := make(map[string]int, len(terms))
	for i, t := range terms {
		prefix := fmt.Sprintf("terms[%d]", i)
		canonical := strings.TrimSpace(t.Canonical)
		if canonical == "" {
			errs = append(errs, fmt.Errorf("%s.canonical is required", prefix))
			continue
		}
		key := strings.ToLower(canonical)
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s.canonical %q is a duplicate of terms[%d]", prefix, t.Canonical, prev))
		} else {
			seen[key] = i
		}
		for j, v := range t.Variants {
			if strings.TrimSpace(v) == "" {
				errs = append(errs, fmt.Errorf("%s.variants[%d] is empty", prefix, j))
			}
		}
	}

	return errors.Join(errs...)
}
