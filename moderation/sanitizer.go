// Package moderation masks configured words in message content before it
// is persisted, and annotates messages with the detected language.
package moderation

import (
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
)

// LangMetadataKey is the metadata key carrying the detected language.
const LangMetadataKey = "lang"

type Sanitizer struct {
	matcher  *goahocorasick.Machine
	maskChar rune
}

type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewSanitizer builds the Aho-Corasick automaton over a normalized
// version of the masked-words list.
func NewSanitizer(maskedWords []string, maskChar rune) (*Sanitizer, error) {
	patterns := make([][]rune, len(maskedWords))
	for i, word := range maskedWords {
		patterns[i] = normalizeRunes([]rune(word))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Sanitizer{matcher: m, maskChar: maskChar}, nil
}

// Sanitize masks forbidden patterns in content, preserving spacing, and
// returns the masked text together with the normalized words that matched.
func (s *Sanitizer) Sanitize(original string) (string, []string) {
	mapping := s.normalize(original)
	if len(mapping.normalized) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	spans := s.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	var found []string
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)

		if normStart < 0 || normEnd > len(mapping.origIdx) {
			continue
		}
		found = append(found, string(span.Word))

		origStart := mapping.origIdx[normStart]
		lastCharOrigIdx := mapping.origIdx[normEnd-1]
		for i := origStart; i <= lastCharOrigIdx; i++ {
			origRunes[i] = s.maskChar
		}
	}

	return string(origRunes), found
}

// DetectLanguage returns the ISO 639-1 code of the content's language,
// or an empty string when detection finds nothing usable.
func DetectLanguage(content string) string {
	info := whatlanggo.Detect(content)
	return info.Lang.Iso6391()
}

// normalize transforms the input into a searchable form and tracks
// original rune positions so masking can hit the source characters.
func (s *Sanitizer) normalize(input string) textMapping {
	origRunes := []rune(input)
	norm := make([]rune, 0, len(origRunes))
	origIdx := make([]int, 0, len(origRunes))

	for i, r := range origRunes {
		folded, ok := foldRune(r)
		if !ok {
			continue
		}
		norm = append(norm, folded)
		origIdx = append(origIdx, i)
	}
	return textMapping{normalized: norm, origIdx: origIdx}
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if folded, ok := foldRune(r); ok {
			out = append(out, folded)
		}
	}
	return out
}

// substitutions maps the usual stand-in characters back to the letters
// they disguise. Folding happens before the noise check, so a '$' used
// as a letter survives while a stray '$' is dropped.
var substitutions = map[rune]rune{
	'4': 'a', '@': 'a',
	'3': 'e',
	'1': 'i', '!': 'i', '|': 'i',
	'0': 'o',
	'5': 's', '$': 's',
	'7': 't', '+': 't',
}

// foldRune lowercases and de-disguises one rune. The second return is
// false when the rune carries no searchable content.
func foldRune(r rune) (rune, bool) {
	if folded, ok := substitutions[r]; ok {
		r = folded
	}
	if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
		return 0, false
	}
	return unicode.ToLower(r), true
}
