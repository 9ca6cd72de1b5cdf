// Package drugs resolves free-text medication names to canonical catalog
// entries: normalization, catalog indexing, resolution and search.
package drugs

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// 500mg, 2.5 ml, 0,5%, 10/325mg, 40mg/ml, 100iu
	dosageToken = regexp.MustCompile(`^\d+([.,/]\d+)*(mg|mcg|ug|µg|g|kg|ml|l|iu|ui|u|units?|meq|mmol|%)?(/\d*(mg|ml|l|g|dose|h|hr))?$`)
	// q8h, q12h
	intervalToken = regexp.MustCompile(`^q\d+(h|hr|hrs)?$`)
	// 2x, x2
	timesToken = regexp.MustCompile(`^(\d+x|x\d+)$`)
	// runs of characters that never belong to a name
	separators = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// noiseTokens are units, dosage forms, release modifiers and frequency
// words stripped from free-text names.
var noiseTokens = map[string]struct{}{
	// units
	"mg": {}, "mcg": {}, "ug": {}, "g": {}, "ml": {}, "iu": {}, "ui": {}, "unit": {}, "units": {},
	"meq": {}, "mmol": {},
	// forms
	"tab": {}, "tabs": {}, "tablet": {}, "tablets": {}, "cap": {}, "caps": {}, "capsule": {}, "capsules": {},
	"pill": {}, "pills": {}, "comprime": {}, "gelule": {}, "syrup": {}, "suspension": {}, "solution": {},
	"injection": {}, "inj": {}, "drops": {}, "cream": {}, "ointment": {}, "patch": {}, "inhaler": {},
	"oral": {}, "po": {}, "iv": {}, "im": {}, "sc": {}, "dose": {}, "doses": {},
	// release modifiers
	"er": {}, "xr": {}, "sr": {}, "xl": {}, "ir": {}, "dr": {}, "cr": {}, "la": {}, "ec": {},
	// frequency
	"qd": {}, "od": {}, "bd": {}, "bid": {}, "tid": {}, "qid": {}, "qhs": {}, "hs": {}, "prn": {}, "qam": {}, "qpm": {},
	"daily": {}, "nightly": {}, "weekly": {}, "once": {}, "twice": {}, "times": {}, "day": {}, "per": {},
	"every": {}, "hours": {}, "hour": {}, "morning": {}, "evening": {}, "night": {}, "bedtime": {}, "needed": {},
	"x": {},
}

// Fold removes diacritics: "Paracétamol" becomes "Paracetamol"
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// Normalize lowercases and folds a name, strips dosage and frequency tokens
// and collapses everything else into single-space separated words. It is
// applied to catalog names and queries alike.
func Normalize(name string) string {
	s := strings.ToLower(Fold(name))
	words := make([]string, 0, 4)
	for _, raw := range strings.Fields(s) {
		tok := strings.Trim(raw, "()[]{},;:\"'")
		if isNoise(tok) {
			continue
		}
		for _, part := range strings.Fields(separators.ReplaceAllString(tok, " ")) {
			if isNoise(part) {
				continue
			}
			words = append(words, part)
		}
	}
	return strings.Join(words, " ")
}

// NormalizeKey is Normalize without dosage stripping. Catalog ids and short
// names that look like noise ("XL") keep a usable key.
func NormalizeKey(name string) string {
	s := strings.ToLower(Fold(name))
	return strings.Join(strings.Fields(separators.ReplaceAllString(s, " ")), " ")
}

func isNoise(tok string) bool {
	if tok == "" {
		return true
	}
	if _, ok := noiseTokens[tok]; ok {
		return true
	}
	return dosageToken.MatchString(tok) || intervalToken.MatchString(tok) || timesToken.MatchString(tok)
}
