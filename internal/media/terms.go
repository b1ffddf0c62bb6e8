package media

import (
	"strings"
	"unicode"
)

// PrefixKeyLength is the width of the sliding window used for shard keys.
const PrefixKeyLength = 2

// SearchTerms returns the lowercased searchable terms of an item: its name,
// its tags, then metadata short names and aliases. Duplicates are kept out.
func SearchTerms(it *Item) []string {
	terms := make([]string, 0, 1+len(it.Tags)+len(it.Metadata.Aliases)+1)
	seen := make(map[string]struct{}, cap(terms))
	add := func(t string) {
		if t == "" {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}

	add(strings.ToLower(it.Name))
	for _, tag := range it.Tags {
		add(strings.ToLower(tag))
	}
	for _, t := range it.Metadata.Terms() {
		add(t)
	}
	return terms
}

// PrefixKeys returns every contiguous two-rune window of term whose runes
// are both letters or digits, in order of first occurrence.
func PrefixKeys(term string) []string {
	runes := []rune(term)
	if len(runes) < PrefixKeyLength {
		return nil
	}
	var keys []string
	seen := make(map[string]struct{}, len(runes)-1)
	for i := 0; i+PrefixKeyLength <= len(runes); i++ {
		if !isAlnum(runes[i]) || !isAlnum(runes[i+1]) {
			continue
		}
		key := string(runes[i : i+PrefixKeyLength])
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// ItemPrefixKeys returns the union of PrefixKeys over all search terms of
// an item, each key once.
func ItemPrefixKeys(it *Item) []string {
	var keys []string
	seen := make(map[string]struct{})
	for _, term := range SearchTerms(it) {
		for _, k := range PrefixKeys(term) {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// QueryPrefixKey returns the shard key a client looks up for query, or ""
// when the query is too short or its first two runes are not alphanumeric.
func QueryPrefixKey(query string) string {
	runes := []rune(strings.ToLower(strings.TrimSpace(query)))
	if len(runes) < PrefixKeyLength || !isAlnum(runes[0]) || !isAlnum(runes[1]) {
		return ""
	}
	return string(runes[:PrefixKeyLength])
}

// MatchesTerms reports whether the lowercased query is a substring of any
// of the given lowercased terms.
func MatchesTerms(query string, terms []string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	for _, t := range terms {
		if strings.Contains(t, q) {
			return true
		}
	}
	return false
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
