package alerts

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

var (
	whitespacePattern  = regexp.MustCompile(`\s+`)
	punctuationPattern = regexp.MustCompile(`[.,;:!?()¡¿"'-]`)
	clockPattern       = regexp.MustCompile(`(a las )?\d{1,2}:\d{2}( ?[ap]\.? ?m\.?)?`)
	datePattern        = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`)
)

// abbreviations expanded word by word before hashing
var abbreviations = map[string]string{
	"av":   "avenida",
	"avda": "avenida",
	"cra":  "carrera",
	"cr":   "carrera",
	"kra":  "carrera",
	"cl":   "calle",
	"cll":  "calle",
	"aut":  "autopista",
	"km":   "kilometro",
}

// ContentHasher provides content-based deduplication for alerts reported
// by several sources with minor text variations
type ContentHasher struct{}

// NewContentHasher creates a new content hasher
func NewContentHasher() *ContentHasher {
	return &ContentHasher{}
}

// HashAlert creates a content hash for deduplication. Location is rounded
// to roughly 100m so that the same incident geocoded twice still collides.
func (h *ContentHasher) HashAlert(a Alert) string {
	location := ""
	if a.Location != nil {
		location = fmt.Sprintf("%.3f,%.3f", a.Location.Latitude, a.Location.Longitude)
	}

	signature := fmt.Sprintf("%s|%s|%s|%s",
		h.NormalizeText(a.Title),
		h.NormalizeText(a.Description),
		a.ZoneTag,
		location,
	)
	return h.HashText(signature)
}

// HashText hashes arbitrary text after normalization
func (h *ContentHasher) HashText(text string) string {
	sum := sha256.Sum256([]byte(h.NormalizeText(text)))
	return fmt.Sprintf("%x", sum)
}

// NormalizeText cleans text for consistent hashing
func (h *ContentHasher) NormalizeText(text string) string {
	normalized := strings.ToLower(text)

	// Remove time-specific elements that change while the content stays the same
	normalized = clockPattern.ReplaceAllString(normalized, "")
	normalized = datePattern.ReplaceAllString(normalized, "")

	normalized = punctuationPattern.ReplaceAllString(normalized, " ")

	words := strings.Fields(whitespacePattern.ReplaceAllString(normalized, " "))
	for i, w := range words {
		if full, ok := abbreviations[w]; ok {
			words[i] = full
		}
	}

	return strings.Join(words, " ")
}
