// Package slug turns free-text post titles into unique, URL-safe
// identifiers and resolves inbound slugs (including percent-encoded and
// legacy forms) back to canonical ones.
//
// A canonical slug is lowercase ASCII matching [a-z0-9]+(-[a-z0-9]+)*.
// Non-Latin scripts are transliterated before normalization: CJK runes
// become pinyin syllables, accented Latin letters lose their combining
// marks via Unicode NFD decomposition.
package slug

import (
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// FallbackPrefix is used when normalization consumes the entire input
	// (punctuation-only or emoji-only titles).
	FallbackPrefix = "post-"

	// RandomIDLength is the length of generated random slug suffixes.
	RandomIDLength = 6

	numericAttempts = 10
	randomAttempts  = 5
)

// ErrGenerationExhausted is returned when no unique slug variant can be
// found within the bounded retry policy. It is fatal to the single post
// operation and must not be retried indefinitely.
var ErrGenerationExhausted = errors.New("slug: unique slug generation exhausted")

var (
	canonicalRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	separatorRe = regexp.MustCompile(`[\s_]+`)
	strippedRe  = regexp.MustCompile(`[^a-z0-9-]+`)
	hyphenRunRe = regexp.MustCompile(`-{2,}`)
)

var pinyinArgs = pinyin.NewArgs()

// transliterate expands CJK runes into space-delimited pinyin syllables
// and passes everything else through untouched. The surrounding spaces
// keep syllables from fusing with adjacent Latin text; they collapse into
// single hyphens during normalization.
func transliterate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			if syllables := pinyin.SinglePinyin(r, pinyinArgs); len(syllables) > 0 {
				b.WriteByte(' ')
				b.WriteString(syllables[0])
				b.WriteByte(' ')
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// normalize runs the full slug pipeline but returns "" when nothing
// survives. Canonical wraps it with the random fallback; the request-path
// resolver uses it directly because a derived candidate must be empty
// rather than random when the decoded text has no sluggable content.
func normalize(text string) string {
	s := transliterate(text)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}
	s = strings.ToLower(s)
	s = separatorRe.ReplaceAllString(s, "-")
	s = strippedRe.ReplaceAllString(s, "")
	s = hyphenRunRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Canonical converts arbitrary text to a canonical slug. The result is
// always non-empty and pattern-valid: input with no sluggable content
// falls back to "post-<random6>".
func Canonical(text string) string {
	if s := normalize(text); s != "" {
		return s
	}
	return FallbackPrefix + RandomID(RandomIDLength)
}

// IsCanonical reports whether s is already in canonical slug form.
func IsCanonical(s string) bool {
	if s != strings.TrimSpace(s) {
		return false
	}
	return canonicalRe.MatchString(s)
}

// RandomID returns a random lowercase-alphanumeric string of length n.
func RandomID(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}

// ResolveUnique returns base if it is not taken, otherwise probes numeric
// suffixes (base-2 .. base-11) and then a handful of random suffixes
// (base-<random6>) before giving up with ErrGenerationExhausted. Both
// phases are bounded so a pathological taken-set cannot loop forever.
//
// The taken set is an advisory snapshot: the unique index on the slug
// column remains the final arbiter, and callers must treat a duplicate-key
// failure at insert time as a distinct, retryable outcome.
//
// randID may be nil, in which case RandomID is used.
func ResolveUnique(base string, taken map[string]struct{}, randID func(n int) string) (string, error) {
	if randID == nil {
		randID = RandomID
	}
	if _, ok := taken[base]; !ok {
		return base, nil
	}
	for i := 2; i < 2+numericAttempts; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if _, ok := taken[candidate]; !ok {
			return candidate, nil
		}
	}
	for range randomAttempts {
		candidate := base + "-" + randID(RandomIDLength)
		if _, ok := taken[candidate]; !ok {
			return candidate, nil
		}
	}
	return "", ErrGenerationExhausted
}
