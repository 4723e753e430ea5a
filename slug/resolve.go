package slug

import (
	"net/url"
	"strings"
)

// Outcome classifies the result of resolving an inbound slug.
type Outcome int

const (
	// Found means a post matched and the requested slug is already canonical.
	Found Outcome = iota
	// Redirect means a post matched under a different stored slug and the
	// client should be permanently redirected to it.
	Redirect
	// NotFound means no post matched the raw slug or any derived candidate.
	NotFound
)

// LookupFunc returns the stored slug of the post matching key, if any.
// Matching semantics belong to the store (typically an index lookup that
// may be case-insensitive), which is why the stored slug can differ from
// the requested key.
type LookupFunc func(key string) (stored string, ok bool)

// Resolution is the outcome of resolving one raw slug. Slug is the stored
// slug of the matched post (valid unless Outcome is NotFound); Location is
// the redirect target when Outcome is Redirect.
type Resolution struct {
	Outcome  Outcome
	Slug     string
	Location string
}

// Resolve locates the post for an inbound, possibly percent-encoded or
// legacy slug. The steps are ordered and short-circuiting:
//
//  1. Try the raw slug directly. A hit whose stored slug differs means the
//     link predates a slug migration: redirect to the stored slug.
//  2. Percent-decode the raw slug; a decode failure treats the value as
//     already decoded. Empty or whitespace-only decodes are dead ends.
//  3. When decoding changed nothing and the raw value is already canonical,
//     re-deriving would only repeat the step-1 lookup, so stop here. This
//     assumes canonical-looking slugs were never produced from a different
//     source string; a documented policy choice, kept as-is.
//  4. Derive a canonical candidate from the decoded text. An empty
//     derivation, or one identical to the raw input, is a dead end.
//  5. Try the candidate. A hit redirects to its stored slug unless the
//     stored slug equals the decoded original exactly, or already equals
//     the raw input.
//  6. Otherwise the slug does not resolve.
//
// The resolver exists because links may carry raw Unicode instead of the
// percent-encoded canonical form, or slugs generated before the current
// transliteration scheme; such links are repaired with a permanent
// redirect rather than a 404.
func Resolve(raw string, lookup LookupFunc) Resolution {
	if stored, ok := lookup(raw); ok {
		if stored != raw && stored != "" {
			return Resolution{Outcome: Redirect, Slug: stored, Location: stored}
		}
		return Resolution{Outcome: Found, Slug: stored}
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	if strings.TrimSpace(decoded) == "" {
		return Resolution{Outcome: NotFound}
	}
	if decoded == raw && IsCanonical(raw) {
		return Resolution{Outcome: NotFound}
	}

	candidate := normalize(decoded)
	if candidate == "" || candidate == raw {
		return Resolution{Outcome: NotFound}
	}

	if stored, ok := lookup(candidate); ok {
		if stored == decoded || stored == raw {
			return Resolution{Outcome: Found, Slug: stored}
		}
		return Resolution{Outcome: Redirect, Slug: stored, Location: stored}
	}
	return Resolution{Outcome: NotFound}
}
