package slug

import "testing"

// mapLookup builds a LookupFunc over a fixed slug set. Keys are matched
// exactly, mirroring a unique-index lookup.
func mapLookup(slugs ...string) LookupFunc {
	set := make(map[string]string, len(slugs))
	for _, s := range slugs {
		set[s] = s
	}
	return func(key string) (string, bool) {
		stored, ok := set[key]
		return stored, ok
	}
}

func TestResolveDirectHit(t *testing.T) {
	res := Resolve("hello-world", mapLookup("hello-world", "other"))
	if res.Outcome != Found {
		t.Fatalf("Outcome = %v, want Found", res.Outcome)
	}
	if res.Slug != "hello-world" {
		t.Errorf("Slug = %q, want hello-world", res.Slug)
	}
}

func TestResolveDirectHitDifferentStoredSlug(t *testing.T) {
	// A case-insensitive store can match a key under a differently-cased
	// stored slug; the resolver must redirect to the stored one.
	lookup := func(key string) (string, bool) {
		if key == "Hello-World" || key == "hello-world" {
			return "hello-world", true
		}
		return "", false
	}
	res := Resolve("Hello-World", lookup)
	if res.Outcome != Redirect {
		t.Fatalf("Outcome = %v, want Redirect", res.Outcome)
	}
	if res.Location != "hello-world" {
		t.Errorf("Location = %q, want hello-world", res.Location)
	}
}

func TestResolvePercentEncodedRedirect(t *testing.T) {
	res := Resolve("caf%C3%A9", mapLookup("cafe"))
	if res.Outcome != Redirect {
		t.Fatalf("Outcome = %v, want Redirect", res.Outcome)
	}
	if res.Location != "cafe" {
		t.Errorf("Location = %q, want cafe", res.Location)
	}
}

func TestResolveRawUnicodeRedirect(t *testing.T) {
	res := Resolve("第一篇文章", mapLookup("di-yi-pian-wen-zhang"))
	if res.Outcome != Redirect {
		t.Fatalf("Outcome = %v, want Redirect", res.Outcome)
	}
	if res.Location != "di-yi-pian-wen-zhang" {
		t.Errorf("Location = %q, want di-yi-pian-wen-zhang", res.Location)
	}
}

func TestResolveCanonicalMiss(t *testing.T) {
	// Already-canonical raw value that misses must not be re-derived; the
	// second lookup would be identical to the first.
	lookups := 0
	lookup := func(key string) (string, bool) {
		lookups++
		return "", false
	}
	res := Resolve("does-not-exist", lookup)
	if res.Outcome != NotFound {
		t.Fatalf("Outcome = %v, want NotFound", res.Outcome)
	}
	if lookups != 1 {
		t.Errorf("lookup called %d times, want 1", lookups)
	}
}

func TestResolveMalformedEscape(t *testing.T) {
	// "%zz" fails percent-decoding; the raw value is treated as already
	// decoded and still resolves through derivation.
	res := Resolve("Hello%zzWorld", mapLookup("hellozzworld"))
	if res.Outcome != Redirect {
		t.Fatalf("Outcome = %v, want Redirect", res.Outcome)
	}
	if res.Location != "hellozzworld" {
		t.Errorf("Location = %q, want hellozzworld", res.Location)
	}
}

func TestResolveEmptyDecode(t *testing.T) {
	res := Resolve("%20%20", mapLookup("anything"))
	if res.Outcome != NotFound {
		t.Fatalf("Outcome = %v, want NotFound", res.Outcome)
	}
}

func TestResolveDerivationDeadEnds(t *testing.T) {
	// Punctuation-only decode derives an empty candidate.
	res := Resolve("%21%21%21", mapLookup("anything"))
	if res.Outcome != NotFound {
		t.Fatalf("punctuation-only: Outcome = %v, want NotFound", res.Outcome)
	}
	// Candidate lookup misses.
	res = Resolve("caf%C3%A9", mapLookup("unrelated"))
	if res.Outcome != NotFound {
		t.Fatalf("candidate miss: Outcome = %v, want NotFound", res.Outcome)
	}
}

func TestResolveStoredMatchesDecoded(t *testing.T) {
	// When the candidate's stored slug equals the decoded value exactly,
	// no redirect is needed.
	lookup := func(key string) (string, bool) {
		if key == "cafe" {
			return "café", true
		}
		return "", false
	}
	res := Resolve("caf%C3%A9", lookup)
	if res.Outcome != Found {
		t.Fatalf("Outcome = %v, want Found", res.Outcome)
	}
	if res.Slug != "café" {
		t.Errorf("Slug = %q, want café", res.Slug)
	}
}
