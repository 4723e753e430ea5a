package preview

import (
	"strings"
	"testing"
	"time"
)

func testIssuer(secret string) *Issuer {
	return NewIssuer(secret, "")
}

func TestCreateAndVerifyRoundTrip(t *testing.T) {
	iss := testIssuer("test-secret")
	tok, err := iss.Create(42, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tok.Payload.PostID != 42 {
		t.Errorf("Payload.PostID = %d, want 42", tok.Payload.PostID)
	}
	if got := strings.Count(tok.Value, "."); got != 1 {
		t.Fatalf("token has %d separators, want 1", got)
	}

	payload, err := iss.Verify(tok.Value)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if payload == nil {
		t.Fatal("Verify returned nil for a fresh token")
	}
	if payload.PostID != 42 {
		t.Errorf("PostID = %d, want 42", payload.PostID)
	}
	if payload.Exp != tok.Payload.Exp {
		t.Errorf("Exp = %d, want %d", payload.Exp, tok.Payload.Exp)
	}
}

func TestCreateDefaultTTL(t *testing.T) {
	iss := testIssuer("test-secret")
	start := time.Now()
	tok, err := iss.Create(1, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := start.Add(DefaultTTL).UnixMilli()
	if diff := tok.Payload.Exp - want; diff < 0 || diff > int64(time.Second/time.Millisecond) {
		t.Errorf("Exp = %d, want about %d", tok.Payload.Exp, want)
	}
}

func TestCreateRejectsNonPositiveID(t *testing.T) {
	iss := testIssuer("test-secret")
	for _, id := range []int64{0, -1, -100} {
		if _, err := iss.Create(id, 0); err != ErrInvalidPostID {
			t.Errorf("Create(%d): err = %v, want ErrInvalidPostID", id, err)
		}
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	iss := testIssuer("test-secret")
	tok, err := iss.Create(7, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	parts := strings.Split(tok.Value, ".")

	cases := map[string]string{
		"empty":              "",
		"no separator":       parts[0],
		"extra separator":    tok.Value + ".extra",
		"empty payload":      "." + parts[1],
		"empty signature":    parts[0] + ".",
		"invalid base64url":  "not+base64/url." + parts[1],
		"non-base64url sig":  parts[0] + ".!!!!",
		"garbage both sides": "foo.bar",
	}
	for name, token := range cases {
		payload, err := iss.Verify(token)
		if err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
		if payload != nil {
			t.Errorf("%s: Verify(%q) accepted invalid token", name, token)
		}
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	iss := testIssuer("test-secret")
	tok, err := iss.Create(7, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	parts := strings.Split(tok.Value, ".")

	// Flip one character in the payload segment.
	flipped := []byte(parts[0])
	if flipped[0] == 'A' {
		flipped[0] = 'B'
	} else {
		flipped[0] = 'A'
	}
	payload, err := iss.Verify(string(flipped) + "." + parts[1])
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if payload != nil {
		t.Error("Verify accepted a tampered payload")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	iss := testIssuer("test-secret")
	tok, err := iss.Create(7, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	parts := strings.Split(tok.Value, ".")
	sig := []byte(parts[1])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	payload, err := iss.Verify(parts[0] + "." + string(sig))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if payload != nil {
		t.Error("Verify accepted a tampered signature")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := testIssuer("secret-one").Create(7, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	payload, err := testIssuer("secret-two").Verify(tok.Value)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if payload != nil {
		t.Error("Verify accepted a token signed with a different secret")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	iss := testIssuer("test-secret")
	base := time.Now()
	iss.now = func() time.Time { return base }

	tok, err := iss.Create(7, time.Second)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Advance the clock past expiry instead of sleeping.
	iss.now = func() time.Time { return base.Add(1100 * time.Millisecond) }
	payload, err := iss.Verify(tok.Value)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if payload != nil {
		t.Error("Verify accepted an expired token")
	}

	// At exactly exp the token is also invalid (exp <= now).
	iss.now = func() time.Time { return time.UnixMilli(tok.Payload.Exp) }
	if payload, _ := iss.Verify(tok.Value); payload != nil {
		t.Error("Verify accepted a token at its exact expiry instant")
	}
}

func TestSecretFallback(t *testing.T) {
	iss := NewIssuer("", "session-secret")
	tok, err := iss.Create(1, time.Hour)
	if err != nil {
		t.Fatalf("Create with fallback secret: %v", err)
	}
	// A dedicated-secret issuer with the same value verifies it.
	other := NewIssuer("session-secret", "")
	payload, err := other.Verify(tok.Value)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if payload == nil {
		t.Error("fallback-signed token did not verify against the same secret")
	}
}

func TestMissingSecret(t *testing.T) {
	iss := NewIssuer("", "")
	if _, err := iss.Create(1, time.Hour); err != ErrMissingSecret {
		t.Errorf("Create: err = %v, want ErrMissingSecret", err)
	}
	if _, err := iss.Verify("a.b"); err != ErrMissingSecret {
		t.Errorf("Verify: err = %v, want ErrMissingSecret", err)
	}
}
