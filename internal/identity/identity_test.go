package identity

import (
	"testing"

	"glyph/internal/testutil"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	msg := []byte("hello glyph")
	sig := id.Sign(msg)
	if !Verify(id.PublicKeyB64(), msg, sig) {
		t.Fatalf("expected signature to verify")
	}
	if Verify(id.PublicKeyB64(), []byte("tampered"), sig) {
		t.Fatalf("expected signature over different message to fail")
	}
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	sig := id.Sign([]byte("msg"))

	if Verify("not-base64!!", []byte("msg"), sig) {
		t.Fatalf("expected malformed pubkey to fail verification")
	}
	if Verify(id.PublicKeyB64(), []byte("msg"), "not-base64!!") {
		t.Fatalf("expected malformed signature to fail verification")
	}
}

func TestLoadOrCreatePersistsAndReloads(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	t.Cleanup(func() { _ = sb.Cleanup() })
	path := sb.Path("id.key")

	first, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate (create) failed: %v", err)
	}
	second, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate (reload) failed: %v", err)
	}
	if first.PublicKeyB64() != second.PublicKeyB64() {
		t.Fatalf("expected reloaded identity to have the same public key")
	}
}

func TestDerivePublicMatchesIdentity(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got := DerivePublic(id.Private); got != id.PublicKeyB64() {
		t.Fatalf("DerivePublic mismatch: got %q want %q", got, id.PublicKeyB64())
	}
}
