package site

import "testing"

func TestGenerateIdentityToken(t *testing.T) {
	t.Parallel()

	t1, err := GenerateIdentityToken()
	if err != nil {
		t.Fatalf("GenerateIdentityToken error: %v", err)
	}
	t2, err := GenerateIdentityToken()
	if err != nil {
		t.Fatalf("GenerateIdentityToken error: %v", err)
	}
	if len(t1) != 32 {
		t.Fatalf("expected 32-char hex token, got %d (%q)", len(t1), t1)
	}
	if t1 == t2 {
		t.Fatalf("expected tokens to differ, got %q and %q", t1, t2)
	}
}

func TestTokenRegistry_MintAndVerify(t *testing.T) {
	t.Parallel()

	reg := NewTokenRegistry()
	token, err := reg.Mint("ngo-17")
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	subject, ok := reg.Verify(token)
	if !ok || subject != "ngo-17" {
		t.Fatalf("expected (ngo-17, true), got (%q, %v)", subject, ok)
	}

	if _, ok := reg.Verify("unknown"); ok {
		t.Fatalf("expected unknown token to fail verification")
	}
	if _, ok := reg.Verify(""); ok {
		t.Fatalf("expected empty token to fail verification")
	}
}

func TestTokenRegistry_RegisterExternalToken(t *testing.T) {
	t.Parallel()

	reg := NewTokenRegistry()
	reg.Register("parent-supplied-token", "external")

	subject, ok := reg.Verify("parent-supplied-token")
	if !ok || subject != "external" {
		t.Fatalf("expected (external, true), got (%q, %v)", subject, ok)
	}

	// Blank token or subject is ignored, never registered.
	reg.Register("", "x")
	reg.Register("y", "")
	if _, ok := reg.Verify(""); ok {
		t.Fatalf("expected blank token to stay unregistered")
	}
	if _, ok := reg.Verify("y"); ok {
		t.Fatalf("expected token with blank subject to stay unregistered")
	}
}

func TestTokenRegistry_Revoke(t *testing.T) {
	t.Parallel()

	reg := NewTokenRegistry()
	token, err := reg.Mint("ngo-1")
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}
	reg.Revoke(token)
	if _, ok := reg.Verify(token); ok {
		t.Fatalf("expected revoked token to fail verification")
	}
}
