package views

import "testing"

func TestResolveIdentityPriority(t *testing.T) {
	res := ResolveIdentity("sess-1", "key-1", "10.0.0.1", "Mozilla/5.0")
	if res.Identity.Kind != IdentitySession || res.Identity.Token != "sess-1" {
		t.Fatalf("expected session identity, got %+v", res.Identity)
	}

	res = ResolveIdentity("", "key-1", "10.0.0.1", "Mozilla/5.0")
	if res.Identity.Kind != IdentityDedupeKey || res.Identity.Token != "key-1" {
		t.Fatalf("expected dedupe-key identity, got %+v", res.Identity)
	}

	res = ResolveIdentity("", "", "10.0.0.1", "Mozilla/5.0")
	if res.Identity.Kind != IdentityNetwork {
		t.Fatalf("expected network fallback, got %+v", res.Identity)
	}
	if res.Identity.IP != "10.0.0.1" || res.Identity.UserAgent != "Mozilla/5.0" {
		t.Fatalf("network identity lost fields: %+v", res.Identity)
	}

	res = ResolveIdentity("", "", "", "")
	if res.Identity.Kind != IdentityNone {
		t.Fatalf("expected no identity, got %+v", res.Identity)
	}
}

func TestResolveIdentityPartialNetworkSignal(t *testing.T) {
	// IP alone or user agent alone is not enough for the fallback.
	if res := ResolveIdentity("", "", "10.0.0.1", ""); res.Identity.Kind != IdentityNone {
		t.Fatalf("ip without user agent resolved to %+v", res.Identity)
	}
	if res := ResolveIdentity("", "", "", "Mozilla/5.0"); res.Identity.Kind != IdentityNone {
		t.Fatalf("user agent without ip resolved to %+v", res.Identity)
	}
}

func TestNormalizeDedupeKey(t *testing.T) {
	cases := map[string]string{
		"  abc  ":   "abc",
		"":          "",
		"   ":       "",
		"null":      "",
		"NULL":      "",
		"undefined": "",
		"Undefined": "",
		"real-key":  "real-key",
	}
	for in, want := range cases {
		if got := NormalizeDedupeKey(in); got != want {
			t.Errorf("NormalizeDedupeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveIdentityRejectsSentinelKeys(t *testing.T) {
	res := ResolveIdentity("", "undefined", "10.0.0.1", "Mozilla/5.0")
	if res.Identity.Kind != IdentityNetwork {
		t.Fatalf("sentinel dedupe key should fall through to network, got %+v", res.Identity)
	}
	if res.DedupeKey != "" {
		t.Fatalf("sentinel dedupe key should not be persisted, got %q", res.DedupeKey)
	}
}

func TestIdentityKeyPrefixes(t *testing.T) {
	s := Identity{Kind: IdentitySession, Token: "x"}
	k := Identity{Kind: IdentityDedupeKey, Token: "x"}
	if s.Key() == k.Key() {
		t.Fatal("session token and equal dedupe key must not collide in the claim table")
	}
	n := Identity{Kind: IdentityNetwork, IP: "1.2.3.4", UserAgent: "ua"}
	if n.Key() != "n:1.2.3.4|ua" {
		t.Fatalf("unexpected network key %q", n.Key())
	}
	if (Identity{Kind: IdentityNone}).Key() != "" {
		t.Fatal("none identity must serialize empty")
	}
}
