package views

import "strings"

// IdentityKind tags the signal a resolved identity was derived from.
type IdentityKind int

const (
	// IdentityNone means the request carried no usable identity signal;
	// such events are never deduplicated.
	IdentityNone IdentityKind = iota
	// IdentitySession is a caller-supplied stable session token.
	IdentitySession
	// IdentityDedupeKey is an explicit caller-supplied dedupe key.
	IdentityDedupeKey
	// IdentityNetwork is the IP + User-Agent fallback. Low confidence:
	// distinct visitors behind one NAT with the same browser collapse into
	// one identity. Only rows that themselves lack session/dedupe identity
	// are matched against it.
	IdentityNetwork
)

// Identity is the single best-available signal used to decide whether two
// events represent the same viewer.
type Identity struct {
	Kind      IdentityKind
	Token     string // session token or dedupe key
	IP        string
	UserAgent string
}

// Key serializes the identity for the dedup claim table. The prefix keeps a
// session token from ever colliding with an equal dedupe key.
func (id Identity) Key() string {
	switch id.Kind {
	case IdentitySession:
		return "s:" + id.Token
	case IdentityDedupeKey:
		return "k:" + id.Token
	case IdentityNetwork:
		return "n:" + id.IP + "|" + id.UserAgent
	}
	return ""
}

// Resolved carries the identity chosen for dedup checking plus the normalized
// raw fields, which are all persisted regardless of which one won.
type Resolved struct {
	Identity  Identity
	SessionID string
	DedupeKey string
	IP        string
	UserAgent string
}

// NormalizeDedupeKey trims a caller-supplied dedupe key and rejects the
// sentinel strings loose frontends tend to send for "absent".
func NormalizeDedupeKey(raw string) string {
	k := strings.TrimSpace(raw)
	switch strings.ToLower(k) {
	case "", "null", "undefined":
		return ""
	}
	return k
}

// ResolveIdentity picks the checking identity in priority order: session
// token, then explicit dedupe key, then the IP + User-Agent pair. Pure
// function, no I/O.
func ResolveIdentity(sessionID, dedupeKey, ip, userAgent string) Resolved {
	sessionID = strings.TrimSpace(sessionID)
	dedupeKey = NormalizeDedupeKey(dedupeKey)
	ip = strings.TrimSpace(ip)
	userAgent = strings.TrimSpace(userAgent)

	res := Resolved{
		SessionID: sessionID,
		DedupeKey: dedupeKey,
		IP:        ip,
		UserAgent: userAgent,
	}

	switch {
	case sessionID != "":
		res.Identity = Identity{Kind: IdentitySession, Token: sessionID}
	case dedupeKey != "":
		res.Identity = Identity{Kind: IdentityDedupeKey, Token: dedupeKey}
	case ip != "" && userAgent != "":
		res.Identity = Identity{Kind: IdentityNetwork, IP: ip, UserAgent: userAgent}
	default:
		res.Identity = Identity{Kind: IdentityNone}
	}
	return res
}
