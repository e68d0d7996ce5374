package analytics

import (
	"context"
	"net/url"
	"strings"
)

// Visitor is what the analytics side knows about a session or profile.
type Visitor struct {
	Source   string
	Referrer string
	Country  string
}

// Visitors indexes lookup results by session and by profile.
type Visitors struct {
	BySession map[string]Visitor
	ByProfile map[string]Visitor
}

// AttributionLookup resolves visitors for transactions carrying session or
// profile ids.
type AttributionLookup interface {
	Lookup(ctx context.Context, tenantID string, sessionIDs, profileIDs []string) (Visitors, error)
}

// NoAttribution is used when no sessions source is configured.
type NoAttribution struct{}

func (NoAttribution) Lookup(context.Context, string, []string, []string) (Visitors, error) {
	return Visitors{}, nil
}

const (
	unknownName = "Unknown"
	directName  = "Direct"
)

// find prefers the session, then the profile.
func (v Visitors) find(sessionID, profileID *string) (Visitor, bool) {
	if sessionID != nil {
		if visitor, ok := v.BySession[*sessionID]; ok {
			return visitor, true
		}
	}
	if profileID != nil {
		if visitor, ok := v.ByProfile[*profileID]; ok {
			return visitor, true
		}
	}
	return Visitor{}, false
}

// sourceName is the utm source, else the referrer host, else Direct.
func (v Visitor) sourceName() string {
	if s := strings.TrimSpace(v.Source); s != "" {
		return s
	}
	ref := strings.TrimSpace(v.Referrer)
	if ref == "" {
		return directName
	}
	if u, err := url.Parse(ref); err == nil && u.Host != "" {
		return strings.TrimPrefix(u.Host, "www.")
	}
	return ref
}

func (v Visitor) countryName() string {
	if c := strings.TrimSpace(v.Country); c != "" {
		return strings.ToUpper(c)
	}
	return unknownName
}
