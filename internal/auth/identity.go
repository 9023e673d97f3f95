// ABOUTME: Claims identity produced by token verification
// ABOUTME: Extracts caller app id and audience and detects bot-to-bot skill claims

package auth

// Claim names read from tokens.
const (
	ClaimAppID    = "appid"
	ClaimAZP      = "azp"
	ClaimAudience = "aud"
	ClaimVersion  = "ver"
	ClaimIssuer   = "iss"
	ClaimSubject  = "sub"
)

// ChannelServiceAudience is the audience of tokens issued by the channel
// service rather than another bot.
const ChannelServiceAudience = "https://api.botframework.com"

// Identity is the authenticated caller of a turn.
type Identity struct {
	Claims        map[string]any
	Authenticated bool
}

// Anonymous returns an unauthenticated identity with no claims.
func Anonymous() *Identity {
	return &Identity{Claims: map[string]any{}}
}

// Claim returns a string claim, or "" if absent or not a string. An audience
// given as a list yields its first entry.
func (i *Identity) Claim(name string) string {
	if i == nil {
		return ""
	}
	switch v := i.Claims[name].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			s, _ := v[0].(string)
			return s
		}
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// AppID returns the caller's app id: "appid" for version 1.0 tokens, "azp"
// for version 2.0.
func (i *Identity) AppID() string {
	if i.Claim(ClaimVersion) == "2.0" {
		return i.Claim(ClaimAZP)
	}
	return i.Claim(ClaimAppID)
}

// Audience returns the token audience.
func (i *Identity) Audience() string {
	return i.Claim(ClaimAudience)
}

// IsSkillClaim reports whether the identity represents another bot calling
// this one.
func (i *Identity) IsSkillClaim() bool {
	if i == nil || i.Claim(ClaimVersion) == "" {
		return false
	}
	aud := i.Audience()
	if aud == "" || aud == ChannelServiceAudience {
		return false
	}
	appID := i.AppID()
	if appID == "" {
		return false
	}
	return aud != appID
}
