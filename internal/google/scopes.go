package google

import (
	gmail "google.golang.org/api/gmail/v1"
	oauth2v2 "google.golang.org/api/oauth2/v2"
)

// DefaultOAuthScopes are the Google OAuth scopes followmail asks for at login.
//
// The scopes provide access to:
//   - Identity: OpenID, email address and basic profile
//   - Gmail: read threads and messages, send replies, create drafts
var DefaultOAuthScopes = []string{
	// OpenID Connect scopes (required for user info)
	"openid",
	oauth2v2.UserinfoEmailScope,
	oauth2v2.UserinfoProfileScope,

	// Gmail scopes
	gmail.GmailReadonlyScope,
	gmail.GmailSendScope,
	gmail.GmailComposeScope,
}
