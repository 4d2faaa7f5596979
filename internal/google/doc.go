// Package google provides the Google OAuth2 login flow for followmail.
//
// A Provider builds the consent URL, exchanges the returned authorization code,
// looks up the user's identity and turns a stored refresh token back into an
// oauth2.TokenSource for per-request Gmail clients. Tokens are never written to
// disk here; persisting the refresh token is the store's job.
package google
