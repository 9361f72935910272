// Package credential issues and caches the bearer token used to call the
// cloud inventory API.
//
// A token is obtained by signing a short-lived JWT assertion with the
// service account's key (HS256, key ID in the "kid" header) and exchanging
// it at the identity endpoint using the jwt-bearer grant. The token is
// cached until shortly before it expires; concurrent callers that find it
// expired share a single exchange.
package credential
