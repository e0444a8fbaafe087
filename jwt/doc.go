// Package jwt issues and verifies the access/refresh token pairs handed to clients, and
// lets clients read expiry claims from tokens they cannot verify.
//
// Both tokens of a pair carry the same subject, role and permissions. They differ in
// their "typ" claim and lifetime, and [Manager.Parse] refuses a token of the wrong type
// so a refresh token can never be replayed as a bearer credential.
package jwt
