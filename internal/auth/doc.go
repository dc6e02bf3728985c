// Package auth issues and validates the bearer tokens that guard the
// neolinkd HTTP API.
//
// Tokens are HS256 JWTs carrying a subject and a Role. Roles map to a
// fixed set of permissions:
//
//	viewer   camera:read
//	operator camera:read, camera:operate
//	admin    everything, including camera and settings management
//
// There is no user database; tokens are minted with `neolinkd token`.
package auth
