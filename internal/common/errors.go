// Package common defines shared constants and sentinel errors used across
// teamcodes components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Code generation errors.
	ErrInvalidSecret = errors.New("invalid totp secret")

	// Share-link lifecycle errors. A consumed one-time link is
	// distinguishable from a missing one so the viewer can be told why.
	ErrLinkNotFound = errors.New("share link not found")
	ErrLinkExpired  = errors.New("share link expired")
	ErrLinkConsumed = errors.New("share link already viewed")
	ErrAccessDenied = errors.New("access denied")

	// Auth errors (invalid or malformed session token).
	ErrInvalidToken = errors.New("invalid token")
)
