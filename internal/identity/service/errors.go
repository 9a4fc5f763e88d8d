package service

import "errors"

var (
	// ErrInvalidCredentials is the single opaque failure for login: unknown
	// email and wrong password are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("service: invalid credentials")

	ErrEmailInUse = errors.New("service: email already in use")
	ErrNotFound   = errors.New("service: identity not found")

	// ErrInvalidRefresh covers unknown fingerprints and lost rotation races.
	ErrInvalidRefresh = errors.New("service: invalid refresh token")
	ErrExpiredRefresh = errors.New("service: refresh token expired")

	ErrAlreadyVerified     = errors.New("service: identity already verified")
	ErrInvalidVerification = errors.New("service: invalid verification token")

	// ErrMissingProviderIdentity means the provider disclosed neither an
	// email nor a stable subject id, so there is nothing to resolve against.
	ErrMissingProviderIdentity = errors.New("service: provider disclosed no email or subject id")

	ErrInvalidTheme = errors.New("service: unknown theme")

	// ErrMailDispatch wraps verification mail delivery failures.
	ErrMailDispatch = errors.New("service: verification mail dispatch failed")
)
