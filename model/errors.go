package model

import "errors"

var (
	// ErrNotFound is returned by stores when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned by stores when a uniqueness constraint would be violated.
	ErrDuplicate = errors.New("duplicate record")
	// ErrAlreadyRevoked is returned by TokenStore.Revoke when the compare-and-update
	// found the record already revoked. The record is returned alongside it.
	ErrAlreadyRevoked = errors.New("token already revoked")
	// ErrContention is returned when a store gave up on a compare-and-update
	// because concurrent writers kept changing the record.
	ErrContention = errors.New("store contention")
)
