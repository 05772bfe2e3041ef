package gerror

import "errors"

var (
	// ErrStorageNotFound is used when the object is not found in the storage
	ErrStorageNotFound = errors.New("not found in the Storage")
	// ErrStorageNotRegister is used when the storage type is not supported
	ErrStorageNotRegister = errors.New("not registered storage")
	// ErrNilDBTransaction indicates the db transaction has not been properly initialized
	ErrNilDBTransaction = errors.New("database transaction not properly initialized")
	// ErrProofNotFound is used when no proof record exists for a lock hash
	ErrProofNotFound = errors.New("proof not found for the lock")
	// ErrNetworkNotRegister is used when the networkID is not registered in the bridge
	ErrNetworkNotRegister = errors.New("not registered network")
	// ErrInvalidStatusTransition is used when a lock status change is not in the transition table
	ErrInvalidStatusTransition = errors.New("invalid lock status transition")
)
