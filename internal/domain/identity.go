package domain

import (
	"github.com/google/uuid"
)

// RemoteIdentityID identifies an identity at a 3rd party provider: the
// provider's case-sensitive name plus the provider-local account id. At most
// one user may be linked to any given (provider, id) pair.
type RemoteIdentityID struct {
	Provider string
	ID       string
}

// RemoteIdentityDetails carries the display information a provider returned
// for an identity. Any field may be empty.
type RemoteIdentityDetails struct {
	Username string
	Fullname string
	Email    string
}

// RemoteIdentity is a provider identity together with its details.
type RemoteIdentity struct {
	RemoteID RemoteIdentityID
	Details  RemoteIdentityDetails
}

// NewRemoteIdentity validates and returns a RemoteIdentity.
func NewRemoteIdentity(id RemoteIdentityID, details RemoteIdentityDetails) (RemoteIdentity, error) {
	if id.Provider == "" {
		return RemoteIdentity{}, NewError(ErrMissingParameter, "provider")
	}
	if id.ID == "" {
		return RemoteIdentity{}, NewError(ErrMissingParameter, "remote identity id")
	}
	return RemoteIdentity{RemoteID: id, Details: details}, nil
}

// WithID mints a fresh locally assigned UUID for the identity. The local id
// keys the identity within temporary login/link state and within a user's
// linked set.
func (r RemoteIdentity) WithID() RemoteIdentityWithLocalID {
	return RemoteIdentityWithLocalID{ID: uuid.New(), RemoteIdentity: r}
}

// RemoteIdentityWithLocalID is a RemoteIdentity with a locally assigned
// UUID.
type RemoteIdentityWithLocalID struct {
	ID uuid.UUID
	RemoteIdentity
}
