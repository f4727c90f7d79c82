package identity

import "context"

type Store interface {
	// LoadIdentity returns the stored identity. Fields that were never
	// written are empty; a fresh store yields an empty Identity, not an error.
	LoadIdentity(ctx context.Context) (*Identity, error)
	// EnsureDeviceID stores candidate when no device id exists yet and
	// returns whichever id is stored afterwards.
	EnsureDeviceID(ctx context.Context, candidate string) (string, error)
	SaveCredentials(ctx context.Context, subjectID, accessToken string) error
	ClearCredentials(ctx context.Context) error
}
