package credits

import (
	"context"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/identity"
)

// EnsureDeviceID returns the stored device id, creating and persisting one
// on first use. Once stored the id never changes.
func (l *Ledger) EnsureDeviceID(ctx context.Context) (string, error) {
	ident, err := l.store.LoadIdentity(ctx)
	if err != nil {
		return "", err
	}
	if ident.DeviceID != "" {
		return ident.DeviceID, nil
	}
	deviceID, err := l.store.EnsureDeviceID(ctx, id.NewDeviceID().String())
	if err != nil {
		return "", err
	}
	l.logger.Debug("device id created", "device_id", deviceID)
	return deviceID, nil
}

// GetIdentity loads the identity, creating the device id if absent.
func (l *Ledger) GetIdentity(ctx context.Context) (*identity.Identity, error) {
	ident, err := l.store.LoadIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if ident.DeviceID != "" {
		return ident, nil
	}
	if _, err := l.EnsureDeviceID(ctx); err != nil {
		return nil, err
	}
	return l.store.LoadIdentity(ctx)
}

// SubjectID returns the registered subject, or "" before registration.
func (l *Ledger) SubjectID(ctx context.Context) (string, error) {
	ident, err := l.store.LoadIdentity(ctx)
	if err != nil {
		return "", err
	}
	return ident.SubjectID, nil
}

// EnsureIdentity registers the device with the billing service unless it
// already holds credentials. It returns false without error when billing is
// unconfigured, and never calls the service when already registered.
func (l *Ledger) EnsureIdentity(ctx context.Context) (bool, error) {
	if !l.IsConfigured(ctx) {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.prepare(ctx); err != nil {
		return false, err
	}
	if _, err := l.ensureIdentity(ctx); err != nil {
		return false, fromBilling("register", err)
	}
	return true, nil
}

// ensureIdentity returns registered credentials, registering first when
// needed. Billing errors are returned unmapped so callers can tell
// transport failures apart. Callers hold l.mu and have called prepare.
func (l *Ledger) ensureIdentity(ctx context.Context) (*identity.Identity, error) {
	ident, err := l.GetIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if ident.Registered() {
		return ident, nil
	}

	reg, err := l.api.Register(ctx, ident.DeviceID)
	if err != nil {
		return nil, err
	}
	if err := l.store.SaveCredentials(ctx, reg.SubjectID, reg.AccessToken); err != nil {
		return nil, err
	}
	ident.SubjectID = reg.SubjectID
	ident.AccessToken = reg.AccessToken

	l.logger.Info("device registered",
		"device_id", ident.DeviceID,
		"subject", ident.ShortSubject(),
	)
	l.plugins.EmitIdentityRegistered(ctx, ident.DeviceID, ident.SubjectID)
	return ident, nil
}

// ResetIdentity clears the subject and access token, keeping the device id.
// The next remote operation registers again.
func (l *Ledger) ResetIdentity(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.ClearCredentials(ctx); err != nil {
		return err
	}
	ident, err := l.store.LoadIdentity(ctx)
	if err != nil {
		return err
	}
	l.logger.Info("identity reset", "device_id", ident.DeviceID)
	l.plugins.EmitIdentityReset(ctx, ident.DeviceID)
	return nil
}
