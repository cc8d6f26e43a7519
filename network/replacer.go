package network

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yllada/travel-router/common"
)

// Replacer swaps the stored profile of a role for a freshly created one.
// Profiles are never edited in place.
type Replacer struct {
	store ProfileStore
}

// NewReplacer creates a replacer over store.
func NewReplacer(store ProfileStore) *Replacer {
	return &Replacer{store: store}
}

// Replace brings down whatever occupies the target interface, deletes the
// old profile of the same name, then adds (and, if requested, activates)
// the desired profile. Activation failures are returned as
// *common.CredentialError with the tool's own message, except an activation
// that timed out, which is a *common.WANTimeoutError. Nothing is retried.
func (r *Replacer) Replace(ctx context.Context, desired common.NetworkProfile) (common.ProfileHandle, error) {
	if err := validateProfile(desired); err != nil {
		return common.ProfileHandle{}, err
	}

	active, err := r.store.ActiveProfiles(ctx)
	if err != nil {
		return common.ProfileHandle{}, err
	}
	for _, p := range active {
		if p.Device != desired.Interface {
			continue
		}
		// A passive role must not knock the live venue link off the radio.
		if !desired.Activate && p.Name != desired.Name {
			continue
		}
		common.LogInfo("Bringing down %s on %s", p.Name, p.Device)
		if err := r.store.Down(ctx, p); err != nil {
			return common.ProfileHandle{}, err
		}
	}

	stored, err := r.store.Profiles(ctx)
	if err != nil {
		return common.ProfileHandle{}, err
	}
	for _, p := range stored {
		if p.Name != desired.Name {
			continue
		}
		common.LogInfo("Deleting old %s profile %s (%s)", desired.Role, p.Name, p.UUID)
		if err := r.store.Delete(ctx, p); err != nil && !errors.Is(err, common.ErrProfileNotFound) {
			return common.ProfileHandle{}, err
		}
	}

	if err := r.store.AddWifi(ctx, desired); err != nil {
		return common.ProfileHandle{}, err
	}

	handle, err := r.handleFor(ctx, desired)
	if err != nil {
		return common.ProfileHandle{}, err
	}
	common.LogInfo("Created %s profile %s (%s)", desired.Role, handle.Name, handle.UUID)

	if !desired.Activate {
		return handle, nil
	}
	if err := r.store.Up(ctx, desired.Name, desired.Interface); err != nil {
		var te *common.TimeoutError
		if errors.As(err, &te) {
			common.LogWarn("%s not associated with %s after %s", desired.Interface, desired.SSID, te.Budget)
			return handle, &common.WANTimeoutError{Interface: desired.Interface, Budget: te.Budget}
		}
		if ctx.Err() != nil {
			return handle, ctx.Err()
		}
		return handle, &common.CredentialError{SSID: desired.SSID, Detail: err.Error()}
	}
	return handle, nil
}

func (r *Replacer) handleFor(ctx context.Context, desired common.NetworkProfile) (common.ProfileHandle, error) {
	stored, err := r.store.Profiles(ctx)
	if err != nil {
		return common.ProfileHandle{}, err
	}
	for _, p := range stored {
		if p.Name == desired.Name {
			return common.ProfileHandle{
				Role:      desired.Role,
				Name:      p.Name,
				UUID:      p.UUID,
				Interface: desired.Interface,
			}, nil
		}
	}
	return common.ProfileHandle{}, fmt.Errorf("%w: %s missing after add", common.ErrProfileNotFound, desired.Name)
}

func validateProfile(p common.NetworkProfile) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return &common.FatalInputError{Field: "profile name"}
	case strings.TrimSpace(p.Interface) == "":
		return &common.FatalInputError{Field: "interface"}
	case strings.TrimSpace(p.SSID) == "":
		return &common.FatalInputError{Field: "ssid"}
	case p.Password == "":
		return &common.FatalInputError{Field: "password"}
	}
	return nil
}
