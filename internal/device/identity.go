package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidIdentity indicates a stored identity file that cannot be used.
var ErrInvalidIdentity = errors.New("device: invalid identity")

// Identity is a stable device identifier plus a human-readable name.
type Identity struct {
	ID   string `json:"device_id"`
	Name string `json:"name"`
}

// DeviceID returns the device identifier.
func (i Identity) DeviceID() string {
	return i.ID
}

// DeviceName returns the display name for the device.
func (i Identity) DeviceName() string {
	return i.Name
}

// Load reads the identity file at path, creating it with a fresh UUID when
// absent. The name is only applied when a new identity is minted.
func Load(path, name string) (Identity, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		var identity Identity
		if err := json.Unmarshal(raw, &identity); err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
		}
		if strings.TrimSpace(identity.ID) == "" {
			return Identity{}, fmt.Errorf("%w: empty device id", ErrInvalidIdentity)
		}
		return identity, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Identity{}, err
	}

	identity := Identity{ID: uuid.NewString(), Name: strings.TrimSpace(name)}
	encoded, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return Identity{}, err
	}
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return Identity{}, err
	}
	return identity, nil
}
