package device

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMintsIdentityOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")

	minted, err := Load(path, "laptop")
	if err != nil {
		t.Fatalf("failed to mint identity: %v", err)
	}
	if minted.DeviceID() == "" {
		t.Fatalf("expected a device id")
	}
	if minted.DeviceName() != "laptop" {
		t.Fatalf("unexpected name %q", minted.DeviceName())
	}

	reloaded, err := Load(path, "ignored-on-reload")
	if err != nil {
		t.Fatalf("failed to reload identity: %v", err)
	}
	if reloaded.ID != minted.ID {
		t.Fatalf("identity changed across loads: %s vs %s", reloaded.ID, minted.ID)
	}
	if reloaded.Name != "laptop" {
		t.Fatalf("name rewritten on reload: %q", reloaded.Name)
	}
}

func TestLoadIdentitiesAreDistinct(t *testing.T) {
	dir := t.TempDir()
	first, err := Load(filepath.Join(dir, "a.json"), "a")
	if err != nil {
		t.Fatalf("failed to mint first identity: %v", err)
	}
	second, err := Load(filepath.Join(dir, "b.json"), "b")
	if err != nil {
		t.Fatalf("failed to mint second identity: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct device ids")
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := Load(path, "laptop"); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestLoadRejectsEmptyDeviceID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	if err := os.WriteFile(path, []byte(`{"device_id":"  ","name":"x"}`), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := Load(path, "laptop"); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}
