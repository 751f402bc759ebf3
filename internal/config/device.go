package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const deviceIDFile = ".device_id"

// EnsureDeviceID returns the configured device id, or one persisted under
// dir. A new id is generated and saved when none exists; if dir cannot be
// written the id is ephemeral.
func (c *Config) EnsureDeviceID(dir string) string {
	if c.Device.ID != "" {
		return c.Device.ID
	}
	c.Device.ID = loadOrCreateID(dir)
	return c.Device.ID
}

func loadOrCreateID(dir string) string {
	if dir == "" {
		return uuid.NewString()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return uuid.NewString()
	}

	path := filepath.Join(dir, deviceIDFile)
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	id := uuid.NewString()
	_ = os.WriteFile(path, []byte(id), 0644)
	return id
}
