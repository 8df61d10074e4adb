package crypto

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TokenConfig is the YAML configuration for a PKCS#11 token holding the
// signing key, the replacement for a system-wide certificate database.
type TokenConfig struct {
	Type   string         `yaml:"type"`
	PKCS11 PKCS11Settings `yaml:"pkcs11"`
}

// PKCS11Settings holds PKCS#11 specific configuration.
type PKCS11Settings struct {
	// Lib is the path to the PKCS#11 library (.so/.dylib/.dll)
	Lib string `yaml:"lib"`

	// Token identifies the token by label
	Token string `yaml:"token"`

	// PinEnv is the name of the environment variable containing the PIN
	PinEnv string `yaml:"pin_env"`
}

// LoadTokenConfig loads token configuration from a YAML file.
func LoadTokenConfig(path string) (*TokenConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token config file: %w", err)
	}

	var cfg TokenConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse token config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid token config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *TokenConfig) Validate() error {
	if c.Type != "" && c.Type != "pkcs11" {
		return fmt.Errorf("unsupported token type: %s", c.Type)
	}
	if c.PKCS11.Lib == "" {
		return fmt.Errorf("pkcs11.lib is required")
	}
	if c.PKCS11.Token == "" {
		return fmt.Errorf("pkcs11.token is required")
	}
	return nil
}

// GetPIN resolves the token PIN from the configured environment variable.
func (c *TokenConfig) GetPIN() (string, error) {
	if c.PKCS11.PinEnv == "" {
		return "", fmt.Errorf("pkcs11.pin_env is not set in token config")
	}
	pin := os.Getenv(c.PKCS11.PinEnv)
	if pin == "" {
		return "", fmt.Errorf("environment variable %s is empty or not set", c.PKCS11.PinEnv)
	}
	return pin, nil
}

// ToKeyStorageConfig builds the key storage config for a key in this token.
func (c *TokenConfig) ToKeyStorageConfig(keyLabel string) (KeyStorageConfig, error) {
	pin, err := c.GetPIN()
	if err != nil {
		return KeyStorageConfig{}, err
	}
	return KeyStorageConfig{
		Type:           KeyProviderTypePKCS11,
		PKCS11Lib:      c.PKCS11.Lib,
		PKCS11Token:    c.PKCS11.Token,
		PKCS11Pin:      pin,
		PKCS11KeyLabel: keyLabel,
	}, nil
}
