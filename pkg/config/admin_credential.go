package config

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash of the plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext password matches the bcrypt hash.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// SetAdminCredential stores a new admin login for the admin API.
func (c *Config) SetAdminCredential(username, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.WebUI.AdminUser = username
	c.WebUI.AdminPasswordHash = hash
	return nil
}

// CheckAdminCredential reports whether username and password match the stored login.
func (c *Config) CheckAdminCredential(username, password string) bool {
	c.mu.RLock()
	user, hash := c.WebUI.AdminUser, c.WebUI.AdminPasswordHash
	c.mu.RUnlock()

	if user == "" || username != user {
		return false
	}
	return CheckPassword(hash, password)
}
