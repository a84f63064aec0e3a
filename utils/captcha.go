package utils

import (
	"strings"

	"github.com/mojocn/base64Captcha"
)

// Captcha issues digit captchas and verifies the tokens clients send back.
// A token is "<captcha id>:<answer>".
type Captcha struct {
	store  base64Captcha.Store
	driver base64Captcha.Driver
}

// NewCaptcha creates a Captcha on store, the in-memory store when nil.
func NewCaptcha(store base64Captcha.Store) *Captcha {
	if store == nil {
		store = base64Captcha.DefaultMemStore
	}
	return &Captcha{
		store:  store,
		driver: base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80),
	}
}

// Generate creates a captcha and returns (id, dataURI) for frontend to display.
func (c *Captcha) Generate() (string, string, error) {
	id, b64, _, err := base64Captcha.NewCaptcha(c.driver, c.store).Generate()
	return id, b64, err
}

// Verify checks a token and consumes the captcha on success.
func (c *Captcha) Verify(token string) bool {
	id, answer, ok := strings.Cut(strings.TrimSpace(token), ":")
	if !ok || id == "" || answer == "" {
		return false
	}
	return c.store.Verify(id, answer, true)
}

// Answer returns the stored answer without consuming it. Meant for tests.
func (c *Captcha) Answer(id string) string {
	return c.store.Get(id, false)
}
