package handshake

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync/atomic"
)

// PINDigits is the length of generated PINs.
const PINDigits = 6

// PIN holds the currently active PIN. It is rotated once per listen cycle
// and read concurrently by every connection handler.
type PIN struct {
	current atomic.Pointer[string]
}

// NewPIN returns an empty holder; nothing matches until Rotate or Set.
func NewPIN() *PIN {
	return &PIN{}
}

// Rotate generates a fresh six-digit PIN (100000-999999) and activates it.
func (p *PIN) Rotate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("handshake: generate pin: %w", err)
	}
	pin := fmt.Sprintf("%06d", n.Int64()+100000)
	p.Set(pin)
	return pin, nil
}

// Set activates pin.
func (p *PIN) Set(pin string) {
	p.current.Store(&pin)
}

// Clear invalidates the current PIN.
func (p *PIN) Clear() {
	p.current.Store(nil)
}

// Current returns the active PIN or "".
func (p *PIN) Current() string {
	if v := p.current.Load(); v != nil {
		return *v
	}
	return ""
}

// Matches reports whether candidate equals the active PIN exactly.
func (p *PIN) Matches(candidate string) bool {
	current := p.Current()
	return current != "" && candidate == current
}
