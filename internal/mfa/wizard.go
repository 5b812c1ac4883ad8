// Package mfa drives the two-factor enrollment flow: introduce, show the
// secret and QR code, verify a first code, then show backup codes once.
package mfa

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"sync"

	"github.com/pquerna/otp"

	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

// Step is a wizard state.
type Step int

const (
	StepIntroduction Step = iota
	StepAwaitingVerification
	StepCompleted
)

func (s Step) String() string {
	switch s {
	case StepIntroduction:
		return "introduction"
	case StepAwaitingVerification:
		return "awaiting_verification"
	case StepCompleted:
		return "completed"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

var (
	ErrInvalidCode = errors.New("mfa: code must be 6 digits")
	ErrWrongStep   = errors.New("mfa: not allowed in current step")
	ErrNoQRCode    = errors.New("mfa: no qr code available")
)

// Enroller is the backend side of enrollment.
type Enroller interface {
	SetupMFA(ctx context.Context) (*shopsdk.MFASetup, error)
	EnableMFA(ctx context.Context, code string) error
}

// Wizard is one enrollment attempt. It is safe for concurrent use.
type Wizard struct {
	api Enroller

	mu        sync.Mutex
	step      Step
	setup     *shopsdk.MFASetup
	lastError error
}

func NewWizard(api Enroller) *Wizard {
	return &Wizard{api: api}
}

// Step returns the current state.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// LastError is the most recent failure, cleared by the next success.
func (w *Wizard) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

// Begin requests a new secret and moves to verification.
func (w *Wizard) Begin(ctx context.Context) (*shopsdk.MFASetup, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepIntroduction {
		return nil, ErrWrongStep
	}

	setup, err := w.api.SetupMFA(ctx)
	if err != nil {
		w.lastError = err
		return nil, err
	}
	w.setup = setup
	w.step = StepAwaitingVerification
	w.lastError = nil
	return cloneSetup(setup), nil
}

// Submit verifies the first code. Malformed codes are rejected without a
// network call. On failure the wizard stays where it is.
func (w *Wizard) Submit(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepAwaitingVerification {
		return ErrWrongStep
	}
	if !shopsdk.IsMFACode(code) {
		w.lastError = ErrInvalidCode
		return ErrInvalidCode
	}
	if err := w.api.EnableMFA(ctx, code); err != nil {
		w.lastError = err
		return err
	}
	w.step = StepCompleted
	w.lastError = nil
	return nil
}

// Secret is the manual-entry key, empty outside verification.
func (w *Wizard) Secret() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.setup == nil {
		return ""
	}
	return w.setup.Secret
}

// BackupCodes are only released once enrollment completed.
func (w *Wizard) BackupCodes() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepCompleted || w.setup == nil {
		return nil
	}
	return append([]string(nil), w.setup.BackupCodes...)
}

// QRCodePNG renders the enrollment QR code at size x size pixels.
func (w *Wizard) QRCodePNG(size int) ([]byte, error) {
	w.mu.Lock()
	var payload string
	if w.setup != nil {
		payload = w.setup.QRCode
	}
	w.mu.Unlock()
	return RenderQRCode(payload, size)
}

// Close discards the secret, QR payload and backup codes and resets the
// wizard.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.setup != nil {
		w.setup.Secret = ""
		w.setup.QRCode = ""
		clear(w.setup.BackupCodes)
	}
	w.setup = nil
	w.step = StepIntroduction
	w.lastError = nil
}

// RenderQRCode turns a QR payload into PNG bytes. The payload is either an
// otpauth:// key URL or an already-rendered data:image/png URL.
func RenderQRCode(payload string, size int) ([]byte, error) {
	switch {
	case payload == "":
		return nil, ErrNoQRCode
	case strings.HasPrefix(payload, "data:image/png;base64,"):
		return base64.StdEncoding.DecodeString(strings.TrimPrefix(payload, "data:image/png;base64,"))
	case strings.HasPrefix(payload, "otpauth://"):
		key, err := otp.NewKeyFromURL(payload)
		if err != nil {
			return nil, fmt.Errorf("mfa: parse key url: %w", err)
		}
		img, err := key.Image(size, size)
		if err != nil {
			return nil, fmt.Errorf("mfa: render qr: %w", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("mfa: unsupported qr payload")
	}
}

func cloneSetup(s *shopsdk.MFASetup) *shopsdk.MFASetup {
	c := *s
	c.BackupCodes = append([]string(nil), s.BackupCodes...)
	return &c
}
