package authcore

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpManager wraps time-based one-time-password generation and
// validation. Parameters follow the authenticator-app mainstream:
// SHA-1, 6 digits, 30s steps.
type totpManager struct {
	issuer string
	skew   uint
	now    func() time.Time
}

func newTOTPManager(cfg TwoFactorConfig) *totpManager {
	return &totpManager{
		issuer: cfg.Issuer,
		skew:   cfg.Skew,
		now:    time.Now,
	}
}

// GenerateSecret creates a fresh secret and its otpauth:// URI for the
// given account name.
func (t *totpManager) GenerateSecret(accountName string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.issuer,
		AccountName: accountName,
		Period:      30,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// Validate accepts codes within the configured clock-drift skew.
func (t *totpManager) Validate(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, t.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      t.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
