// Package totp derives time-based one-time codes from a group's shared
// secret and provides the 30-second window arithmetic the refresh loop and
// viewer countdowns are built on.
package totp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/dmitrijs2005/teamcodes/internal/common"
)

// Period is the code validity window in seconds. All callers within the
// same window observe the same code.
const Period = 30

// Generate returns the 6-digit code for the given base32 secret at time t.
// Returns common.ErrInvalidSecret if the secret is not decodable.
func Generate(secret string, t time.Time) (string, error) {
	s := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	code, err := totp.GenerateCodeCustom(s, t, totp.ValidateOpts{
		Period:    Period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidSecret, err)
	}
	return code, nil
}

// Window returns the index of the 30-second epoch containing t.
func Window(t time.Time) int64 {
	return t.Unix() / Period
}

// TimeRemaining returns the seconds left in the current window, in [0, 30).
// The boundary value 0 means a new window begins at this instant.
func TimeRemaining(t time.Time) int {
	r := int(t.Unix() % Period)
	if r == 0 {
		return 0
	}
	return Period - r
}

// NextExpiry returns the wall-clock moment the window containing t rolls
// over. Used as the expires_at of persisted codes.
func NextExpiry(t time.Time) time.Time {
	return time.Unix((Window(t)+1)*Period, 0).UTC()
}
