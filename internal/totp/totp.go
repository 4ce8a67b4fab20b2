// Package totp implements the time-based one-time password check used by the
// authenticator-app MFA provider: RFC 4226 HOTP truncation over an RFC 6238
// 30-second time counter, six digits, HMAC-SHA1.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	// Digits is the code length presented to and typed by the user.
	Digits = 6

	// Period is the time-step size in seconds.
	Period = 30

	// Skew is the clock-skew tolerance, in steps, applied on each side of
	// the current counter.
	Skew = 1

	secretBytes = 20
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a fresh random shared secret, base32-encoded without
// padding, ready for an otpauth URI.
func GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth:// URI encoding the secret and parameters
// for enrollment in an authenticator app.
func ProvisionURI(secret, account, issuer string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(Period))
	v.Set("digits", strconv.Itoa(Digits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + url.PathEscape(issuer+":"+account) + "?" + v.Encode()
}

// Verify checks code against the base32 secret at the given time, accepting
// codes from the surrounding Skew steps. Malformed codes and undecodable
// secrets verify as false; the comparison is constant-time per candidate.
func Verify(secret, code string, now time.Time) bool {
	if len(code) != Digits {
		return false
	}
	key, err := b32.DecodeString(secret)
	if err != nil || len(key) == 0 {
		return false
	}

	counter := now.Unix() / Period
	for step := int64(-Skew); step <= Skew; step++ {
		c := counter + step
		if c < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotpCode(key, c)), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

func hotpCode(key []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < Digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", Digits, bin%mod)
}
