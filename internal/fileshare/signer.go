package fileshare

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ProtocolVersion is the storage protocol version sent as x-ms-version and
// covered by the request signature.
const ProtocolVersion = "2021-08-06"

// ErrInvalidCredential means the signing key is absent or not valid base64.
var ErrInvalidCredential = errors.New("invalid storage credential")

// Signer computes SharedKey signatures for outbound read requests.
// It holds only the decoded account key and performs no I/O.
type Signer struct {
	key []byte
}

// NewSigner decodes the base64 account key.
func NewSigner(accountKey string) (*Signer, error) {
	if strings.TrimSpace(accountKey) == "" {
		return nil, ErrInvalidCredential
	}
	key, err := base64.StdEncoding.DecodeString(accountKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return &Signer{key: key}, nil
}

// Sign builds the canonical string-to-sign and returns the base64 HMAC-SHA256
// digest. The string is newline-joined in fixed order: the HTTP method, ten
// empty standard-header slots, the two required x-ms headers, then the
// canonicalized resource path.
func (s *Signer) Sign(method, canonicalResource, date, version string) string {
	lines := make([]string, 0, 14)
	lines = append(lines, method)
	for i := 0; i < 10; i++ {
		lines = append(lines, "")
	}
	lines = append(lines,
		"x-ms-date:"+date,
		"x-ms-version:"+version,
		canonicalResource,
	)

	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(strings.Join(lines, "\n")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Authorization returns the full Authorization header value for account.
func (s *Signer) Authorization(account, method, canonicalResource, date, version string) string {
	return "SharedKey " + account + ":" + s.Sign(method, canonicalResource, date, version)
}
