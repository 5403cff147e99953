package domain

import "strconv"

// Wire headers carrying the signature envelope on every signed request.
const (
	HeaderSignature = "X-Request-Signature"
	HeaderTimestamp = "X-Request-Timestamp"
	HeaderNonce     = "X-Request-Nonce"
	HeaderSecretID  = "X-Secret-Id"
)

// Signature is the envelope attached to a signed request.
type Signature struct {
	Value     string // Hex-encoded HMAC-SHA256 over the canonical request
	Timestamp int64  // Unix milliseconds at signing time
	Nonce     string // Single-use value, format "<timestamp>-<hex random>"
	SecretID  string // Identifier of the secret generation that signed
}

// TimestampString renders the timestamp the way it travels in headers.
func (s *Signature) TimestampString() string {
	return strconv.FormatInt(s.Timestamp, 10)
}

// ParseSignature reassembles an envelope from its header values. Returns
// ErrTimestampInvalid when the timestamp is not a parseable millisecond
// value.
func ParseSignature(value, timestamp, nonce, secretID string) (*Signature, error) {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, ErrTimestampInvalid
	}
	return &Signature{
		Value:     value,
		Timestamp: ts,
		Nonce:     nonce,
		SecretID:  secretID,
	}, nil
}
