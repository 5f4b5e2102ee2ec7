package twitch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// EventSub webhook header names.
const (
	HeaderMessageID        = "Twitch-Eventsub-Message-Id"
	HeaderMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	HeaderMessageSignature = "Twitch-Eventsub-Message-Signature"
)

// VerifySignature checks an EventSub webhook signature. The expected value
// is HMAC-SHA256 over messageID || timestamp || rawBody, hex-encoded and
// prefixed with "sha256=". Comparison is constant-time.
//
// This is a hard gate: a false return means the request must be rejected
// with 403 and the payload never parsed as an event.
func VerifySignature(messageID, timestamp string, rawBody []byte, signature, secret string) bool {
	if messageID == "" || timestamp == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(rawBody)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
