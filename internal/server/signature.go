package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// verifyWebhookSignature checks a provider callback signature. The provider
// signs "id.timestamp.payload" with HMAC-SHA256 using the shared secret
// ("whsec_" prefix followed by the base64 key) and sends the base64 digest in
// a space-separated list of "v1,<signature>" entries.
func verifyWebhookSignature(secret, id, timestamp string, payload []byte, signatureHeader string) bool {
	if id == "" || timestamp == "" || signatureHeader == "" {
		return false
	}
	key := []byte(strings.TrimPrefix(secret, "whsec_"))
	if decoded, err := base64.StdEncoding.DecodeString(string(key)); err == nil {
		key = decoded
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, entry := range strings.Fields(signatureHeader) {
		candidate := entry
		if i := strings.IndexByte(entry, ','); i >= 0 {
			candidate = entry[i+1:]
		}
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return true
		}
	}
	return false
}
