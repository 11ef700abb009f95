package openai

import (
	"encoding/base64"
	"unicode/utf8"
)

// payloadExcerpt renders at most limit bytes of payload for the prompt.
// Binary payloads are sent base64-encoded.
func payloadExcerpt(payload []byte, limit int) string {
	if len(payload) > limit {
		payload = payload[:limit]
	}
	if utf8.Valid(payload) {
		return string(payload)
	}
	// a cut may have split the final rune of otherwise valid text
	for i := 1; i < utf8.UTFMax && i < len(payload); i++ {
		if utf8.Valid(payload[:len(payload)-i]) {
			return string(payload[:len(payload)-i])
		}
	}
	return "[base64] " + base64.StdEncoding.EncodeToString(payload)
}
