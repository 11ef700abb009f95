package badger

// Key prefixes for different data types
const (
	sessionPrefix = "upsess"
)

// makeSessionKey generates a key for an upload session by content digest.
// Format: prefix:digest
func makeSessionKey(digest string) []byte {
	return []byte(sessionPrefix + ":" + digest)
}

// sessionScanPrefix covers every session key.
func sessionScanPrefix() []byte {
	return []byte(sessionPrefix + ":")
}
