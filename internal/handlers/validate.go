package handlers

// maxHashLength bounds the accepted hash size. Real build-tool hashes are
// hex or base64 digests far below this.
const maxHashLength = 128

// ValidHash reports whether hash is non-empty, at most maxHashLength bytes,
// and made only of [A-Za-z0-9_-]. The check is byte-wise: any multi-byte
// UTF-8 sequence fails it, which also rules out path traversal and key
// separator injection before the hash ever reaches a storage key.
func ValidHash(hash string) bool {
	if hash == "" || len(hash) > maxHashLength {
		return false
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
