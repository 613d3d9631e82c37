package syncer

import "strings"

// SanitizeKey derives the remote-store key for an entry name: ASCII letters,
// digits, hyphen and underscore pass through, every other rune becomes '_'.
//
// The same function must be used for writes, reads and deletes. Sanitizing
// differently on any path orphans entries: written under one key, deleted
// under another.
func SanitizeKey(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
