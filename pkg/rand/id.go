// Package rand generates short opaque identifiers, mirroring the teacher's
// pkg/rand helper used by the function manager for function ids.
package rand

import "github.com/google/uuid"

// ID16 returns a 16-character hex identifier, trimmed from a random UUID.
func ID16() string {
	u := uuid.New()
	return u.String()[:8] + u.String()[9:13] + u.String()[14:18]
}
