package storage

import (
	"crypto/rand"
	"fmt"
	"strings"

	"soundsketch/errs"
)

// 对象键布局：
//   tracks/{trackId|randomId}/{randomId}[-stream|-original].{ext}
//   attachments/{commentId|randomId}/{randomId}.{ext}

// Scope namespaces object keys by owning entity kind.
type Scope string

const (
	ScopeTracks      Scope = "tracks"
	ScopeAttachments Scope = "attachments"
)

// Role distinguishes the objects stored for one entity.
type Role string

const (
	RoleStream   Role = "stream"   // playback-optimized encode
	RoleOriginal Role = "original" // untouched lossless upload
	RolePlain    Role = "plain"    // single-object entities (attachments)
)

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
const keyIDLength = 21

// randomID returns a collision-resistant id: 21 chars drawn from a 64-symbol
// alphabet (~126 bits).
func randomID() string {
	b := make([]byte, keyIDLength)
	rand.Read(b)
	for i := range b {
		b[i] = keyAlphabet[int(b[i])&63]
	}
	return string(b)
}

// AllocateKey produces a fresh object key. scopeID may be empty, in which case
// the random id doubles as the directory component. Pure; the only failure
// mode is an empty extension.
func AllocateKey(scope Scope, scopeID string, role Role, ext string) (string, error) {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: empty file extension", errs.ErrValidation)
	}

	id := randomID()
	dir := scopeID
	if dir == "" {
		dir = id
	}

	name := id
	if role != RolePlain {
		name += "-" + string(role)
	}
	return fmt.Sprintf("%s/%s/%s.%s", scope, dir, name, ext), nil
}
