// Package password hashes user credentials with Argon2id in the PHC string format.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

// MinLength is the shortest password accepted for new credentials.
const MinLength = 8

const saltLen = 16

type params struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
}

var current = params{memory: 64 * 1024, time: 1, threads: 4, keyLen: 32}

// Acceptable reports whether pw satisfies the password policy.
func Acceptable(pw string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(pw)) >= MinLength
}

// Hash returns an encoded Argon2id hash with a random salt.
func Hash(pw string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(pw), salt, current.time, current.memory, current.threads, current.keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, current.memory, current.time, current.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks pw against an encoded hash. Malformed hashes never match.
func Verify(pw, encoded string) bool {
	p, salt, key, ok := decode(encoded)
	if !ok {
		return false
	}
	check := argon2.IDKey([]byte(pw), salt, p.time, p.memory, p.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, check) == 1
}

// NeedsRehash reports whether encoded was produced with parameters other than the current ones.
func NeedsRehash(encoded string) bool {
	p, _, key, ok := decode(encoded)
	if !ok {
		return true
	}
	p.keyLen = uint32(len(key))
	return p != current
}

func decode(encoded string) (params, []byte, []byte, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return params{}, nil, nil, false
	}

	var p params
	if n, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil || n != 3 {
		return params{}, nil, nil, false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return params{}, nil, nil, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return params{}, nil, nil, false
	}
	p.keyLen = uint32(len(key))
	return p, salt, key, true
}
