package httpserver

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Scheme = "argon2id"

var errMalformedHash = errors.New("malformed interviewer password hash")

// Argon2Params tunes argon2id for interviewer credentials.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// DefaultArgon2Params is what -hash-password uses.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLen:     16,
	KeyLen:      32,
}

// credential is a decoded "argon2id$iter$mem$par$salt$key" string.
type credential struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func (c credential) String() string {
	enc := base64.RawStdEncoding
	return strings.Join([]string{
		argon2Scheme,
		strconv.FormatUint(uint64(c.params.Iterations), 10),
		strconv.FormatUint(uint64(c.params.Memory), 10),
		strconv.FormatUint(uint64(c.params.Parallelism), 10),
		enc.EncodeToString(c.salt),
		enc.EncodeToString(c.key),
	}, "$")
}

func (c credential) matches(password string) bool {
	got := argon2.IDKey([]byte(password), c.salt, c.params.Iterations, c.params.Memory, c.params.Parallelism, uint32(len(c.key)))
	return subtle.ConstantTimeCompare(got, c.key) == 1
}

func parseCredential(encoded string) (credential, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != argon2Scheme {
		return credential{}, errMalformedHash
	}
	var nums [3]uint64
	for i, bits := range []int{32, 32, 8} {
		n, err := strconv.ParseUint(fields[i+1], 10, bits)
		if err != nil {
			return credential{}, fmt.Errorf("%w: %s", errMalformedHash, err)
		}
		nums[i] = n
	}
	if nums[0] == 0 || nums[2] == 0 {
		return credential{}, errMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return credential{}, fmt.Errorf("%w: salt: %s", errMalformedHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return credential{}, fmt.Errorf("%w: key", errMalformedHash)
	}
	return credential{
		params: Argon2Params{Iterations: uint32(nums[0]), Memory: uint32(nums[1]), Parallelism: uint8(nums[2])},
		salt:   salt,
		key:    key,
	}, nil
}

// HashPassword encodes an argon2id hash with a fresh random salt.
func HashPassword(password string, params Argon2Params) (string, error) {
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("op=auth.hash: %w", err)
	}
	c := credential{
		params: params,
		salt:   salt,
		key:    argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLen),
	}
	return c.String(), nil
}

// VerifyPassword reports whether password matches encodedHash. Malformed
// hashes never match.
func VerifyPassword(password, encodedHash string) bool {
	c, err := parseCredential(encodedHash)
	if err != nil {
		return false
	}
	return c.matches(password)
}
