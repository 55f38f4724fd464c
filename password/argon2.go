// Package password implements Argon2id password hashing with
// PHC-formatted output ($argon2id$v=19$m=...,t=...,p=...$salt$hash).
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKiB   uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

// Params hold the Argon2id cost settings used for new hashes.
// Verification always honors the parameters embedded in the stored
// hash, so raising costs never invalidates old credentials.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Argon2 struct {
	params Params
}

func NewArgon2(p Params) (*Argon2, error) {
	switch {
	case p.Memory < minMemoryKiB:
		return nil, errors.New("argon2 memory must be >= 8192 KiB")
	case p.Time < minTimeCost:
		return nil, errors.New("argon2 time must be >= 1")
	case p.Parallelism < minParallelism:
		return nil, errors.New("argon2 parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return nil, errors.New("argon2 salt length must be >= 16")
	case p.KeyLength < minKeyLength:
		return nil, errors.New("argon2 key length must be >= 16")
	}
	return &Argon2{params: p}, nil
}

// Hash derives a key from the raw password bytes and returns the PHC
// encoding. No Unicode normalization is applied.
func (a *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, a.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		a.params.Time,
		a.params.Memory,
		a.params.Parallelism,
		a.params.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.params.Memory,
		a.params.Time,
		a.params.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the key under the stored hash's own parameters and
// compares in constant time.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.hash)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsRehash reports whether the stored hash was produced with
// weaker-than-current parameters.
func (a *Argon2) NeedsRehash(encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if a.params.Memory > parsed.memory ||
		a.params.Time > parsed.time ||
		a.params.Parallelism > parsed.parallelism ||
		a.params.KeyLength != uint32(len(parsed.hash)) {
		return true, nil
	}
	return false, nil
}

type phcFields struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parsePHC(encoded string) (*phcFields, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if !strings.HasPrefix(parts[2], "v=") || err != nil || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	var fields phcFields
	var haveM, haveT, haveP bool
	for _, pair := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid parameter entry")
		}
		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minMemoryKiB) {
				return nil, errors.New("invalid memory parameter")
			}
			fields.memory = uint32(v)
			haveM = true
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return nil, errors.New("invalid time parameter")
			}
			fields.time = uint32(v)
			haveT = true
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return nil, errors.New("invalid parallelism parameter")
			}
			fields.parallelism = uint8(v)
			haveP = true
		default:
			return nil, errors.New("unsupported parameter")
		}
	}
	if !haveM || !haveT || !haveP {
		return nil, errors.New("missing parameters")
	}

	if fields.salt, err = base64.StdEncoding.DecodeString(parts[4]); err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if len(fields.salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt length")
	}
	if fields.hash, err = base64.StdEncoding.DecodeString(parts[5]); err != nil {
		return nil, errors.New("invalid hash encoding")
	}
	if len(fields.hash) == 0 {
		return nil, errors.New("invalid hash length")
	}

	return &fields, nil
}
