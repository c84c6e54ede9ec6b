// Package codec encrypts transport lines with NaCl secretbox. The key is
// shared out of band.
package codec

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	NonceSize = 24
)

var (
	ErrUninitialized = errors.New("codec: key not set")
	ErrDecrypt       = errors.New("codec: decryption failed")
	ErrKeySize       = fmt.Errorf("codec: key must be %d bytes", KeySize)
)

// Codec seals strings and values with a single key. The zero value has no
// key and fails with ErrUninitialized.
type Codec struct {
	mu  sync.RWMutex
	key *[KeySize]byte
}

// New returns a Codec using key.
func New(key []byte) (*Codec, error) {
	c := &Codec{}
	if err := c.SetKey(key); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseKey decodes a base64 key.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("codec: invalid key: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	return key, nil
}

func (c *Codec) SetKey(key []byte) error {
	if len(key) != KeySize {
		return ErrKeySize
	}
	var k [KeySize]byte
	copy(k[:], key)
	c.mu.Lock()
	c.key = &k
	c.mu.Unlock()
	return nil
}

func (c *Codec) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key != nil
}

func (c *Codec) getKey() (*[KeySize]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.key == nil {
		return nil, ErrUninitialized
	}
	return c.key, nil
}

// EncryptString returns base64(nonce || box).
func (c *Codec) EncryptString(plaintext string) (string, error) {
	key, err := c.getKey()
	if err != nil {
		return "", err
	}
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("codec: failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func (c *Codec) DecryptString(s string) (string, error) {
	key, err := c.getKey()
	if err != nil {
		return "", err
	}
	sealed, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(sealed) < NonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [NonceSize]byte
	copy(nonce[:], sealed[:NonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[NonceSize:], &nonce, key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// Encrypt serialises v as JSON and encrypts it.
func (c *Codec) Encrypt(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("codec: failed to marshal: %w", err)
	}
	return c.EncryptString(string(b))
}

// Decrypt decrypts s and unmarshals the JSON it holds into v.
func (c *Codec) Decrypt(s string, v any) error {
	plaintext, err := c.DecryptString(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(plaintext), v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return nil
}

var (
	defaultCodec Codec
	installOnce  sync.Once
)

// Install sets the process-wide key. Only the first successful call has an
// effect.
func Install(key []byte) error {
	if len(key) != KeySize {
		return ErrKeySize
	}
	var err error
	installOnce.Do(func() {
		err = defaultCodec.SetKey(key)
	})
	return err
}

// Default returns the process-wide codec.
func Default() *Codec {
	return &defaultCodec
}

func EncryptString(plaintext string) (string, error) {
	return defaultCodec.EncryptString(plaintext)
}

func DecryptString(s string) (string, error) {
	return defaultCodec.DecryptString(s)
}

func Encrypt(v any) (string, error) {
	return defaultCodec.Encrypt(v)
}

func Decrypt(s string, v any) error {
	return defaultCodec.Decrypt(s, v)
}
