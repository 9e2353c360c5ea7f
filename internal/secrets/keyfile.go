// Package secrets stores API credentials encrypted at rest and
// resolves them at startup. A keyfile holds one credential, such as
// the Telegram bot token or the data provider key.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the keyfile JSON schema version.
	currentVersion = 1
)

// keyfileJSON is the on-disk format for an encrypted credential.
type keyfileJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// Encrypt seals a credential with a password using PBKDF2-HMAC-SHA256
// key derivation and AES-256-GCM authenticated encryption. It returns
// the JSON blob suitable for writing to disk.
func Encrypt(secret, password string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("secrets: secret must not be empty")
	}
	if password == "" {
		return nil, errors.New("secrets: password must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("secrets: generating salt: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("secrets: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secrets: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(secret), nil)

	out := keyfileJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}

	return json.MarshalIndent(out, "", "  ")
}

// Decrypt opens a JSON blob produced by Encrypt, returning the
// plaintext credential.
func Decrypt(keyfile []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("secrets: password must not be empty")
	}

	var stored keyfileJSON
	if err := json.Unmarshal(keyfile, &stored); err != nil {
		return "", fmt.Errorf("secrets: parsing keyfile JSON: %w", err)
	}
	if stored.Version != currentVersion {
		return "", fmt.Errorf("secrets: unsupported keyfile version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return "", fmt.Errorf("secrets: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return "", fmt.Errorf("secrets: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("secrets: decoding ciphertext: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return "", fmt.Errorf("secrets: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("secrets: creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: decryption failed (wrong password?): %w", err)
	}

	return string(plaintext), nil
}

// Source carries the places a credential may come from. Populate the
// fields from environment variables or the config file.
type Source struct {
	// Value is the plaintext credential. If non-empty, Load returns it
	// directly.
	Value string

	// File is the path to a JSON keyfile produced by Encrypt.
	File string

	// Password decrypts the keyfile at File.
	Password string
}

// Load resolves a credential from the provided source.
//
// Resolution order:
//  1. If Value is set, return it.
//  2. If File is set, read the file and decrypt with Password.
//  3. Otherwise, return an error.
func Load(src Source) (string, error) {
	if src.Value != "" {
		return src.Value, nil
	}

	if src.File != "" {
		data, err := os.ReadFile(src.File)
		if err != nil {
			return "", fmt.Errorf("secrets: reading keyfile: %w", err)
		}
		return Decrypt(data, src.Password)
	}

	return "", errors.New("secrets: no credential source configured (set Value or File)")
}
