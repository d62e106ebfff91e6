package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// Encrypted artifacts start with this magic header, followed by the GCM nonce
// and the ciphertext.
const encMagic = "STATEVAULT_ENCRYPTED_V1\n"

const (
	encSalt       = "statevault-backup-kdf-v1"
	encIterations = 4096
)

// deriveKey stretches the configured secret into a 32-byte AES-256 key.
func deriveKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), []byte(encSalt), encIterations, 32, sha256.New)
}

// EncryptFile encrypts inputPath to outputPath with AES-256-GCM.
func EncryptFile(inputPath, outputPath, secret string) error {
	plaintext, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to create nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	output := append([]byte(encMagic), ciphertext...)

	if err := os.WriteFile(outputPath, output, 0o600); err != nil {
		return fmt.Errorf("failed to write encrypted file: %w", err)
	}
	return nil
}

// DecryptFile decrypts a file produced by EncryptFile.
func DecryptFile(inputPath, outputPath, secret string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read encrypted file: %w", err)
	}

	if len(data) < len(encMagic) || string(data[:len(encMagic)]) != encMagic {
		return fmt.Errorf("invalid encrypted file format")
	}
	ciphertext := data[len(encMagic):]

	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("decryption failed: %w", err)
	}

	if err := os.WriteFile(outputPath, plaintext, 0o600); err != nil {
		return fmt.Errorf("failed to write decrypted file: %w", err)
	}
	return nil
}

// IsEncryptedFile reports whether path starts with the encryption magic.
func IsEncryptedFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, len(encMagic))
	n, err := io.ReadFull(f, header)
	if err != nil || n < len(encMagic) {
		return false
	}
	return string(header) == encMagic
}
