// Package secret cifra segredos curtos (como a senha do certificado A1) antes de persistir.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfo = "erp-veterinaria/certificate-password"

var (
	// ErrEmptyKey ocorre quando a chave mestra não foi configurada
	ErrEmptyKey = errors.New("chave de cifragem não configurada")

	// ErrMalformed ocorre quando o valor selado está corrompido ou foi cifrado com outra chave
	ErrMalformed = errors.New("segredo selado inválido")
)

// Box sela valores com XChaCha20-Poly1305 usando uma chave derivada via HKDF-SHA256
type Box struct {
	key []byte
}

// NewBox deriva a chave de cifragem a partir da chave mestra
func NewBox(master string) (*Box, error) {
	if master == "" {
		return nil, ErrEmptyKey
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(master), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("falha ao derivar chave: %w", err)
	}

	return &Box{key: key}, nil
}

// Seal cifra o texto e retorna nonce||ciphertext em base64
func (b *Box) Seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("falha ao gerar nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decifra um valor produzido por Seal
func (b *Box) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrMalformed
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrMalformed
	}
	return string(plaintext), nil
}
