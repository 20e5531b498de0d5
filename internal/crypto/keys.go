// keys.go generates RSA key pairs and reads/writes them as PEM and JWK set files.
//
// Used by the keygen and sign commands: keygen creates an issuer key pair and the JWK set to publish,
// sign loads the private key to sign a manifest.
//
// All file access is scoped to a base directory with os.OpenRoot.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
)

// GenerateRSAKeyPair generates a new RSA key pair with the specified bit size
// minimum key size is 2048 bits (4096 is recommended) - key size must be a multiple of 256
func GenerateRSAKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("key size must be at least 2048 bits")
	}

	if bits%256 != 0 {
		return nil, fmt.Errorf("key size should be a multiple of 256")
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	return privateKey, nil
}

// SaveRSAPublicKeySetToFile writes a JWK set containing publicKey, ready to be served as jwks.json.
//
// Parameters:
//   - baseDir: The base directory to scope file access (e.g., "./keys")
//   - filename: The filename within the base directory (e.g., "jwks.json")
func SaveRSAPublicKeySetToFile(publicKey *rsa.PublicKey, keyID, baseDir, filename string) error {
	set, err := NewRSAPublicKeySet([]*rsa.PublicKey{publicKey}, []string{keyID})
	if err != nil {
		return fmt.Errorf("failed to create JWK set: %w", err)
	}

	jsonBytes, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JWK set: %w", err)
	}

	return writeScopedFile(baseDir, filename, jsonBytes, 0644)
}

// SaveRSAPrivateKeyToPEMFile saves an RSA private key to a PEM file in PKCS#8 format
//
// Parameters:
//   - baseDir: The base directory to scope file access (e.g., "./keys")
//   - filename: The filename within the base directory (e.g., "private.pem")
func SaveRSAPrivateKeyToPEMFile(privateKey *rsa.PrivateKey, baseDir, filename string) error {
	privBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})
	return writeScopedFile(baseDir, filename, data, 0600)
}

// SaveRSAPublicKeyToPEMFile saves an RSA public key to a PEM file in SubjectPublicKeyInfo format
func SaveRSAPublicKeyToPEMFile(publicKey *rsa.PublicKey, baseDir, filename string) error {
	pubBytes, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}

	data := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return writeScopedFile(baseDir, filename, data, 0644)
}

// ReadRSAPrivateKeyFromPEMFile loads an RSA private key from a PEM file.
// Both PKCS#8 ("PRIVATE KEY") and PKCS#1 ("RSA PRIVATE KEY") blocks are accepted.
func ReadRSAPrivateKeyFromPEMFile(baseDir, filename string) (*rsa.PrivateKey, error) {
	block, err := readPEMBlock(baseDir, filename)
	if err != nil {
		return nil, err
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, WrapKeyManagementError(err, "failed to parse PKCS#1 private key")
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, WrapKeyManagementError(err, "failed to parse PKCS#8 private key")
		}
		privateKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, NewKeyManagementError("key is not an RSA private key")
		}
		return privateKey, nil
	default:
		return nil, NewKeyManagementError(fmt.Sprintf("PEM block is not a private key (type: %s)", block.Type))
	}
}

// ReadRSAPublicKeyFromPEMFile loads an RSA public key from a PEM file in SubjectPublicKeyInfo format
func ReadRSAPublicKeyFromPEMFile(baseDir, filename string) (*rsa.PublicKey, error) {
	block, err := readPEMBlock(baseDir, filename)
	if err != nil {
		return nil, err
	}

	if block.Type != "PUBLIC KEY" {
		return nil, NewKeyManagementError(fmt.Sprintf("PEM block is not a public key (type: %s)", block.Type))
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, WrapKeyManagementError(err, "failed to parse public key")
	}

	publicKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, NewKeyManagementError("key is not an RSA public key")
	}

	return publicKey, nil
}

func readPEMBlock(baseDir, filename string) (*pem.Block, error) {
	root, err := os.OpenRoot(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open root directory %s: %w", baseDir, err)
	}
	defer root.Close()

	pemData, err := root.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, NewKeyManagementError("failed to decode PEM block")
	}
	return block, nil
}

func writeScopedFile(baseDir, filename string, data []byte, perm os.FileMode) error {
	root, err := os.OpenRoot(baseDir)
	if err != nil {
		return fmt.Errorf("failed to open root directory %s: %w", baseDir, err)
	}
	defer root.Close()

	if err := root.WriteFile(filename, data, perm); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
