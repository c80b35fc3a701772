package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"

	"github.com/agrisetu/platform/internal/config"
)

// KeyPair holds the active RSA signing key pair. The private half never
// leaves the issuer process; the public half is exported as a JWKS document.
type KeyPair struct {
	Private *rsa.PrivateKey
	KeyID   string
}

// JWK is a single RSA public key in JSON Web Key form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is the verification document served at /.well-known/jwks.json.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// Discovery is the OpenID-style discovery document.
type Discovery struct {
	Issuer                           string   `json:"issuer"`
	JWKSURI                          string   `json:"jwks_uri"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
}

// Load resolves the signing key pair from configuration: PEM from env, PEM
// from file, or (DevMode only) a freshly generated 2048-bit key.
func Load(cfg *config.Config) (*KeyPair, error) {
	switch {
	case cfg.PrivateKeyPEM != "":
		return FromPEM([]byte(cfg.PrivateKeyPEM))
	case cfg.PrivateKeyFile != "":
		data, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return FromPEM(data)
	case cfg.DevMode:
		return Generate()
	}
	return nil, fmt.Errorf("no signing key configured")
}

// FromPEM parses a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
func FromPEM(data []byte) (*KeyPair, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	var key *rsa.PrivateKey
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		key = k
	} else {
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
		key = rsaKey
	}

	return newKeyPair(key)
}

// Generate creates an ephemeral 2048-bit key pair (dev mode only; tokens do
// not survive a restart because the kid changes with the key).
func Generate() (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}
	return newKeyPair(key)
}

func newKeyPair(key *rsa.PrivateKey) (*KeyPair, error) {
	kid, err := computeKeyID(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: key, KeyID: kid}, nil
}

// computeKeyID derives a stable key identifier from the DER encoding of the
// public key: first 16 hex characters of its SHA-256 digest.
func computeKeyID(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])[:16], nil
}

// JWKS returns the verification document for the pair's public half.
func (kp *KeyPair) JWKS() JWKS {
	pub := &kp.Private.PublicKey
	return JWKS{
		Keys: []JWK{
			{
				Kty: "RSA",
				Use: "sig",
				Alg: "RS256",
				Kid: kp.KeyID,
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
}

// NewDiscovery builds the discovery document for the given issuer and the
// externally visible base URL of the auth service.
func NewDiscovery(issuer, baseURL string) Discovery {
	return Discovery{
		Issuer:                           issuer,
		JWKSURI:                          baseURL + "/.well-known/jwks.json",
		TokenEndpoint:                    baseURL + "/auth/login",
		ResponseTypesSupported:           []string{"token"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
	}
}

// ParseJWK reconstructs an *rsa.PublicKey from base64url modulus and exponent.
func ParseJWK(k JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode RSA exponent: %w", err)
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}
