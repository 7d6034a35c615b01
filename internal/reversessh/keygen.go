package reversessh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"

	gossh "golang.org/x/crypto/ssh"
)

// GenerateKeyPair creates a new ed25519 SSH key pair for use as the
// KeyPath credential in a Config. Returns the private key in OpenSSH PEM
// format and the public key in authorized_keys format. Key generation
// itself is explicitly out of the tunnel runtime's scope (spec.md §1) —
// this is the "external tool" callers reach for, not something Run uses.
func GenerateKeyPair() (privateKeyPEM []byte, publicKeyAuthorized []byte, err error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	pemBlock, err := gossh.MarshalPrivateKey(privKey, "")
	if err != nil {
		return nil, nil, err
	}

	sshPub, err := gossh.NewPublicKey(pubKey)
	if err != nil {
		return nil, nil, err
	}

	return pem.EncodeToMemory(pemBlock), gossh.MarshalAuthorizedKey(sshPub), nil
}
