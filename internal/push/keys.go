package push

import (
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// GenerateKeyPair returns a fresh VAPID P-256 keypair. The public key is the
// base64url uncompressed point, the private key the base64url scalar.
func GenerateKeyPair() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate vapid keys: %w", err)
	}
	return publicKey, privateKey, nil
}
