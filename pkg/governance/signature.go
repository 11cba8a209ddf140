package governance

import (
	"crypto/ed25519"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// SignDecision signs the given claims with an ed25519 private key,
// returning a compact EdDSA JWT. Used to produce ApprovalDecision.Signature
// and ActionRequest.Signature so a verifier only needs the signer's public
// key, not a shared secret, following the identity.KeySet/TokenManager
// idiom the kernel lineage uses for signed claims elsewhere.
func SignDecision(priv ed25519.PrivateKey, claims jwt.MapClaims) ([]byte, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(priv)
	if err != nil {
		return nil, fmt.Errorf("sign decision: %w", err)
	}
	return []byte(signed), nil
}

// VerifyDecisionSignature verifies a compact EdDSA JWT signature against a
// public key and returns the embedded claims. It rejects any token not
// signed with EdDSA, regardless of what its header claims.
func VerifyDecisionSignature(pub ed25519.PublicKey, signature []byte) (jwt.MapClaims, error) {
	if len(signature) == 0 {
		return nil, fmt.Errorf("verify decision signature: empty signature")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(string(signature), claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify decision signature: %w", err)
	}
	return claims, nil
}
