package signing

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
)

func detachedSign(entity *openpgp.Entity, r io.Reader, armored bool) ([]byte, error) {
	var sig bytes.Buffer
	var err error
	if armored {
		err = openpgp.ArmoredDetachSign(&sig, entity, r, nil)
	} else {
		err = openpgp.DetachSign(&sig, entity, r, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: detached signature: %v", apperrors.ErrSigning, err)
	}
	return sig.Bytes(), nil
}

// VerifyDetached checks a detached signature over data against an armored
// public key, such as the pubkey.asc published with every proof bundle.
func VerifyDetached(publicKey []byte, data io.Reader, signature []byte, armored bool) error {
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(publicKey))
	if err != nil {
		return fmt.Errorf("%w: read public key: %v", apperrors.ErrVerification, err)
	}

	if armored {
		_, err = openpgp.CheckArmoredDetachedSignature(keyring, data, bytes.NewReader(signature), nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(keyring, data, bytes.NewReader(signature), nil)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrVerification, err)
	}
	return nil
}

// KeyVerifier verifies signatures against a fixed armored public key.
type KeyVerifier struct {
	PublicKey []byte
}

// Verify implements Verifier.
func (k KeyVerifier) Verify(data io.Reader, signature []byte, armored bool) error {
	return VerifyDetached(k.PublicKey, data, signature, armored)
}
