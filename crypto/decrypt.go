package crypto

// OpenGCM decrypts ciphertext‖tag produced by SealGCM.
//
// A failed tag check is reported as ErrAuthenticationFailed and must not be
// retried against the same data.
func OpenGCM(ciphertext []byte, key [KeySize]byte, nonce []byte) ([]byte, error) {
	if len(ciphertext) < GCMTagSize {
		return nil, ErrAuthenticationFailed
	}

	aead, err := newGCM(key, nonce)
	if err != nil {
		NewLogger("OpenGCM").WithError(err, "new_gcm").Warn("Cannot set up AES-GCM")
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		NewLogger("OpenGCM").
			WithField("ciphertext_size", len(ciphertext)).
			Debug("AES-GCM tag check failed")
		return nil, ErrAuthenticationFailed
	}

	return plaintext, nil
}

// DecryptGCM decrypts nonce‖ciphertext‖tag produced by EncryptGCM.
func DecryptGCM(data []byte, key [KeySize]byte) ([]byte, error) {
	if len(data) < GCMNonceSize+GCMTagSize {
		return nil, ErrAuthenticationFailed
	}

	return OpenGCM(data[GCMNonceSize:], key, data[:GCMNonceSize])
}
