package qstash

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSignature = errors.New("qstash signature is missing")
	ErrInvalidSignature = errors.New("qstash signature is invalid")
)

const signatureIssuer = "Upstash"

type signatureClaims struct {
	Body string `json:"body"`
	jwt.RegisteredClaims
}

// VerifiesSignatures reports whether signing keys are configured.
func (c *Client) VerifiesSignatures() bool {
	return c != nil && (c.currentSigningKey != "" || c.nextSigningKey != "")
}

// Verify checks the Upstash-Signature JWT of an inbound delivery against the
// current signing key, then the next one.
func (c *Client) Verify(signature string, body []byte, now time.Time) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}

	var lastErr error
	for _, key := range []string{c.currentSigningKey, c.nextSigningKey} {
		if key == "" {
			continue
		}
		if err := c.verifyWithKey(signature, key, body, now); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no signing key configured", ErrInvalidSignature)
	}
	return lastErr
}

func (c *Client) verifyWithKey(signature, key string, body []byte, now time.Time) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(signatureIssuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if c.receiverURL != "" {
		opts = append(opts, jwt.WithSubject(c.receiverURL))
	}

	var claims signatureClaims
	_, err := jwt.ParseWithClaims(signature, &claims, func(*jwt.Token) (any, error) {
		return []byte(key), nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	sum := sha256.Sum256(body)
	if strings.TrimRight(claims.Body, "=") != base64.RawURLEncoding.EncodeToString(sum[:]) {
		return fmt.Errorf("%w: body hash mismatch", ErrInvalidSignature)
	}
	return nil
}
