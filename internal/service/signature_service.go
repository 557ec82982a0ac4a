package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// HMACSignatureService implements ports.SignatureService using HMAC-SHA256.
// It verifies acquirer callbacks and signs outbound merchant notifications.
type HMACSignatureService struct{}

// NewHMACSignatureService creates a new HMAC-SHA256 signature service.
func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func (s *HMACSignatureService) Sign(secretKey string, payload string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify accepts a bare hex digest or one prefixed with "sha256=", in any case.
func (s *HMACSignatureService) Verify(secretKey string, payload string, signature string) bool {
	sig := strings.ToLower(strings.TrimSpace(signature))
	sig = strings.TrimPrefix(sig, signaturePrefix)
	return hmac.Equal([]byte(s.Sign(secretKey, payload)), []byte(sig))
}
