package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"sync-server/internal/store"
)

var ErrInvalidSignature = errors.New("invalid signature")

// VerifySignature checks the platform's webhook signature over the raw
// request body. Signing schemes differ per platform:
//
//	facebook  x-hub-signature-256: "sha256=" + hex HMAC-SHA256(body)
//	line      x-line-signature: base64 HMAC-SHA256(body)
//	shopee    authorization: hex HMAC-SHA256(url + "|" + body)
//	tiktok    no signature
//
// An empty secret skips verification for that platform.
func VerifySignature(platform, secret, requestURL string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}

	switch platform {
	case store.PlatformFacebook:
		expected := "sha256=" + hexHMAC(secret, body)
		if !hmac.Equal([]byte(expected), []byte(signature)) {
			return ErrInvalidSignature
		}
	case store.PlatformLine:
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(expected), []byte(signature)) {
			return ErrInvalidSignature
		}
	case store.PlatformShopee:
		base := requestURL + "|" + string(body)
		expected := hexHMAC(secret, []byte(base))
		if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
			return ErrInvalidSignature
		}
	case store.PlatformTikTok:
		// TikTok webhooks carry no signature
	}
	return nil
}

func hexHMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
