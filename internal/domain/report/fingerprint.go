package report

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// DecodeContent decodes a base64 upload that may carry a data URL prefix
// ("data:application/pdf;base64,..."). Whitespace and missing padding are
// tolerated, as is the URL-safe alphabet. It returns nil for empty or
// undecodable input.
func DecodeContent(payload string) []byte {
	raw := strings.TrimSpace(payload)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(strings.ToLower(raw), "data:") {
		if i := strings.IndexByte(raw, ','); i >= 0 {
			raw = raw[i+1:]
		}
	}
	raw = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, raw)
	raw = strings.TrimRight(raw, "=")
	if raw == "" {
		return nil
	}

	enc := base64.RawStdEncoding
	if strings.ContainsAny(raw, "-_") {
		enc = base64.RawURLEncoding
	}
	out, err := enc.DecodeString(raw)
	if err != nil {
		return nil
	}
	return out
}

// MD5Hex returns the lowercase hex MD5 of b, matching Postgres md5().
func MD5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// ContentFingerprint hashes the decoded upload bytes. Nil means the payload
// could not be decoded.
func ContentFingerprint(payload string) *string {
	decoded := DecodeContent(payload)
	if decoded == nil {
		return nil
	}
	fp := MD5Hex(decoded)
	return &fp
}

// TextFingerprint hashes extracted text as UTF-8.
func TextFingerprint(text string) string {
	return MD5Hex([]byte(text))
}
