package mailparse

import (
	"encoding/base64"
	"strings"
)

var urlAlphabet = strings.NewReplacer("-", "+", "_", "/")

// DecodeBytes decodes Gmail body data (base64url, padding optional) into raw
// bytes. ok is false for empty or malformed input.
func DecodeBytes(data string) (b []byte, ok bool) {
	if data == "" {
		return nil, false
	}

	std := strings.TrimRight(urlAlphabet.Replace(data), "=")
	b, err := base64.RawStdEncoding.DecodeString(std)
	if err != nil {
		return nil, false
	}
	return b, true
}

// Decode decodes Gmail body data into a UTF-8 string. Malformed input yields
// an empty string; invalid UTF-8 sequences are replaced with U+FFFD.
func Decode(data string) string {
	b, ok := DecodeBytes(data)
	if !ok {
		return ""
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// toStdBase64 re-encodes Gmail base64url data in the standard alphabet with
// padding, as required inside a data URI.
func toStdBase64(data string) (string, bool) {
	b, ok := DecodeBytes(data)
	if !ok {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(b), true
}
