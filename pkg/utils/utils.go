package utils

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
)

func JSONEncode(v any) (string, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func JSONEncodeString(v any) string {
	s, err := JSONEncode(v)
	if err != nil {
		panic(fmt.Errorf("unable to encode type %T to string: %w", v, err))
	}
	return s
}

func IsContentType(header http.Header, contentType string) bool {
	headerContentType := header.Get("Content-Type")
	for i, c := range headerContentType {
		if c == ' ' || c == ';' {
			headerContentType = headerContentType[:i]
			break
		}
	}
	return headerContentType == contentType
}

// GenerateID generates a random ID with the given prefix.
// Format: prefix_<12 random hex characters>
func GenerateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "_" + hex.EncodeToString(b)
}
