package analysis

import (
	"encoding/base64"
	"regexp"
	"strings"
)

var dataURIPrefix = regexp.MustCompile(`^data:image/(jpeg|jpg|png|webp|heic|heif);base64,`)

// ValidateBase64Image reports whether s is a base64 data URI of a supported image type.
func ValidateBase64Image(s string) bool {
	return dataURIPrefix.MatchString(s)
}

// DecodeDataURI returns the MIME type and decoded bytes of a base64 image data URI.
func DecodeDataURI(s string) (string, []byte, error) {
	m := dataURIPrefix.FindStringSubmatch(s)
	if m == nil {
		return "", nil, ErrInvalidImage
	}
	mimeType := "image/" + m[1]
	if m[1] == "jpg" {
		mimeType = "image/jpeg"
	}

	payload := strings.TrimSpace(s[len(m[0]):])
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return "", nil, ErrInvalidImage
		}
	}
	if len(data) == 0 {
		return "", nil, ErrInvalidImage
	}
	return mimeType, data, nil
}
