package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBase64Image(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"data:image/jpeg;base64,/9j/4AAQSkZJRg==", true},
		{"data:image/png;base64,iVBORw0KGgo=", true},
		{"data:image/jpg;base64,/9j/", true},
		{"data:image/webp;base64,UklGRg==", true},
		{"/9j/4AAQSkZJRg==", false},
		{"data:image/bmp;base64,Qk1==", false},
		{"data:text/plain;base64,aGVsbG8=", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidateBase64Image(tt.in), tt.in)
	}
}

func TestDecodeDataURI(t *testing.T) {
	mimeType, data, err := DecodeDataURI("data:image/jpg;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mimeType)
	assert.Equal(t, []byte("hello"), data)

	mimeType, data, err = DecodeDataURI("data:image/png;base64,aGVsbG8")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, []byte("hello"), data)

	_, _, err = DecodeDataURI("data:image/png;base64,!!!")
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, _, err = DecodeDataURI("data:image/png;base64,")
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, _, err = DecodeDataURI("aGVsbG8=")
	assert.ErrorIs(t, err, ErrInvalidImage)
}
