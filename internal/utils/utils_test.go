package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"11999999999", "5511999999999"},
		{"1199999999", "551199999999"},
		{"(11) 99999-9999", "5511999999999"},
		{"5511999999999", "5511999999999"},
		{"+55 11 99999-9999", "5511999999999"},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizePhone(c.in), "entrada %q", c.in)
	}
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/img.png"))
	assert.True(t, IsURL("http://example.com"))
	assert.False(t, IsURL("example.com"))
	assert.False(t, IsURL("arquivo.png"))
}

func TestGetMimeFromDataURL(t *testing.T) {
	assert.Equal(t, "image/png", GetMimeFromDataURL("data:image/png;base64,iVBOR"))
	assert.Equal(t, "image/jpeg", GetMimeFromDataURL("data:image/jpeg,raw"))
	assert.Equal(t, "", GetMimeFromDataURL("https://example.com/img.png"))
}

func TestGetExtensionFromMime(t *testing.T) {
	assert.Equal(t, "jpg", GetExtensionFromMime("image/jpeg"))
	assert.Equal(t, "png", GetExtensionFromMime("image/png"))
	assert.Equal(t, "bin", GetExtensionFromMime("application/x-desconhecido"))
}
