package api

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHelloRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		kind    decodeKind
		message *string
	}{
		{name: "message", body: `{"message":"Hi"}`, kind: decodePresent, message: ptr("Hi")},
		{name: "unicode message", body: `{"message":"héllo wörld ✓"}`, kind: decodePresent, message: ptr("héllo wörld ✓")},
		{name: "unknown fields ignored", body: `{"message":"x","other":1}`, kind: decodePresent, message: ptr("x")},
		{name: "empty string", body: `{"message":""}`, kind: decodeEmpty, message: ptr("")},
		{name: "null message", body: `{"message":null}`, kind: decodeEmpty},
		{name: "missing message", body: `{}`, kind: decodeEmpty},
		{name: "json null", body: `null`, kind: decodeEmpty},
		{name: "empty body", body: ``, kind: decodeFailed},
		{name: "malformed", body: `{"message":`, kind: decodeFailed},
		{name: "not json", body: `hello`, kind: decodeFailed},
		{name: "non-string message", body: `{"message":42}`, kind: decodeFailed},
		{name: "array", body: `["Hi"]`, kind: decodeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeHelloRequest([]byte(tt.body))
			assert.Equal(t, tt.kind, got.kind, "kind %s", got.kind)
			assert.Equal(t, tt.message, got.message)
			if tt.kind == decodeFailed {
				assert.Error(t, got.err)
			} else {
				assert.NoError(t, got.err)
			}
		})
	}
}

func TestReadBody(t *testing.T) {
	body, err := readBody(strings.NewReader("abc"), 3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(body))

	body, err = readBody(strings.NewReader("abcd"), 3)
	assert.Error(t, err)
	assert.Len(t, body, 3)

	_, err = readBody(iotest.ErrReader(errors.New("connection reset")), 3)
	assert.ErrorContains(t, err, "connection reset")
}

func TestDecodeKind_String(t *testing.T) {
	assert.Equal(t, "present", decodePresent.String())
	assert.Equal(t, "failed", decodeFailed.String())
	assert.Equal(t, "decodeKind(9)", decodeKind(9).String())
}

func ptr(s string) *string { return &s }
