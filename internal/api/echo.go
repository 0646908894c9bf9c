package api

import (
	"encoding/json"
	"fmt"
	"io"
)

// maxBodyBytes caps the /hellojson payload.
const maxBodyBytes = 1 << 20

// HelloRequest is the /hellojson request body.
type HelloRequest struct {
	Message *string `json:"message"`
}

// EchoResponse is the /hellojson response body. Echo is null when no message
// could be read.
type EchoResponse struct {
	Echo *string `json:"Echo"`
}

type decodeKind int

const (
	// decodePresent: a non-empty message was decoded.
	decodePresent decodeKind = iota
	// decodeEmpty: valid JSON without a message, or with null or "".
	decodeEmpty
	// decodeFailed: the body could not be read or is not a valid request.
	decodeFailed
)

func (k decodeKind) String() string {
	switch k {
	case decodePresent:
		return "present"
	case decodeEmpty:
		return "empty"
	case decodeFailed:
		return "failed"
	}
	return fmt.Sprintf("decodeKind(%d)", int(k))
}

// decodeResult is the outcome of reading a HelloRequest. message is only set
// for decodePresent and decodeEmpty; err only for decodeFailed.
type decodeResult struct {
	kind    decodeKind
	message *string
	err     error
}

// readBody reads at most limit bytes from r. A longer body is an error.
func readBody(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return body, fmt.Errorf("read request body: %w", err)
	}
	if int64(len(body)) > limit {
		return body[:limit], fmt.Errorf("request body exceeds %d bytes", limit)
	}
	return body, nil
}

// decodeHelloRequest parses body as a HelloRequest.
//
// An empty body is a failure, a JSON null or an object without a message is
// empty. Unknown fields are ignored.
func decodeHelloRequest(body []byte) decodeResult {
	var req *HelloRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return decodeResult{kind: decodeFailed, err: fmt.Errorf("decode hello request: %w", err)}
	}
	if req == nil || req.Message == nil || *req.Message == "" {
		var msg *string
		if req != nil {
			msg = req.Message
		}
		return decodeResult{kind: decodeEmpty, message: msg}
	}
	return decodeResult{kind: decodePresent, message: req.Message}
}
