// Copyright 2025 OpenStacks Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Request is one outbound request message
type Request struct {
	Method  string
	Path    string
	Host    string
	Headers http.Header
	Body    []byte
}

// NewRequest builds a request message. The path is normalized to carry a
// single leading slash
func NewRequest(method string, host string, path string, body []byte) *Request {
	return &Request{
		Method:  method,
		Path:    "/" + strings.TrimLeft(path, "/"),
		Host:    host,
		Headers: make(http.Header),
		Body:    body,
	}
}

// Response is one decoded inbound response message
type Response struct {
	// Path is the request path this response answers, filled in by the
	// request handle the response was matched to
	Path    string
	Status  int
	Headers http.Header
	Body    []byte
}

// Codec encodes outbound requests and decodes inbound responses on a
// client-only connection
type Codec interface {
	EncodeRequest(req *Request) ([]byte, error)
	// DecodeResponse attempts to decode one complete response from the
	// front of data. It returns the number of bytes consumed, or zero when
	// more data is needed. eof marks that the peer has closed its write
	// side and no further bytes will arrive
	DecodeResponse(data []byte, eof bool) (*Response, int, error)
}

// HTTPCodec speaks HTTP/1.1 request and response messages. The preamble and
// body framing (content-length and chunked encoding) are handled by the
// net/http wire readers and writers
type HTTPCodec struct{}

// EncodeRequest serializes the request preamble and body
func (HTTPCodec) EncodeRequest(req *Request) ([]byte, error) {
	httpReq, err := http.NewRequest(
		req.Method,
		"http://"+req.Host+req.Path,
		bytes.NewReader(req.Body),
	)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	for key, vals := range req.Headers {
		for _, val := range vals {
			httpReq.Header.Add(key, val)
		}
	}
	httpReq.ContentLength = int64(len(req.Body))
	var buf bytes.Buffer
	if err := httpReq.Write(&buf); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeResponse decodes one response message. A truncated preamble or body
// is reported as incomplete (zero consumed, nil error) unless eof is set, in
// which case it is a protocol violation. Bodies without explicit framing are
// delimited by connection close and only decode once eof is set
func (HTTPCodec) DecodeResponse(data []byte, eof bool) (*Response, int, error) {
	raw := bytes.NewReader(data)
	br := bufio.NewReader(raw)
	httpResp, err := http.ReadResponse(br, nil)
	if err != nil {
		if isTruncated(err) && !eof {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("%w: %s", ErrProtocol, err.Error())
	}
	if httpResp.ContentLength < 0 &&
		!httpResp.Uncompressed &&
		httpResp.TransferEncoding == nil &&
		!eof {
		// Body runs until the peer closes the connection
		return nil, 0, nil
	}
	body, err := io.ReadAll(httpResp.Body)
	httpResp.Body.Close()
	if err != nil {
		if isTruncated(err) && !eof {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("%w: %s", ErrProtocol, err.Error())
	}
	consumed := len(data) - br.Buffered() - raw.Len()
	return &Response{
		Status:  httpResp.StatusCode,
		Headers: httpResp.Header,
		Body:    body,
	}, consumed, nil
}

func isTruncated(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
