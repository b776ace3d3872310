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
	"bytes"
	"fmt"
	"io"
	"sort"
)

// recvBufferSize is the chunk size for socket reads into the inbound buffer
const recvBufferSize = 65536

// RequestHandle tracks one in-flight request on a connection: the serialized
// request bytes not yet handed to the connection's outbox, and the decoded
// response once the connection matches one to this handle
type RequestHandle struct {
	conn     *Conn
	seq      uint32
	path     string
	outbox   bytes.Buffer
	response *Response
	sent     bool
}

// SendRequest serializes the request into the handle's outbox. A handle
// carries at most one request
func (h *RequestHandle) SendRequest(req *Request) error {
	if h.sent {
		return fmt.Errorf("request handle %d already used", h.seq)
	}
	data, err := h.conn.codec.EncodeRequest(req)
	if err != nil {
		return err
	}
	h.path = req.Path
	h.outbox.Write(data)
	h.sent = true
	return nil
}

// TryFlush moves any pending request bytes into the connection's outbox.
// Returns true once the handle has nothing left to flush
func (h *RequestHandle) TryFlush() (bool, error) {
	if !h.sent {
		return false, fmt.Errorf("request handle %d has no request", h.seq)
	}
	if h.outbox.Len() > 0 {
		if _, err := io.Copy(&h.conn.outbox, &h.outbox); err != nil {
			return false, err
		}
	}
	return h.outbox.Len() == 0, nil
}

// TryRecv returns the response matched to this handle, if one has arrived
func (h *RequestHandle) TryRecv() (*Response, bool) {
	if h.response == nil {
		return nil, false
	}
	return h.response, true
}

// Conn is a non-blocking client protocol engine over an abstract byte
// stream. Callers own the socket: they pump bytes out of the outbox with
// SendData, pump bytes off the wire with RecvData, and match decoded
// responses to request handles with DrainInbox. Nothing here ever blocks
type Conn struct {
	codec      Codec
	outbox     bytes.Buffer
	inbuf      bytes.Buffer
	inbox      []*Response
	handles    map[uint32]*RequestHandle
	peerClosed bool
}

// NewConn creates a connection engine using the given codec
func NewConn(codec Codec) *Conn {
	return &Conn{
		codec:   codec,
		handles: make(map[uint32]*RequestHandle),
	}
}

// MakeRequestHandle registers a new request slot under the given sequence
// number. Responses are matched to outstanding handles in sequence order
func (c *Conn) MakeRequestHandle(seq uint32) (*RequestHandle, error) {
	if _, ok := c.handles[seq]; ok {
		return nil, fmt.Errorf("request handle %d already exists", seq)
	}
	handle := &RequestHandle{
		conn: c,
		seq:  seq,
	}
	c.handles[seq] = handle
	return handle, nil
}

// SendData writes buffered outbound bytes to the given writer and returns
// the number of bytes written. Zero with a full flush means the caller has
// nothing more to send
func (c *Conn) SendData(w io.Writer) (int, error) {
	if c.outbox.Len() == 0 {
		return 0, nil
	}
	n, err := w.Write(c.outbox.Next(c.outbox.Len()))
	if err != nil {
		return n, err
	}
	return n, nil
}

// RecvData reads available bytes from the given reader into the inbound
// buffer and decodes any complete responses. EOF marks the peer's write side
// closed; buffered bytes are still decoded. Returns the number of bytes read
func (c *Conn) RecvData(r io.Reader) (int, error) {
	buf := make([]byte, recvBufferSize)
	n, err := r.Read(buf)
	if n > 0 {
		c.inbuf.Write(buf[:n])
	}
	if err == io.EOF {
		c.peerClosed = true
		err = nil
	}
	if decodeErr := c.decode(); decodeErr != nil {
		return n, decodeErr
	}
	return n, err
}

// decode pulls as many complete responses as possible off the inbound buffer
func (c *Conn) decode() error {
	for c.inbuf.Len() > 0 {
		resp, consumed, err := c.codec.DecodeResponse(
			c.inbuf.Bytes(),
			c.peerClosed,
		)
		if err != nil {
			return err
		}
		if resp == nil {
			// Incomplete message, wait for more data
			return nil
		}
		c.inbuf.Next(consumed)
		c.inbox = append(c.inbox, resp)
	}
	return nil
}

// DrainInbox matches decoded responses to outstanding request handles in
// sequence order and returns the number of responses delivered
func (c *Conn) DrainInbox() int {
	if len(c.inbox) == 0 {
		return 0
	}
	var pending []uint32
	for seq, handle := range c.handles {
		if handle.sent && handle.response == nil {
			pending = append(pending, seq)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i] < pending[j]
	})
	delivered := 0
	for _, seq := range pending {
		if len(c.inbox) == 0 {
			break
		}
		resp := c.inbox[0]
		c.inbox = c.inbox[1:]
		resp.Path = c.handles[seq].path
		c.handles[seq].response = resp
		delivered++
	}
	return delivered
}

// PeerClosed reports whether the remote end has closed its write side
func (c *Conn) PeerClosed() bool {
	return c.peerClosed
}
