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
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// SendRequest synchronously performs one request/response exchange against
// host:port. It resolves the host, tries each address until one connects
// within the timeout, and then drives the non-blocking connection engine
// under a single wall-clock deadline covering connect, send, and receive.
// A deadline overrun anywhere returns ErrTimeout
func SendRequest(
	ctx context.Context,
	host string,
	port uint16,
	req *Request,
	timeout time.Duration,
) (*Response, error) {
	deadline := time.Now().Add(timeout)
	sock, err := dialFirst(ctx, host, port, timeout)
	if err != nil {
		return nil, err
	}
	defer sock.Close()
	if tcpSock, ok := sock.(*net.TCPConn); ok {
		if err := tcpSock.SetNoDelay(true); err != nil {
			return nil, fmt.Errorf("set TCP_NODELAY: %w", err)
		}
	}
	if err := sock.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set socket deadline: %w", err)
	}
	conn := NewConn(HTTPCodec{})
	handle, err := conn.MakeRequestHandle(0)
	if err != nil {
		return nil, err
	}
	if err := handle.SendRequest(req); err != nil {
		return nil, err
	}
	// Push the request out
	for {
		flushed, err := handle.TryFlush()
		if err != nil {
			return nil, err
		}
		n, err := conn.SendData(sock)
		if err != nil {
			return nil, mapNetErr(err, "send")
		}
		if flushed && n == 0 {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
	}
	// Pull the response in
	for {
		if _, err := conn.RecvData(sock); err != nil {
			return nil, mapNetErr(err, "recv")
		}
		conn.DrainInbox()
		if resp, ok := handle.TryRecv(); ok {
			return classify(resp)
		}
		if conn.PeerClosed() {
			return nil, fmt.Errorf(
				"%w: connection closed before response",
				ErrProtocol,
			)
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
	}
}

// dialFirst resolves host and connects to the first address that accepts
// within the timeout
func dialFirst(
	ctx context.Context,
	host string,
	port uint16,
	timeout time.Duration,
) (net.Conn, error) {
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	portStr := strconv.Itoa(int(port))
	var lastErr error
	for _, addr := range addrs {
		dialer := net.Dialer{Timeout: timeout}
		sock, err := dialer.DialContext(
			ctx,
			"tcp",
			net.JoinHostPort(addr, portStr),
		)
		if err != nil {
			lastErr = err
			continue
		}
		return sock, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no addresses for %s", host)
	}
	return nil, mapNetErr(lastErr, "connect")
}

// classify turns a decoded response into the driver's result: error statuses
// become a StatusError, everything else is handed to the caller
func classify(resp *Response) (*Response, error) {
	if resp.Status >= 400 {
		return nil, &StatusError{
			Path:   resp.Path,
			Status: resp.Status,
		}
	}
	return resp, nil
}

// mapNetErr collapses network-level timeouts into ErrTimeout and wraps
// everything else with the failing operation
func mapNetErr(err error, op string) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return fmt.Errorf("%s: %w", op, err)
}
