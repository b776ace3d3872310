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

package rpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/openstacks-io/herald/chain"
	"github.com/openstacks-io/herald/transport"
)

// RequestTenure fetches one tenure stream response from a remote node,
// starting at the given block, and decodes the raw concatenated block
// records into the ordered block list (child to ancestor). A stream cut
// short by the remote byte budget decodes fine; the caller resumes from the
// last block's parent tenure position by issuing another request
func RequestTenure(
	ctx context.Context,
	host string,
	port uint16,
	startBlockId chain.BlockId,
	timeout time.Duration,
) ([]chain.Block, error) {
	endpoint := net.JoinHostPort(host, strconv.Itoa(int(port)))
	req := transport.NewRequest(
		http.MethodGet,
		endpoint,
		"/v3/tenures/"+startBlockId.String(),
		nil,
	)
	req.Headers.Set("Connection", "close")
	resp, err := transport.SendRequest(ctx, host, port, req, timeout)
	if err != nil {
		return nil, err
	}
	blocks, err := chain.DecodeBlocks(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode tenure response: %w", err)
	}
	return blocks, nil
}
