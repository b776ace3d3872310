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
	"errors"
	"fmt"
)

// ErrTimeout is returned when the overall deadline elapses before the
// request/response exchange completes. It is distinct from other transport
// failures so callers can choose to retry
var ErrTimeout = errors.New("request timed out")

// ErrProtocol is returned when the peer sends something that is not a
// well-formed response on what should be a client-only connection
var ErrProtocol = errors.New("protocol violation")

// StatusError is an application-level error response: the remote end
// answered with a non-success status
type StatusError struct {
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf(
		"request did not succeed (%d != 200), path %q",
		e.Status,
		e.Path,
	)
}
