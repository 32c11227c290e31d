// Copyright 2025 AUTHORS
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

package mcpbroker

import (
	"log"
	"net"
	"net/http"
)

// httpListener pairs a raw net.Listener with the *http.Server serving it,
// so Stop can close both without waiting for in-flight requests to drain.
type httpListener struct {
	ln  net.Listener
	srv *http.Server
}

func newHTTPListener(srv *http.Server) (*httpListener, error) {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, err
	}
	hl := &httpListener{ln: ln, srv: srv}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("mcpbroker: listener on %s stopped: %v", srv.Addr, err)
		}
	}()
	return hl, nil
}

func (h *httpListener) Close() error {
	return h.srv.Close()
}
