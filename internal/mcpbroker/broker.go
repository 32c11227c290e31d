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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dcsandbox/dcsandbox/internal/errs"
	"github.com/dcsandbox/dcsandbox/internal/record"
	"github.com/dcsandbox/dcsandbox/internal/runtime"
	"github.com/dcsandbox/dcsandbox/pkg/websocketutil"
)

// PortRange bounds the MCP port allocator (spec §4.2, configurable via
// internal/config's mcp.portRange).
type PortRange struct {
	Lo, Hi int
}

// DefaultPortRange is spec §4.2's default [50000, 60000].
var DefaultPortRange = PortRange{Lo: 50000, Hi: 60000}

// Broker owns the port allocator and the set of running per-sandbox
// listeners. One Broker serves the whole process; the Lifecycle Engine
// holds a single instance.
type Broker struct {
	driver    runtime.Driver
	dockerBin string
	rng       PortRange

	mu        sync.Mutex
	allocated map[int]string // port -> sandboxId
	nextScan  int
	sandboxes map[string]*sandboxSession
}

type sandboxSession struct {
	sandboxID   string
	containerID string
	port        int
	listener    interface{ Close() error }
	children    map[string]*capabilityChild
}

// New constructs a Broker bound to driver for executing built-in tools,
// using dockerBin (looked up once, e.g. via exec.LookPath("docker")) to
// spawn capability-server children.
func New(driver runtime.Driver, dockerBin string, rng PortRange) *Broker {
	return &Broker{
		driver:    driver,
		dockerBin: dockerBin,
		rng:       rng,
		allocated: make(map[int]string),
		sandboxes: make(map[string]*sandboxSession),
	}
}

// AllocatePort reserves the next free port in the configured range for
// sandboxID (spec §4.2). Linear scan over a process-wide set: O(range)
// worst case, amortized O(1) for typical occupancy.
func (b *Broker) AllocatePort(sandboxID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	span := b.rng.Hi - b.rng.Lo + 1
	for i := 0; i < span; i++ {
		p := b.rng.Lo + (b.nextScan+i)%span
		if _, taken := b.allocated[p]; !taken {
			b.allocated[p] = sandboxID
			b.nextScan = (b.nextScan + i + 1) % span
			return p, nil
		}
	}
	return 0, errs.New(errs.CodePortExhausted, "MCP port range [%d, %d] exhausted", b.rng.Lo, b.rng.Hi)
}

// ReleasePort frees port back to the pool.
func (b *Broker) ReleasePort(port int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.allocated, port)
}

// Start spawns the capability servers and begins accepting WebSocket
// connections for sandboxID on port (spec §4.2).
func (b *Broker) Start(ctx context.Context, sandboxID, containerID string, port int, specs []record.CapabilityServerSpec) error {
	b.mu.Lock()
	if _, exists := b.sandboxes[sandboxID]; exists {
		b.mu.Unlock()
		return errs.New(errs.CodeInvalidState, "MCP broker already running for sandbox %s", sandboxID)
	}
	sess := &sandboxSession{sandboxID: sandboxID, containerID: containerID, port: port, children: make(map[string]*capabilityChild)}
	b.sandboxes[sandboxID] = sess
	b.mu.Unlock()

	for _, spec := range specs {
		if !spec.Enabled {
			continue
		}
		child, err := startCapabilityChild(ctx, b.dockerBin, containerID, spec)
		if err != nil {
			log.Printf("mcpbroker: failed to start capability server %q for %s: %v", spec.Name, sandboxID, err)
			continue
		}
		sess.children[spec.Name] = child
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", b.handleWS(sess))
	srv := &http.Server{Addr: fmt.Sprintf("localhost:%d", port), Handler: mux}
	listener, err := newHTTPListener(srv)
	if err != nil {
		return errs.New(errs.CodeRuntime, "start MCP listener on port %d: %v", port, err)
	}
	sess.listener = listener
	return nil
}

// Stop closes sandboxID's WS listener, terminates its capability-server
// children, and releases its port.
func (b *Broker) Stop(sandboxID string) {
	b.mu.Lock()
	sess, ok := b.sandboxes[sandboxID]
	if ok {
		delete(b.sandboxes, sandboxID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	if sess.listener != nil {
		sess.listener.Close()
	}
	var wg sync.WaitGroup
	for _, child := range sess.children {
		wg.Add(1)
		go func(c *capabilityChild) {
			defer wg.Done()
			c.stop()
		}(child)
	}
	wg.Wait()
	b.ReleasePort(sess.port)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (b *Broker) handleWS(sess *sandboxSession) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("mcpbroker: upgrade failed for %s: %v", sess.sandboxID, err)
			return
		}
		rw := websocketutil.NewConnReadWriteCloser(r.Context(), conn)
		defer rw.Close()

		b.sendInitializedNotification(rw)
		b.serveConn(r.Context(), sess, conn)
	}
}

func (b *Broker) sendInitializedNotification(rw *websocketutil.ConnReadWriter) {
	n := Notification{JSONRPC: jsonrpcVersion, Method: "initialized", Params: initializedPayload()}
	bs, err := json.Marshal(n)
	if err != nil {
		return
	}
	rw.Write(bs)
}

// serveConn reads JSON-RPC messages directly off conn (bypassing
// websocketutil's buffered Read so message boundaries — one WS text frame
// per JSON-RPC message — are preserved exactly).
func (b *Broker) serveConn(ctx context.Context, sess *sandboxSession, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		resp := b.handleMessage(ctx, sess, data)
		if resp == nil {
			continue
		}
		bs, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, bs); err != nil {
			return
		}
	}
}

// handleMessage decodes one frame and dispatches it, returning nil only
// when the frame is itself malformed AND unrepresentable (never happens in
// practice: parse errors still get a Response with id=null per spec §4.2).
func (b *Broker) handleMessage(ctx context.Context, sess *sandboxSession, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		resp := newError(nil, CodeParseError, "parse error")
		return &resp
	}

	switch req.Method {
	case "initialize":
		resp := newResult(req.ID, initializedPayload())
		return &resp
	case "tools/list":
		resp := newResult(req.ID, map[string]interface{}{"tools": BuiltinTools})
		return &resp
	case "tools/call":
		result, err := b.dispatchTool(ctx, sess.containerID, req.Params)
		if err != nil {
			if errors.Is(err, errUnknownTool) {
				resp := newError(req.ID, CodeMethodNotFound, err.Error())
				return &resp
			}
			resp := newError(req.ID, CodeInternalError, err.Error())
			return &resp
		}
		resp := newResult(req.ID, result)
		return &resp
	case "resources/list":
		resp := newResult(req.ID, map[string]interface{}{
			"resources": []map[string]string{{"uri": "file:///workspace"}},
		})
		return &resp
	case "resources/read":
		var params struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp := newError(req.ID, CodeInternalError, "invalid resources/read params")
			return &resp
		}
		// safeWorkspacePath (tools.go) already prepends "/workspace" to
		// whatever path it's given, so strip that segment here too or a
		// "file:///workspace/a.txt" URI resolves to
		// "/workspace/workspace/a.txt" inside the container.
		p := strings.TrimPrefix(params.URI, "file:///workspace")
		readParams, _ := json.Marshal(map[string]string{"path": p})
		result, err := b.dispatchTool(ctx, sess.containerID, mustWrapToolCall("filesystem_read", readParams))
		if err != nil {
			resp := newError(req.ID, CodeInternalError, err.Error())
			return &resp
		}
		resp := newResult(req.ID, result)
		return &resp
	default:
		if child, ok := b.capabilityServerFor(sess, req.Method); ok {
			return b.forwardToCapabilityServer(child, req)
		}
		resp := newError(req.ID, CodeMethodNotFound, "Method not found")
		return &resp
	}
}

func mustWrapToolCall(name string, arguments json.RawMessage) json.RawMessage {
	bs, _ := json.Marshal(toolCallParams{Name: name, Arguments: arguments})
	return bs
}

// capabilityServerFor resolves a forwarded method to a capability server by
// prefix (e.g. "npm.install" -> server "npm") per spec §4.2.
func (b *Broker) capabilityServerFor(sess *sandboxSession, method string) (*capabilityChild, bool) {
	if i := strings.IndexByte(method, '.'); i > 0 {
		if child, ok := sess.children[method[:i]]; ok {
			return child, true
		}
	}
	return nil, false
}

// forwardToCapabilityServer writes req to the child's stdin and reads one
// reply line back. This revision does not auto-restart a dead child
// (documented as an open question in spec §4.2/§9).
func (b *Broker) forwardToCapabilityServer(child *capabilityChild, req Request) *Response {
	bs, err := json.Marshal(req)
	if err != nil {
		resp := newError(req.ID, CodeInternalError, "encode forwarded request")
		return &resp
	}
	if _, err := child.stdin.Write(append(bs, '\n')); err != nil {
		resp := newError(req.ID, CodeInternalError, "capability server unavailable")
		return &resp
	}
	scanner := child.scanner()
	if !scanner.Scan() {
		resp := newError(req.ID, CodeInternalError, "capability server closed")
		return &resp
	}
	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		r := newError(req.ID, CodeInternalError, "malformed capability server reply")
		return &r
	}
	resp.ID = req.ID
	return &resp
}
