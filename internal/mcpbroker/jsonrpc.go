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

// Package mcpbroker implements the MCP Broker (spec §4.2): one WebSocket
// listener per sandbox translating JSON-RPC 2.0 into built-in tool calls or
// forwarded capability-server requests.
package mcpbroker

import "encoding/json"

const jsonrpcVersion = "2.0"

// ProtocolVersion is the MCP protocol version string exchanged on connect.
const ProtocolVersion = "2024-11-05"

// Request is an inbound JSON-RPC 2.0 message.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an outbound JSON-RPC 2.0 reply.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Notification is an outbound message with no id (spec §4.2: the
// unsolicited post-accept "initialized" notification).
type Notification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object. Codes follow the standard
// reserved range (spec §7, §6).
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

func newResult(id json.RawMessage, result interface{}) Response {
	return Response{JSONRPC: jsonrpcVersion, ID: id, Result: result}
}

func newError(id json.RawMessage, code int, message string) Response {
	return Response{JSONRPC: jsonrpcVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
}

// ServerInfo mirrors the MCP initialize/initialized payload shape
// (spec §4.2).
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities is the fixed capabilities object this broker advertises.
type Capabilities struct {
	Tools     map[string]interface{} `json:"tools"`
	Resources map[string]interface{} `json:"resources"`
	Prompts   map[string]interface{} `json:"prompts"`
}

// InitializedPayload is the params of the unsolicited `initialized`
// notification, and the result of an `initialize` request.
type InitializedPayload struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

func initializedPayload() InitializedPayload {
	return InitializedPayload{
		ProtocolVersion: ProtocolVersion,
		Capabilities: Capabilities{
			Tools:     map[string]interface{}{},
			Resources: map[string]interface{}{},
			Prompts:   map[string]interface{}{},
		},
		ServerInfo: ServerInfo{Name: "dcsandbox-proxy", Version: "1.0.0"},
	}
}

// ToolResult is the fixed result shape for tools/call (spec §6).
type ToolResult struct {
	IsError bool         `json:"isError"`
	Content []ToolContent `json:"content"`
}

// ToolContent is one content block of a ToolResult.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(isError bool, text string) ToolResult {
	return ToolResult{IsError: isError, Content: []ToolContent{{Type: "text", Text: text}}}
}
