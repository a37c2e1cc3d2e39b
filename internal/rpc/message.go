package rpc

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"autofix/internal/project"
)

// ProtocolVersion guards the envelope and parameter types below.
const ProtocolVersion uint16 = 1

type Method string

const (
	MethodCreateWorkspace Method = "CreateWorkspace"
	MethodOpenProject     Method = "OpenProject"
	MethodPing            Method = "Ping"
	MethodDebug           Method = "Debug"
	MethodExit            Method = "Exit"
	MethodCloseWorkspace  Method = "CloseWorkspace"
)

// Message is a request when Method is set, a response otherwise.
type Message struct {
	Version uint16             `msgpack:"v"`
	ID      uint64             `msgpack:"id"`
	Method  Method             `msgpack:"method,omitempty"`
	Params  msgpack.RawMessage `msgpack:"params,omitempty"`
	Result  msgpack.RawMessage `msgpack:"result,omitempty"`
	Error   *RemoteError       `msgpack:"error,omitempty"`
}

func (m *Message) IsRequest() bool { return m.Method != "" }

// RemoteError is a failure reported by the other side.
type RemoteError struct {
	Method  Method `msgpack:"method"`
	Message string `msgpack:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

var ErrVersionMismatch = errors.New("protocol version mismatch")

type CreateWorkspaceParams struct {
	Properties map[string]string `msgpack:"properties"`
}

type OpenProjectParams struct {
	Path string `msgpack:"path"`
}

type OpenProjectResult struct {
	Project project.Metadata `msgpack:"project"`
}

type PingResult struct {
	Alive bool `msgpack:"alive"`
}

type DebugResult struct {
	Properties     map[string]string `msgpack:"properties"`
	CachedProjects []string          `msgpack:"cached_projects"`
	Requests       uint64            `msgpack:"requests"`
}

// NewRequest encodes params into a request envelope.
func NewRequest(id uint64, method Method, params any) (*Message, error) {
	msg := &Message{Version: ProtocolVersion, ID: id, Method: method}
	if params != nil {
		raw, err := msgpack.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode %s params: %w", method, err)
		}
		msg.Params = raw
	}
	return msg, nil
}

// NewResponse encodes result into a response for req.
func NewResponse(req *Message, result any) (*Message, error) {
	msg := &Message{Version: ProtocolVersion, ID: req.ID}
	if result != nil {
		raw, err := msgpack.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode %s result: %w", req.Method, err)
		}
		msg.Result = raw
	}
	return msg, nil
}

// NewErrorResponse reports err for req.
func NewErrorResponse(req *Message, err error) *Message {
	return &Message{
		Version: ProtocolVersion,
		ID:      req.ID,
		Error:   &RemoteError{Method: req.Method, Message: err.Error()},
	}
}

// DecodeParams decodes request params into out. Absent params leave out
// untouched.
func (m *Message) DecodeParams(out any) error {
	if len(m.Params) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(m.Params, out); err != nil {
		return fmt.Errorf("decode %s params: %w", m.Method, err)
	}
	return nil
}

// DecodeResult returns the remote error if any, otherwise decodes the
// result into out (which may be nil).
func (m *Message) DecodeResult(out any) error {
	if m.Error != nil {
		return m.Error
	}
	if out == nil || len(m.Result) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(m.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
