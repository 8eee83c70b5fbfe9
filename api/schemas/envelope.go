package schemas

import (
	"fmt"
)

// MessageKey is the field every failure envelope carries in its value.
const MessageKey = "message"

// Envelope is the uniform {status, value} wrapper returned for every command.
// Status 0 is success; any other status is a taxonomy code and Value holds
// at least a "message" string.
type Envelope struct {
	Status int   `json:"status"`
	Value  Value `json:"value"`
}

// Succeeded wraps an encoded result.
func Succeeded(v Value) Envelope {
	return Envelope{Status: 0, Value: v}
}

// Failed builds a failure envelope.
func Failed(status int, message string) Envelope {
	return Envelope{
		Status: status,
		Value:  Mapping(map[string]Value{MessageKey: String(message)}),
	}
}

// OK reports whether the envelope carries a success status.
func (e Envelope) OK() bool { return e.Status == 0 }

// Message returns value.message, or "" when absent.
func (e Envelope) Message() string {
	m, ok := e.Value.Get(MessageKey)
	if !ok || m.Kind() != KindString {
		return ""
	}
	return m.AsString()
}

// String renders the wire text form.
func (e Envelope) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		// Value only holds JSON-safe shapes, so this is unreachable in practice.
		return fmt.Sprintf(`{"status":13,"value":{"message":%q}}`, err.Error())
	}
	return string(data)
}

// ParseEnvelope decodes the wire text form.
func ParseEnvelope(text string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed envelope: %w", err)
	}
	return env, nil
}

// Request is a single command invocation as carried by the run and serve
// transports.
type Request struct {
	ID      string  `json:"id,omitempty"`
	Command string  `json:"command"`
	Args    []Value `json:"args"`
}

// Response pairs an envelope with the request it answers.
type Response struct {
	ID string `json:"id,omitempty"`
	Envelope
}

// ParseRequest decodes a JSON request line.
func ParseRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("malformed request: %w", err)
	}
	if req.Command == "" {
		return Request{}, fmt.Errorf("malformed request: missing command")
	}
	return req, nil
}

// Marshal renders any schema type with the package's JSON configuration.
func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
