package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/life-stream-dev/twidder/internal/logger"
)

var (
	ErrMalformedMessage = errors.New("malformed request")
	ErrUnhandledAction  = errors.New("unhandled client action")
)

type wireRequest struct {
	ID      json.RawMessage `json:"id"`
	Message json.RawMessage `json:"message"`
}

type wireMessage struct {
	Action json.RawMessage `json:"action"`
	Data   json.RawMessage `json:"data"`
}

func malformed(format string, v ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, v...))
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// Decode 解析并校验一帧客户端请求
func Decode(raw []byte) (*Request, error) {
	if !isObject(raw) {
		return nil, malformed("frame is not a JSON object")
	}
	var req wireRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}

	if isNull(req.ID) {
		return nil, malformed("missing id")
	}
	var id int64
	if err := json.Unmarshal(req.ID, &id); err != nil {
		return nil, malformed("id is not an integer")
	}

	if isNull(req.Message) || !isObject(req.Message) {
		return nil, malformed("missing message")
	}
	var msg wireMessage
	if err := json.Unmarshal(req.Message, &msg); err != nil {
		return nil, malformed("invalid message: %v", err)
	}

	if isNull(msg.Action) {
		return nil, malformed("missing action")
	}
	var action string
	if err := json.Unmarshal(msg.Action, &action); err != nil {
		return nil, malformed("action is not a string")
	}
	if !ClientAction(action).Valid() {
		return nil, malformed("unknown action %q", action)
	}

	result := &Request{ID: id, Action: ClientAction(action)}
	if !isNull(msg.Data) {
		result.Data = msg.Data
	}
	return result, nil
}

// Token 返回 LOGIN 请求携带的会话 token
func (r *Request) Token() (string, error) {
	if r.Data == nil {
		return "", malformed("missing token")
	}
	var token string
	if err := json.Unmarshal(r.Data, &token); err != nil {
		return "", malformed("token is not a string")
	}
	return token, nil
}

// EncodeResponse 编码对请求 id 的应答
func EncodeResponse(id int64, action ServerAction, data any) []byte {
	return encode(Response{ClientID: id, Action: action, Data: data})
}

// EncodePush 编码服务端推送
func EncodePush(action ServerAction, data any) []byte {
	return encode(Push{Action: action, Data: data})
}

func encode(v any) []byte {
	out, err := json.Marshal(v)
	if err == nil {
		return out
	}
	logger.WarnF("Unable to encode frame payload, sending null data: %v", err)
	switch frame := v.(type) {
	case Response:
		frame.Data = nil
		out, _ = json.Marshal(frame)
	case Push:
		frame.Data = nil
		out, _ = json.Marshal(frame)
	}
	return out
}
