// Package protocol 实现了 socket 通道的消息格式定义与编解码
package protocol

import "encoding/json"

// ClientAction 客户端可以发送的动作
type ClientAction string

const (
	ClientPing  ClientAction = "PING"
	ClientPong  ClientAction = "PONG"
	ClientLogin ClientAction = "LOGIN"
)

var clientActions = map[ClientAction]struct{}{
	ClientPing:  {},
	ClientPong:  {},
	ClientLogin: {},
}

func (a ClientAction) String() string {
	return string(a)
}

// Valid 判断是否为客户端可发送的动作
func (a ClientAction) Valid() bool {
	_, ok := clientActions[a]
	return ok
}

// RequiresAuth 判断该动作是否需要先 LOGIN，心跳与登录本身总是允许
func (a ClientAction) RequiresAuth() bool {
	switch a {
	case ClientPing, ClientPong, ClientLogin:
		return false
	default:
		return true
	}
}

// ServerAction 服务端发送的动作
type ServerAction string

const (
	ServerPing       ServerAction = "PING"
	ServerPong       ServerAction = "PONG"
	ServerLoggedIn   ServerAction = "LOGGED_IN"
	ServerLogout     ServerAction = "LOGOUT"
	ServerNewMessage ServerAction = "NEW_MESSAGE"
)

var serverActions = map[ServerAction]struct{}{
	ServerPing:       {},
	ServerPong:       {},
	ServerLoggedIn:   {},
	ServerLogout:     {},
	ServerNewMessage: {},
}

func (a ServerAction) String() string {
	return string(a)
}

func (a ServerAction) Valid() bool {
	_, ok := serverActions[a]
	return ok
}

// Request 客户端请求: {"id": <int>, "message": {"action": <string>, "data": <any?>}}
type Request struct {
	ID     int64
	Action ClientAction
	Data   json.RawMessage // 缺省或 null 时为 nil
}

// Response 对某个请求的应答，带回请求 id
type Response struct {
	ClientID int64        `json:"clientId"`
	Action   ServerAction `json:"action"`
	Data     any          `json:"data"`
}

// Push 服务端主动推送，不带 id
type Push struct {
	Action ServerAction `json:"action"`
	Data   any          `json:"data"`
}

// LogoutReason LOGOUT 推送的负载
type LogoutReason struct {
	Reason string `json:"reason"`
}
