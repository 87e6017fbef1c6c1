// Package protocol defines the wire format for all client-server
// communication: a length-prefixed JSON envelope carrying a tagged packet.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Type identifies what kind of packet is being sent.
type Type string

const (
	// Client → Server
	TypeRegisterReq Type = "RegisterReq"
	TypeLoginReq    Type = "LoginReq"
	TypeFetchReq    Type = "FetchReq"
	TypeGotoReq     Type = "GotoReq"
	TypeExit        Type = "Exit"

	// Server → Client
	TypeRegisterRes Type = "RegisterRes"
	TypeLoginRes    Type = "LoginRes"
	TypeFetchRes    Type = "FetchRes"
	TypeGotoRes     Type = "GotoRes"

	// Bidirectional / intra-server
	TypeMessage   Type = "Message"
	TypeConnected Type = "Connected"
)

// Result is the JSON-tagged sum type used by every *Res packet:
// {"Ok": value} or {"Err": "reason"}.
type Result[T any] struct {
	Ok  *T      `json:"Ok,omitempty"`
	Err *string `json:"Err,omitempty"`
}

// OkResult builds a successful Result.
func OkResult[T any](v T) Result[T] {
	return Result[T]{Ok: &v}
}

// ErrResult builds a failed Result.
func ErrResult[T any](reason string) Result[T] {
	return Result[T]{Err: &reason}
}

// IsOk reports whether the result carries a success value.
func (r Result[T]) IsOk() bool { return r.Err == nil }

// ---------------------------------------------------------------------------
// User / login payloads
// ---------------------------------------------------------------------------

// UserPayload is the body of a RegisterReq.
type UserPayload struct {
	ID           string  `json:"id"`
	PasswordHash string  `json:"password_hash"`
	Bio          *string `json:"bio,omitempty"`
	Location     *string `json:"location,omitempty"`
}

// LoginInfo is the transient login credential carried by LoginReq: either a
// guest handshake ({guest:true}) or an authenticated one
// ({guest:false, id, password_hash}).
type LoginInfo struct {
	Guest        bool    `json:"guest"`
	ID           *string `json:"id,omitempty"`
	PasswordHash *string `json:"password_hash,omitempty"`
}

// ---------------------------------------------------------------------------
// Packet variants
//
// Every variant carries its own "type" field so DecodePacket can dispatch on it
// directly from the raw JSON object without an extra unwrap step.
// ---------------------------------------------------------------------------

type RegisterReq struct {
	Type Type        `json:"type"`
	User UserPayload `json:"user"`
}

type RegisterRes struct {
	Type   Type          `json:"type"`
	Result Result[Empty] `json:"result"`
}

type LoginReq struct {
	Type      Type      `json:"type"`
	LoginInfo LoginInfo `json:"login_info"`
}

type LoginRes struct {
	Type   Type           `json:"type"`
	Result Result[string] `json:"result"` // Ok(assigned_id) | Err(reason)
}

type FetchReq struct {
	Type Type   `json:"type"`
	Item string `json:"item"`
}

type FetchRes struct {
	Type   Type                    `json:"type"`
	Item   string                  `json:"item"`
	Result Result[json.RawMessage] `json:"result"`
}

type GotoReq struct {
	Type        Type   `json:"type"`
	ChannelName string `json:"channel_name"`
}

type GotoRes struct {
	Type   Type           `json:"type"`
	Result Result[string] `json:"result"` // Ok(channel_name) | Err(reason)
}

type Message struct {
	Type     Type   `json:"type"`
	ID       string `json:"id"`
	Msg      string `json:"msg"`
	IsSystem bool   `json:"is_system"`
}

type Connected struct {
	Type Type `json:"type"`
}

type Exit struct {
	Type Type `json:"type"`
}

// Empty is used as the Ok payload of results that carry no data (e.g.
// RegisterRes success).
type Empty struct{}

// NewJoinMessage builds the canned system message published when id joins a
// channel's membership.
func NewJoinMessage(id string) Message {
	return Message{Type: TypeMessage, ID: id, Msg: fmt.Sprintf("'%s' has joined", id), IsSystem: true}
}

// NewLeaveMessage builds the canned system message published when id leaves
// a channel's membership.
func NewLeaveMessage(id string) Message {
	return Message{Type: TypeMessage, ID: id, Msg: fmt.Sprintf("'%s' has left", id), IsSystem: true}
}

// MembershipSnapshot is the JSON payload of FetchRes{item:"list"}.
type MembershipSnapshot struct {
	UserList []string `json:"user_list"`
	NumUser  int      `json:"num_user"`
	NumGuest int      `json:"num_guest"`
}
