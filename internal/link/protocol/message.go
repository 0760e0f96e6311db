// Package protocol defines the messages exchanged between the two bridge
// processes and their wire framing.
package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Version is bumped on any incompatible change to Message or its payloads.
const Version uint16 = 1

type Role string

const (
	RoleBackend Role = "backend"
	RoleEditor  Role = "editor"
)

func (r Role) Valid() bool {
	return r == RoleBackend || r == RoleEditor
}

// Leader reports whether r wins equal-version property conflicts.
func (r Role) Leader() bool {
	return r == RoleBackend
}

// Peer returns the role on the other end of a link.
func (r Role) Peer() Role {
	if r == RoleBackend {
		return RoleEditor
	}
	return RoleBackend
}

type Kind uint8

const (
	KindHello Kind = iota + 1
	KindScalar
	KindRecord
	KindAction
	KindBye
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "hello"
	case KindScalar:
		return "scalar"
	case KindRecord:
		return "record"
	case KindAction:
		return "action"
	case KindBye:
		return "bye"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is one frame on the link. Name addresses a property or action of
// the shared model; Version orders writes to the same property.
type Message struct {
	Kind    Kind               `msgpack:"k"`
	Name    string             `msgpack:"n,omitempty"`
	Version uint64             `msgpack:"v,omitempty"`
	Origin  Role               `msgpack:"o,omitempty"`
	Payload msgpack.RawMessage `msgpack:"p,omitempty"`
}

// Hello opens a session. Both sides send one before anything else.
type Hello struct {
	Protocol  uint16 `msgpack:"protocol"`
	Role      Role   `msgpack:"role"`
	SessionID string `msgpack:"session"`
	PID       int    `msgpack:"pid,omitempty"`
}

// Bye announces an orderly shutdown.
type Bye struct {
	Reason string `msgpack:"reason,omitempty"`
}

func EncodePayload(v any) (msgpack.RawMessage, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return msgpack.RawMessage(b), nil
}

func DecodePayload(raw msgpack.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("decode payload: empty")
	}
	if err := msgpack.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// NewHello builds the opening frame for role.
func NewHello(role Role, sessionID string, pid int) (Message, error) {
	payload, err := EncodePayload(Hello{Protocol: Version, Role: role, SessionID: sessionID, PID: pid})
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindHello, Origin: role, Payload: payload}, nil
}

func NewBye(role Role, reason string) (Message, error) {
	payload, err := EncodePayload(Bye{Reason: reason})
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindBye, Origin: role, Payload: payload}, nil
}
