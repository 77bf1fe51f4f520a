package chat

import (
	"github.com/google/uuid"
)

// Key identifies one connection for as long as it is registered.
type Key = uuid.UUID

// NewKey returns a fresh connection key.
func NewKey() Key { return uuid.New() }

type MessageKind int

const (
	KindJoined MessageKind = iota
	KindLeft
	KindChat
)

func (k MessageKind) String() string {
	switch k {
	case KindJoined:
		return "joined"
	case KindLeft:
		return "left"
	case KindChat:
		return "chat"
	default:
		return "unknown"
	}
}

// Message is immutable once built; one value is shared by every recipient
// of a broadcast.
type Message struct {
	kind    MessageKind
	name    string
	content string
}

func Joined(name string) *Message { return &Message{kind: KindJoined, name: name} }

func Left(name string) *Message { return &Message{kind: KindLeft, name: name} }

func Chat(sender, content string) *Message {
	return &Message{kind: KindChat, name: sender, content: content}
}

func (m *Message) Kind() MessageKind { return m.kind }

// Name is the joining/leaving peer, or the sender of a chat line.
func (m *Message) Name() string { return m.name }

func (m *Message) Content() string { return m.content }

// String renders the message as it goes on the wire, without line terminator.
func (m *Message) String() string {
	switch m.kind {
	case KindJoined:
		return m.name + " joined the chat"
	case KindLeft:
		return m.name + " left the chat"
	default:
		return m.name + ": " + m.content
	}
}

// Peer is a registered participant: who it is and where its deliveries go.
type Peer struct {
	Key  Key
	Name string
	Out  *Queue
}

type registryOp int

const (
	opRegister registryOp = iota
	opRemove
	opSnapshot
	opLen
)

func (o registryOp) String() string {
	switch o {
	case opRegister:
		return "register"
	case opRemove:
		return "remove"
	case opSnapshot:
		return "snapshot"
	default:
		return "len"
	}
}

// request is one operation handed to the registry owner goroutine.
type request struct {
	op    registryOp
	peer  *Peer
	key   Key
	reply chan reply
}

type reply struct {
	peers []*Peer
	n     int
	ok    bool
}

var (
	ErrQueueClosed     = errorString("queue closed")
	ErrRegistryStopped = errorString("registry stopped")
	ErrServerClosed    = errorString("server closed")
	ErrInvalidUTF8     = errorString("line is not valid UTF-8")
)

type errorString string

func (e errorString) Error() string { return string(e) }
