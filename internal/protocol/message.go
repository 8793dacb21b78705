package protocol

import (
	"fmt"
	"strings"
)

// TransactionID correlates a command with the events it produces.
type TransactionID = uint64

const (
	tagGet         = "get"
	tagPGet        = "pGet"
	tagSet         = "set"
	tagPublish     = "publish"
	tagSubscribe   = "subscribe"
	tagPSubscribe  = "pSubscribe"
	tagUnsubscribe = "unsubscribe"
	tagDelete      = "delete"
	tagPDelete     = "pDelete"
	tagLs          = "ls"

	tagHandshake = "handshake"
	tagState     = "state"
	tagPState    = "pState"
	tagAck       = "ack"
	tagErr       = "err"
	tagLsState   = "lsState"
)

// ClientMessage is one command sent client->server. The set is closed:
// only types in this package implement it.
type ClientMessage interface {
	Tag() string
	Validate() error
	clientMessage()
}

// ServerMessage is one message sent server->client. The set is closed:
// Handshake, State, PState, Ack, Err, LsState and the EndOfSession sentinel.
type ServerMessage interface {
	Tag() string
	serverMessage()
}

// KeyValuePair is one stored key and its JSON-compatible value.
type KeyValuePair struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type Get struct {
	TransactionID TransactionID `json:"transactionId"`
	Key           string        `json:"key"`
}

type PGet struct {
	TransactionID  TransactionID `json:"transactionId"`
	RequestPattern string        `json:"requestPattern"`
}

type Set struct {
	TransactionID TransactionID `json:"transactionId"`
	Key           string        `json:"key"`
	Value         any           `json:"value"`
}

// Publish sends a value to subscribers without storing it.
type Publish struct {
	TransactionID TransactionID `json:"transactionId"`
	Key           string        `json:"key"`
	Value         any           `json:"value"`
}

// Subscribe asks for State events on every change of Key. Unique suppresses
// events whose value did not change.
type Subscribe struct {
	TransactionID TransactionID `json:"transactionId"`
	Key           string        `json:"key"`
	Unique        bool          `json:"unique"`
}

type PSubscribe struct {
	TransactionID  TransactionID `json:"transactionId"`
	RequestPattern string        `json:"requestPattern"`
	Unique         bool          `json:"unique"`
}

// Unsubscribe cancels the subscription opened under TransactionID.
type Unsubscribe struct {
	TransactionID TransactionID `json:"transactionId"`
}

type Delete struct {
	TransactionID TransactionID `json:"transactionId"`
	Key           string        `json:"key"`
}

type PDelete struct {
	TransactionID  TransactionID `json:"transactionId"`
	RequestPattern string        `json:"requestPattern"`
}

// Ls lists the direct children of Parent, or the root keys when Parent is empty.
type Ls struct {
	TransactionID TransactionID `json:"transactionId"`
	Parent        string        `json:"parent,omitempty"`
}

func (Get) Tag() string         { return tagGet }
func (PGet) Tag() string        { return tagPGet }
func (Set) Tag() string         { return tagSet }
func (Publish) Tag() string     { return tagPublish }
func (Subscribe) Tag() string   { return tagSubscribe }
func (PSubscribe) Tag() string  { return tagPSubscribe }
func (Unsubscribe) Tag() string { return tagUnsubscribe }
func (Delete) Tag() string      { return tagDelete }
func (PDelete) Tag() string     { return tagPDelete }
func (Ls) Tag() string          { return tagLs }

func (Get) clientMessage()         {}
func (PGet) clientMessage()        {}
func (Set) clientMessage()         {}
func (Publish) clientMessage()     {}
func (Subscribe) clientMessage()   {}
func (PSubscribe) clientMessage()  {}
func (Unsubscribe) clientMessage() {}
func (Delete) clientMessage()      {}
func (PDelete) clientMessage()     {}
func (Ls) clientMessage()          {}

func (m Get) Validate() error         { return requireKey(tagGet, m.Key) }
func (m PGet) Validate() error        { return requireKey(tagPGet, m.RequestPattern) }
func (m Set) Validate() error         { return requireKey(tagSet, m.Key) }
func (m Publish) Validate() error     { return requireKey(tagPublish, m.Key) }
func (m Subscribe) Validate() error   { return requireKey(tagSubscribe, m.Key) }
func (m PSubscribe) Validate() error  { return requireKey(tagPSubscribe, m.RequestPattern) }
func (m Unsubscribe) Validate() error { return nil }
func (m Delete) Validate() error      { return requireKey(tagDelete, m.Key) }
func (m PDelete) Validate() error     { return requireKey(tagPDelete, m.RequestPattern) }
func (m Ls) Validate() error          { return nil }

func requireKey(tag, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: %s missing key", ErrInvalidCommand, tag)
	}
	return nil
}

// ProtocolVersion is the server's protocol revision announced in the handshake.
type ProtocolVersion struct {
	Major uint16 `json:"major"`
	Minor uint16 `json:"minor"`
}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Handshake is the first message of every session. The three tokens are
// single characters carried as strings on the wire.
type Handshake struct {
	ProtocolVersion ProtocolVersion `json:"protocolVersion"`
	Separator       string          `json:"separator"`
	Wildcard        string          `json:"wildcard"`
	MultiWildcard   string          `json:"multiWildcard"`
}

// State answers a Get or reports one change on a Subscribe. Exactly one of
// KeyValue and Deleted is set.
type State struct {
	TransactionID TransactionID `json:"transactionId"`
	KeyValue      *KeyValuePair `json:"keyValue,omitempty"`
	Deleted       *KeyValuePair `json:"deleted,omitempty"`
}

type PState struct {
	TransactionID  TransactionID  `json:"transactionId"`
	RequestPattern string         `json:"requestPattern"`
	KeyValuePairs  []KeyValuePair `json:"keyValuePairs,omitempty"`
	Deleted        []KeyValuePair `json:"deleted,omitempty"`
}

type Ack struct {
	TransactionID TransactionID `json:"transactionId"`
}

// Err reports a failed command.
type Err struct {
	TransactionID TransactionID `json:"transactionId"`
	ErrorCode     uint8         `json:"errorCode"`
	Metadata      string        `json:"metadata"`
}

type LsState struct {
	TransactionID TransactionID `json:"transactionId"`
	Children      []string      `json:"children"`
}

// EndOfSession is the sentinel produced by decoding an empty payload. It is
// never written by Encode.
type EndOfSession struct{}

func (Handshake) Tag() string    { return tagHandshake }
func (State) Tag() string        { return tagState }
func (PState) Tag() string       { return tagPState }
func (Ack) Tag() string          { return tagAck }
func (Err) Tag() string          { return tagErr }
func (LsState) Tag() string      { return tagLsState }
func (EndOfSession) Tag() string { return "endOfSession" }

func (Handshake) serverMessage()    {}
func (State) serverMessage()        {}
func (PState) serverMessage()       {}
func (Ack) serverMessage()          {}
func (Err) serverMessage()          {}
func (LsState) serverMessage()      {}
func (EndOfSession) serverMessage() {}

func (e Err) Error() string {
	return fmt.Sprintf("worterbuch: transaction %d failed code=%d: %s", e.TransactionID, e.ErrorCode, e.Metadata)
}

// TransactionOf returns the transaction a server message belongs to.
// Handshake and EndOfSession belong to none.
func TransactionOf(msg ServerMessage) (TransactionID, bool) {
	switch m := msg.(type) {
	case State:
		return m.TransactionID, true
	case PState:
		return m.TransactionID, true
	case Ack:
		return m.TransactionID, true
	case Err:
		return m.TransactionID, true
	case LsState:
		return m.TransactionID, true
	case Handshake, EndOfSession:
		return 0, false
	default:
		return 0, false
	}
}
