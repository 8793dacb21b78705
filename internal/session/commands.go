package session

import "github.com/danmuck/wbclient/internal/protocol"

// The helpers below validate the command, allocate a transaction ID from a
// per-session counter starting at 1 and queue it. An invalid command fails
// with protocol.ErrInvalidCommand before an ID is spent. Callers mixing the
// helpers with Submit must pick IDs that do not collide.

func (s *Session) submitNew(build func(tid protocol.TransactionID) protocol.ClientMessage) (protocol.TransactionID, error) {
	if err := build(0).Validate(); err != nil {
		return 0, err
	}
	tid := s.nextTID.Add(1)
	if err := s.Submit(build(tid)); err != nil {
		return 0, err
	}
	return tid, nil
}

func (s *Session) Get(key string) (protocol.TransactionID, error) {
	return s.submitNew(func(tid protocol.TransactionID) protocol.ClientMessage {
		return protocol.Get{TransactionID: tid, Key: key}
	})
}

func (s *Session) PGet(pattern string) (protocol.TransactionID, error) {
	return s.submitNew(func(tid protocol.TransactionID) protocol.ClientMessage {
		return protocol.PGet{TransactionID: tid, RequestPattern: pattern}
	})
}

func (s *Session) Set(key string, value any) (protocol.TransactionID, error) {
	return s.submitNew(func(tid protocol.TransactionID) protocol.ClientMessage {
		return protocol.Set{TransactionID: tid, Key: key, Value: value}
	})
}

func (s *Session) Publish(key string, value any) (protocol.TransactionID, error) {
	return s.submitNew(func(tid protocol.TransactionID) protocol.ClientMessage {
		return protocol.Publish{TransactionID: tid, Key: key, Value: value}
	})
}

// SubscribeKey asks the server for State events on key. The returned ID is
// the one to pass to Unsubscribe.
func (s *Session) SubscribeKey(key string, unique bool) (protocol.TransactionID, error) {
	return s.submitNew(func(tid protocol.TransactionID) protocol.ClientMessage {
		return protocol.Subscribe{TransactionID: tid, Key: key, Unique: unique}
	})
}

func (s *Session) PSubscribeKey(pattern string, unique bool) (protocol.TransactionID, error) {
	return s.submitNew(func(tid protocol.TransactionID) protocol.ClientMessage {
		return protocol.PSubscribe{TransactionID: tid, RequestPattern: pattern, Unique: unique}
	})
}

func (s *Session) Unsubscribe(subscription protocol.TransactionID) error {
	cmd := protocol.Unsubscribe{TransactionID: subscription}
	if err := cmd.Validate(); err != nil {
		return err
	}
	return s.Submit(cmd)
}

func (s *Session) Delete(key string) (protocol.TransactionID, error) {
	return s.submitNew(func(tid protocol.TransactionID) protocol.ClientMessage {
		return protocol.Delete{TransactionID: tid, Key: key}
	})
}

func (s *Session) PDelete(pattern string) (protocol.TransactionID, error) {
	return s.submitNew(func(tid protocol.TransactionID) protocol.ClientMessage {
		return protocol.PDelete{TransactionID: tid, RequestPattern: pattern}
	})
}

func (s *Session) Ls(parent string) (protocol.TransactionID, error) {
	return s.submitNew(func(tid protocol.TransactionID) protocol.ClientMessage {
		return protocol.Ls{TransactionID: tid, Parent: parent}
	})
}
