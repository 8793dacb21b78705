package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danmuck/wbclient/internal/bus"
	"github.com/danmuck/wbclient/internal/protocol"
	"github.com/danmuck/wbclient/internal/session"
	"github.com/rs/zerolog/log"
)

var errDisconnected = errors.New("wbctl: server ended the session")

type command struct {
	name    string
	usage   string
	summary string
	minArgs int
	maxArgs int
	stream  bool
	run     func(ctx context.Context, s *session.Session, out io.Writer, opts options, args []string) error
}

func (c command) checkArgs(args []string) error {
	if len(args) < c.minArgs || len(args) > c.maxArgs {
		return fmt.Errorf("%w: %s takes %d to %d arguments, got %d", errUsage, c.name, c.minArgs, c.maxArgs, len(args))
	}
	if c.minArgs > 0 && strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("%w: %s needs a non-empty %s", errUsage, c.name, strings.Fields(c.usage)[0])
	}
	return nil
}

type submitFunc func() (protocol.TransactionID, error)

var commandOrder = []string{"get", "pget", "set", "publish", "delete", "pdelete", "ls", "subscribe", "psubscribe", "watch"}

var commands = map[string]command{
	"get": {
		name: "get", usage: "KEY", summary: "read one key", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, s *session.Session, out io.Writer, opts options, args []string) error {
			return request(ctx, out, opts.timeout, s, func() (protocol.TransactionID, error) { return s.Get(args[0]) })
		},
	},
	"pget": {
		name: "pget", usage: "PATTERN", summary: "read every key matching a pattern", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, s *session.Session, out io.Writer, opts options, args []string) error {
			return request(ctx, out, opts.timeout, s, func() (protocol.TransactionID, error) { return s.PGet(args[0]) })
		},
	},
	"set": {
		name: "set", usage: "KEY VALUE", summary: "store a value (JSON, or a plain string)", minArgs: 2, maxArgs: 2,
		run: func(ctx context.Context, s *session.Session, out io.Writer, opts options, args []string) error {
			value := parseValue(args[1])
			return request(ctx, out, opts.timeout, s, func() (protocol.TransactionID, error) { return s.Set(args[0], value) })
		},
	},
	"publish": {
		name: "publish", usage: "KEY VALUE", summary: "send a value to subscribers without storing it", minArgs: 2, maxArgs: 2,
		run: func(ctx context.Context, s *session.Session, out io.Writer, opts options, args []string) error {
			value := parseValue(args[1])
			return request(ctx, out, opts.timeout, s, func() (protocol.TransactionID, error) { return s.Publish(args[0], value) })
		},
	},
	"delete": {
		name: "delete", usage: "KEY", summary: "remove one key", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, s *session.Session, out io.Writer, opts options, args []string) error {
			return request(ctx, out, opts.timeout, s, func() (protocol.TransactionID, error) { return s.Delete(args[0]) })
		},
	},
	"pdelete": {
		name: "pdelete", usage: "PATTERN", summary: "remove every key matching a pattern", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, s *session.Session, out io.Writer, opts options, args []string) error {
			return request(ctx, out, opts.timeout, s, func() (protocol.TransactionID, error) { return s.PDelete(args[0]) })
		},
	},
	"ls": {
		name: "ls", usage: "[PARENT]", summary: "list child key segments", minArgs: 0, maxArgs: 1,
		run: func(ctx context.Context, s *session.Session, out io.Writer, opts options, args []string) error {
			parent := ""
			if len(args) == 1 {
				parent = args[0]
			}
			return request(ctx, out, opts.timeout, s, func() (protocol.TransactionID, error) { return s.Ls(parent) })
		},
	},
	"subscribe": {
		name: "subscribe", usage: "KEY", summary: "print every change of one key", minArgs: 1, maxArgs: 1, stream: true,
		run: func(ctx context.Context, s *session.Session, out io.Writer, opts options, args []string) error {
			return stream(ctx, out, opts.count, s, func() (protocol.TransactionID, error) { return s.SubscribeKey(args[0], opts.unique) })
		},
	},
	"psubscribe": {
		name: "psubscribe", usage: "PATTERN", summary: "print every change matching a pattern", minArgs: 1, maxArgs: 1, stream: true,
		run: func(ctx context.Context, s *session.Session, out io.Writer, opts options, args []string) error {
			return stream(ctx, out, opts.count, s, func() (protocol.TransactionID, error) { return s.PSubscribeKey(args[0], opts.unique) })
		},
	},
	"watch": {
		name: "watch", usage: "", summary: "print every event the session receives", minArgs: 0, maxArgs: 0, stream: true,
		run: func(ctx context.Context, s *session.Session, out io.Writer, opts options, args []string) error {
			return stream(ctx, out, opts.count, s, nil)
		},
	},
}

// request submits one command and prints the first event of its transaction.
func request(ctx context.Context, out io.Writer, timeout time.Duration, s *session.Session, submit submitFunc) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	events := s.Subscribe()
	defer events.Close()

	tid, err := submit()
	if err != nil {
		return err
	}
	for {
		msg, err := events.Recv(ctx)
		if err != nil {
			if errors.Is(err, bus.ErrLagged) {
				log.Warn().Err(err).Msg("wbctl.events_lagged")
				continue
			}
			if errors.Is(err, bus.ErrClosed) {
				return errDisconnected
			}
			return fmt.Errorf("wait for transaction %d: %w", tid, err)
		}
		if id, ok := protocol.TransactionOf(msg); !ok || id != tid {
			continue
		}
		if err := printEvent(out, msg); err != nil {
			return err
		}
		if serverErr, ok := msg.(protocol.Err); ok {
			return serverErr
		}
		return nil
	}
}

// stream prints events until ctx is done, the session ends, or count events
// were printed. A nil submit prints every event.
func stream(ctx context.Context, out io.Writer, count int, s *session.Session, submit submitFunc) error {
	events := s.Subscribe()
	defer events.Close()

	var (
		tid      protocol.TransactionID
		filtered bool
	)
	if submit != nil {
		var err error
		if tid, err = submit(); err != nil {
			return err
		}
		filtered = true
		defer func() {
			if err := s.Unsubscribe(tid); err != nil && !session.IsDisconnect(err) {
				log.Warn().Err(err).Uint64("transaction", tid).Msg("wbctl.unsubscribe_failed")
			}
		}()
	}

	printed := 0
	for count <= 0 || printed < count {
		msg, err := events.Recv(ctx)
		if err != nil {
			switch {
			case errors.Is(err, bus.ErrLagged):
				log.Warn().Err(err).Msg("wbctl.events_lagged")
				continue
			case errors.Is(err, bus.ErrClosed):
				return errDisconnected
			case ctx.Err() != nil:
				return nil
			default:
				return err
			}
		}
		if filtered {
			if id, ok := protocol.TransactionOf(msg); !ok || id != tid {
				continue
			}
		}
		if err := printEvent(out, msg); err != nil {
			return err
		}
		printed++
	}
	return nil
}

// printEvent writes msg as one line of tagged JSON.
func printEvent(out io.Writer, msg protocol.ServerMessage) error {
	data, err := protocol.JSON.EncodeServer(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", data)
	return err
}

// parseValue accepts any JSON value and falls back to the raw string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
