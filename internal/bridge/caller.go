package bridge

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsmostafa/goconsole/internal/fault"
	"github.com/itsmostafa/goconsole/internal/shm"
)

// Caller is the interpreter end of a bridge. Its methods block and must be
// called only from the interpreter context.
type Caller struct {
	mailbox    chan<- Message
	done       <-chan struct{}
	ops        map[string]*endpoint
	checkpoint time.Duration
	check      func() error

	nextID    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// Has reports whether op is a registered bridged function.
func (c *Caller) Has(op string) bool {
	_, ok := c.ops[op]
	return ok
}

// Call invokes the bridged function op with args and blocks until its reply
// arrives. A failure reply is returned as a *fault.Error carrying the
// original kind, message and trace.
func (c *Caller) Call(op string, args any) (json.RawMessage, error) {
	ep, ok := c.ops[op]
	if !ok {
		return nil, fault.Protocol("unknown bridged function %q", op)
	}
	if !ep.busy.TryLock() {
		return nil, fault.Protocol("overlapping call to %q", op)
	}
	defer ep.busy.Unlock()

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fault.Protocol("encode arguments for %s: %v", op, err)
	}

	id := c.nextID.Add(1)
	ep.ch.Reset()
	if err := c.send(Message{Kind: KindCall, ID: id, Op: op, Payload: argsJSON}); err != nil {
		return nil, err
	}

	data, st, err := ep.ch.Await(c.checkpoint, c.check)
	if err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, fault.Protocol("%s: %v", op, err)
	}
	return decodeReply(op, id, data, st)
}

func decodeReply(op string, id uint64, data []byte, st shm.Status) (json.RawMessage, error) {
	var reply Message
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fault.Protocol("undecodable reply for %s: %v", op, err)
	}
	if reply.ID != id {
		return nil, fault.Protocol("reply for %s has id %d, want %d", op, reply.ID, id)
	}

	switch st {
	case shm.StatusOK:
		if reply.Kind != KindReply {
			return nil, fault.Protocol("reply for %s has kind %q with ok status", op, reply.Kind)
		}
		return reply.Payload, nil
	case shm.StatusError:
		var fe fault.Error
		if err := json.Unmarshal(reply.Payload, &fe); err != nil || fe.Kind == "" {
			return nil, fault.Protocol("undecodable error reply for %s", op)
		}
		return nil, &fe
	}
	return nil, fault.Protocol("reply for %s has status %v", op, st)
}

// Notify sends a notification for op without waiting for a reply.
func (c *Caller) Notify(op string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fault.Protocol("encode notification %s: %v", op, err)
	}
	return c.send(Message{Kind: KindCall, Op: op, Payload: data})
}

func (c *Caller) send(msg Message) error {
	if c.closed.Load() {
		return fault.Protocol("bridge client is closed")
	}
	select {
	case c.mailbox <- msg:
		return nil
	case <-c.done:
		return fault.Protocol("bridge server is closed")
	}
}

// Close ends the mailbox. The server's Serve returns once every message sent
// before Close has been dispatched.
func (c *Caller) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.mailbox)
	})
}
