package inproc

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrAgentNotRegistered = errors.New("agent is not registered in bus")
	ErrMailboxClosed      = errors.New("agent mailbox is closed")
)

// Mailbox is an unbounded FIFO inbox owned by a single consumer. Senders
// never block, so a reply can always be delivered while the recipient is busy.
type Mailbox[M any] struct {
	mu     sync.Mutex
	items  []M
	closed bool
	notify chan struct{}
}

func newMailbox[M any]() *Mailbox[M] {
	return &Mailbox[M]{notify: make(chan struct{}, 1)}
}

func (m *Mailbox[M]) put(msg M) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMailboxClosed
	}
	m.items = append(m.items, msg)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// Receive blocks until a message is available, the mailbox is closed, or ctx
// is done. The second result is false once no more messages will be returned.
func (m *Mailbox[M]) Receive(ctx context.Context) (M, bool) {
	var zero M
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return zero, false
		}
		if len(m.items) > 0 {
			msg := m.items[0]
			m.items[0] = zero
			m.items = m.items[1:]
			m.mu.Unlock()
			return msg, true
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, false
		case <-m.notify:
		}
	}
}

// Len reports the number of queued messages.
func (m *Mailbox[M]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// close rejects further sends and hands back whatever was still queued.
func (m *Mailbox[M]) close() []M {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	left := m.items
	m.items = nil
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return left
}

// Bus routes messages of one type to mailboxes keyed by agent ID.
type Bus[M any] struct {
	mu   sync.RWMutex
	subs map[string]*Mailbox[M]
}

func New[M any]() *Bus[M] {
	return &Bus[M]{
		subs: make(map[string]*Mailbox[M]),
	}
}

func (b *Bus[M]) Register(agentID string) *Mailbox[M] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if mb, ok := b.subs[agentID]; ok {
		return mb
	}
	mb := newMailbox[M]()
	b.subs[agentID] = mb
	return mb
}

// Unregister removes the agent and returns the messages it never received.
func (b *Bus[M]) Unregister(agentID string) []M {
	b.mu.Lock()
	mb, ok := b.subs[agentID]
	if ok {
		delete(b.subs, agentID)
	}
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return mb.close()
}

func (b *Bus[M]) Publish(agentID string, msg M) error {
	b.mu.RLock()
	mb, ok := b.subs[agentID]
	b.mu.RUnlock()
	if !ok {
		return ErrAgentNotRegistered
	}
	if err := mb.put(msg); err != nil {
		return ErrAgentNotRegistered
	}
	return nil
}

func (b *Bus[M]) Registered(agentID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.subs[agentID]
	return ok
}
