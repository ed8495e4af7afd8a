// Package bus is the in-process pub/sub fabric the host-side tooling hangs
// off: decoded device reports are published on slash-separated topics
// ("report/log", "report/test/4", "device/state") and any number of
// consumers (the REPL, the MQTT bridge, log sinks) subscribe
// independently. Topics support MQTT-style wildcards: "+" matches one
// segment, "#" matches the remainder. A publish never blocks: a full
// subscriber queue drops its oldest message.
package bus

import (
	"strings"
	"sync"
)

type Message struct {
	Topic    string
	Payload  any
	Retained bool
}

// NewMessage builds a plain, non-retained message.
func NewMessage(topic string, payload any) *Message {
	return &Message{Topic: topic, Payload: payload}
}

// NewRetained builds a message that is stored on its topic and replayed to
// late subscribers. A retained message with a nil payload clears the slot.
func NewRetained(topic string, payload any) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: true}
}

type Subscription struct {
	pattern string
	ch      chan *Message
	conn    *Connection
}

func (s *Subscription) Pattern() string          { return s.pattern }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.unsubscribe(s) }

type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

type Bus struct {
	mu   sync.RWMutex
	root *node
	qLen int
}

// New creates a bus; queueLen is the per-subscription buffer depth.
func New(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

func split(topic string) []string {
	if topic == "" {
		return nil
	}
	return strings.Split(topic, "/")
}

// Publish delivers msg to every subscription whose pattern matches the
// topic, walking literal, "+" and "#" branches of the trie.
func (b *Bus) Publish(msg *Message) {
	segs := split(msg.Topic)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.deliver(b.root, segs, msg)

	if msg.Retained {
		n := b.root
		for _, seg := range segs {
			if n.children == nil {
				n.children = make(map[string]*node)
			}
			child, ok := n.children[seg]
			if !ok {
				child = &node{}
				n.children[seg] = child
			}
			n = child
		}
		if msg.Payload == nil {
			n.retained = nil
		} else {
			n.retained = msg
		}
	}
}

func (b *Bus) deliver(n *node, segs []string, msg *Message) {
	if len(segs) == 0 {
		for _, sub := range n.subs {
			push(sub.ch, msg)
		}
		// "pattern/#" also matches the pattern's own level.
		if tail, ok := n.children["#"]; ok {
			for _, sub := range tail.subs {
				push(sub.ch, msg)
			}
		}
		return
	}
	if n.children == nil {
		return
	}
	if child, ok := n.children[segs[0]]; ok {
		b.deliver(child, segs[1:], msg)
	}
	if child, ok := n.children["+"]; ok {
		b.deliver(child, segs[1:], msg)
	}
	if tail, ok := n.children["#"]; ok {
		for _, sub := range tail.subs {
			push(sub.ch, msg)
		}
	}
}

// push enqueues without blocking, evicting the subscriber's oldest message
// when its buffer is full.
func push(ch chan *Message, msg *Message) {
	select {
	case ch <- msg:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- msg
	}
}

func (b *Bus) addSubscription(sub *Subscription) {
	segs := split(sub.pattern)

	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, seg := range segs {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[seg]
		if !ok {
			child = &node{}
			n.children[seg] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	// Replay retained messages the pattern already matches.
	b.replayRetained(b.root, segs, sub)
}

func (b *Bus) replayRetained(n *node, pattern []string, sub *Subscription) {
	if len(pattern) == 0 {
		if n.retained != nil {
			push(sub.ch, n.retained)
		}
		return
	}
	if n.children == nil {
		return
	}
	switch pattern[0] {
	case "#":
		b.replayAll(n, sub)
	case "+":
		for _, child := range n.children {
			b.replayRetained(child, pattern[1:], sub)
		}
	default:
		if child, ok := n.children[pattern[0]]; ok {
			b.replayRetained(child, pattern[1:], sub)
		}
	}
}

func (b *Bus) replayAll(n *node, sub *Subscription) {
	if n.retained != nil {
		push(sub.ch, n.retained)
	}
	for _, child := range n.children {
		b.replayAll(child, sub)
	}
}

func (b *Bus) removeSubscription(sub *Subscription) {
	segs := split(sub.pattern)

	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	stack := make([]*node, 0, len(segs))
	for _, seg := range segs {
		if n.children == nil {
			return
		}
		child, ok := n.children[seg]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	for i := len(segs) - 1; i >= 0; i-- {
		parent := stack[i]
		child := parent.children[segs[i]]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, segs[i])
		} else {
			break
		}
	}
}

// Connection groups subscriptions under one owner so a consumer can detach
// in a single call.
type Connection struct {
	bus  *Bus
	mu   sync.Mutex
	subs []*Subscription
	name string
}

func (b *Bus) NewConnection(name string) *Connection {
	return &Connection{bus: b, name: name}
}

func (c *Connection) Name() string { return c.name }

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

func (c *Connection) Subscribe(pattern string) *Subscription {
	sub := &Subscription{pattern: pattern, ch: make(chan *Message, c.bus.qLen), conn: c}
	c.bus.addSubscription(sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

func (c *Connection) unsubscribe(sub *Subscription) {
	c.bus.removeSubscription(sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect tears down every subscription the connection owns.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.removeSubscription(sub)
		close(sub.ch)
	}
}
