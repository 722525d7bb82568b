// Package cloud keeps the device's publish-subscribe session with the cloud
// and routes inbound messages to registered events, functions and variables.
//
// A Client is driven from a single goroutine (the tick loop). The transport
// only posts events into a bounded queue, drained by Process.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/go-logr/logr"
)

var ErrCapacity = errors.New("cloud: registry full")

type EventHandler func(name string, payload []byte)

// FunctionHandler handles a remote call and returns its result code.
type FunctionHandler func(params string) int

// Getter returns the current value of a variable, serialized to JSON.
type Getter func() any

// Ref returns a Getter reading *p at each call.
func Ref[T any](p *T) Getter {
	return func() any { return *p }
}

// subscribeQoS applies to every subscription the client makes.
const subscribeQoS byte = 1

type PublishFlags uint8

const (
	// WithAck publishes at QoS 1.
	WithAck PublishFlags = 1 << iota
	Retained
)

// Identity supplies the session credentials.
type Identity interface {
	AccessToken() string
	UserInfo(ctx context.Context, timeout time.Duration) (string, error)
}

type Options struct {
	DeviceID    string
	BoardName   string
	Version     string
	Capacity    int
	HTTPTimeout time.Duration
	MQTTTimeout time.Duration
	QueueSize   int
	// DedupTTL is how long a function result is kept for redelivered calls.
	DedupTTL time.Duration
}

func (o *Options) setDefaults() {
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = 3 * time.Second
	}
	if o.MQTTTimeout <= 0 {
		o.MQTTTimeout = 5 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.DedupTTL <= 0 {
		o.DedupTTL = time.Minute
	}
}

type Client struct {
	log      logr.Logger
	opts     Options
	topics   topics
	identity Identity
	dialer   Dialer

	events    table[EventHandler]
	functions table[FunctionHandler]
	variables table[Getter]

	session  Session
	username string
	ready    bool

	generation atomic.Uint64
	// lostGen is the generation of the last session reported lost.
	lostGen    atomic.Uint64
	queue      chan Event
	dropped    atomic.Uint64

	results *ristretto.Cache
	localID int64
}

func NewClient(log logr.Logger, identity Identity, dialer Dialer, opts Options) (*Client, error) {
	opts.setDefaults()
	if opts.DeviceID == "" {
		return nil, errors.New("cloud: empty device id")
	}
	results, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}
	return &Client{
		log:       log.WithName("cloud"),
		opts:      opts,
		topics:    newTopics(opts.DeviceID),
		identity:  identity,
		dialer:    dialer,
		events:    newTable[EventHandler](opts.Capacity),
		functions: newTable[FunctionHandler](opts.Capacity),
		variables: newTable[Getter](opts.Capacity),
		queue:     make(chan Event, opts.QueueSize),
		results:   results,
	}, nil
}

func (c *Client) DeviceID() string { return c.opts.DeviceID }

// Username is the identity resolved at the last successful Connect.
func (c *Client) Username() string { return c.username }

// Dropped counts inbound events lost to a full queue.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

// Connect resolves the identity, then opens a new session. It returns false,
// with nothing left open, when any step fails.
func (c *Client) Connect(ctx context.Context) bool {
	if c.session != nil {
		c.Disconnect()
	}

	token := c.identity.AccessToken()
	if token == "" {
		c.log.Info("No access token")
		return false
	}
	username, err := c.identity.UserInfo(ctx, c.opts.HTTPTimeout)
	if err != nil {
		c.log.Info("Resolving identity failed", "error", err)
		return false
	}

	gen := c.generation.Add(1)
	post := func(e Event) {
		e.session = gen
		c.post(e)
	}
	session, err := c.dialer.Dial(ctx, SessionOptions{
		ClientID: c.opts.DeviceID,
		Username: username,
		Password: token,
		Timeout:  c.opts.MQTTTimeout,
	}, post)
	if err != nil {
		c.log.Info("Creating session failed", "error", err)
		return false
	}
	if err := session.Start(ctx); err != nil {
		c.log.Info("Starting session failed", "error", err)
		session.Close()
		return false
	}

	c.session = session
	c.username = username
	c.ready = false
	c.log.Info("Connected", "device_id", c.opts.DeviceID, "username", username)
	return true
}

// post is called from transport goroutines.
func (c *Client) post(e Event) {
	if e.session != c.generation.Load() {
		return
	}
	if e.Kind == ConnectionLost {
		c.lostGen.Store(e.session)
	}
	select {
	case c.queue <- e:
	default:
		c.dropped.Add(1)
	}
}

func (c *Client) Disconnect() {
	c.generation.Add(1)
	if c.session != nil {
		c.session.Close()
		c.session = nil
		c.log.Info("Disconnected")
	}
	c.ready = false
}

// IsConnected tears the session down the first time it observes that the
// transport lost it.
func (c *Client) IsConnected() bool {
	if c.session == nil {
		return false
	}
	if c.lostGen.Load() == c.generation.Load() {
		c.log.Info("Session lost")
		c.Disconnect()
		return false
	}
	return true
}

func (c *Client) qos(flags PublishFlags) byte {
	if flags&WithAck != 0 {
		return 1
	}
	return 0
}

// Publish sends payload as event name.
func (c *Client) Publish(name string, payload []byte, flags PublishFlags) bool {
	return c.publish(c.topics.event(name), payload, c.qos(flags), flags&Retained != 0)
}

func (c *Client) publish(topic string, payload []byte, qos byte, retained bool) bool {
	if !c.IsConnected() {
		return false
	}
	if err := c.session.Publish(topic, qos, retained, payload); err != nil {
		c.log.Info("Publish failed", "topic", topic, "error", err)
		return false
	}
	c.log.V(1).Info("Published", "topic", topic, "payload", string(payload))
	return true
}

// Subscribe registers handler for event name, replacing any previous handler.
func (c *Client) Subscribe(name string, handler EventHandler) bool {
	if !c.events.put(name, handler) {
		c.log.Info("Event table full", "name", name, "error", ErrCapacity)
		return false
	}
	if c.ready && c.IsConnected() {
		if err := c.session.Subscribe(c.topics.event(name), subscribeQoS); err != nil {
			c.log.Info("Subscribe failed", "name", name, "error", err)
			return false
		}
	}
	return true
}

func (c *Client) Unsubscribe(name string) {
	if !c.events.remove(name) {
		return
	}
	if c.ready && c.IsConnected() {
		if err := c.session.Unsubscribe(c.topics.event(name)); err != nil {
			c.log.Info("Unsubscribe failed", "name", name, "error", err)
		}
	}
}

// Function registers a remotely callable function.
func (c *Client) Function(name string, fn FunctionHandler) bool {
	if !c.functions.put(name, fn) {
		c.log.Info("Function table full", "name", name, "error", ErrCapacity)
		return false
	}
	c.readvertise()
	return true
}

// Variable registers a remotely readable variable.
func (c *Client) Variable(name string, get Getter) bool {
	if !c.variables.put(name, get) {
		c.log.Info("Variable table full", "name", name, "error", ErrCapacity)
		return false
	}
	c.readvertise()
	return true
}

func (c *Client) readvertise() {
	if c.ready && c.IsConnected() {
		c.advertiseCapabilities()
	}
}

type hello struct {
	ID      string `json:"id"`
	User    string `json:"user"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Capabilities struct {
	Functions []string `json:"functions"`
	Variables []string `json:"variables"`
}

// Capabilities lists registered names in registration order.
func (c *Client) Capabilities() Capabilities {
	return Capabilities{
		Functions: c.functions.names(),
		Variables: c.variables.names(),
	}
}

// established subscribes and advertises once the transport confirms the session.
func (c *Client) established() {
	subs := append([]string{c.topics.functions(), c.topics.variables()}, c.eventTopics()...)
	for _, topic := range subs {
		if err := c.session.Subscribe(topic, subscribeQoS); err != nil {
			c.log.Info("Subscribe failed", "topic", topic, "error", err)
		}
	}
	c.ready = true

	h, _ := json.Marshal(hello{ID: c.opts.DeviceID, User: c.username, Name: c.opts.BoardName, Version: c.opts.Version})
	c.publish(c.topics.hello(), h, 1, true)
	c.advertiseCapabilities()
}

func (c *Client) eventTopics() []string {
	var topics []string
	for _, name := range c.events.names() {
		topics = append(topics, c.topics.event(name))
	}
	return topics
}

func (c *Client) advertiseCapabilities() {
	doc, err := json.Marshal(c.Capabilities())
	if err != nil {
		c.log.Error(err, "Encoding capabilities")
		return
	}
	c.publish(c.topics.capabilities(), doc, 1, true)
}

// Close disconnects and releases the result cache.
func (c *Client) Close() {
	c.Disconnect()
	c.results.Close()
}
