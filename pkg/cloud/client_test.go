package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identity struct {
	token string
	user  string
	err   error
}

func (i identity) AccessToken() string { return i.token }

func (i identity) UserInfo(context.Context, time.Duration) (string, error) {
	return i.user, i.err
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakeSession struct {
	mu         sync.Mutex
	post       PostFunc
	startErr   error
	started    bool
	closed     bool
	subscribed []string
	subQoS     map[string]byte
	published  []published
}

func (s *fakeSession) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	s.post(Event{Kind: Connected})
	return nil
}

func (s *fakeSession) Subscribe(topic string, qos byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = append(s.subscribed, topic)
	if s.subQoS == nil {
		s.subQoS = make(map[string]byte)
	}
	s.subQoS[topic] = qos
	return nil
}

func (s *fakeSession) Unsubscribe(string) error { return nil }

func (s *fakeSession) Publish(topic string, qos byte, retained bool, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, published{topic, qos, retained, string(payload)})
	return nil
}

func (s *fakeSession) Close() { s.closed = true }

func (s *fakeSession) last() published {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[len(s.published)-1]
}

func (s *fakeSession) find(topic string) (published, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.published {
		if p.topic == topic {
			return p, true
		}
	}
	return published{}, false
}

type fakeDialer struct {
	session  *fakeSession
	dialErr  error
	opts     SessionOptions
	sessions int
}

func (d *fakeDialer) Dial(_ context.Context, opts SessionOptions, post PostFunc) (Session, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.opts = opts
	d.sessions++
	if d.session == nil || d.session.closed {
		d.session = &fakeSession{}
	}
	d.session.post = post
	return d.session, nil
}

func newClient(t *testing.T, id Identity) (*Client, *fakeDialer) {
	d := &fakeDialer{}
	c, err := NewClient(testr.New(t), id, d, Options{DeviceID: "dev1", BoardName: "kitchen", Version: "v1"})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, d
}

func connected(t *testing.T) (*Client, *fakeSession) {
	c, d := newClient(t, identity{token: "at", user: "alice"})
	require.True(t, c.Connect(context.Background()))
	c.Process()
	return c, d.session
}

func TestConnectSequence(t *testing.T) {
	c, d := newClient(t, identity{token: "at", user: "alice"})
	require.True(t, c.Function("ping", func(string) int { return 1 }))
	require.True(t, c.Subscribe("alarm", func(string, []byte) {}))

	require.True(t, c.Connect(context.Background()))
	assert.Equal(t, SessionOptions{ClientID: "dev1", Username: "alice", Password: "at", Timeout: 5 * time.Second}, d.opts)
	assert.Equal(t, "alice", c.Username())

	c.Process()
	s := d.session
	assert.Equal(t, []string{"devices/dev1/functions/+", "devices/dev1/variables/+", "devices/dev1/events/alarm"}, s.subscribed)

	hello, ok := s.find("devices/dev1/hello")
	require.True(t, ok)
	assert.True(t, hello.retained)
	assert.JSONEq(t, `{"id":"dev1","user":"alice","name":"kitchen","version":"v1"}`, hello.payload)
}

func TestCapabilityAdvertisement(t *testing.T) {
	c, d := newClient(t, identity{token: "at", user: "alice"})
	uptime := 42
	require.True(t, c.Function("ping", func(string) int { return 0 }))
	require.True(t, c.Variable("uptime", Ref(&uptime)))
	require.True(t, c.Connect(context.Background()))
	c.Process()

	caps, ok := d.session.find("devices/dev1/capabilities")
	require.True(t, ok)
	assert.True(t, caps.retained)
	assert.Equal(t, byte(1), caps.qos)
	assert.JSONEq(t, `{"functions":["ping"],"variables":["uptime"]}`, caps.payload)
}

func TestEmptyCapabilities(t *testing.T) {
	_, s := connected(t)
	caps, ok := s.find("devices/dev1/capabilities")
	require.True(t, ok)
	assert.JSONEq(t, `{"functions":[],"variables":[]}`, caps.payload)
}

func TestFunctionDispatch(t *testing.T) {
	c, s := connected(t)
	require.True(t, c.Function("double", func(p string) int {
		n, _ := strconv.Atoi(p)
		return 2 * n
	}))

	s.post(Event{Kind: Message, Topic: "devices/dev1/functions/double", Payload: []byte(`{"i":7,"p":"42"}`)})
	c.Process()

	last := s.last()
	assert.Equal(t, "devices/dev1/results/double/7", last.topic)
	assert.JSONEq(t, `{"i":7,"r":84}`, last.payload)
}

func TestFunctionLegacyPayload(t *testing.T) {
	c, s := connected(t)
	var got []string
	require.True(t, c.Function("echo", func(p string) int {
		got = append(got, p)
		return len(p)
	}))

	s.post(Event{Kind: Message, Topic: "devices/dev1/functions/echo", Payload: []byte("hello")})
	s.post(Event{Kind: Message, Topic: "devices/dev1/functions/echo", Payload: []byte("{broken")})
	c.Process()

	assert.Equal(t, []string{"hello", "{broken"}, got)
	last := s.last()
	assert.Equal(t, "devices/dev1/results/echo/2", last.topic)
	assert.JSONEq(t, `{"i":2,"r":7}`, last.payload)
}

func TestRedeliveredCallIsNotRepeated(t *testing.T) {
	c, s := connected(t)
	calls := 0
	require.True(t, c.Function("toggle", func(string) int {
		calls++
		return calls
	}))

	call := []byte(`{"i":9,"p":""}`)
	s.post(Event{Kind: Message, Topic: "devices/dev1/functions/toggle", Payload: call})
	c.Process()
	s.post(Event{Kind: Message, Topic: "devices/dev1/functions/toggle", Payload: call, Duplicate: true})
	c.Process()

	assert.Equal(t, 1, calls)
	assert.JSONEq(t, `{"i":9,"r":1}`, s.last().payload)

	s.post(Event{Kind: Message, Topic: "devices/dev1/functions/toggle", Payload: call})
	c.Process()
	assert.Equal(t, 2, calls)
}

func TestVariableRead(t *testing.T) {
	c, s := connected(t)
	temp := 21.5
	require.True(t, c.Variable("temp", Ref(&temp)))
	temp = 22.25

	s.post(Event{Kind: Message, Topic: "devices/dev1/variables/temp", Payload: []byte("anything")})
	c.Process()

	last := s.last()
	assert.Equal(t, "devices/dev1/values/temp", last.topic)
	assert.Equal(t, "22.25", last.payload)
}

func TestEventDispatch(t *testing.T) {
	c, s := connected(t)
	var got string
	require.True(t, c.Subscribe("alarm", func(name string, payload []byte) {
		got = name + "=" + string(payload)
	}))
	assert.Contains(t, s.subscribed, "devices/dev1/events/alarm")

	s.post(Event{Kind: Message, Topic: "devices/dev1/events/alarm", Payload: []byte("on")})
	s.post(Event{Kind: Message, Topic: "devices/dev2/events/alarm", Payload: []byte("other")})
	s.post(Event{Kind: Message, Topic: "devices/dev1/events/unknown", Payload: []byte("x")})
	c.Process()
	assert.Equal(t, "alarm=on", got)
}

func TestEventSubscriptionsShareQoS(t *testing.T) {
	c, d := newClient(t, identity{token: "at", user: "alice"})
	require.True(t, c.Subscribe("alarm", func(string, []byte) {}))
	require.True(t, c.Connect(context.Background()))
	c.Process()
	require.True(t, c.Subscribe("door", func(string, []byte) {}))

	s := d.session
	assert.Equal(t, byte(1), s.subQoS["devices/dev1/events/alarm"])
	assert.Equal(t, byte(1), s.subQoS["devices/dev1/events/door"])
	assert.Equal(t, byte(1), s.subQoS["devices/dev1/functions/+"])
}

func TestPublish(t *testing.T) {
	c, _ := newClient(t, identity{token: "at", user: "alice"})
	assert.False(t, c.Publish("heartbeat", []byte("{}"), 0))

	c, s := connected(t)
	require.True(t, c.Publish("heartbeat", []byte(`{"uptime":3}`), WithAck|Retained))
	assert.Equal(t, published{"devices/dev1/events/heartbeat", 1, true, `{"uptime":3}`}, s.last())
}

func TestRegistryCapacity(t *testing.T) {
	c, _ := newClient(t, identity{})
	for i := 0; i < DefaultCapacity; i++ {
		require.True(t, c.Function("f"+strconv.Itoa(i), func(string) int { return i }))
	}
	assert.False(t, c.Function("overflow", func(string) int { return 0 }))
	assert.True(t, c.Function("f3", func(string) int { return -1 }))
	assert.Len(t, c.Capabilities().Functions, DefaultCapacity)
	assert.Equal(t, "f3", c.Capabilities().Functions[3])
}

func TestDuplicateNameReplacesHandler(t *testing.T) {
	c, s := connected(t)
	require.True(t, c.Function("f", func(string) int { return 1 }))
	require.True(t, c.Function("f", func(string) int { return 2 }))
	s.post(Event{Kind: Message, Topic: "devices/dev1/functions/f", Payload: []byte(`{"i":1}`)})
	c.Process()
	assert.JSONEq(t, `{"i":1,"r":2}`, s.last().payload)
	assert.Equal(t, []string{"f"}, c.Capabilities().Functions)
}

func TestConnectFailures(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		c, d := newClient(t, identity{user: "alice"})
		assert.False(t, c.Connect(context.Background()))
		assert.Equal(t, 0, d.sessions)
	})
	t.Run("identity", func(t *testing.T) {
		c, d := newClient(t, identity{token: "at", err: errors.New("401")})
		assert.False(t, c.Connect(context.Background()))
		assert.Equal(t, 0, d.sessions)
	})
	t.Run("dial", func(t *testing.T) {
		c, d := newClient(t, identity{token: "at", user: "alice"})
		d.dialErr = errors.New("bad broker")
		assert.False(t, c.Connect(context.Background()))
		assert.False(t, c.IsConnected())
	})
	t.Run("start", func(t *testing.T) {
		c, d := newClient(t, identity{token: "at", user: "alice"})
		d.session = &fakeSession{startErr: errors.New("refused")}
		assert.False(t, c.Connect(context.Background()))
		assert.True(t, d.session.closed)
		assert.False(t, c.IsConnected())
	})
}

func TestLostSessionIsTornDown(t *testing.T) {
	c, s := connected(t)
	require.True(t, c.IsConnected())

	s.post(Event{Kind: ConnectionLost, Err: errors.New("EOF")})
	assert.False(t, c.IsConnected())
	assert.True(t, s.closed)
	assert.False(t, c.IsConnected())

	// events of the old session are ignored
	s.post(Event{Kind: ConnectionLost})
	c.Process()
	assert.NotEqual(t, c.generation.Load(), c.lostGen.Load())
}

func TestStaleLossDoesNotMarkNewSession(t *testing.T) {
	c, s := connected(t)
	old := c.generation.Load()
	oldPost := s.post

	require.True(t, c.Connect(context.Background()))
	c.Process()
	// a loss of the previous session that got past the generation check
	// just before the reconnect
	c.lostGen.Store(old)
	assert.True(t, c.IsConnected())

	oldPost(Event{Kind: ConnectionLost})
	assert.True(t, c.IsConnected())
}

func TestQueueOverflowDropsMessages(t *testing.T) {
	d := &fakeDialer{}
	c, err := NewClient(testr.New(t), identity{token: "at", user: "alice"}, d, Options{DeviceID: "dev1", QueueSize: 2})
	require.NoError(t, err)
	defer c.Close()
	require.True(t, c.Connect(context.Background()))

	for i := 0; i < 3; i++ {
		d.session.post(Event{Kind: Message, Topic: "devices/dev1/events/x"})
	}
	assert.Equal(t, uint64(2), c.Dropped())
}

func TestRequestDecoding(t *testing.T) {
	c, _ := newClient(t, identity{})
	tests := []struct {
		payload string
		id      int64
		params  string
		local   bool
	}{
		{`{"i":3,"p":"on"}`, 3, "on", false},
		{`{"i":4,"p":12}`, 4, "12", false},
		{`{"i":5}`, 5, "", false},
		{`{"p":"x"}`, 1, `{"p":"x"}`, true},
		{`plain`, 2, "plain", true},
	}
	for _, tt := range tests {
		id, params, local := c.parseRequest([]byte(tt.payload))
		assert.Equal(t, tt.id, id, tt.payload)
		assert.Equal(t, tt.params, params, tt.payload)
		assert.Equal(t, tt.local, local, tt.payload)
	}
}

func TestHelloDocument(t *testing.T) {
	b, err := json.Marshal(hello{ID: "a"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","user":"","name":"","version":""}`, string(b))
}
