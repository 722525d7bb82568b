package cloud

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Process handles the events queued by the transport since the last call.
// It never blocks waiting for events.
func (c *Client) Process() {
	for {
		select {
		case e := <-c.queue:
			c.handle(e)
		default:
			return
		}
	}
}

func (c *Client) handle(e Event) {
	if e.session != c.generation.Load() || c.session == nil {
		return
	}
	switch e.Kind {
	case Connected:
		c.established()
	case ConnectionLost:
		c.log.Info("Connection lost", "error", e.Err)
	case Message:
		c.dispatch(e)
	}
}

func (c *Client) dispatch(e Event) {
	segment, name, ok := c.topics.split(e.Topic)
	if !ok {
		c.log.V(1).Info("Ignoring message", "topic", e.Topic)
		return
	}
	switch segment {
	case eventsSegment:
		if h, ok := c.events.get(name); ok {
			h(name, e.Payload)
		}
	case functionsSegment:
		c.call(name, e.Payload, e.Duplicate)
	case variablesSegment:
		c.read(name)
	default:
		c.log.V(1).Info("Ignoring message", "topic", e.Topic)
	}
}

type request struct {
	ID     *int64          `json:"i"`
	Params json.RawMessage `json:"p"`
}

type response struct {
	ID     int64 `json:"i"`
	Result int   `json:"r"`
}

// parseRequest decodes {"i":<id>,"p":<params>}. Payloads that are not such
// an object are taken as plain params with a locally generated id.
func (c *Client) parseRequest(payload []byte) (id int64, params string, local bool) {
	var req request
	if err := json.Unmarshal(payload, &req); err == nil && req.ID != nil {
		return *req.ID, rawParams(req.Params), false
	}
	c.localID++
	return c.localID, string(payload), true
}

func rawParams(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func (c *Client) call(name string, payload []byte, redelivered bool) {
	fn, ok := c.functions.get(name)
	if !ok {
		c.log.Info("Unknown function", "name", name)
		return
	}
	id, params, local := c.parseRequest(payload)
	key := name + "/" + strconv.FormatInt(id, 10)

	if redelivered && !local {
		if v, found := c.results.Get(key); found {
			c.log.Info("Replaying result of redelivered call", "name", name, "id", id)
			c.respond(name, id, v.(int))
			return
		}
	}

	result := fn(params)
	c.log.V(1).Info("Called function", "name", name, "id", id, "params", params, "result", result)
	if !local {
		c.results.SetWithTTL(key, result, 1, c.opts.DedupTTL)
		c.results.Wait()
	}
	c.respond(name, id, result)
}

func (c *Client) respond(name string, id int64, result int) {
	out, _ := json.Marshal(response{ID: id, Result: result})
	c.publish(c.topics.result(name, id), out, 1, false)
}

func (c *Client) read(name string) {
	get, ok := c.variables.get(name)
	if !ok {
		c.log.Info("Unknown variable", "name", name)
		return
	}
	out, err := json.Marshal(get())
	if err != nil {
		c.log.Error(err, "Encoding variable", "name", name)
		return
	}
	c.publish(c.topics.value(name), out, 0, false)
}
