package cloud

import (
	"fmt"
	"strings"
)

const (
	TopicRoot = "devices"

	eventsSegment    = "events"
	functionsSegment = "functions"
	variablesSegment = "variables"
	resultsSegment   = "results"
	valuesSegment    = "values"
	helloSegment     = "hello"
	capsSegment      = "capabilities"
)

// topics builds the topics of one device, all under devices/<id>/.
type topics struct {
	prefix string
}

func newTopics(deviceID string) topics {
	return topics{prefix: TopicRoot + "/" + deviceID + "/"}
}

func (t topics) event(name string) string    { return t.prefix + eventsSegment + "/" + name }
func (t topics) function(name string) string { return t.prefix + functionsSegment + "/" + name }
func (t topics) variable(name string) string { return t.prefix + variablesSegment + "/" + name }
func (t topics) value(name string) string    { return t.prefix + valuesSegment + "/" + name }
func (t topics) hello() string               { return t.prefix + helloSegment }
func (t topics) capabilities() string        { return t.prefix + capsSegment }

func (t topics) result(name string, requestID int64) string {
	return fmt.Sprintf("%s%s/%s/%d", t.prefix, resultsSegment, name, requestID)
}

func (t topics) functions() string { return t.function("+") }
func (t topics) variables() string { return t.variable("+") }

// split strips the device prefix and returns the namespace segment and the
// remaining name. ok is false for topics of another device.
func (t topics) split(topic string) (segment, name string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix)
	if !found {
		return "", "", false
	}
	segment, name, found = strings.Cut(rest, "/")
	if !found || name == "" {
		return "", "", false
	}
	return segment, name, true
}
