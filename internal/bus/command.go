// SPDX-License-Identifier: MIT

/*
Package bus carries remote commands to the session controller.

Commands are JSON objects with a single "play" key:

	{"play": "https://example.org/track.mp3"}   start a session
	{"play": "stop"}                            stop the active session

Any other payload is ignored. Primary nodes republish play commands on a
mirror topic so a companion node plays the audible track.
*/
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CommandKind tags a Command.
type CommandKind int

const (
	CommandPlay CommandKind = iota + 1
	CommandStop
)

func (k CommandKind) String() string {
	switch k {
	case CommandPlay:
		return "play"
	case CommandStop:
		return "stop"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// StopKeyword is the "play" value that stops playback.
const StopKeyword = "stop"

// Command is a decoded control message. Source is set for CommandPlay only.
type Command struct {
	Kind   CommandKind
	Source string
}

func Play(source string) Command { return Command{Kind: CommandPlay, Source: source} }

func Stop() Command { return Command{Kind: CommandStop} }

func (c Command) String() string {
	if c.Kind == CommandPlay {
		return fmt.Sprintf("play(%s)", c.Source)
	}
	return c.Kind.String()
}

type wireCommand struct {
	Play *string `json:"play"`
}

// ParseCommand decodes payload. ok is false for anything that is not a JSON
// object with a non-empty string "play" value.
func ParseCommand(payload []byte) (cmd Command, ok bool) {
	var w wireCommand
	if err := json.Unmarshal(payload, &w); err != nil || w.Play == nil {
		return Command{}, false
	}
	value := strings.TrimSpace(*w.Play)
	switch {
	case value == "":
		return Command{}, false
	case strings.EqualFold(value, StopKeyword):
		return Stop(), true
	default:
		return Play(value), true
	}
}

// Encode returns the wire form of c.
func (c Command) Encode() ([]byte, error) {
	var value string
	switch c.Kind {
	case CommandPlay:
		if c.Source == "" {
			return nil, fmt.Errorf("play command without a source")
		}
		value = c.Source
	case CommandStop:
		value = StopKeyword
	default:
		return nil, fmt.Errorf("cannot encode %v", c.Kind)
	}
	return json.Marshal(wireCommand{Play: &value})
}

// Handler receives every message published on a subscribed topic.
// Handlers run on the transport's dispatch goroutine and must not block.
type Handler func(topic string, payload []byte)

// Bus is a topic-based message transport.
type Bus interface {
	Subscribe(topic string, h Handler) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// TransportError reports a failed publish or subscribe.
type TransportError struct {
	Topic string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bus: topic '%s': %v", e.Topic, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
