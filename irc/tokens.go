package irc

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
)

func word(s string) (w, rest string) {
	split := strings.SplitN(s, " ", 2)

	if len(split) < 2 {
		w = split[0]
		rest = ""
	} else {
		w = split[0]
		rest = split[1]
	}

	return
}

func tagEscape(c rune) (escape rune) {
	switch c {
	case ':':
		escape = ';'
	case 's':
		escape = ' '
	case 'r':
		escape = '\r'
	case 'n':
		escape = '\n'
	default:
		escape = c
	}

	return
}

func unescapeTagValue(escaped string) (unescaped string) {
	var builder strings.Builder
	builder.Grow(len(escaped))
	escape := false

	for _, c := range escaped {
		if c == '\\' && !escape {
			escape = true
		} else {
			var cpp rune

			if escape {
				cpp = tagEscape(c)
			} else {
				cpp = c
			}

			builder.WriteRune(cpp)
			escape = false
		}
	}

	unescaped = builder.String()
	return
}

// parseTags parses the content of a tag block, without its leading '@'.
// Fragments without a key are dropped.
func parseTags(s string) (tags map[string]string) {
	tags = map[string]string{}

	for _, item := range strings.Split(s, ";") {
		if item == "" || item == "=" || item == "+" || item == "+=" {
			continue
		}

		kv := strings.SplitN(item, "=", 2)
		if kv[0] == "" {
			continue
		}
		if len(kv) < 2 {
			tags[kv[0]] = ""
		} else {
			tags[kv[0]] = unescapeTagValue(kv[1])
		}
	}

	return
}

// Line is a protocol line split into its raw parts.
//
// Params are kept verbatim: the trailing parameter, if any, still starts with
// its colon and is not split on spaces.
type Line struct {
	Tags    map[string]string
	Sender  string
	Command string
	Params  []string
}

// ParseLine splits a raw protocol line. It never fails: an empty or blank
// line gives a Line with an empty Command, which callers must ignore.
func ParseLine(raw string) (l Line) {
	l.Tags = map[string]string{}
	l.Params = []string{}

	line := strings.TrimRight(raw, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	line = strings.TrimLeft(line, " ")

	if line[0] == '@' {
		var tags string
		tags, line = word(line)
		l.Tags = parseTags(tags[1:])
		line = strings.TrimLeft(line, " ")
	}

	if strings.HasPrefix(line, ":") {
		var sender string
		sender, line = word(line)
		l.Sender = sender[1:]
		line = strings.TrimLeft(line, " ")
	}

	l.Command, line = word(line)

	for {
		line = strings.TrimLeft(line, " ")
		if line == "" {
			break
		}
		if line[0] == ':' {
			l.Params = append(l.Params, line)
			break
		}

		var param string
		param, line = word(line)
		l.Params = append(l.Params, param)
	}

	return
}

var (
	errEmptyMessage      = errors.New("empty message")
	errIncompleteMessage = errors.New("message is incomplete")
)

// Message is a protocol line as the Session understands it: the command is
// upper-cased, the sender is parsed and the trailing parameter has lost its
// colon.
type Message struct {
	Tags    map[string]string
	Prefix  *Identity
	Command string
	Params  []string
}

func NewMessage(command string, params ...string) Message {
	return Message{Command: command, Params: params}
}

// ParseMessage builds a Message on top of ParseLine.
func ParseMessage(line string) (msg Message, err error) {
	l := ParseLine(line)
	if l.Command == "" {
		if strings.TrimSpace(line) == "" {
			err = errEmptyMessage
		} else {
			err = errIncompleteMessage
		}
		return
	}

	msg.Tags = l.Tags
	msg.Command = strings.ToUpper(l.Command)
	if l.Sender != "" {
		msg.Prefix = ParsePrefix(l.Sender)
	}
	msg.Params = l.Params
	if n := len(msg.Params); n != 0 && strings.HasPrefix(msg.Params[n-1], ":") {
		msg.Params[n-1] = msg.Params[n-1][1:]
	}
	return
}

func (msg Message) WithTag(key, value string) Message {
	tags := make(map[string]string, len(msg.Tags)+1)
	for k, v := range msg.Tags {
		tags[k] = v
	}
	tags[key] = value
	msg.Tags = tags
	return msg
}

// String returns the wire form of the message, without the CRLF.
func (msg Message) String() string {
	var source string
	if msg.Prefix != nil {
		source = msg.Prefix.String()
	}
	m := ircmsg.MakeMessage(msg.Tags, source, msg.Command, msg.Params...)
	line, err := m.Line()
	if err != nil {
		// params that ircmsg refuses (spaces in a middle param) are still
		// printable for diagnostics
		var sb strings.Builder
		if source != "" {
			sb.WriteByte(':')
			sb.WriteString(source)
			sb.WriteByte(' ')
		}
		sb.WriteString(msg.Command)
		for _, p := range msg.Params {
			sb.WriteByte(' ')
			sb.WriteString(p)
		}
		return sb.String()
	}
	return strings.TrimRight(line, "\r\n")
}

// ParseParams copies the first len(out) params into out. Nil pointers skip
// the corresponding param.
func (msg *Message) ParseParams(out ...*string) error {
	if len(msg.Params) < len(out) {
		return msg.errNotEnoughParams(len(out))
	}
	for i := range out {
		if out[i] != nil {
			*out[i] = msg.Params[i]
		}
	}
	return nil
}

func (msg *Message) errNotEnoughParams(expected int) error {
	return fmt.Errorf("irc: %s: expected at least %d params, got %d", msg.Command, expected, len(msg.Params))
}

// IsReply reports whether the message is a numeric reply.
func (msg *Message) IsReply() bool {
	if len(msg.Command) != 3 {
		return false
	}
	for _, r := range msg.Command {
		if !('0' <= r && r <= '9') {
			return false
		}
	}
	return true
}

func parseTimestamp(timestamp string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t.Local(), true
}

// Time returns the server-time of the message, if any.
func (msg *Message) Time() (t time.Time, ok bool) {
	tag, ok := msg.Tags["time"]
	if !ok {
		return
	}
	return parseTimestamp(tag)
}

func (msg *Message) TimeOrNow() time.Time {
	t, ok := msg.Time()
	if ok {
		return t
	}
	return time.Now()
}

type Cap struct {
	Name   string
	Value  string
	Enable bool
}

func ParseCaps(caps string) (diff []Cap) {
	for _, c := range strings.Split(caps, " ") {
		if c == "" || c == "-" || c == "=" || c == "-=" {
			continue
		}

		var item Cap

		if strings.HasPrefix(c, "-") {
			item.Enable = false
			c = c[1:]
		} else {
			item.Enable = true
		}

		kv := strings.SplitN(c, "=", 2)
		item.Name = strings.ToLower(kv[0])
		if len(kv) > 1 {
			item.Value = kv[1]
		}

		diff = append(diff, item)
	}

	return
}
