package irc

import (
	"time"
)

type Event interface{}

type RegisteredEvent struct{}

type SelfNickEvent struct {
	FormerNick string
	Time       time.Time
}

type UserNickEvent struct {
	User       string
	FormerNick string
	Time       time.Time
}

type SelfJoinEvent struct {
	Channel   string
	Topic     string
	Requested bool // whether we recently requested to join that channel
}

type UserJoinEvent struct {
	User    Identity
	Channel string
	Time    time.Time
}

type SelfPartEvent struct {
	Channel string
}

type UserPartEvent struct {
	User    string
	Channel string
	Time    time.Time
}

type UserQuitEvent struct {
	User     string
	Channels []string
	Time     time.Time
}

type TopicChangeEvent struct {
	Channel string
	Topic   string
	Who     string // empty when unknown
	Time    time.Time
}

type ModeChangeEvent struct {
	Channel string
	Mode    string
	Time    time.Time
}

type InviteEvent struct {
	Inviter string
	Invitee string
	Channel string
}

// MessageEvent is a PRIVMSG or NOTICE.
type MessageEvent struct {
	User            Identity
	Target          string
	TargetIsChannel bool
	Command         string
	Content         string
	Time            time.Time
	Tags            map[string]string
}

// TypingEvent is a typing notification carried by a TAGMSG.
type TypingEvent struct {
	User            string
	Target          string
	TargetIsChannel bool
	Typing          int
	Time            time.Time
}

type ListStartEvent struct{}

type ListItemEvent struct {
	Channel string
	Users   int
	Topic   string
}

type ListEndEvent struct{}

// MonitorEvent reports a batch of monitored users going online or offline.
type MonitorEvent struct {
	Online bool
	Users  []Identity
}

type MetadataChangeEvent struct {
	Target string
	Key    string
	Value  string
}

// AwayEvent reports a change of our own away status.
type AwayEvent struct {
	Away bool
}

type InfoEvent struct {
	Prefix  string
	Message string
}

type Severity int

const (
	SeverityNote Severity = iota
	SeverityWarn
	SeverityFail
)

type ErrorEvent struct {
	Severity Severity
	Code     string
	Message  string
}

// ReplySeverity classifies a numeric reply.
func ReplySeverity(reply string) Severity {
	switch reply[0] {
	case '4', '5':
		if reply == "422" {
			return SeverityNote
		} else {
			return SeverityFail
		}
	case '9':
		switch reply[2] {
		case '2', '4', '5', '6', '7':
			return SeverityFail
		default:
			return SeverityNote
		}
	default:
		return SeverityNote
	}
}
