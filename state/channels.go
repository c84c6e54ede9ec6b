package state

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Reserved channel names.
const (
	StatusChannel = "Status"
	DebugChannel  = "Debug"
)

const (
	DefaultMaxMessages = 500
	// TypingTimeout is how long a typing notification lasts without being
	// refreshed.
	TypingTimeout = 6 * time.Second
)

type Category int

const (
	CategoryChannel Category = iota
	CategoryPriv
	CategoryStatus
	CategoryDebug
)

func (c Category) String() string {
	switch c {
	case CategoryChannel:
		return "channel"
	case CategoryPriv:
		return "priv"
	case CategoryStatus:
		return "status"
	case CategoryDebug:
		return "debug"
	}
	return "unknown"
}

// Categorize returns the category of name, given the channel prefixes of the
// server.
func Categorize(name, chantypes string) Category {
	switch name {
	case StatusChannel:
		return CategoryStatus
	case DebugChannel:
		return CategoryDebug
	}
	if name == "" || strings.IndexByte(chantypes, name[0]) < 0 {
		return CategoryPriv
	}
	return CategoryChannel
}

// Channel is a snapshot of a stored channel.
type Channel struct {
	Name         string
	Category     Category
	Messages     []Message
	Topic        string
	TopicSetBy   string
	TopicSetTime time.Time
	Unread       int
	Mention      bool
	Typing       []string // sorted
	Avatar       string
	DisplayName  string
}

type channel struct {
	name         string
	category     Category
	messages     []Message
	topic        string
	topicSetBy   string
	topicSetTime time.Time
	unread       int
	mention      bool
	typing       map[string]time.Time
	avatar       string
	displayName  string
}

func (c *channel) snapshot() Channel {
	typing := make([]string, 0, len(c.typing))
	for nick := range c.typing {
		typing = append(typing, nick)
	}
	sort.Strings(typing)
	return Channel{
		Name:         c.name,
		Category:     c.category,
		Messages:     append([]Message(nil), c.messages...),
		Topic:        c.topic,
		TopicSetBy:   c.topicSetBy,
		TopicSetTime: c.topicSetTime,
		Unread:       c.unread,
		Mention:      c.mention,
		Typing:       typing,
		Avatar:       c.avatar,
		DisplayName:  c.displayName,
	}
}

// Channels stores channels by exact name, in insertion order.
type Channels struct {
	mu          sync.RWMutex
	maxMessages int
	list        []*channel
	byName      map[string]*channel
	active      string
	now         func() time.Time

	// OnEvict, if set, is called with the channel name each time a message is
	// evicted.
	OnEvict func(channel string)
}

// NewChannels returns an empty store keeping at most maxMessages messages
// per channel. A non-positive value selects DefaultMaxMessages.
func NewChannels(maxMessages int) *Channels {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Channels{
		maxMessages: maxMessages,
		byName:      map[string]*channel{},
		now:         time.Now,
	}
}

// Add creates the channel if it does not exist yet. It reports whether the
// channel was created.
func (cs *Channels) Add(name string, category Category) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.byName[name]; ok {
		return false
	}
	c := &channel{
		name:     name,
		category: category,
		typing:   map[string]time.Time{},
	}
	cs.list = append(cs.list, c)
	cs.byName[name] = c
	return true
}

func (cs *Channels) Remove(name string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.byName[name]; !ok {
		return false
	}
	delete(cs.byName, name)
	for i, c := range cs.list {
		if c.name == name {
			cs.list = append(cs.list[:i], cs.list[i+1:]...)
			break
		}
	}
	if cs.active == name {
		cs.active = ""
	}
	return true
}

func (cs *Channels) Has(name string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	_, ok := cs.byName[name]
	return ok
}

func (cs *Channels) Get(name string) (Channel, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	c, ok := cs.byName[name]
	if !ok {
		return Channel{}, false
	}
	return c.snapshot(), true
}

// Names returns the channel names in insertion order.
func (cs *Channels) Names() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	names := make([]string, len(cs.list))
	for i, c := range cs.list {
		names[i] = c.name
	}
	return names
}

// update runs f on the named channel under the write lock. It reports
// whether the channel exists.
func (cs *Channels) update(name string, f func(c *channel)) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c, ok := cs.byName[name]
	if !ok {
		return false
	}
	f(c)
	return true
}

// AppendMessage appends msg to the channel, evicting the oldest message when
// the channel is full.
func (cs *Channels) AppendMessage(name string, msg Message) bool {
	evicted := 0
	ok := cs.update(name, func(c *channel) {
		c.messages = append(c.messages, msg)
		if n := len(c.messages) - cs.maxMessages; n > 0 {
			evicted = n
			c.messages = append([]Message(nil), c.messages[n:]...)
		}
	})
	if cs.OnEvict != nil {
		for i := 0; i < evicted; i++ {
			cs.OnEvict(name)
		}
	}
	return ok
}

func (cs *Channels) SetTopic(name, topic, setBy string, at time.Time) bool {
	return cs.update(name, func(c *channel) {
		c.topic = topic
		c.topicSetBy = setBy
		c.topicSetTime = at
	})
}

func (cs *Channels) Topic(name string) (topic, setBy string, at time.Time) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if c, ok := cs.byName[name]; ok {
		topic, setBy, at = c.topic, c.topicSetBy, c.topicSetTime
	}
	return
}

// SetTyping marks nick as typing in the channel, or clears it.
func (cs *Channels) SetTyping(name, nick string, typing bool) bool {
	now := cs.now()
	return cs.update(name, func(c *channel) {
		if typing {
			c.typing[nick] = now
		} else {
			delete(c.typing, nick)
		}
	})
}

// Typing returns the sorted nicks typing in the channel.
func (cs *Channels) Typing(name string) []string {
	c, _ := cs.Get(name)
	return c.Typing
}

// ExpireTyping drops typing entries older than TypingTimeout in every
// channel. It returns the names of the channels that changed.
func (cs *Channels) ExpireTyping() (changed []string) {
	now := cs.now()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, c := range cs.list {
		n := len(c.typing)
		for nick, t := range c.typing {
			if now.Sub(t) >= TypingTimeout {
				delete(c.typing, nick)
			}
		}
		if len(c.typing) != n {
			changed = append(changed, c.name)
		}
	}
	return
}

func (cs *Channels) IncreaseUnread(name string) bool {
	return cs.update(name, func(c *channel) {
		c.unread++
	})
}

// ClearUnread resets the unread counter and the mention flag.
func (cs *Channels) ClearUnread(name string) bool {
	return cs.update(name, func(c *channel) {
		c.unread = 0
		c.mention = false
	})
}

func (cs *Channels) SetMention(name string) bool {
	return cs.update(name, func(c *channel) {
		c.mention = true
	})
}

func (cs *Channels) SetAvatar(name, avatar string) bool {
	return cs.update(name, func(c *channel) {
		c.avatar = avatar
	})
}

func (cs *Channels) SetDisplayName(name, displayName string) bool {
	return cs.update(name, func(c *channel) {
		c.displayName = displayName
	})
}

// SetActive makes the named channel the active one and clears its unread
// state. An empty name deactivates all channels.
func (cs *Channels) SetActive(name string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if name == "" {
		cs.active = ""
		return true
	}
	c, ok := cs.byName[name]
	if !ok {
		return false
	}
	cs.active = name
	c.unread = 0
	c.mention = false
	return true
}

func (cs *Channels) Active() string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.active
}

// Clear removes every channel.
func (cs *Channels) Clear() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.list = nil
	cs.byName = map[string]*channel{}
	cs.active = ""
}
