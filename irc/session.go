package irc

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rivo/uniseg"
	"golang.org/x/time/rate"
)

// SASLClient drives one SASL mechanism through AUTHENTICATE exchanges.
type SASLClient interface {
	Early() bool
	Handshake() (mech string)
	Respond(challenge string) (res string, err error)
}

// SASLPlain implements the PLAIN mechanism, with the authorization identity
// set to the username.
type SASLPlain struct {
	Username string
	Password string
}

func (auth *SASLPlain) Early() bool { return true }
func (auth *SASLPlain) Handshake() string { return "PLAIN" }

func (auth *SASLPlain) Respond(challenge string) (string, error) {
	if challenge != "+" {
		return "", errors.New("unexpected challenge")
	}
	payload := auth.Username + "\x00" + auth.Username + "\x00" + auth.Password
	return base64.StdEncoding.EncodeToString([]byte(payload)), nil
}

// SupportedCapabilities is the set of capabilities requested by the Session.
// A false value defers the request until CAP LS has been received.
var SupportedCapabilities = map[string]bool{
	"away-notify":       false,
	"cap-notify":        true,
	"echo-message":      true,
	"extended-monitor":  false,
	"invite-notify":     false,
	"message-tags":      true,
	"multi-prefix":      true,
	"sasl":              true,
	"server-time":       true,
	"setname":           false,
	"standard-replies":  true,
	"userhost-in-names": true,

	"draft/metadata-2": true,
}

// MetadataKeys are the METADATA keys the Session subscribes to.
var MetadataKeys = []string{"avatar", "display-name"}

// Values taken by the "+typing" client tag. TypingUnspec means the value or
// tag is absent.
const (
	TypingUnspec = iota
	TypingActive
	TypingPaused
	TypingDone
)

// User is a known IRC user.
type User struct {
	Name         *Identity // nick, ident and hostname if known; Flags is unused.
	Away         bool
	Disconnected bool // only for monitored users.
	Avatar       string
	DisplayName  string
}

// ChannelMember is the membership of a user in a channel.
type ChannelMember struct {
	Flags      []string // most senior first
	Permission int      // see MaxPermission
	LastActive time.Time
}

// Channel is a joined channel.
type Channel struct {
	Name      string
	Members   map[*User]ChannelMember
	Topic     string
	TopicWho  *Identity
	TopicTime time.Time

	complete bool // set on RPL_ENDOFNAMES
}

// Member is a snapshot of a channel member.
type Member struct {
	Name         *Identity // Flags holds the membership flags
	Permission   int
	Away         bool
	Disconnected bool
	Self         bool
	LastActive   time.Time
	Avatar       string
	DisplayName  string
}

// SessionParams defines how to register to an IRC server.
type SessionParams struct {
	Nickname string
	Username string
	RealName string
	Password string // server password, sent with PASS
	Auth     SASLClient
}

type typingStamp struct {
	Last  time.Time
	Type  int
	Limit *rate.Limiter
}

// Session is the protocol state machine of one connection. It is fed with
// HandleMessage and writes outbound messages to the channel given to
// NewSession. A Session is not safe for concurrent use.
type Session struct {
	out          chan<- Message
	closed       bool
	registered   bool
	typingStamps map[string]typingStamp

	nick   string
	nickCf string
	user   string
	real   string
	acct   string
	host   string
	auth   SASLClient

	availableCaps map[string]string
	enabledCaps   map[string]struct{}

	// ISUPPORT features
	casemap   func(string) string
	chanModes ChannelModes
	chantypes string
	linelen   int
	userModes []UserMode
	monitor   bool
	whox      bool

	users    map[string]*User
	channels map[string]Channel
	monitors map[string]struct{} // users to keep even when they share no channel with us

	pendingChannels map[string]time.Time // join requests stamps

	receivedISupport bool
	receivedUserMode bool
}

func NewSession(out chan<- Message, params SessionParams) *Session {
	s := &Session{
		out:             out,
		typingStamps:    map[string]typingStamp{},
		nick:            params.Nickname,
		nickCf:          CasemapRFC1459(params.Nickname),
		user:            params.Username,
		real:            params.RealName,
		auth:            params.Auth,
		availableCaps:   map[string]string{},
		enabledCaps:     map[string]struct{}{},
		casemap:         CasemapRFC1459,
		chanModes:       DefaultChannelModes,
		chantypes:       "#&",
		linelen:         512,
		userModes:       DefaultUserModes,
		users:           map[string]*User{},
		channels:        map[string]Channel{},
		monitors:        map[string]struct{}{},
		pendingChannels: map[string]time.Time{},
	}

	s.send(NewMessage("CAP", "LS", "302"))
	for _, capability := range sortedCaps() {
		if SupportedCapabilities[capability] {
			s.send(NewMessage("CAP", "REQ", capability))
		}
	}
	if params.Password != "" {
		s.send(NewMessage("PASS", params.Password))
	}
	s.send(NewMessage("NICK", s.nick))
	s.send(NewMessage("USER", s.user, "0", "*", s.real))
	if s.auth != nil && s.auth.Early() {
		h := s.auth.Handshake()
		s.send(NewMessage("AUTHENTICATE", h))
		res, err := s.auth.Respond("+")
		if err != nil {
			s.send(NewMessage("AUTHENTICATE", "*"))
		} else {
			s.send(NewMessage("AUTHENTICATE", res))
		}
		s.auth = nil
	}

	if s.auth == nil {
		s.endRegistration()
	}

	return s
}

func sortedCaps() []string {
	caps := make([]string, 0, len(SupportedCapabilities))
	for c := range SupportedCapabilities {
		caps = append(caps, c)
	}
	sort.Strings(caps)
	return caps
}

func (s *Session) send(msg Message) {
	if s.closed {
		return
	}
	s.out <- msg
}

// Close closes the outbound channel. Later sends are dropped.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

func (s *Session) Closed() bool {
	return s.closed
}

// HasCapability reports whether the given capability has been negotiated
// successfully.
func (s *Session) HasCapability(capability string) bool {
	_, ok := s.enabledCaps[capability]
	return ok
}

func (s *Session) Registered() bool {
	return s.registered
}

func (s *Session) Nick() string {
	return s.nick
}

// NickCf is our casemapped nickname.
func (s *Session) NickCf() string {
	return s.nickCf
}

func (s *Session) IsMe(nick string) bool {
	return s.nickCf == s.casemap(nick)
}

func (s *Session) IsChannel(name string) bool {
	return name != "" && strings.IndexByte(s.chantypes, name[0]) >= 0
}

func (s *Session) Casemap(name string) string {
	return s.casemap(name)
}

func (s *Session) ChanTypes() string {
	return s.chantypes
}

// UserModes returns the negotiated PREFIX table.
func (s *Session) UserModes() []UserMode {
	return append([]UserMode(nil), s.userModes...)
}

// ChannelModes returns the negotiated CHANMODES classes.
func (s *Session) ChannelModes() ChannelModes {
	return s.chanModes
}

// Users returns the list of all known nicknames.
func (s *Session) Users() []string {
	users := make([]string, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u.Name.Nick)
	}
	return users
}

// Channels returns the names of joined channels.
func (s *Session) Channels() []string {
	channels := make([]string, 0, len(s.channels))
	for _, c := range s.channels {
		channels = append(channels, c.Name)
	}
	sort.Strings(channels)
	return channels
}

// Names returns the members of the given channel, or nil if it is not
// joined. The list is sorted by permission, then by nick.
func (s *Session) Names(channel string) []Member {
	c, ok := s.channels[s.Casemap(channel)]
	if !ok {
		return nil
	}
	names := make([]Member, 0, len(c.Members))
	for u, m := range c.Members {
		name := u.Name.Copy()
		name.Flags = append([]string(nil), m.Flags...)
		names = append(names, Member{
			Name:         name,
			Permission:   m.Permission,
			Away:         u.Away,
			Disconnected: u.Disconnected,
			Self:         s.IsMe(u.Name.Nick),
			LastActive:   m.LastActive,
			Avatar:       u.Avatar,
			DisplayName:  u.DisplayName,
		})
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i].Permission != names[j].Permission {
			return names[i].Permission > names[j].Permission
		}
		return s.casemap(names[i].Name.Nick) < s.casemap(names[j].Name.Nick)
	})
	return names
}

// Permission returns the permission of nick in channel, or -1.
func (s *Session) Permission(channel, nick string) int {
	c, ok := s.channels[s.Casemap(channel)]
	if !ok {
		return -1
	}
	u, ok := s.users[s.Casemap(nick)]
	if !ok {
		return -1
	}
	m, ok := c.Members[u]
	if !ok {
		return -1
	}
	return m.Permission
}

// User returns a copy of a known user.
func (s *Session) User(nick string) (User, bool) {
	u, ok := s.users[s.Casemap(nick)]
	if !ok {
		return User{}, false
	}
	c := *u
	c.Name = u.Name.Copy()
	return c, true
}

func (s *Session) Topic(channel string) (topic string, who *Identity, at time.Time) {
	channelCf := s.Casemap(channel)
	if c, ok := s.channels[channelCf]; ok {
		topic = c.Topic
		who = c.TopicWho.Copy()
		at = c.TopicTime
	}
	return
}

// SendRaw parses raw and sends it as is. Unparsable input is dropped.
func (s *Session) SendRaw(raw string) {
	msg, err := ParseMessage(raw)
	if err != nil {
		return
	}
	s.send(msg)
}

func (s *Session) Send(command string, params ...string) {
	s.send(NewMessage(command, params...))
}

func (s *Session) List(pattern string) {
	if pattern != "" {
		s.send(NewMessage("LIST", pattern))
	} else {
		s.send(NewMessage("LIST"))
	}
}

func (s *Session) Join(channel, key string) {
	channelCf := s.Casemap(channel)
	s.pendingChannels[channelCf] = time.Now()
	if key == "" {
		s.send(NewMessage("JOIN", channel))
	} else {
		s.send(NewMessage("JOIN", channel, key))
	}
}

func (s *Session) Part(channel, reason string) {
	if reason == "" {
		s.send(NewMessage("PART", channel))
	} else {
		s.send(NewMessage("PART", channel, reason))
	}
}

func (s *Session) ChangeTopic(channel, topic string) {
	s.send(NewMessage("TOPIC", channel, topic))
}

func (s *Session) Quit(reason string) {
	s.send(NewMessage("QUIT", reason))
}

func (s *Session) ChangeNick(nick string) {
	s.send(NewMessage("NICK", nick))
}

func (s *Session) Who(target string) {
	if s.whox {
		// channel is requested so that replies can be attributed
		s.send(NewMessage("WHO", target, "%cuhnf"))
	} else {
		s.send(NewMessage("WHO", target))
	}
}

func (s *Session) ChangeMode(channel, flags string, args []string) {
	if flags != "" {
		args = append([]string{channel, flags}, args...)
	} else {
		args = append([]string{channel}, args...)
	}
	s.send(NewMessage("MODE", args...))
}

func (s *Session) Away(message string) {
	if message != "" {
		s.send(NewMessage("AWAY", message))
	} else {
		s.send(NewMessage("AWAY"))
	}
}

func (s *Session) Whois(nick string) {
	s.send(NewMessage("WHOIS", nick))
}

func (s *Session) Invite(nick, channel string) {
	s.send(NewMessage("INVITE", nick, channel))
}

func (s *Session) Kick(nick, channel, comment string) {
	if comment == "" {
		s.send(NewMessage("KICK", channel, nick))
	} else {
		s.send(NewMessage("KICK", channel, nick, comment))
	}
}

func (s *Session) MonitorAdd(target string) {
	targetCf := s.casemap(target)
	if _, ok := s.monitors[targetCf]; !ok {
		s.monitors[targetCf] = struct{}{}
		if s.monitor {
			s.send(NewMessage("MONITOR", "+", target))
		}
	}
}

func (s *Session) MonitorRemove(target string) {
	targetCf := s.casemap(target)
	if _, ok := s.monitors[targetCf]; ok {
		delete(s.monitors, targetCf)
		if s.monitor {
			s.send(NewMessage("MONITOR", "-", target))
		}
	}
}

// splitChunks cuts s into pieces of at most chunkLen bytes without breaking
// grapheme clusters.
func splitChunks(s string, chunkLen int) (chunks []string) {
	if chunkLen <= 0 || len(s) <= chunkLen {
		return []string{s}
	}

	b := 0
	n := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		cw := len(g.Str())
		if n+cw > chunkLen && n > 0 {
			chunks = append(chunks, s[b:b+n])
			b += n
			n = cw
			continue
		}
		n += cw
	}
	if b < len(s) {
		chunks = append(chunks, s[b:])
	}
	return
}

func (s *Session) maxMessageLen(command, target string) int {
	hostLen := len(s.host)
	if hostLen == 0 {
		hostLen = len("255.255.255.255")
	}
	return s.linelen -
		len(":!@  :\r\n") -
		len(command) -
		len(s.nick) -
		len(s.user) -
		hostLen -
		len(target)
}

func (s *Session) PrivMsg(target, content string) {
	for _, chunk := range splitChunks(content, s.maxMessageLen("PRIVMSG", target)) {
		s.send(NewMessage("PRIVMSG", target, chunk))
	}
	targetCf := s.Casemap(target)
	delete(s.typingStamps, targetCf)
}

func (s *Session) Notice(target, content string) {
	for _, chunk := range splitChunks(content, s.maxMessageLen("NOTICE", target)) {
		s.send(NewMessage("NOTICE", target, chunk))
	}
}

// Typing notifies target that the user is composing a message.
func (s *Session) Typing(target string) {
	s.sendTyping(target, TypingActive)
}

// TypingStop notifies target that the user stopped composing.
func (s *Session) TypingStop(target string) {
	s.sendTyping(target, TypingDone)
}

// sendTyping repeats an active notification at most every 3 seconds and
// sends a done notification once. Each target is also rate limited.
func (s *Session) sendTyping(target string, state int) {
	if !s.HasCapability("message-tags") {
		return
	}
	key := s.casemap(target)
	now := time.Now()
	stamp, seen := s.typingStamps[key]
	if seen {
		if stamp.Type == state && (state == TypingDone || now.Sub(stamp.Last) < 3*time.Second) {
			return
		}
		if !stamp.Limit.Allow() {
			return
		}
	} else {
		every := rate.Limit(1.0 / 3.0)
		if state == TypingDone {
			every = 1
		}
		stamp.Limit = rate.NewLimiter(every, 5)
		stamp.Limit.Reserve()
	}
	s.typingStamps[key] = typingStamp{Last: now, Type: state, Limit: stamp.Limit}

	value := "active"
	if state == TypingDone {
		value = "done"
	}
	s.send(NewMessage("TAGMSG", target).WithTag("+typing", value))
}

// HandleMessage applies msg to the session state and returns the resulting
// event, if any.
func (s *Session) HandleMessage(msg Message) (Event, error) {
	if msg.Prefix == nil {
		msg.Prefix = &Identity{Nick: "*"}
	}
	if s.registered {
		return s.handleRegistered(msg)
	} else {
		return s.handleUnregistered(msg)
	}
}

func (s *Session) handleUnregistered(msg Message) (Event, error) {
	switch msg.Command {
	case errNicknameinuse:
		var nick string
		if err := msg.ParseParams(nil, &nick); err != nil {
			return nil, err
		}

		s.send(NewMessage("NICK", nick+"_"))
	case rplSaslsuccess:
		if s.auth != nil {
			s.endRegistration()
		}
	default:
		return s.handleRegistered(msg)
	}
	return nil, nil
}

func (s *Session) handleRegistered(msg Message) (Event, error) {
	switch msg.Command {
	case "AUTHENTICATE":
		if s.auth == nil {
			break
		}

		var payload string
		if err := msg.ParseParams(&payload); err != nil {
			return nil, err
		}

		res, err := s.auth.Respond(payload)
		if err != nil {
			s.send(NewMessage("AUTHENTICATE", "*"))
		} else {
			s.send(NewMessage("AUTHENTICATE", res))
		}
	case rplLoggedin:
		var nuh string
		if err := msg.ParseParams(nil, &nuh, &s.acct); err != nil {
			return nil, err
		}

		id := ParseIdentity(nuh, nil)
		s.user = id.Ident
		s.host = id.Hostname
	case errNicklocked, errSaslfail, errSasltoolong, errSaslaborted, errSaslalready, rplSaslmechs:
		if len(msg.Params) < 2 {
			return nil, msg.errNotEnoughParams(2)
		}
		if s.auth != nil {
			s.endRegistration()
		}
		return ErrorEvent{
			Severity: SeverityFail,
			Code:     msg.Command,
			Message:  fmt.Sprintf("Registration failed: %s", strings.Join(msg.Params[1:], " ")),
		}, nil
	case rplWelcome:
		if err := msg.ParseParams(&s.nick); err != nil {
			return nil, err
		}

		s.nickCf = s.Casemap(s.nick)
		s.registered = true
		s.users[s.nickCf] = &User{Name: &Identity{
			Nick: s.nick, Ident: s.user, Hostname: s.host,
		}}
		if s.host == "" {
			s.Who(s.nick)
		}
	case rplIsupport:
		if len(msg.Params) < 2 {
			return nil, msg.errNotEnoughParams(2)
		}
		tokens := msg.Params[1:]
		if last := tokens[len(tokens)-1]; strings.ContainsRune(last, ' ') {
			// human-readable trailer
			tokens = tokens[:len(tokens)-1]
		}
		s.updateFeatures(tokens)
		if !s.receivedISupport {
			// notify only on first RPL_ISUPPORT
			s.receivedISupport = true
			return RegisteredEvent{}, nil
		}
	case rplWhoreply, rplWhospcrpl:
		var channel, nick, host, flags, username string
		var err error
		if msg.Command == rplWhoreply {
			err = msg.ParseParams(nil, &channel, &username, &host, nil, &nick, &flags)
		} else {
			// WHOX is always requested with %cuhnf
			err = msg.ParseParams(nil, &channel, &username, &host, &nick, &flags)
		}
		if err != nil {
			return nil, err
		}
		s.handleWhoReply(channel, nick, username, host, flags)
	case rplEndofwho:
		// do nothing
	case "CAP":
		return nil, s.handleCap(msg)
	case "JOIN":
		var channel string
		if err := msg.ParseParams(&channel); err != nil {
			return nil, err
		}

		nickCf := s.Casemap(msg.Prefix.Nick)
		channelCf := s.Casemap(channel)

		if s.IsMe(nickCf) {
			s.channels[channelCf] = Channel{
				Name:    channel,
				Members: map[*User]ChannelMember{},
			}
			if s.HasCapability("away-notify") {
				// away status only stays accurate with away-notify
				s.Who(channel)
			}
		} else if c, ok := s.channels[channelCf]; ok {
			u := s.userFor(msg.Prefix)
			c.Members[u] = ChannelMember{Permission: -1}
			return UserJoinEvent{
				User:    *msg.Prefix.Copy(),
				Channel: c.Name,
				Time:    msg.TimeOrNow(),
			}, nil
		}
	case "PART":
		var channel string
		if err := msg.ParseParams(&channel); err != nil {
			return nil, err
		}
		return s.handleLeave(msg, channel, msg.Prefix.Nick), nil
	case "KICK":
		var channel, nick string
		if err := msg.ParseParams(&channel, &nick); err != nil {
			return nil, err
		}
		return s.handleLeave(msg, channel, nick), nil
	case "QUIT":
		if ev := s.handleQuit(msg); ev != nil {
			return ev, nil
		}
	case "NICK":
		var nick string
		if err := msg.ParseParams(&nick); err != nil {
			return nil, err
		}
		return s.handleNick(msg, nick), nil
	case rplNamreply:
		var channel, names string
		if err := msg.ParseParams(nil, nil, &channel, &names); err != nil {
			return nil, err
		}

		channelCf := s.Casemap(channel)

		if c, ok := s.channels[channelCf]; ok {
			for _, name := range ParseNameReply(names, s.userModes) {
				u := s.userFor(&name)
				m := c.Members[u]
				m.Flags = name.Flags
				m.Permission = MaxPermission(m.Flags, s.userModes)
				c.Members[u] = m
			}
		}
	case rplEndofnames:
		var channel string
		if err := msg.ParseParams(nil, &channel); err != nil {
			return nil, err
		}

		channelCf := s.Casemap(channel)

		if c, ok := s.channels[channelCf]; ok && !c.complete {
			c.complete = true
			s.channels[channelCf] = c
			ev := SelfJoinEvent{
				Channel: c.Name,
				Topic:   c.Topic,
			}
			if stamp, ok := s.pendingChannels[channelCf]; ok && time.Since(stamp) < 5*time.Second {
				ev.Requested = true
			}
			delete(s.pendingChannels, channelCf)
			return ev, nil
		}
	case rplTopic:
		var channel, topic string
		if err := msg.ParseParams(nil, &channel, &topic); err != nil {
			return nil, err
		}
		if ev, ok := s.updateTopic(channel, func(c *Channel) { c.Topic = topic }); ok {
			return TopicChangeEvent{Channel: ev.Channel, Topic: topic}, nil
		}
	case rplTopicwhotime:
		var channel, setter, setAt string
		if err := msg.ParseParams(nil, &channel, &setter, &setAt); err != nil {
			return nil, err
		}
		// a malformed timestamp still leaves the setter usable
		secs, _ := strconv.ParseInt(setAt, 10, 64)
		if ev, ok := s.updateTopic(channel, func(c *Channel) {
			c.TopicWho = ParsePrefix(setter)
			c.TopicTime = time.Unix(secs, 0)
		}); ok {
			return ev, nil
		}
	case rplNotopic:
		var channel string
		if err := msg.ParseParams(nil, &channel); err != nil {
			return nil, err
		}
		s.updateTopic(channel, func(c *Channel) { c.Topic = "" })
	case "TOPIC":
		var channel, topic string
		if err := msg.ParseParams(&channel, &topic); err != nil {
			return nil, err
		}
		if ev, ok := s.updateTopic(channel, func(c *Channel) {
			c.Topic = topic
			c.TopicWho = msg.Prefix.Copy()
			c.TopicTime = msg.TimeOrNow()
		}); ok {
			return ev, nil
		}
	case "MODE":
		var channel, mode string
		if err := msg.ParseParams(&channel, &mode); err != nil {
			return nil, err
		}

		channelCf := s.Casemap(channel)

		if c, ok := s.channels[channelCf]; ok {
			modeChanges, err := ParseChannelMode(mode, msg.Params[2:], s.chanModes, s.userModes)
			if err != nil {
				return nil, err
			}
			s.applyMemberModes(c, modeChanges)
			return ModeChangeEvent{
				Channel: c.Name,
				Mode:    strings.Join(msg.Params[1:], " "),
				Time:    msg.TimeOrNow(),
			}, nil
		}
	case "INVITE":
		var nick, channel string
		if err := msg.ParseParams(&nick, &channel); err != nil {
			return nil, err
		}

		return InviteEvent{
			Inviter: msg.Prefix.Nick,
			Invitee: nick,
			Channel: channel,
		}, nil
	case rplInviting:
		var nick, channel string
		if err := msg.ParseParams(nil, &nick, &channel); err != nil {
			return nil, err
		}

		return InviteEvent{
			Inviter: s.nick,
			Invitee: nick,
			Channel: channel,
		}, nil
	case "AWAY":
		nickCf := s.Casemap(msg.Prefix.Nick)

		if u, ok := s.users[nickCf]; ok {
			u.Away = len(msg.Params) == 1
		}
	case rplUnaway:
		return AwayEvent{Away: false}, nil
	case rplNowaway:
		return AwayEvent{Away: true}, nil
	case "PRIVMSG", "NOTICE":
		var target, content string
		if err := msg.ParseParams(&target, &content); err != nil {
			return nil, err
		}

		ev := MessageEvent{
			User:    *msg.Prefix.Copy(),
			Target:  target,
			Command: msg.Command,
			Content: content,
			Time:    msg.TimeOrNow(),
			Tags:    msg.Tags,
		}
		targetCf := s.casemap(target)
		if c, ok := s.channels[targetCf]; ok {
			ev.Target = c.Name
			ev.TargetIsChannel = true
			if u, ok := s.users[s.casemap(msg.Prefix.Nick)]; ok {
				if m, ok := c.Members[u]; ok && ev.Time.After(m.LastActive) {
					m.LastActive = ev.Time
					c.Members[u] = m
				}
			}
		} else {
			ev.TargetIsChannel = s.IsChannel(target)
		}
		return ev, nil
	case "TAGMSG":
		var target string
		if err := msg.ParseParams(&target); err != nil {
			return nil, err
		}
		if s.IsMe(msg.Prefix.Nick) {
			// TAGMSG from self
			break
		}

		t, ok := msg.Tags["+typing"]
		if !ok {
			t, ok = msg.Tags["+draft/typing"]
		}
		if !ok {
			break
		}
		ev := TypingEvent{
			User:   msg.Prefix.Nick,
			Target: target,
			Time:   msg.TimeOrNow(),
		}
		switch t {
		case "active":
			ev.Typing = TypingActive
		case "paused":
			ev.Typing = TypingPaused
		case "done":
			ev.Typing = TypingDone
		default:
			return nil, nil
		}
		if c, ok := s.channels[s.casemap(target)]; ok {
			ev.Target = c.Name
			ev.TargetIsChannel = true
		} else {
			ev.TargetIsChannel = s.IsChannel(target)
		}
		return ev, nil
	case rplMononline, rplMonoffline:
		var targets string
		if err := msg.ParseParams(nil, &targets); err != nil {
			return nil, err
		}

		online := msg.Command == rplMononline
		ev := MonitorEvent{Online: online}
		for _, target := range strings.Split(targets, ",") {
			if target == "" {
				continue
			}
			id := ParseIdentity(target, nil)
			nickCf := s.casemap(id.Nick)
			if _, ok := s.monitors[nickCf]; ok {
				u := s.userFor(&id)
				u.Disconnected = !online
			}
			ev.Users = append(ev.Users, id)
		}
		if len(ev.Users) == 0 {
			return nil, nil
		}
		return ev, nil
	case "METADATA":
		// METADATA <target> <key> <visibility> :<value>
		var target, key, value string
		if err := msg.ParseParams(&target, &key, nil, &value); err != nil {
			return nil, err
		}
		return s.handleMetadata(target, key, value), nil
	case rplKeyvalue:
		var target, key, value string
		if err := msg.ParseParams(nil, &target, &key, nil, &value); err != nil {
			return nil, err
		}
		return s.handleMetadata(target, key, value), nil
	case rplListstart:
		return ListStartEvent{}, nil
	case rplList:
		var channel, count string
		if err := msg.ParseParams(nil, &channel, &count); err != nil {
			return nil, err
		}
		users, err := strconv.Atoi(count)
		if err != nil || users < 0 {
			users = 0
		}
		var topic string
		if len(msg.Params) > 3 {
			topic = msg.Params[3]
		}
		return ListItemEvent{
			Channel: channel,
			Users:   users,
			Topic:   topic,
		}, nil
	case rplListend:
		return ListEndEvent{}, nil
	case "PING":
		var payload string
		if err := msg.ParseParams(&payload); err != nil {
			return nil, err
		}
		s.send(NewMessage("PONG", payload))
	case "ERROR":
		s.Close()
		var reason string
		if len(msg.Params) > 0 {
			reason = msg.Params[0]
		}
		return ErrorEvent{
			Severity: SeverityFail,
			Code:     "ERROR",
			Message:  reason,
		}, nil
	case "FAIL", "WARN", "NOTE":
		var code string
		if err := msg.ParseParams(nil, &code); err != nil {
			return nil, err
		}
		if code == "KEY_INVALID" {
			// METADATA SUB failed: ignore
			return nil, nil
		}
		var severity Severity
		switch msg.Command {
		case "FAIL":
			severity = SeverityFail
		case "WARN":
			severity = SeverityWarn
		case "NOTE":
			severity = SeverityNote
		}
		return ErrorEvent{
			Severity: severity,
			Code:     code,
			Message:  strings.Join(msg.Params[2:], " "),
		}, nil
	case errMonlistisfull:
		// MONITOR is best-effort
	case rplAway:
		// automatic AWAY replies are not shown
	case rplYourhost, rplCreated, rplMyinfo, rplHostHidden:
		// connection noise
	case rplMotdstart, rplEndofmotd, errNomotd, rplEndofwhois:
		// delimiters
	case rplMonlist, rplEndofmonlist:
		// our own MONITOR list is already known
	case rplWhoiskeyvalue, rplMetadataend, rplKeynotset, rplMetadatasubok, rplMetadataunsubok, rplMetadatasubs, rplMetadatasynclater:
		// metadata bookkeeping
	case rplUmodeis:
		if len(msg.Params) < 2 {
			return nil, msg.errNotEnoughParams(2)
		}
		if !s.receivedUserMode {
			// ignore the first RPL_UMODEIS on join
			s.receivedUserMode = true
			return nil, nil
		}
		return InfoEvent{
			Message: fmt.Sprintf("The current user modes are: %s", strings.Join(msg.Params[1:], " ")),
		}, nil
	case rplLuserclient, rplLuserme:
		if len(msg.Params) < 2 {
			return nil, msg.errNotEnoughParams(2)
		}
		return InfoEvent{
			Prefix:  "Stats",
			Message: msg.Params[len(msg.Params)-1],
		}, nil
	case rplMotd:
		return infoReply(msg, "MotD", "%s", 1)
	case rplWhoisuser:
		return infoReply(msg, "User", "%s has username %s and host %s; their realname is %s", 1, 2, 3, 5)
	case rplWhoisserver:
		return infoReply(msg, "User", "%s is connected through the server %s (%s)", 1, 2, 3)
	case rplWhoischannels:
		return infoReply(msg, "User", "%s has joined channels: %s", 1, 2)
	case rplWhoisaccount:
		return infoReply(msg, "User", "%s is authenticated as %s", 1, 2)
	case rplChannelmodeis:
		var channel string
		if err := msg.ParseParams(nil, &channel); err != nil {
			return nil, err
		}
		return InfoEvent{
			Message: fmt.Sprintf("%s has modes %s", channel, strings.Join(msg.Params[2:], " ")),
		}, nil
	default:
		if msg.IsReply() && ReplySeverity(msg.Command) == SeverityFail {
			if len(msg.Params) < 2 {
				return nil, msg.errNotEnoughParams(2)
			}
			if msg.Command == errUnknowncommand && msg.Params[1] == "METADATA" {
				// unconditional METADATA SUB
				return nil, nil
			}
			return ErrorEvent{
				Severity: SeverityFail,
				Code:     msg.Command,
				Message:  strings.Join(msg.Params[1:], " "),
			}, nil
		}
	}
	return nil, nil
}

// handleCap processes a CAP reply. Multiline LS and LIST replies carry a "*"
// before the capability list.
func (s *Session) handleCap(msg Message) error {
	if len(msg.Params) < 3 {
		return msg.errNotEnoughParams(3)
	}
	sub := msg.Params[1]
	list := msg.Params[2]
	if list == "*" && len(msg.Params) > 3 {
		list = msg.Params[3]
	}
	caps := ParseCaps(list)

	switch sub {
	case "ACK":
		s.ackCaps(caps)
	case "LS", "NEW":
		s.requestCaps(caps, sub == "LS")
	case "DEL":
		for _, c := range caps {
			delete(s.availableCaps, c.Name)
			delete(s.enabledCaps, c.Name)
		}
	}
	return nil
}

func (s *Session) ackCaps(caps []Cap) {
	for _, c := range caps {
		if !c.Enable {
			delete(s.enabledCaps, c.Name)
			continue
		}
		s.enabledCaps[c.Name] = struct{}{}
		switch {
		case c.Name == "sasl" && s.auth != nil:
			s.send(NewMessage("AUTHENTICATE", s.auth.Handshake()))
		case c.Name == "multi-prefix":
			// refresh member prefixes of channels joined before the ACK
			for _, ch := range s.channels {
				s.send(NewMessage("NAMES", ch.Name))
			}
		}
	}
}

// requestCaps sends a CAP REQ for every supported capability that is neither
// enabled nor already requested at connection time.
func (s *Session) requestCaps(caps []Cap, initial bool) {
	var want []string
	for _, c := range caps {
		s.availableCaps[c.Name] = c.Value
		early, supported := SupportedCapabilities[c.Name]
		if !supported || (initial && early) {
			continue
		}
		if _, on := s.enabledCaps[c.Name]; on {
			continue
		}
		want = append(want, c.Name)
	}
	if len(want) > 0 {
		s.send(NewMessage("CAP", "REQ", strings.Join(want, " ")))
	}
}

// handleQuit removes the quitting user from every channel. It returns nil
// for unknown users.
func (s *Session) handleQuit(msg Message) Event {
	u, ok := s.users[s.Casemap(msg.Prefix.Nick)]
	if !ok {
		return nil
	}
	u.Disconnected = true
	var left []string
	for _, c := range s.channels {
		if _, member := c.Members[u]; member {
			delete(c.Members, u)
			left = append(left, c.Name)
		}
	}
	s.cleanUser(u)
	sort.Strings(left)
	return UserQuitEvent{User: u.Name.Nick, Channels: left, Time: msg.TimeOrNow()}
}

// handleNick renames a known user, which may be ourselves.
func (s *Session) handleNick(msg Message, nick string) Event {
	former := msg.Prefix.Nick
	oldKey, newKey := s.Casemap(former), s.Casemap(nick)
	if u, ok := s.users[oldKey]; ok {
		delete(s.users, oldKey)
		u.Name.Nick = nick
		s.users[newKey] = u
	}
	at := msg.TimeOrNow()
	if oldKey == s.nickCf {
		s.nick = nick
		s.nickCf = newKey
		return SelfNickEvent{FormerNick: former, Time: at}
	}
	return UserNickEvent{User: nick, FormerNick: former, Time: at}
}

// userFor returns the known user named by id, creating it if needed.
func (s *Session) userFor(id *Identity) *User {
	nickCf := s.Casemap(id.Nick)
	u, ok := s.users[nickCf]
	if !ok {
		name := id.Copy()
		name.Flags = nil
		u = &User{Name: name}
		s.users[nickCf] = u
	} else if id.Ident != "" && u.Name.Ident == "" {
		u.Name.Ident = id.Ident
		u.Name.Hostname = id.Hostname
	}
	return u
}

func (s *Session) handleWhoReply(channel, nick, username, host, flags string) {
	nickCf := s.Casemap(nick)
	if s.nickCf == nickCf {
		s.user = username
		s.host = host
	}

	var mask strings.Builder
	for _, r := range flags {
		if r == 'H' || r == 'G' || r == '*' {
			continue
		}
		mask.WriteRune(r)
	}
	mask.WriteString(nick + "!" + username + "@" + host)
	id := ParseIdentity(mask.String(), s.userModes)

	u := s.userFor(&id)
	u.Away = strings.ContainsRune(flags, 'G')

	c, ok := s.channels[s.Casemap(channel)]
	if !ok {
		return
	}
	m := c.Members[u]
	m.Flags = id.Flags
	m.Permission = MaxPermission(m.Flags, s.userModes)
	c.Members[u] = m
}

// handleLeave removes nick from channel after a PART or KICK.
func (s *Session) handleLeave(msg Message, channel, nick string) Event {
	nickCf := s.Casemap(nick)
	channelCf := s.Casemap(channel)

	c, ok := s.channels[channelCf]
	if !ok {
		return nil
	}
	if s.IsMe(nickCf) {
		delete(s.channels, channelCf)
		for u := range c.Members {
			s.cleanUser(u)
		}
		return SelfPartEvent{
			Channel: c.Name,
		}
	}
	if u, ok := s.users[nickCf]; ok {
		delete(c.Members, u)
		s.cleanUser(u)
		return UserPartEvent{
			User:    u.Name.Nick,
			Channel: c.Name,
			Time:    msg.TimeOrNow(),
		}
	}
	return nil
}

func (s *Session) applyMemberModes(c Channel, changes []ModeChange) {
	for _, change := range changes {
		flag := string(change.Mode)
		if modeIndexByFlag(s.userModes, flag) < 0 {
			continue
		}
		user, ok := s.users[s.Casemap(change.Param)]
		if !ok {
			continue
		}
		m, ok := c.Members[user]
		if !ok {
			continue
		}
		var flags []string
		if change.Enable {
			flags = append(append(flags, m.Flags...), flag)
		} else {
			for _, f := range m.Flags {
				if f != flag {
					flags = append(flags, f)
				}
			}
		}
		m.Flags = SortFlags(flags, s.userModes)
		m.Permission = MaxPermission(m.Flags, s.userModes)
		c.Members[user] = m
	}
}

func (s *Session) handleMetadata(target, key, value string) Event {
	switch key {
	case "avatar", "display-name":
	default:
		return nil
	}
	if u, ok := s.users[s.Casemap(target)]; ok {
		if key == "avatar" {
			u.Avatar = value
		} else {
			u.DisplayName = value
		}
	}
	if c, ok := s.channels[s.Casemap(target)]; ok {
		target = c.Name
	}
	return MetadataChangeEvent{
		Target: target,
		Key:    key,
		Value:  value,
	}
}

func (s *Session) cleanUser(parted *User) {
	nameCf := s.Casemap(parted.Name.Nick)
	if nameCf == s.nickCf {
		return
	}
	if _, ok := s.monitors[nameCf]; ok {
		return
	}
	for _, c := range s.channels {
		if _, ok := c.Members[parted]; ok {
			return
		}
	}
	delete(s.users, nameCf)
}

// updateFeatures applies the tokens of an RPL_ISUPPORT reply. Negated
// tokens are not supported and leave the previous value in place.
func (s *Session) updateFeatures(tokens []string) {
	for _, token := range tokens {
		name, value, _ := strings.Cut(token, "=")
		if name == "" || strings.HasPrefix(name, "-") {
			continue
		}
		switch strings.ToUpper(name) {
		case "CASEMAPPING":
			if value == "ascii" {
				s.casemap = CasemapASCII
			} else {
				s.casemap = CasemapRFC1459
			}
			s.nickCf = s.casemap(s.nick)
		case "CHANMODES":
			s.chanModes = ParseChannelModes(value)
		case "CHANTYPES":
			s.chantypes = value
		case "LINELEN":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				s.linelen = n
			}
		case "MONITOR":
			if n, err := strconv.Atoi(value); value == "" || (err == nil && n > 0) {
				s.enableMonitor()
			}
		case "PREFIX":
			s.userModes = ParseUserModes(value)
		case "WHOX":
			s.whox = true
		}
	}
}

// enableMonitor marks MONITOR as available and flushes the nicks that were
// added before the server advertised it.
func (s *Session) enableMonitor() {
	if s.monitor {
		return
	}
	s.monitor = true
	if len(s.monitors) == 0 {
		return
	}
	pending := make([]string, 0, len(s.monitors))
	for nickCf := range s.monitors {
		pending = append(pending, nickCf)
	}
	sort.Strings(pending)
	s.send(NewMessage("MONITOR", "+", strings.Join(pending, ",")))
}

func (s *Session) endRegistration() {
	if s.registered {
		return
	}
	if len(s.enabledCaps) == 0 || s.HasCapability("draft/metadata-2") {
		// subscribe when explicitly supported or while caps are unknown
		s.send(NewMessage("METADATA", append([]string{"*", "SUB"}, MetadataKeys...)...))
	}
	s.send(NewMessage("CAP", "END"))
}

// updateTopic applies fn to a joined channel and reports the resulting topic.
func (s *Session) updateTopic(channel string, fn func(c *Channel)) (TopicChangeEvent, bool) {
	key := s.Casemap(channel)
	c, ok := s.channels[key]
	if !ok {
		return TopicChangeEvent{}, false
	}
	fn(&c)
	s.channels[key] = c
	ev := TopicChangeEvent{Channel: c.Name, Topic: c.Topic, Time: c.TopicTime}
	if c.TopicWho != nil {
		ev.Who = c.TopicWho.Nick
	}
	return ev, true
}

// infoReply formats the parameters at the given positions into an InfoEvent.
func infoReply(msg Message, prefix, format string, positions ...int) (Event, error) {
	args := make([]interface{}, len(positions))
	for i, n := range positions {
		if n >= len(msg.Params) {
			return nil, msg.errNotEnoughParams(n + 1)
		}
		args[i] = msg.Params[n]
	}
	return InfoEvent{Prefix: prefix, Message: fmt.Sprintf(format, args...)}, nil
}
