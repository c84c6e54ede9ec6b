package sic

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ergochat/irc-go/ircfmt"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Simple-Irc-Client/core-sub003/codec"
	"github.com/Simple-Irc-Client/core-sub003/irc"
	"github.com/Simple-Irc-Client/core-sub003/state"
)

var errOffline = errors.New("you are disconnected from the server, retry later")

// DiagnosticSink receives handler failures. line is already redacted.
type DiagnosticSink func(err error, line string)

type Option func(app *App)

// WithDiagnostics replaces the default sink, which logs.
func WithDiagnostics(sink DiagnosticSink) Option {
	return func(app *App) {
		app.diagnostics = sink
	}
}

// WithRegisterer registers the dispatcher metrics to reg instead of leaving
// them unregistered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(app *App) {
		app.metrics = NewMetrics(reg)
	}
}

// WithCodec makes HandleLine decrypt every inbound line with c.
func WithCodec(c *codec.Codec) Option {
	return func(app *App) {
		app.codec = c
	}
}

// App owns a Session and the stores it feeds. HandleLine is the dispatch
// boundary: nothing that goes wrong while handling one line escapes it.
//
// An App is driven by a single goroutine. The stores can be read from any
// goroutine.
type App struct {
	cfg     Config
	session *irc.Session

	channels *state.Channels
	away     *state.AwayBuffer
	list     *state.ChannelList
	monitor  *state.Monitor

	codec       *codec.Codec
	metrics     *Metrics
	diagnostics DiagnosticSink

	isAway bool
	now    func() time.Time
}

func NewApp(cfg Config, opts ...Option) *App {
	app := &App{
		cfg:      cfg,
		channels: state.NewChannels(cfg.MaxMessages),
		away:     state.NewAwayBuffer(),
		list:     state.NewChannelList(),
		monitor:  state.NewMonitor(),
		now:      time.Now,
	}
	app.diagnostics = logDiagnostic
	for _, opt := range opts {
		opt(app)
	}
	if app.metrics == nil {
		app.metrics = NewMetrics(nil)
	}
	app.channels.OnEvict = func(string) {
		app.metrics.Drops.WithLabelValues("channel").Inc()
	}
	app.channels.Add(state.StatusChannel, state.CategoryStatus)
	if cfg.Debug {
		app.channels.Add(state.DebugChannel, state.CategoryDebug)
	}
	for _, nick := range cfg.Monitor {
		app.monitor.Add(nick)
	}
	return app
}

func (app *App) Channels() *state.Channels {
	return app.channels
}

func (app *App) AwayBuffer() *state.AwayBuffer {
	return app.away
}

func (app *App) ChannelList() *state.ChannelList {
	return app.list
}

func (app *App) Monitor() *state.Monitor {
	return app.monitor
}

func (app *App) Metrics() *Metrics {
	return app.metrics
}

// Session returns the current session, or nil when disconnected.
func (app *App) Session() *irc.Session {
	return app.session
}

func (app *App) IsAway() bool {
	return app.isAway
}

// Connect starts a new session writing to out. Registration messages are
// written to out before Connect returns, so out must be buffered or drained
// concurrently.
func (app *App) Connect(out chan<- irc.Message) {
	if app.session != nil {
		app.session.Close()
	}

	app.channels.Clear()
	app.channels.Add(state.StatusChannel, state.CategoryStatus)
	if app.cfg.Debug {
		app.channels.Add(state.DebugChannel, state.CategoryDebug)
		out = app.debugOutputMessages(out)
	}
	app.list.Reset()
	app.isAway = false
	for _, u := range app.monitor.List() {
		app.monitor.SetOffline(u.Nick)
	}

	var auth irc.SASLClient
	if app.cfg.Password != nil {
		auth = &irc.SASLPlain{
			Username: app.cfg.User,
			Password: *app.cfg.Password,
		}
	}
	app.session = irc.NewSession(out, irc.SessionParams{
		Nickname: app.cfg.Nick,
		Username: app.cfg.User,
		RealName: app.cfg.Real,
		Auth:     auth,
	})
	app.addStatusLine("Connecting...")
}

// Disconnect closes the current session. The stores are kept until the
// next Connect.
func (app *App) Disconnect() {
	if app.session == nil {
		return
	}
	app.session.Close()
	app.session = nil
	app.isAway = false
	app.addStatusLine("Connection lost")
}

// HandleLine dispatches one raw inbound line.
func (app *App) HandleLine(raw string) {
	defer func() {
		if r := recover(); r != nil {
			app.fail("panic", fmt.Errorf("panic: %v", r), raw)
		}
	}()

	if app.codec != nil {
		line, err := app.codec.DecryptString(raw)
		if err != nil {
			app.fail("decrypt", err, raw)
			return
		}
		raw = line
	}
	if app.cfg.Debug {
		app.addDebugLine("IN", raw)
	}

	msg, err := irc.ParseMessage(raw)
	if err != nil {
		app.metrics.Ignored.Inc()
		return
	}
	app.metrics.Lines.WithLabelValues(msg.Command).Inc()

	if app.session == nil {
		app.fail("offline", errOffline, raw)
		return
	}
	ev, err := app.session.HandleMessage(msg)
	if err != nil {
		app.fail("handler", err, raw)
		return
	}
	app.handleEvent(ev)
}

// ExpireTyping drops stale typing entries. It is meant to be called
// periodically.
func (app *App) ExpireTyping() []string {
	return app.channels.ExpireTyping()
}

// SetActive makes name the channel the user is looking at. Its unread and
// mention state is cleared.
func (app *App) SetActive(name string) bool {
	return app.channels.SetActive(name)
}

func (app *App) handleEvent(ev irc.Event) {
	s := app.session
	switch ev := ev.(type) {
	case irc.RegisteredEvent:
		app.addStatusLine("Connected to the server as " + s.Nick())
		for _, channel := range app.cfg.Channels {
			s.Join(channel, "")
		}
		for _, u := range app.monitor.List() {
			s.MonitorAdd(u.Nick)
		}
	case irc.SelfNickEvent:
		app.addStatusLine(fmt.Sprintf("%s is now known as %s", ev.FormerNick, s.Nick()))
	case irc.UserNickEvent:
		if app.channels.Has(ev.FormerNick) {
			app.addEventLine(ev.FormerNick, "NICK", ev.FormerNick, ev.User, ev.Time)
		}
	case irc.SelfJoinEvent:
		app.channels.Add(ev.Channel, state.CategoryChannel)
		if ev.Requested {
			app.channels.SetActive(ev.Channel)
		}
		if ev.Topic != "" {
			topic, who, at := s.Topic(ev.Channel)
			app.channels.SetTopic(ev.Channel, topic, identityNick(who), at)
		}
	case irc.UserJoinEvent:
		app.addEventLine(ev.Channel, "JOIN", ev.User.Nick, "", ev.Time)
	case irc.SelfPartEvent:
		app.channels.Remove(ev.Channel)
	case irc.UserPartEvent:
		app.channels.SetTyping(ev.Channel, ev.User, false)
		app.addEventLine(ev.Channel, "PART", ev.User, "", ev.Time)
	case irc.UserQuitEvent:
		for _, channel := range ev.Channels {
			app.channels.SetTyping(channel, ev.User, false)
			app.addEventLine(channel, "QUIT", ev.User, "", ev.Time)
		}
		app.channels.SetTyping(ev.User, ev.User, false)
	case irc.TopicChangeEvent:
		app.channels.SetTopic(ev.Channel, ev.Topic, ev.Who, ev.Time)
		if ev.Who != "" && !ev.Time.IsZero() {
			app.addEventLine(ev.Channel, "TOPIC", ev.Who, ev.Topic, ev.Time)
		}
	case irc.ModeChangeEvent:
		app.addEventLine(ev.Channel, "MODE", "", ev.Mode, ev.Time)
	case irc.InviteEvent:
		if s.IsMe(ev.Invitee) {
			app.addStatusLine(fmt.Sprintf("%s invited you to join %s", ev.Inviter, ev.Channel))
		} else {
			app.addStatusLine(fmt.Sprintf("%s invited %s to join %s", ev.Inviter, ev.Invitee, ev.Channel))
		}
	case irc.MessageEvent:
		app.handleMessageEvent(s, ev)
	case irc.TypingEvent:
		channel := ev.User
		if ev.TargetIsChannel {
			channel = ev.Target
		}
		app.channels.SetTyping(channel, ev.User, ev.Typing != irc.TypingDone)
	case irc.ListStartEvent:
		app.list.Reset()
	case irc.ListItemEvent:
		if !app.list.Add(ev.Channel, ev.Users, ev.Topic) && app.list.Len() >= state.MaxListEntries {
			app.metrics.Drops.WithLabelValues("list").Inc()
		}
	case irc.ListEndEvent:
		app.list.Finish()
	case irc.MonitorEvent:
		if ev.Online {
			users := make([]state.OnlineUser, 0, len(ev.Users))
			for _, u := range ev.Users {
				users = append(users, state.OnlineUser{
					Nick:       u.Nick,
					UserString: u.String(),
				})
			}
			app.monitor.SetOnlineBatch(users)
		} else {
			nicks := make([]string, 0, len(ev.Users))
			for _, u := range ev.Users {
				nicks = append(nicks, u.Nick)
			}
			app.monitor.SetOfflineBatch(nicks)
		}
	case irc.MetadataChangeEvent:
		switch ev.Key {
		case "avatar":
			app.channels.SetAvatar(ev.Target, ev.Value)
		case "display-name":
			app.channels.SetDisplayName(ev.Target, ev.Value)
		}
	case irc.AwayEvent:
		app.isAway = ev.Away
		if ev.Away {
			app.addStatusLine("You have been marked as being away")
		} else {
			app.addStatusLine("You are no longer marked as being away")
		}
	case irc.InfoEvent:
		if ev.Prefix != "" {
			app.addStatusLine(ev.Prefix + ": " + ev.Message)
		} else {
			app.addStatusLine(ev.Message)
		}
	case irc.ErrorEvent:
		switch ev.Severity {
		case irc.SeverityFail:
			app.addStatusLine("Error (code " + ev.Code + "): " + ev.Message)
		case irc.SeverityWarn:
			app.addStatusLine("Warning (code " + ev.Code + "): " + ev.Message)
		default:
			app.addStatusLine(ev.Message)
		}
	}
}

func (app *App) handleMessageEvent(s *irc.Session, ev irc.MessageEvent) {
	command, content, ok := parseCTCP(ev.Command, ev.Content)
	if !ok {
		return
	}
	isFromSelf := s.IsMe(ev.User.Nick)

	var channel string
	switch {
	case ev.TargetIsChannel:
		channel = ev.Target
	case ev.User.Nick == "*" || ev.User.IsServer():
		channel = state.StatusChannel
	case isFromSelf:
		channel = ev.Target
	default:
		channel = ev.User.Nick
	}
	app.channels.Add(channel, state.Categorize(channel, s.ChanTypes()))

	var sender state.Sender = state.SimpleSender(ev.User.Nick)
	if ev.User.Ident != "" {
		sender = state.ResolvedSender{Identity: *ev.User.Copy()}
	}
	msg := state.NewMessage(command, sender, ev.Target, content, ev.Time, ev.Tags)
	msg.Mention = !isFromSelf && app.isHighlight(s, content)

	app.channels.AppendMessage(channel, msg)
	app.channels.SetTyping(channel, ev.User.Nick, false)
	if !isFromSelf && app.channels.Active() != channel {
		app.channels.IncreaseUnread(channel)
		if msg.Mention {
			app.channels.SetMention(channel)
		}
	}
	if app.isAway && !isFromSelf {
		if !app.away.Add(state.AwayMessage{Message: msg, Channel: channel}) {
			app.metrics.Drops.WithLabelValues("away").Inc()
		}
	}
}

// parseCTCP turns CTCP ACTION into an ACTION message. Other CTCP requests
// are dropped.
func parseCTCP(command, content string) (string, string, bool) {
	if !strings.HasPrefix(content, "\x01") {
		return command, content, true
	}
	content = strings.TrimSuffix(content[1:], "\x01")
	verb, text, _ := strings.Cut(content, " ")
	if verb != "ACTION" {
		return "", "", false
	}
	return "ACTION", text, true
}

func (app *App) isHighlight(s *irc.Session, content string) bool {
	contentCf := s.Casemap(ircfmt.Strip(content))
	if isHighlight(contentCf, s.NickCf()) {
		return true
	}
	for _, h := range app.cfg.Highlights {
		if isHighlight(contentCf, s.Casemap(h)) {
			return true
		}
	}
	return false
}

func isWordBoundary(r rune) bool {
	switch r {
	case '-', '_', '|':
		return false
	default:
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}
}

func isHighlight(text, nick string) bool {
	if nick == "" {
		return false
	}
	for {
		i := strings.Index(text, nick)
		if i < 0 {
			return false
		}

		left, _ := utf8.DecodeLastRuneInString(text[:i])
		right, _ := utf8.DecodeRuneInString(text[i+len(nick):])
		if isWordBoundary(left) && isWordBoundary(right) {
			return true
		}

		text = text[i+len(nick):]
	}
}

func identityNick(id *irc.Identity) string {
	if id == nil {
		return ""
	}
	return id.Nick
}
