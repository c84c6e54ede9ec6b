package sic

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simple-Irc-Client/core-sub003/codec"
	"github.com/Simple-Irc-Client/core-sub003/irc"
	"github.com/Simple-Irc-Client/core-sub003/state"
)

type diagnostic struct {
	err  error
	line string
}

type testApp struct {
	*App
	t           *testing.T
	out         chan irc.Message
	diagnostics []diagnostic
}

func testConfig() Config {
	cfg := Defaults()
	cfg.Addr = []string{"irc.example.org"}
	cfg.Nick = "me"
	cfg.User = "me"
	cfg.Real = "me"
	return cfg
}

func newTestApp(t *testing.T, cfg Config, opts ...Option) *testApp {
	ta := &testApp{t: t, out: make(chan irc.Message, 256)}
	opts = append(opts, WithDiagnostics(func(err error, line string) {
		ta.diagnostics = append(ta.diagnostics, diagnostic{err: err, line: line})
	}))
	ta.App = NewApp(cfg, opts...)
	ta.Connect(ta.out)
	ta.drain()
	return ta
}

func (ta *testApp) feed(lines ...string) {
	for _, line := range lines {
		ta.HandleLine(line)
	}
}

func (ta *testApp) drain() (sent []string) {
	for {
		select {
		case msg, ok := <-ta.out:
			if !ok {
				return
			}
			sent = append(sent, msg.String())
		default:
			return
		}
	}
}

func (ta *testApp) register() {
	ta.feed(
		":srv 001 me :Welcome",
		":srv 005 me PREFIX=(qaohv)~&@%+ CHANMODES=beI,k,l,imnst CHANTYPES=# :are supported",
	)
}

func registeredApp(t *testing.T, opts ...Option) *testApp {
	ta := newTestApp(t, testConfig(), opts...)
	ta.register()
	ta.drain()
	return ta
}

func (ta *testApp) channel(name string) state.Channel {
	ta.t.Helper()
	c, ok := ta.Channels().Get(name)
	require.True(ta.t, ok, name)
	return c
}

func (ta *testApp) lastStatus() string {
	c := ta.channel(state.StatusChannel)
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Text
}

func TestPrivMsgToOpenChannel(t *testing.T) {
	ta := registeredApp(t)
	ta.Channels().Add("#chan", state.CategoryChannel)

	ta.feed(":nick!user@host PRIVMSG #chan :hello")

	c := ta.channel("#chan")
	require.Len(t, c.Messages, 1)
	msg := c.Messages[0]
	assert.Equal(t, "nick", msg.Sender.Nick())
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "#chan", msg.Target)
	assert.Equal(t, 1, c.Unread)
	assert.Equal(t, 0, ta.AwayBuffer().Len())

	resolved, ok := msg.Sender.(state.ResolvedSender)
	require.True(t, ok)
	assert.Equal(t, "user", resolved.Ident)
	assert.Equal(t, "host", resolved.Hostname)
}

func TestPrivMsgWhileAway(t *testing.T) {
	ta := registeredApp(t)
	ta.Channels().Add("#chan", state.CategoryChannel)

	ta.feed(":srv 306 me :You have been marked as being away")
	require.True(t, ta.IsAway())

	ta.feed(":nick!user@host PRIVMSG #chan :hello")
	assert.Equal(t, 1, ta.channel("#chan").Unread)
	away := ta.AwayBuffer().Messages()
	require.Len(t, away, 1)
	assert.Equal(t, "#chan", away[0].Channel)
	assert.Equal(t, "hello", away[0].Text)

	ta.feed(":srv 305 me :You are no longer marked as being away")
	assert.False(t, ta.IsAway())
	ta.feed(":nick!user@host PRIVMSG #chan :again")
	assert.Equal(t, 1, ta.AwayBuffer().Len())
}

func TestAwayBufferDropsNewest(t *testing.T) {
	reg := prometheus.NewRegistry()
	ta := registeredApp(t, WithRegisterer(reg))
	ta.Channels().Add("#chan", state.CategoryChannel)
	ta.feed(":srv 306 me :away")

	for i := 0; i < state.MaxAwayMessages+5; i++ {
		ta.feed(":nick!user@host PRIVMSG #chan :hello")
	}
	assert.Equal(t, state.MaxAwayMessages, ta.AwayBuffer().Len())
	assert.Equal(t, float64(5), testutil.ToFloat64(ta.Metrics().Drops.WithLabelValues("away")))
}

func TestPrivateMessage(t *testing.T) {
	ta := registeredApp(t)

	ta.feed(":alice!a@h PRIVMSG me :hi there")
	c := ta.channel("alice")
	assert.Equal(t, state.CategoryPriv, c.Category)
	require.Len(t, c.Messages, 1)
	assert.Equal(t, "hi there", c.Messages[0].Text)

	ta.feed(":srv.example.org NOTICE me :*** server notice")
	assert.Equal(t, "*** server notice", ta.lastStatus())
}

func TestOwnMessagesAreNotUnread(t *testing.T) {
	ta := registeredApp(t)
	ta.Channels().Add("#chan", state.CategoryChannel)

	ta.feed(":me!me@host PRIVMSG #chan :hello me")
	c := ta.channel("#chan")
	require.Len(t, c.Messages, 1)
	assert.Equal(t, 0, c.Unread)
	assert.False(t, c.Mention)
}

func TestActiveChannelIsNotUnread(t *testing.T) {
	ta := registeredApp(t)
	ta.Channels().Add("#chan", state.CategoryChannel)
	ta.SetActive("#chan")

	ta.feed(":nick!user@host PRIVMSG #chan :hello")
	assert.Equal(t, 0, ta.channel("#chan").Unread)
}

func TestMention(t *testing.T) {
	ta := registeredApp(t)
	ta.Channels().Add("#chan", state.CategoryChannel)

	ta.feed(":nick!user@host PRIVMSG #chan :someone named meme")
	assert.False(t, ta.channel("#chan").Mention)

	ta.feed(":nick!user@host PRIVMSG #chan :hey \x02ME\x02, look")
	c := ta.channel("#chan")
	assert.True(t, c.Mention)
	assert.True(t, c.Messages[len(c.Messages)-1].Mention)

	ta.SetActive("#chan")
	assert.False(t, ta.channel("#chan").Mention)
}

func TestHighlights(t *testing.T) {
	cfg := testConfig()
	cfg.Highlights = []string{"deploy"}
	ta := newTestApp(t, cfg)
	ta.register()
	ta.Channels().Add("#chan", state.CategoryChannel)

	ta.feed(":nick!user@host PRIVMSG #chan :nothing to see")
	assert.False(t, ta.channel("#chan").Mention)
	ta.feed(":nick!user@host PRIVMSG #chan :hello me")
	assert.True(t, ta.channel("#chan").Mention)

	ta.SetActive("#chan")
	ta.SetActive(state.StatusChannel)
	require.False(t, ta.channel("#chan").Mention)
	ta.feed(":nick!user@host PRIVMSG #chan :deploy done")
	assert.True(t, ta.channel("#chan").Mention)
}

func TestIsHighlight(t *testing.T) {
	for _, tc := range []struct {
		text string
		want bool
	}{
		{"me", true},
		{"hi me!", true},
		{"me: hello", true},
		{"meme", false},
		{"me_", false},
		{"some-me", false},
		{"a me b", true},
		{"", false},
	} {
		assert.Equal(t, tc.want, isHighlight(tc.text, "me"), tc.text)
	}
}

func TestAction(t *testing.T) {
	ta := registeredApp(t)
	ta.Channels().Add("#chan", state.CategoryChannel)

	ta.feed(":nick!user@host PRIVMSG #chan :\x01ACTION waves\x01")
	ta.feed(":nick!user@host PRIVMSG #chan :\x01VERSION\x01")
	c := ta.channel("#chan")
	require.Len(t, c.Messages, 1)
	assert.Equal(t, "ACTION", c.Messages[0].Command)
	assert.Equal(t, "waves", c.Messages[0].Text)
}

func TestLinks(t *testing.T) {
	ta := registeredApp(t)
	ta.Channels().Add("#chan", state.CategoryChannel)

	ta.feed(":nick!user@host PRIVMSG #chan :see https://example.org/a and https://example.com")
	c := ta.channel("#chan")
	require.Len(t, c.Messages, 1)
	assert.Equal(t, []string{"https://example.org/a", "https://example.com"}, c.Messages[0].Links)
}

func TestAutoJoin(t *testing.T) {
	cfg := testConfig()
	cfg.Channels = []string{"#a", "#b"}
	cfg.Monitor = []string{"Alice"}
	ta := newTestApp(t, cfg)

	ta.feed(
		":srv 001 me :Welcome",
		":srv 005 me CHANTYPES=# MONITOR=100 :are supported",
	)
	sent := ta.drain()
	assert.Contains(t, sent, "JOIN #a")
	assert.Contains(t, sent, "JOIN #b")
	assert.Contains(t, sent, "MONITOR + Alice")

	ta.feed(
		":me!me@host JOIN #a",
		":srv 332 me #a :the topic",
		":srv 333 me #a alice 1700000000",
		":srv 353 me = #a :@alice me",
		":srv 366 me #a :End of /NAMES list.",
	)
	c := ta.channel("#a")
	assert.Equal(t, state.CategoryChannel, c.Category)
	assert.Equal(t, "the topic", c.Topic)
	assert.Equal(t, "alice", c.TopicSetBy)
	assert.Equal(t, time.Unix(1700000000, 0).Unix(), c.TopicSetTime.Unix())
	assert.Equal(t, "#a", ta.Channels().Active())

	ta.feed(":me!me@host PART #a")
	assert.False(t, ta.Channels().Has("#a"))
}

func TestTopicChange(t *testing.T) {
	ta := registeredApp(t)
	ta.feed(
		":me!me@host JOIN #chan",
		":srv 353 me = #chan :@alice me",
		":srv 366 me #chan :End of /NAMES list.",
		":alice!a@h TOPIC #chan :new topic",
	)
	topic, who, _ := ta.Channels().Topic("#chan")
	assert.Equal(t, "new topic", topic)
	assert.Equal(t, "alice", who)
}

func TestQuitClearsTyping(t *testing.T) {
	ta := registeredApp(t)
	ta.feed(
		":me!me@host JOIN #chan",
		":srv 353 me = #chan :alice bob me",
		":srv 366 me #chan :End of /NAMES list.",
		"@+typing=active :alice!a@h TAGMSG #chan",
		"@+draft/typing=paused :bob!b@h TAGMSG #chan",
	)
	assert.Equal(t, []string{"alice", "bob"}, ta.Channels().Typing("#chan"))

	ta.feed("@+typing=done :bob!b@h TAGMSG #chan")
	assert.Equal(t, []string{"alice"}, ta.Channels().Typing("#chan"))

	ta.feed(":alice!a@h QUIT :bye")
	assert.Empty(t, ta.Channels().Typing("#chan"))
	c := ta.channel("#chan")
	assert.Equal(t, "QUIT", c.Messages[len(c.Messages)-1].Command)
}

func TestQuitClearsPrivateTyping(t *testing.T) {
	ta := registeredApp(t)
	ta.feed(
		":me!me@host JOIN #chan",
		":srv 353 me = #chan :alice me",
		":srv 366 me #chan :End of /NAMES list.",
	)
	ta.Channels().Add("alice", state.CategoryPriv)
	ta.feed("@+typing=active :alice!a@h TAGMSG me")
	assert.Equal(t, []string{"alice"}, ta.Channels().Typing("alice"))

	ta.feed(":alice!a@h QUIT :bye")
	assert.Empty(t, ta.Channels().Typing("alice"))
}

func TestMessageClearsTyping(t *testing.T) {
	ta := registeredApp(t)
	ta.Channels().Add("#chan", state.CategoryChannel)
	ta.feed("@+typing=active :alice!a@h TAGMSG #chan")
	assert.Equal(t, []string{"alice"}, ta.Channels().Typing("#chan"))

	ta.feed(":alice!a@h PRIVMSG #chan :done typing")
	assert.Empty(t, ta.Channels().Typing("#chan"))
}

func TestListAggregation(t *testing.T) {
	ta := registeredApp(t)

	lines := []string{":srv 321 me Channel :Users Name"}
	for i := 0; i < 12; i++ {
		lines = append(lines, ":srv 322 me #c"+string(rune('a'+i))+" 3 :topic")
	}
	lines = append(lines,
		":srv 322 me #ca 99 :duplicate",
		":srv 322 me * 1 :hidden",
		":srv 323 me :End of /LIST",
	)
	ta.feed(lines...)

	assert.True(t, ta.ChannelList().Finished())
	entries := ta.ChannelList().Entries()
	require.Len(t, entries, 12)
	assert.Equal(t, state.ListEntry{Name: "#ca", Users: 3, Topic: "topic"}, entries[0])
}

func TestListRepeatedWithoutStart(t *testing.T) {
	ta := joinedApp(t)

	round := func(users string) {
		require.NoError(t, ta.HandleInput(state.StatusChannel, "/list"))
		assert.Equal(t, []string{"LIST"}, ta.drain())
		assert.False(t, ta.ChannelList().Finished())
		var lines []string
		for i := 0; i < 10; i++ {
			lines = append(lines, ":srv 322 me #c"+string(rune('a'+i))+" "+users+" :topic")
		}
		ta.feed(append(lines, ":srv 323 me :End of /LIST")...)
		assert.True(t, ta.ChannelList().Finished())
	}

	round("3")
	round("7")
	entries := ta.ChannelList().Entries()
	require.Len(t, entries, 10)
	for _, e := range entries {
		assert.Equal(t, 7, e.Users, e.Name)
	}
}

func TestShortListIsDiscarded(t *testing.T) {
	ta := registeredApp(t)
	ta.feed(
		":srv 321 me Channel :Users Name",
		":srv 322 me #a 3 :topic",
		":srv 323 me :End of /LIST",
	)
	assert.True(t, ta.ChannelList().Finished())
	assert.Equal(t, 0, ta.ChannelList().Len())
}

func TestMonitorReplies(t *testing.T) {
	ta := registeredApp(t)
	ta.Monitor().Add("Alice")

	ta.feed(":srv 730 me :alice!a@host,bob!b@host")
	assert.True(t, ta.Monitor().IsOnline("ALICE"))
	assert.True(t, ta.Monitor().IsOnline("bob"))
	u, ok := ta.Monitor().Get("alice")
	require.True(t, ok)
	assert.Equal(t, "alice!a@host", u.UserString)

	ta.feed(":srv 731 me :alice")
	u, _ = ta.Monitor().Get("alice")
	assert.False(t, u.Online)
	assert.Empty(t, u.UserString)
}

func TestMetadata(t *testing.T) {
	ta := registeredApp(t)
	ta.Channels().Add("alice", state.CategoryPriv)

	ta.feed(
		":srv METADATA alice avatar * :https://example.org/a.png",
		":srv METADATA alice display-name * :Alice",
		":srv METADATA alice homepage * :https://example.org",
	)
	c := ta.channel("alice")
	assert.Equal(t, "https://example.org/a.png", c.Avatar)
	assert.Equal(t, "Alice", c.DisplayName)
}

func TestHandlerErrorIsReported(t *testing.T) {
	reg := prometheus.NewRegistry()
	ta := registeredApp(t, WithRegisterer(reg))

	ta.feed(":alice!a@h JOIN")
	require.Len(t, ta.diagnostics, 1)
	assert.Equal(t, "JOIN <removed>", ta.diagnostics[0].line)
	assert.Contains(t, ta.diagnostics[0].err.Error(), "expected at least 1 params")
	assert.Equal(t, float64(1), testutil.ToFloat64(ta.Metrics().Failures.WithLabelValues("handler")))

	// dispatch continues
	ta.Channels().Add("#chan", state.CategoryChannel)
	ta.feed(":nick!user@host PRIVMSG #chan :hello")
	assert.Len(t, ta.channel("#chan").Messages, 1)
}

func TestPanicIsRecovered(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessages = 1
	ta := newTestApp(t, cfg)
	ta.register()
	ta.Channels().Add("#chan", state.CategoryChannel)
	ta.Channels().OnEvict = func(channel string) {
		if channel == "#chan" {
			panic("boom")
		}
	}

	ta.feed(
		":nick!user@host PRIVMSG #chan :PASS secret",
		":nick!user@host PRIVMSG #chan :PASS secret",
	)
	require.Len(t, ta.diagnostics, 1)
	assert.Equal(t, "PRIVMSG <removed>", ta.diagnostics[0].line)
	assert.EqualError(t, ta.diagnostics[0].err, "panic: boom")
	assert.NotContains(t, ta.lastStatus(), "secret")
}

func TestIgnoredLines(t *testing.T) {
	reg := prometheus.NewRegistry()
	ta := registeredApp(t, WithRegisterer(reg))

	ta.feed("", "   ", "@a=b", ":srv FOOBAR me :whatever")
	assert.Equal(t, float64(3), testutil.ToFloat64(ta.Metrics().Ignored))
	assert.Equal(t, float64(1), testutil.ToFloat64(ta.Metrics().Lines.WithLabelValues("FOOBAR")))
	assert.Empty(t, ta.diagnostics)
}

func TestOffline(t *testing.T) {
	ta := registeredApp(t)
	ta.Disconnect()
	assert.Nil(t, ta.Session())
	assert.Equal(t, "Connection lost", ta.lastStatus())

	ta.feed(":nick!user@host PRIVMSG #chan :hello")
	require.Len(t, ta.diagnostics, 1)
	assert.ErrorIs(t, ta.diagnostics[0].err, errOffline)
}

func TestEncryptedLines(t *testing.T) {
	key := make([]byte, codec.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	c, err := codec.New(key)
	require.NoError(t, err)

	ta := newTestApp(t, testConfig(), WithCodec(c))
	for _, raw := range []string{
		":srv 001 me :Welcome",
		":srv 005 me CHANTYPES=# :are supported",
		":nick!user@host PRIVMSG #chan :secret hello",
	} {
		line, err := c.EncryptString(raw)
		require.NoError(t, err)
		ta.feed(line)
	}
	assert.True(t, ta.Session().Registered())
	assert.Len(t, ta.channel("#chan").Messages, 1)
	assert.Empty(t, ta.diagnostics)

	ta.feed(":nick!user@host PRIVMSG #chan :plain")
	require.Len(t, ta.diagnostics, 1)
	assert.True(t, errors.Is(ta.diagnostics[0].err, codec.ErrDecrypt))
	assert.Equal(t, "PRIVMSG <removed>", ta.diagnostics[0].line)
}

func TestDebugChannel(t *testing.T) {
	cfg := testConfig()
	cfg.Debug = true
	password := "hunter2"
	cfg.Password = &password
	ta := newTestApp(t, cfg)
	require.True(t, ta.Channels().Has(state.DebugChannel))

	ta.feed(":srv 001 me :Welcome")

	debugLines := func() string {
		var lines []string
		for _, msg := range ta.channel(state.DebugChannel).Messages {
			lines = append(lines, msg.Sender.Nick()+" "+msg.Text)
		}
		return strings.Join(lines, "\n")
	}
	require.Eventually(t, func() bool {
		return strings.Contains(debugLines(), "OUT CAP END")
	}, time.Second, 10*time.Millisecond)

	joined := debugLines()
	assert.Contains(t, joined, "OUT AUTHENTICATE PLAIN")
	assert.Contains(t, joined, "OUT AUTHENTICATE <removed>")
	assert.NotContains(t, joined, "bWUAbWUAaHVudGVyMg==")
	assert.Contains(t, joined, "IN :srv 001 me :Welcome")
}

func TestRedactMessage(t *testing.T) {
	for _, tc := range []struct {
		in, want irc.Message
	}{
		{irc.NewMessage("PASS", "hunter2"), irc.NewMessage("PASS", "<removed>")},
		{irc.NewMessage("OPER", "admin", "hunter2"), irc.NewMessage("OPER", "admin", "<removed>")},
		{irc.NewMessage("AUTHENTICATE", "PLAIN"), irc.NewMessage("AUTHENTICATE", "PLAIN")},
		{irc.NewMessage("AUTHENTICATE", "*"), irc.NewMessage("AUTHENTICATE", "*")},
		{irc.NewMessage("AUTHENTICATE", "Zm9v"), irc.NewMessage("AUTHENTICATE", "<removed>")},
		{irc.NewMessage("NICK", "me"), irc.NewMessage("NICK", "me")},
	} {
		assert.Equal(t, tc.want.String(), redactMessage(tc.in).String())
	}
}

func TestRedactLine(t *testing.T) {
	assert.Equal(t, "PRIVMSG <removed>", redactLine("@a=b :n!u@h PRIVMSG #c :secret"))
	assert.Equal(t, "<removed>", redactLine(""))
}
