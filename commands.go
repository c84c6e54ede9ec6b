package sic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Simple-Irc-Client/core-sub003/irc"
	"github.com/Simple-Irc-Client/core-sub003/state"
)

const maxArgsInfinite = -1

type command struct {
	AllowHome bool
	MinArgs   int
	MaxArgs   int
	Usage     string
	Desc      string
	Handle    func(app *App, channel string, args []string) error // nil = passthrough
}

type commandSet map[string]*command

var commands commandSet

func init() {
	commands = commandSet{
		"HELP": {
			AllowHome: true,
			MaxArgs:   1,
			Usage:     "[command]",
			Desc:      "show the list of commands, or how to use the given one",
			Handle:    commandDoHelp,
		},
		"JOIN": {
			AllowHome: true,
			MinArgs:   1,
			MaxArgs:   2,
			Usage:     "<channels> [keys]",
			Desc:      "join a channel",
			Handle:    commandDoJoin,
		},
		"ME": {
			MinArgs: 1,
			MaxArgs: 1,
			Usage:   "<message>",
			Desc:    "send an action",
			Handle:  commandDoMe,
		},
		"MSG": {
			AllowHome: true,
			MinArgs:   2,
			MaxArgs:   2,
			Usage:     "<target> <message>",
			Desc:      "send a message to the given target",
			Handle:    commandDoMsg,
		},
		"MOTD": {
			AllowHome: true,
			Desc:      "show the message of the day (MOTD)",
		},
		"NAMES": {
			Desc:   "show the member list of the current channel",
			Handle: commandDoNames,
		},
		"NICK": {
			AllowHome: true,
			MinArgs:   1,
			MaxArgs:   1,
			Usage:     "<nickname>",
			Desc:      "change your nickname",
			Handle:    commandDoNick,
		},
		"MODE": {
			AllowHome: true,
			MaxArgs:   maxArgsInfinite,
			Usage:     "[<nick/channel>] [<flags>] [args]",
			Desc:      "change channel or user modes",
			Handle:    commandDoMode,
		},
		"PART": {
			AllowHome: true,
			MaxArgs:   2,
			Usage:     "[channel] [reason]",
			Desc:      "part a channel",
			Handle:    commandDoPart,
		},
		"QUERY": {
			AllowHome: true,
			MinArgs:   1,
			MaxArgs:   2,
			Usage:     "[nick] [message]",
			Desc:      "opens a channel to a user",
			Handle:    commandDoQuery,
		},
		"QUIT": {
			AllowHome: true,
			MaxArgs:   1,
			Usage:     "[reason]",
			Desc:      "quit the server",
			Handle:    commandDoQuit,
		},
		"QUOTE": {
			AllowHome: true,
			MinArgs:   1,
			MaxArgs:   1,
			Usage:     "<raw message>",
			Desc:      "send raw protocol data",
			Handle:    commandDoQuote,
		},
		"LIST": {
			AllowHome: true,
			MaxArgs:   1,
			Usage:     "[pattern]",
			Desc:      "list public channels",
			Handle:    commandDoList,
		},
		"TOPIC": {
			MaxArgs: 1,
			Usage:   "[topic]",
			Desc:    "show or set the topic of the current channel",
			Handle:  commandDoTopic,
		},
		"WHOIS": {
			AllowHome: true,
			MinArgs:   1,
			MaxArgs:   1,
			Usage:     "<nick>",
			Desc:      "get information about someone",
			Handle:    commandDoWhois,
		},
		"INVITE": {
			MinArgs: 1,
			MaxArgs: 2,
			Usage:   "<name> [channel]",
			Desc:    "invite someone to a channel",
			Handle:  commandDoInvite,
		},
		"KICK": {
			MinArgs: 1,
			MaxArgs: 2,
			Usage:   "<nick> [reason]",
			Desc:    "remove someone from the current channel",
			Handle:  commandDoKick,
		},
		"AWAY": {
			AllowHome: true,
			MaxArgs:   1,
			Usage:     "[message]",
			Desc:      "mark yourself as away",
			Handle:    commandDoAway,
		},
		"BACK": {
			AllowHome: true,
			Desc:      "mark yourself as back from being away",
			Handle:    commandDoBack,
		},
		"MONITOR": {
			AllowHome: true,
			MinArgs:   1,
			MaxArgs:   1,
			Usage:     "<nick>",
			Desc:      "get notified when someone comes online or goes offline",
			Handle:    commandDoMonitor,
		},
		"UNMONITOR": {
			AllowHome: true,
			MinArgs:   1,
			MaxArgs:   1,
			Usage:     "<nick>",
			Desc:      "stop monitoring someone",
			Handle:    commandDoUnmonitor,
		},
	}
}

// HandleInput runs what the user typed while looking at channel. Lines that
// do not start with a slash are sent as messages to channel.
func (app *App) HandleInput(channel, content string) error {
	if content == "" {
		return nil
	}

	cmdName, rawArgs, isCommand := parseCommand(content)
	if !isCommand {
		return commandSendMessage(app, channel, rawArgs)
	}
	if cmdName == "" {
		return fmt.Errorf("lone slash at the beginning")
	}

	chosenCMDName, err := resolveCommand(cmdName)
	if err != nil {
		return err
	}
	cmd := commands[chosenCMDName]

	var args []string
	if rawArgs != "" && cmd.MaxArgs != 0 {
		args = fieldsN(rawArgs, cmd.MaxArgs)
	}
	if len(args) < cmd.MinArgs {
		return fmt.Errorf("usage: %s %s", chosenCMDName, cmd.Usage)
	}
	if isHome(channel) && !cmd.AllowHome {
		return fmt.Errorf("command %s cannot be executed from a server channel", chosenCMDName)
	}

	if cmd.Handle != nil {
		return cmd.Handle(app, channel, args)
	}
	s := app.session
	if s == nil {
		return errOffline
	}
	s.Send(chosenCMDName, args...)
	return nil
}

// resolveCommand expands an unambiguous prefix into a command name.
func resolveCommand(name string) (string, error) {
	if _, ok := commands[name]; ok {
		return name, nil
	}
	var chosen string
	for key := range commands {
		if !strings.HasPrefix(key, name) {
			continue
		}
		if chosen != "" {
			a, b := chosen, key
			if b < a {
				a, b = b, a
			}
			return "", fmt.Errorf("ambiguous command %q (could mean %v or %v)", name, a, b)
		}
		chosen = key
	}
	if chosen == "" {
		return "", fmt.Errorf("command %q does not exist; use /quote to send it as is", name)
	}
	return chosen, nil
}

func isHome(channel string) bool {
	return channel == "" || channel == state.StatusChannel || channel == state.DebugChannel
}

func parseCommand(s string) (command, args string, isCommand bool) {
	if len(s) == 0 || s[0] != '/' {
		return "", s, false
	}
	if len(s) > 1 && s[1] == '/' {
		// Input starts with two slashes.
		return "", s[1:], false
	}

	i := strings.IndexByte(s, ' ')
	if i < 0 {
		i = len(s)
	}

	return strings.ToUpper(s[1:i]), strings.TrimLeft(s[i:], " "), true
}

// fieldsN splits s on spaces into at most n fields, the last one holding the
// rest of s.
func fieldsN(s string, n int) []string {
	s = strings.TrimSpace(s)
	if s == "" || n == 0 {
		return nil
	}
	if n == 1 {
		return []string{s}
	}
	var fields []string
	for s != "" {
		if n != maxArgsInfinite && len(fields)+1 >= n {
			fields = append(fields, s)
			break
		}
		field, rest, _ := strings.Cut(s, " ")
		fields = append(fields, field)
		s = strings.TrimLeft(rest, " ")
	}
	return fields
}

func commandSendMessage(app *App, target, content string) error {
	if isHome(target) {
		return fmt.Errorf("can't send message to this channel")
	}
	s := app.session
	if s == nil {
		return errOffline
	}
	s.PrivMsg(target, content)
	app.echo(s, "PRIVMSG", target, content)
	return nil
}

// echo shows our own message when the server will not echo it back.
func (app *App) echo(s *irc.Session, command, target, content string) {
	if s.HasCapability("echo-message") {
		return
	}
	app.handleMessageEvent(s, irc.MessageEvent{
		User:            irc.Identity{Nick: s.Nick()},
		Target:          target,
		TargetIsChannel: s.IsChannel(target),
		Command:         command,
		Content:         content,
		Time:            app.now(),
	})
}

func commandDoHelp(app *App, channel string, args []string) error {
	var names []string
	if len(args) == 0 {
		app.addStatusLine("Available commands:")
		for name := range commands {
			names = append(names, name)
		}
	} else {
		search := strings.ToUpper(args[0])
		app.addStatusLine(fmt.Sprintf("Commands that match \"%s\":", search))
		for name := range commands {
			if strings.Contains(name, search) {
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			app.addStatusLine(fmt.Sprintf("  no command matches %q", args[0]))
			return nil
		}
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := commands[name]
		app.addStatusLine(strings.TrimSpace(name + " " + cmd.Usage))
		app.addStatusLine("  " + cmd.Desc)
	}
	return nil
}

func commandDoJoin(app *App, channel string, args []string) error {
	s := app.session
	if s == nil {
		return errOffline
	}
	key := ""
	if len(args) == 2 {
		key = args[1]
	}
	s.Join(args[0], key)
	return nil
}

func commandDoMe(app *App, channel string, args []string) error {
	s := app.session
	if s == nil {
		return errOffline
	}
	content := fmt.Sprintf("\x01ACTION %s\x01", args[0])
	s.PrivMsg(channel, content)
	app.echo(s, "PRIVMSG", channel, content)
	return nil
}

func commandDoMsg(app *App, channel string, args []string) error {
	return commandSendMessage(app, args[0], args[1])
}

func commandDoNames(app *App, channel string, args []string) error {
	s := app.session
	if s == nil {
		return errOffline
	}
	if !s.IsChannel(channel) {
		return fmt.Errorf("this is not a channel")
	}
	var sb strings.Builder
	sb.WriteString("Names:")
	for _, m := range s.Names(channel) {
		sb.WriteByte(' ')
		sb.WriteString(irc.Symbols(m.Name.Flags, s.UserModes()))
		sb.WriteString(m.Name.Nick)
	}
	app.addLine(channel, "NAMES", state.SimpleSender("--"), sb.String(), app.now())
	return nil
}

func commandDoNick(app *App, channel string, args []string) error {
	s := app.session
	if s == nil {
		return errOffline
	}
	nick := args[0]
	if i := strings.IndexAny(nick, " :"); i >= 0 {
		return fmt.Errorf("illegal char %q in nickname", nick[i])
	}
	s.ChangeNick(nick)
	return nil
}

func commandDoMode(app *App, channel string, args []string) error {
	s := app.session
	if s == nil {
		return errOffline
	}
	if len(args) == 0 || (!s.IsChannel(args[0]) && !s.IsMe(args[0])) {
		if !s.IsChannel(channel) {
			return fmt.Errorf("either send this command from a channel, or specify the target")
		}
		args = append([]string{channel}, args...)
	}
	if len(args) == 1 {
		s.Send("MODE", args[0])
		return nil
	}
	s.ChangeMode(args[0], args[1], args[2:])
	return nil
}

func commandDoPart(app *App, channel string, args []string) error {
	s := app.session
	if s == nil {
		return errOffline
	}
	reason := ""
	if 0 < len(args) {
		if s.IsChannel(args[0]) {
			channel = args[0]
			if 1 < len(args) {
				reason = args[1]
			}
		} else {
			reason = strings.Join(args, " ")
		}
	}

	if isHome(channel) {
		return fmt.Errorf("cannot part this channel")
	}
	if s.IsChannel(channel) {
		s.Part(channel, reason)
	} else {
		app.channels.Remove(channel)
	}
	return nil
}

func commandDoQuery(app *App, channel string, args []string) error {
	s := app.session
	if s == nil {
		return errOffline
	}
	target := args[0]
	if s.IsChannel(target) {
		return fmt.Errorf("cannot query a channel, use JOIN instead")
	}
	if app.channels.Add(target, state.CategoryPriv) {
		s.MonitorAdd(target)
	}
	app.channels.SetActive(target)
	if len(args) > 1 {
		return commandSendMessage(app, target, args[1])
	}
	return nil
}

func commandDoQuit(app *App, channel string, args []string) error {
	s := app.session
	if s == nil {
		return errOffline
	}
	reason := ""
	if 0 < len(args) {
		reason = args[0]
	}
	s.Quit(reason)
	return nil
}

func commandDoQuote(app *App, channel string, args []string) error {
	s := app.session
	if s == nil {
		return errOffline
	}
	s.SendRaw(args[0])
	return nil
}

func commandDoList(app *App, channel string, args []string) error {
	s := app.session
	if s == nil {
		return errOffline
	}
	var pattern string
	if len(args) > 0 {
		pattern = args[0]
	}
	app.list.Reset()
	s.List(pattern)
	return nil
}

func commandDoTopic(app *App, channel string, args []string) error {
	if len(args) == 0 {
		topic, who, at := app.channels.Topic(channel)
		var body string
		switch {
		case who == "":
			body = fmt.Sprintf("Topic: %s", topic)
		default:
			body = fmt.Sprintf("Topic (set by %s on %s): %s", who, at.Local().Format("January 2 2006 at 15:04:05"), topic)
		}
		app.addLine(channel, "TOPIC", state.SimpleSender("--"), body, app.now())
		return nil
	}
	s := app.session
	if s == nil {
		return errOffline
	}
	s.ChangeTopic(channel, args[0])
	return nil
}

func commandDoWhois(app *App, channel string, args []string) error {
	s := app.session
	if s == nil {
		return errOffline
	}
	s.Whois(args[0])
	return nil
}

func commandDoInvite(app *App, channel string, args []string) error {
	s := app.session
	if s == nil {
		return errOffline
	}
	if len(args) == 2 {
		channel = args[1]
	}
	if !s.IsChannel(channel) {
		return fmt.Errorf("either send this command from a channel, or specify the channel")
	}
	s.Invite(args[0], channel)
	return nil
}

func commandDoKick(app *App, channel string, args []string) error {
	s := app.session
	if s == nil {
		return errOffline
	}
	if !s.IsChannel(channel) {
		return fmt.Errorf("this is not a channel")
	}
	comment := ""
	if len(args) == 2 {
		comment = args[1]
	}
	s.Kick(args[0], channel, comment)
	return nil
}

func commandDoAway(app *App, channel string, args []string) error {
	reason := "Away"
	if len(args) > 0 {
		reason = args[0]
	}
	return app.SetAway(reason)
}

func commandDoBack(app *App, channel string, args []string) error {
	return app.SetAway("")
}

func commandDoMonitor(app *App, channel string, args []string) error {
	nick := args[0]
	if s := app.session; s != nil && s.IsChannel(nick) {
		return fmt.Errorf("cannot monitor a channel")
	}
	app.monitor.Add(nick)
	if s := app.session; s != nil {
		s.MonitorAdd(nick)
	}
	return nil
}

func commandDoUnmonitor(app *App, channel string, args []string) error {
	nick := args[0]
	if !app.monitor.Remove(nick) {
		return fmt.Errorf("%s is not monitored", nick)
	}
	if s := app.session; s != nil {
		s.MonitorRemove(nick)
	}
	return nil
}

// SetAway sends AWAY with message, or marks us back when message is empty.
// The away state itself changes when the server confirms.
func (app *App) SetAway(message string) error {
	s := app.session
	if s == nil {
		return errOffline
	}
	s.Away(message)
	return nil
}
