package sic

import (
	"sort"
	"strings"

	"github.com/Simple-Irc-Client/core-sub003/state"
)

// Completion is a candidate replacement for the input line.
type Completion struct {
	Text    string // the whole input line, completed
	Display string // what was completed
}

// Completions returns the ways to complete the last word of text, typed while
// looking at channel.
func (app *App) Completions(channel, text string) []Completion {
	var cs []Completion
	cs = app.completionsCommands(cs, text)
	if len(cs) > 0 {
		return cs
	}
	if app.session == nil {
		return nil
	}
	for _, complete := range []func([]Completion) []Completion{
		func(cs []Completion) []Completion { return app.completionsChannelTopic(cs, channel, text) },
		func(cs []Completion) []Completion { return app.completionsMsg(cs, text) },
		func(cs []Completion) []Completion { return app.completionsChannels(cs, text) },
		func(cs []Completion) []Completion { return app.completionsChannelMembers(cs, channel, text) },
	} {
		if cs = complete(cs); len(cs) > 0 {
			break
		}
	}
	return cs
}

func lastWord(text string) (start int, word string) {
	start = strings.LastIndexByte(text, ' ') + 1
	return start, text[start:]
}

func (app *App) completionsChannelMembers(cs []Completion, channel, text string) []Completion {
	start, word := lastWord(text)
	if word == "" || strings.HasPrefix(text, "/") && start == 0 {
		return cs
	}
	s := app.session
	wordCf := s.Casemap(word)
	for _, m := range s.Names(channel) {
		if m.Self || !strings.HasPrefix(s.Casemap(m.Name.Nick), wordCf) {
			continue
		}
		comp := m.Name.Nick
		if start == 0 {
			comp += ":"
		}
		cs = append(cs, Completion{
			Text:    text[:start] + comp + " ",
			Display: m.Name.Nick,
		})
	}
	return cs
}

func (app *App) completionsChannelTopic(cs []Completion, channel, text string) []Completion {
	if !strings.EqualFold(text, "/topic ") {
		return cs
	}
	topic, _, _ := app.channels.Topic(channel)
	if topic == "" {
		return cs
	}
	return append(cs, Completion{
		Text:    text + topic,
		Display: topic,
	})
}

// completionsMsg completes the target of /msg and /query with the users we
// know of.
func (app *App) completionsMsg(cs []Completion, text string) []Completion {
	cmd, rest, ok := strings.Cut(text, " ")
	if !ok || strings.Contains(rest, " ") {
		return cs
	}
	switch strings.ToUpper(cmd) {
	case "/MSG", "/QUERY":
	default:
		return cs
	}
	s := app.session
	wordCf := s.Casemap(rest)
	seen := map[string]struct{}{}
	var targets []string
	add := func(name string) {
		nameCf := s.Casemap(name)
		if _, ok := seen[nameCf]; ok || s.IsMe(name) || !strings.HasPrefix(nameCf, wordCf) {
			return
		}
		seen[nameCf] = struct{}{}
		targets = append(targets, name)
	}
	for _, name := range app.channels.Names() {
		if state.Categorize(name, s.ChanTypes()) == state.CategoryPriv {
			add(name)
		}
	}
	for _, u := range app.monitor.List() {
		add(u.Nick)
	}
	for _, name := range s.Users() {
		add(name)
	}
	sort.Strings(targets)
	for _, name := range targets {
		cs = append(cs, Completion{
			Text:    cmd + " " + name + " ",
			Display: name,
		})
	}
	return cs
}

func (app *App) completionsChannels(cs []Completion, text string) []Completion {
	start, word := lastWord(text)
	s := app.session
	if word == "" || !s.IsChannel(word) {
		return cs
	}
	wordCf := s.Casemap(word)
	for _, name := range app.channels.Names() {
		if !s.IsChannel(name) || !strings.HasPrefix(s.Casemap(name), wordCf) {
			continue
		}
		cs = append(cs, Completion{
			Text:    text[:start] + name + " ",
			Display: name,
		})
	}
	return cs
}

func (app *App) completionsCommands(cs []Completion, text string) []Completion {
	if !strings.HasPrefix(text, "/") || strings.Contains(text, " ") {
		return cs
	}
	uText := strings.ToUpper(text[1:])
	names := make([]string, 0, len(commands))
	for name := range commands {
		if strings.HasPrefix(name, uText) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		cs = append(cs, Completion{
			Text:    "/" + strings.ToLower(name) + " ",
			Display: "/" + strings.ToLower(name),
		})
	}
	return cs
}
