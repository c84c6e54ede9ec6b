package sic

import (
	"log"
	"time"

	"github.com/Simple-Irc-Client/core-sub003/irc"
	"github.com/Simple-Irc-Client/core-sub003/state"
)

const redacted = "<removed>"

func logDiagnostic(err error, line string) {
	log.Printf("dispatch: %s: %v", line, err)
}

// fail reports a failed line to the diagnostic sink and to the Status
// channel. The line content is never reported as is.
func (app *App) fail(reason string, err error, raw string) {
	app.metrics.Failures.WithLabelValues(reason).Inc()
	line := redactLine(raw)
	if app.diagnostics != nil {
		app.diagnostics(err, line)
	}
	app.addStatusLine("Failed to handle " + line + ": " + err.Error())
}

// redactLine keeps the command of raw and drops everything else.
func redactLine(raw string) string {
	line := irc.ParseLine(raw)
	if line.Command == "" {
		return redacted
	}
	return line.Command + " " + redacted
}

// redactMessage hides credentials in outbound messages.
func redactMessage(msg irc.Message) irc.Message {
	switch msg.Command {
	case "PASS":
		msg.Params = []string{redacted}
	case "OPER":
		if len(msg.Params) > 0 {
			msg.Params = []string{msg.Params[0], redacted}
		}
	case "AUTHENTICATE":
		if len(msg.Params) > 0 && msg.Params[0] != "*" && msg.Params[0] != "PLAIN" {
			msg.Params = []string{redacted}
		}
	}
	return msg
}

func (app *App) addLine(channel, command string, sender state.Sender, text string, at time.Time) {
	if at.IsZero() {
		at = app.now()
	}
	msg := state.NewMessage(command, sender, channel, text, at, nil)
	app.channels.AppendMessage(channel, msg)
}

func (app *App) addStatusLine(text string) {
	app.addLine(state.StatusChannel, "STATUS", state.SimpleSender("--"), text, time.Time{})
}

func (app *App) addDebugLine(head, text string) {
	app.addLine(state.DebugChannel, "DEBUG", state.SimpleSender(head), text, time.Time{})
}

// addEventLine records a membership or channel event in channel, if it is
// stored.
func (app *App) addEventLine(channel, command, nick, text string, at time.Time) {
	if !app.channels.Has(channel) {
		return
	}
	app.addLine(channel, command, state.SimpleSender(nick), text, at)
}

// debugOutputMessages copies outbound messages to the Debug channel before
// forwarding them to out.
func (app *App) debugOutputMessages(out chan<- irc.Message) chan<- irc.Message {
	debugOut := make(chan irc.Message, cap(out))
	go func() {
		for msg := range debugOut {
			app.addDebugLine("OUT", redactMessage(msg).String())
			out <- msg
		}
		close(out)
	}()
	return debugOut
}
