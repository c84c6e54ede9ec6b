package irc

import (
	"fmt"
	"strings"
)

// UserMode pairs a membership prefix symbol with its mode letter, e.g. "@"
// and "o".
type UserMode struct {
	Symbol string
	Flag   string
}

// DefaultUserModes is used until the server advertises PREFIX.
var DefaultUserModes = ParseUserModes("(ov)@+")

// ParseUserModes parses the value of the PREFIX ISUPPORT token, e.g.
// "(qaohv)~&@%+". The result is ordered from most to least senior. Malformed
// values give an empty list.
func ParseUserModes(prefix string) []UserMode {
	if !strings.HasPrefix(prefix, "(") {
		return nil
	}
	end := strings.IndexByte(prefix, ')')
	if end < 0 {
		return nil
	}
	flags := []rune(prefix[1:end])
	symbols := []rune(prefix[end+1:])
	if len(flags) == 0 || len(flags) != len(symbols) {
		return nil
	}

	modes := make([]UserMode, len(flags))
	for i := range flags {
		modes[i] = UserMode{
			Symbol: string(symbols[i]),
			Flag:   string(flags[i]),
		}
	}
	return modes
}

func modeIndexBySymbol(modes []UserMode, symbol string) int {
	for i, m := range modes {
		if m.Symbol == symbol {
			return i
		}
	}
	return -1
}

func modeIndexByFlag(modes []UserMode, flag string) int {
	for i, m := range modes {
		if m.Flag == flag {
			return i
		}
	}
	return -1
}

// MaxPermission returns the permission level of the most senior flag in
// flags: 256 for the first entry of modes, 255 for the second and so on.
// It returns -1 when no flag matches.
func MaxPermission(flags []string, modes []UserMode) int {
	for i, m := range modes {
		for _, f := range flags {
			if f == m.Flag {
				return 256 - i
			}
		}
	}
	return -1
}

// SortFlags orders flags from most to least senior and drops unknown and
// duplicate ones.
func SortFlags(flags []string, modes []UserMode) []string {
	var sorted []string
	for _, m := range modes {
		for _, f := range flags {
			if f == m.Flag {
				sorted = append(sorted, f)
				break
			}
		}
	}
	return sorted
}

// Symbols returns the prefix symbols matching flags, most senior first.
func Symbols(flags []string, modes []UserMode) string {
	var sb strings.Builder
	for _, f := range SortFlags(flags, modes) {
		sb.WriteString(modes[modeIndexByFlag(modes, f)].Symbol)
	}
	return sb.String()
}

// ChannelModes holds the four classes of the CHANMODES ISUPPORT token.
type ChannelModes struct {
	A string // list modes, always take a parameter
	B string // always take a parameter
	C string // take a parameter only when set
	D string // never take a parameter
}

var DefaultChannelModes = ChannelModes{A: "beI", B: "k", C: "l", D: "imnpst"}

// ParseChannelModes parses the value of the CHANMODES ISUPPORT token. Classes
// beyond the fourth are ignored; missing ones are left empty.
func ParseChannelModes(s string) (modes ChannelModes) {
	types := strings.SplitN(s, ",", 5)
	classes := []*string{&modes.A, &modes.B, &modes.C, &modes.D}
	for i := 0; i < len(types) && i < len(classes); i++ {
		*classes[i] = types[i]
	}
	return
}

type ModeChange struct {
	Enable bool
	Mode   byte
	Param  string
}

// ParseChannelMode expands a MODE string such as "+ov-k" and its parameters
// into individual changes.
func ParseChannelMode(mode string, params []string, chanModes ChannelModes, userModes []UserMode) ([]ModeChange, error) {
	var changes []ModeChange
	enable := true
	j := 0
	for i := 0; i < len(mode); i++ {
		c := mode[i]
		if c == '+' || c == '-' {
			enable = c == '+'
			continue
		}

		var takesParam bool
		switch {
		case strings.IndexByte(chanModes.A, c) >= 0, strings.IndexByte(chanModes.B, c) >= 0:
			takesParam = true
		case strings.IndexByte(chanModes.C, c) >= 0:
			takesParam = enable
		case modeIndexByFlag(userModes, string(c)) >= 0:
			takesParam = true
		}

		change := ModeChange{Enable: enable, Mode: c}
		if takesParam {
			if j >= len(params) {
				return changes, fmt.Errorf("irc: missing parameter for mode %q", string(c))
			}
			change.Param = params[j]
			j++
		}
		changes = append(changes, change)
	}
	return changes, nil
}
