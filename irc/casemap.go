package irc

// CasemapASCII maps A-Z to a-z.
func CasemapASCII(name string) string {
	nameCf := []byte(name)
	for i, r := range nameCf {
		if 'A' <= r && r <= 'Z' {
			nameCf[i] = r + 'a' - 'A'
		}
	}
	return string(nameCf)
}

// CasemapRFC1459 is CasemapASCII plus []\~ folded to {}|^.
func CasemapRFC1459(name string) string {
	nameCf := []byte(name)
	for i, r := range nameCf {
		if 'A' <= r && r <= 'Z' {
			nameCf[i] = r + 'a' - 'A'
		} else if r == '[' {
			nameCf[i] = '{'
		} else if r == ']' {
			nameCf[i] = '}'
		} else if r == '\\' {
			nameCf[i] = '|'
		} else if r == '~' {
			nameCf[i] = '^'
		}
	}
	return string(nameCf)
}
