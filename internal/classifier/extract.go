package classifier

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxSummaryLen = 240
	maxActions    = 5
)

var (
	sentence    = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
	actionVerbs = []string{
		"click", "verify", "confirm", "log in", "login", "sign in", "update", "reply",
		"call", "download", "open the attachment", "transfer", "pay", "send", "reset",
	}
)

// Summarise returns the opening sentences of the body, falling back to
// the subject.
func Summarise(subject string, body Body) string {
	text := strings.TrimSpace(body.Text)
	if text == "" {
		return strings.TrimSpace(subject)
	}

	var b strings.Builder
	for _, s := range splitSentences(text) {
		if b.Len() > 0 && b.Len()+len(s)+1 > maxSummaryLen {
			break
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(s)
	}

	out := b.String()
	if len(out) > maxSummaryLen {
		cut := maxSummaryLen - 3
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = strings.TrimSpace(out[:cut]) + "..."
	}
	return out
}

// CallsToAction lists what the email asks the reader to do: each link
// (by its anchor text, or its host) and each sentence built on an action
// verb. At most five, in order of appearance, without duplicates.
func CallsToAction(body Body) []string {
	seen := map[string]bool{}
	out := make([]string, 0, maxActions)
	add := func(s string) {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] || len(out) >= maxActions {
			return
		}
		seen[key] = true
		out = append(out, s)
	}

	for _, s := range splitSentences(body.Text) {
		lower := strings.ToLower(s)
		for _, v := range actionVerbs {
			if containsWord(lower, v) {
				add(s)
				break
			}
		}
	}

	for _, l := range body.Links {
		if l.Text != "" {
			add(l.Text + " (" + l.Href + ")")
		} else if host := l.Host(); host != "" {
			add("Visit " + host)
		}
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	for _, p := range sentence.FindAllString(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsWord(s, word string) bool {
	i := strings.Index(s, word)
	for i >= 0 {
		before := i == 0 || !isLetter(s[i-1])
		end := i + len(word)
		after := end >= len(s) || !isLetter(s[end])
		if before && after {
			return true
		}
		next := strings.Index(s[i+1:], word)
		if next < 0 {
			return false
		}
		i += next + 1
	}
	return false
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
