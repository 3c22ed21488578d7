package classifier

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Link is an anchor found in an email body.
type Link struct {
	Href string
	Text string
}

func (l Link) Host() string {
	u, err := url.Parse(strings.TrimSpace(l.Href))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// HasUserInfo reports a "user@" part before the host, a common way to make
// a link read as a trusted domain.
func (l Link) HasUserInfo() bool {
	u, err := url.Parse(strings.TrimSpace(l.Href))
	return err == nil && u.User != nil
}

// Body is the parsed form of an email body shared by the detectors.
type Body struct {
	Text  string
	Links []Link
}

var bareURL = regexp.MustCompile(`https?://[^\s<>"']+`)

// ParseBody extracts visible text and links from an HTML or plain-text body.
// Bare URLs in text are reported as links with empty anchor text.
func ParseBody(raw string) Body {
	var (
		text  strings.Builder
		links []Link
		seen  = map[string]bool{}
	)

	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		text.WriteString(raw)
	} else {
		var walk func(n *html.Node)
		walk = func(n *html.Node) {
			if n.Type == html.ElementNode {
				switch n.Data {
				case "script", "style", "head":
					return
				case "a":
					if href := attr(n, "href"); href != "" {
						label := strings.TrimSpace(nodeText(n))
						links = append(links, Link{Href: href, Text: label})
						seen[href] = true
						seen[label] = true
					}
				case "br", "p", "div", "li", "tr":
					text.WriteString("\n")
				}
			}
			if n.Type == html.TextNode {
				text.WriteString(n.Data)
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(doc)
	}

	plain := text.String()
	for _, u := range bareURL.FindAllString(plain, -1) {
		u = strings.TrimRight(u, ".,;:)")
		if !seen[u] {
			links = append(links, Link{Href: u})
			seen[u] = true
		}
	}

	return Body{Text: collapseSpace(plain), Links: links}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

var (
	spaces   = regexp.MustCompile(`[ \t\r\f\v]+`)
	newlines = regexp.MustCompile(`\n\s*\n+`)
)

func collapseSpace(s string) string {
	s = spaces.ReplaceAllString(s, " ")
	s = newlines.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
