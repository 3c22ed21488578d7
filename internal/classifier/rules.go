package classifier

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"strings"

	"phishbox/internal/model"
)

// phraseDetector flags emails containing enough of a fixed phrase list.
type phraseDetector struct {
	name      string
	phrases   []string
	threshold int
	perHit    int
	// linkBoost counts an extra hit when the email also carries a link.
	linkBoost bool
}

func (d *phraseDetector) Name() string { return d.name }

func (d *phraseDetector) Classify(_ context.Context, email *model.Email) (Outcome, error) {
	body := ParseBody(email.Body)
	text := strings.ToLower(email.Subject + "\n" + body.Text)

	var hits []string
	for _, p := range d.phrases {
		if strings.Contains(text, p) {
			hits = append(hits, p)
		}
	}

	score := len(hits)
	if d.linkBoost && score > 0 && len(body.Links) > 0 {
		score++
	}

	indicators := make([]string, 0, len(hits))
	for _, h := range hits {
		indicators = append(indicators, d.name+":"+h)
	}

	return Outcome{
		IsPhishing: score >= d.threshold,
		Confidence: model.ClampConfidence(score * d.perHit),
		Indicators: indicators,
		Details:    map[string]any{"matches": hits, "links": len(body.Links)},
	}, nil
}

// NewUrgencyDetector flags pressure language.
func NewUrgencyDetector() Detector {
	return &phraseDetector{
		name: "urgency_language",
		phrases: []string{
			"urgent", "immediately", "right away", "within 24 hours", "within 48 hours",
			"act now", "final notice", "last chance", "account will be closed",
			"account will be suspended", "expires today", "failure to", "as soon as possible",
			"limited time", "do not ignore",
		},
		threshold: 2,
		perHit:    30,
	}
}

// NewCredentialRequestDetector flags requests for secrets or account data.
func NewCredentialRequestDetector() Detector {
	return &phraseDetector{
		name: "credential_request",
		phrases: []string{
			"password", "verify your account", "verify your identity", "confirm your identity",
			"login credentials", "log in to", "sign in to", "social security", "pin code",
			"card number", "security question", "update your payment", "account number",
			"one-time code", "bank details",
		},
		threshold: 2,
		perHit:    35,
		linkBoost: true,
	}
}

var (
	shorteners = map[string]bool{
		"bit.ly": true, "tinyurl.com": true, "goo.gl": true, "t.co": true, "ow.ly": true,
		"is.gd": true, "buff.ly": true, "rebrand.ly": true, "cutt.ly": true, "shorturl.at": true,
	}
	suspiciousTLDs = []string{".zip", ".xyz", ".top", ".click", ".country", ".gq", ".tk", ".ml", ".cf", ".work", ".rest"}
)

type urlDetector struct{}

// NewURLDetector inspects links for obfuscation and deceptive anchors.
func NewURLDetector() Detector { return urlDetector{} }

func (urlDetector) Name() string { return "url_analysis" }

func (urlDetector) Classify(_ context.Context, email *model.Email) (Outcome, error) {
	body := ParseBody(email.Body)

	var (
		strong, weak int
		indicators   []string
	)
	flag := func(isStrong bool, kind, href string) {
		if isStrong {
			strong++
		} else {
			weak++
		}
		indicators = append(indicators, fmt.Sprintf("url_analysis:%s:%s", kind, href))
	}

	for _, l := range body.Links {
		host := l.Host()
		if host == "" {
			continue
		}
		if net.ParseIP(host) != nil {
			flag(true, "ip_host", l.Href)
		}
		if strings.Contains(host, "xn--") {
			flag(true, "punycode", l.Href)
		}
		if l.HasUserInfo() {
			flag(true, "userinfo", l.Href)
		}
		if shorteners[host] {
			flag(false, "shortener", l.Href)
		}
		for _, tld := range suspiciousTLDs {
			if strings.HasSuffix(host, tld) {
				flag(false, "suspicious_tld", l.Href)
				break
			}
		}
		if shown := anchorHost(l.Text); shown != "" && !sameSite(shown, host) {
			flag(true, "anchor_mismatch", l.Href)
		}
	}

	confidence := strong*45 + weak*25
	return Outcome{
		IsPhishing: strong > 0 || weak >= 2,
		Confidence: model.ClampConfidence(confidence),
		Indicators: indicators,
		Details:    map[string]any{"links": len(body.Links), "strong": strong, "weak": weak},
	}, nil
}

// anchorHost returns the host an anchor's visible text claims, if the text
// looks like a URL or bare domain.
func anchorHost(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" || strings.ContainsAny(t, " \n") {
		return ""
	}
	if !strings.Contains(t, "://") {
		if !strings.Contains(t, ".") {
			return ""
		}
		t = "http://" + t
	}
	return Link{Href: t}.Host()
}

// sameSite reports whether a and b share a registrable-looking suffix.
func sameSite(a, b string) bool {
	return a == b || strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a)
}

var (
	brands = []string{
		"paypal", "microsoft", "apple", "amazon", "google", "netflix", "docusign",
		"dhl", "fedex", "linkedin", "office365", "outlook",
	}
	roleWords = []string{
		"ceo", "cfo", "director", "payroll", "it support", "helpdesk", "security team",
		"administrator", "hr department", "accounts payable",
	}
	freeMail = map[string]bool{
		"gmail.com": true, "yahoo.com": true, "outlook.com": true, "hotmail.com": true,
		"aol.com": true, "proton.me": true, "protonmail.com": true, "gmx.com": true, "mail.ru": true,
	}
	lookalikes = strings.NewReplacer("0", "o", "1", "l", "3", "e", "4", "a", "5", "s", "7", "t", "rn", "m", "vv", "w")
)

type senderDetector struct{}

// NewSenderSpoofingDetector compares the sender's display name with the
// address it was sent from.
func NewSenderSpoofingDetector() Detector { return senderDetector{} }

func (senderDetector) Name() string { return "sender_spoofing" }

func (senderDetector) Classify(_ context.Context, email *model.Email) (Outcome, error) {
	display, domain := splitSender(email.Sender)

	var indicators []string
	confidence := 0

	for _, b := range brands {
		if strings.Contains(display, b) && !strings.Contains(domain, b) {
			indicators = append(indicators, "sender_spoofing:brand_mismatch:"+b)
			confidence += 60
			break
		}
	}

	normalised := lookalikes.Replace(domain)
	if normalised != domain {
		for _, b := range brands {
			if strings.Contains(normalised, b) && !strings.Contains(domain, b) {
				indicators = append(indicators, "sender_spoofing:lookalike_domain:"+domain)
				confidence += 70
				break
			}
		}
	}

	if freeMail[domain] {
		for _, r := range roleWords {
			if strings.Contains(display, r) {
				indicators = append(indicators, "sender_spoofing:free_mail_role:"+r)
				confidence += 50
				break
			}
		}
	}

	return Outcome{
		IsPhishing: len(indicators) > 0,
		Confidence: model.ClampConfidence(confidence),
		Indicators: indicators,
		Details:    map[string]any{"display_name": display, "domain": domain},
	}, nil
}

// splitSender returns the lower-cased display name and domain of a sender
// header, tolerating bare addresses.
func splitSender(sender string) (display, domain string) {
	addr, err := mail.ParseAddress(sender)
	if err != nil {
		s := strings.ToLower(strings.TrimSpace(sender))
		if i := strings.LastIndex(s, "@"); i >= 0 {
			return "", strings.Trim(s[i+1:], "> ")
		}
		return s, ""
	}
	address := strings.ToLower(addr.Address)
	if i := strings.LastIndex(address, "@"); i >= 0 {
		domain = address[i+1:]
	}
	return strings.ToLower(addr.Name), domain
}
