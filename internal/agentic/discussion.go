package agentic

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"phishbox/internal/model"
	"phishbox/internal/team"
)

const maxBodyChars = 4000

var positionLine = regexp.MustCompile(`(?i)position\s*[:\-]\s*\**\s*(escalate|investigate|monitor|dismiss)`)

// ParsePosition returns the last POSITION line in a persona reply.
func ParsePosition(reply string) (model.Position, bool) {
	matches := positionLine.FindAllStringSubmatch(reply, -1)
	if len(matches) == 0 {
		return "", false
	}
	return model.Position(strings.ToLower(matches[len(matches)-1][1])), true
}

func systemPrompt(t team.Team, p team.Persona) string {
	return fmt.Sprintf(
		"You are %s on the %s team of a bank's security operations group. "+
			"Your job: you %s. Communication style: %s. "+
			"You are reviewing a reported email together with colleagues who speak before and after you. "+
			"Keep your answer under 150 words. End with one line of the form "+
			"\"POSITION: escalate|investigate|monitor|dismiss\".",
		p.Name, t.DisplayName, p.Role, p.Style,
	)
}

func buildPrompt(email *model.Email, p team.Persona, transcript []model.Message) string {
	var b strings.Builder

	b.WriteString("Reported email\n")
	fmt.Fprintf(&b, "From: %s\n", email.Sender)
	fmt.Fprintf(&b, "To: %s\n", email.Recipient)
	fmt.Fprintf(&b, "Subject: %s\n", email.Subject)
	if email.Processed {
		verdict := "not flagged"
		if email.IsPhishing {
			verdict = "flagged as phishing"
		}
		fmt.Fprintf(&b, "Automated detectors: %s\n", verdict)
	}
	if email.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", email.Summary)
	}
	if len(email.CallToActions) > 0 {
		fmt.Fprintf(&b, "Requested actions: %s\n", strings.Join(email.CallToActions, "; "))
	}
	body := email.Body
	if len(body) > maxBodyChars {
		cut := maxBodyChars
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	fmt.Fprintf(&b, "Body:\n%s\n\n", body)

	if len(transcript) == 0 {
		b.WriteString("You are the first to speak.\n")
	} else {
		b.WriteString("Discussion so far:\n")
		for _, m := range transcript {
			if m.Failed {
				fmt.Fprintf(&b, "- %s (%s): no response\n", m.Persona, m.Role)
				continue
			}
			fmt.Fprintf(&b, "- %s (%s): %s\n", m.Persona, m.Role, m.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "As %s, give your assessment.", p.Name)
	return b.String()
}

// Decide folds persona stances into one outcome. The most voted position
// wins; a tie goes to the more severe position. Replies without a stance
// count as responses but not as votes.
func Decide(t team.Team, messages []model.Message) model.Decision {
	d := model.Decision{Votes: map[model.Position]int{}}

	for _, m := range messages {
		if m.Failed {
			d.Failed++
			continue
		}
		d.Responded++
		if m.Stance != "" {
			d.Votes[m.Stance]++
		}
	}

	// Most severe first, so ties keep the more severe position.
	best := -1
	for _, p := range []model.Position{model.PositionEscalate, model.PositionInvestigate, model.PositionMonitor, model.PositionDismiss} {
		if n := d.Votes[p]; n > best {
			best = n
			d.Outcome = p
		}
	}

	if best <= 0 {
		d.Outcome = model.PositionInvestigate
		d.Summary = fmt.Sprintf("%s: %d of %d personas responded without a clear position; defaulting to investigate.",
			t.DisplayName, d.Responded, len(messages))
		return d
	}

	d.Confidence = model.ClampConfidence(best * 100 / d.Responded)
	d.Summary = fmt.Sprintf("%s: %d of %d responding personas recommend %s",
		t.DisplayName, best, d.Responded, d.Outcome)
	if d.Failed > 0 {
		d.Summary += fmt.Sprintf("; %d did not respond", d.Failed)
	}
	d.Summary += "."
	return d
}
