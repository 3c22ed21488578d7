package model

import (
	"fmt"
	"strings"
)

// TeamKey names one of the six organisational routing teams.
type TeamKey string

const (
	TeamCreditRisk TeamKey = "credit_risk"
	TeamFraud      TeamKey = "fraud"
	TeamCompliance TeamKey = "compliance"
	TeamWealth     TeamKey = "wealth"
	TeamCorporate  TeamKey = "corporate"
	TeamOperations TeamKey = "operations"
)

// Teams lists every team key in catalogue order. Keyword ties resolve to the
// earlier entry.
var Teams = []TeamKey{
	TeamCreditRisk,
	TeamFraud,
	TeamCompliance,
	TeamWealth,
	TeamCorporate,
	TeamOperations,
}

func (k TeamKey) Valid() bool {
	for _, t := range Teams {
		if t == k {
			return true
		}
	}
	return false
}

// ParseTeamKey accepts a key in any case with surrounding whitespace.
func ParseTeamKey(s string) (TeamKey, error) {
	k := TeamKey(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTeam, s)
	}
	return k, nil
}
