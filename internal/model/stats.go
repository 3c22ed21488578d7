package model

// DashboardStats is the enriched dashboard aggregate.
type DashboardStats struct {
	TotalEmails       int             `json:"total_emails"`
	ProcessedEmails   int             `json:"processed_emails"`
	PhishingEmails    int             `json:"phishing_emails"`
	SuggestedEmails   int             `json:"suggested_emails"`
	AssignedEmails    int             `json:"assigned_emails"`
	ByAssignedTeam    map[TeamKey]int `json:"by_assigned_team"`
	BySuggestedTeam   map[TeamKey]int `json:"by_suggested_team"`
	DetectorHitRates  map[string]Rate `json:"detector_hit_rates"`
	RecentPhishingIDs []int64         `json:"recent_phishing_ids"`
}

// Rate is a hit count over total runs for one detector.
type Rate struct {
	Hits  int `json:"hits"`
	Total int `json:"total"`
}
