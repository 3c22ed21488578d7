// Package team holds the routing team catalogue and the suggestion engine
// that maps an email onto one of the teams.
package team

import (
	"phishbox/internal/model"
)

// Persona frames one voice in a team discussion.
type Persona struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Style string `json:"style"`
}

// Tool is an investigation capability a team can call on.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Team struct {
	Key         model.TeamKey `json:"key"`
	DisplayName string        `json:"display_name"`
	Description string        `json:"description"`
	Keywords    []string      `json:"keywords"`
	Personas    []Persona     `json:"personas"`
	Tools       []Tool        `json:"tools"`
}

var catalog = map[model.TeamKey]Team{
	model.TeamCreditRisk: {
		Key:         model.TeamCreditRisk,
		DisplayName: "Credit Risk",
		Description: "Loan applications, credit limits, collateral, repayment and default notices.",
		Keywords:    []string{"loan", "credit", "mortgage", "collateral", "repayment", "default", "interest rate", "credit score", "underwriting", "overdue"},
		Personas: []Persona{
			{Name: "Credit Analyst", Role: "assesses whether the message could distort a borrower's credit position", Style: "methodical, cites exposure figures"},
			{Name: "Underwriting Lead", Role: "checks the request against lending policy and approval authority", Style: "policy-first, terse"},
			{Name: "Collections Specialist", Role: "judges whether repayment or arrears language is a pressure tactic", Style: "practical, customer-facing"},
			{Name: "Risk Officer", Role: "weighs portfolio impact and decides escalation", Style: "decisive, summarises the room"},
		},
		Tools: []Tool{
			{Name: "credit_bureau_lookup", Description: "Fetch the counterparty's bureau score and recent enquiries"},
			{Name: "loan_book_search", Description: "Search open facilities by customer or account number"},
			{Name: "exposure_calculator", Description: "Compute current exposure and limit headroom"},
		},
	},
	model.TeamFraud: {
		Key:         model.TeamFraud,
		DisplayName: "Fraud Investigation",
		Description: "Account takeover, payment diversion, impersonation, credential theft and invoice fraud.",
		Keywords:    []string{"fraud", "suspicious", "unauthorized", "verify your account", "password", "wire transfer", "gift card", "urgent payment", "invoice", "bank details", "login", "suspended"},
		Personas: []Persona{
			{Name: "Fraud Analyst", Role: "identifies the fraud pattern and the likely attacker goal", Style: "forensic, lists indicators"},
			{Name: "Threat Intelligence Researcher", Role: "relates senders, domains and links to known campaigns", Style: "evidence-driven, references infrastructure"},
			{Name: "Payments Investigator", Role: "traces any requested movement of money and how to stop it", Style: "urgent, action-oriented"},
			{Name: "Customer Protection Officer", Role: "considers which customers or staff are exposed and how to warn them", Style: "empathetic, plain language"},
			{Name: "Head of Fraud", Role: "makes the call on containment and escalation", Style: "decisive, brief"},
		},
		Tools: []Tool{
			{Name: "url_reputation", Description: "Score links against threat feeds"},
			{Name: "sender_history", Description: "Show prior mail from the sender domain"},
			{Name: "payment_hold", Description: "Place a temporary hold on an outgoing payment"},
			{Name: "account_lock", Description: "Force a credential reset on an affected account"},
		},
	},
	model.TeamCompliance: {
		Key:         model.TeamCompliance,
		DisplayName: "Compliance",
		Description: "Regulatory requests, KYC/AML, sanctions, audits, data protection and legal notices.",
		Keywords:    []string{"regulator", "regulatory", "compliance", "kyc", "aml", "sanctions", "audit", "gdpr", "subpoena", "legal notice", "policy breach", "data protection"},
		Personas: []Persona{
			{Name: "Compliance Officer", Role: "maps the message to the regulatory obligations it touches", Style: "precise, cites rules"},
			{Name: "AML Specialist", Role: "looks for money-laundering or sanctions red flags", Style: "sceptical, checklist-driven"},
			{Name: "Data Protection Officer", Role: "assesses personal-data exposure and breach-notification duties", Style: "careful, deadline-aware"},
			{Name: "Legal Counsel", Role: "judges legal authenticity and liability", Style: "measured, conditional"},
		},
		Tools: []Tool{
			{Name: "sanctions_screening", Description: "Screen names and entities against sanctions lists"},
			{Name: "regulator_directory", Description: "Verify a regulator contact against the official register"},
			{Name: "breach_register", Description: "Open a data-protection incident record"},
		},
	},
	model.TeamWealth: {
		Key:         model.TeamWealth,
		DisplayName: "Wealth Management",
		Description: "Private clients, portfolios, investments, trusts and high-value transfers.",
		Keywords:    []string{"portfolio", "investment", "wealth", "private client", "trust", "fund", "dividend", "brokerage", "securities", "crypto", "returns"},
		Personas: []Persona{
			{Name: "Relationship Manager", Role: "judges whether the request fits what the client normally asks for", Style: "client-centric, personal"},
			{Name: "Portfolio Manager", Role: "assesses any instruction to trade, rebalance or liquidate", Style: "numbers-first, cautious"},
			{Name: "Private Banking Risk Officer", Role: "weighs reputational and financial exposure on high-value accounts", Style: "conservative, formal"},
			{Name: "Client Verification Specialist", Role: "defines how to confirm the instruction out of band", Style: "procedural, step by step"},
		},
		Tools: []Tool{
			{Name: "client_profile", Description: "Retrieve client mandate and usual instruction channels"},
			{Name: "trade_blotter", Description: "List pending orders for the client"},
			{Name: "callback_verification", Description: "Schedule a verified call-back to the client"},
		},
	},
	model.TeamCorporate: {
		Key:         model.TeamCorporate,
		DisplayName: "Corporate Banking",
		Description: "Business accounts, treasury, supplier payments, executives and M&A correspondence.",
		Keywords:    []string{"ceo", "cfo", "board", "treasury", "supplier", "vendor", "acquisition", "merger", "contract", "purchase order", "payroll", "executive"},
		Personas: []Persona{
			{Name: "Corporate Relationship Manager", Role: "checks the request against the business client's normal dealings", Style: "commercial, pragmatic"},
			{Name: "Treasury Analyst", Role: "evaluates any change to payment routes or cash positions", Style: "detail-oriented"},
			{Name: "Executive Protection Lead", Role: "spots executive impersonation and business email compromise", Style: "alert, direct"},
			{Name: "Trade Finance Specialist", Role: "reviews invoices, letters of credit and supplier documents", Style: "document-focused"},
			{Name: "Corporate Risk Director", Role: "decides on client contact and escalation", Style: "authoritative, concise"},
		},
		Tools: []Tool{
			{Name: "supplier_master", Description: "Compare bank details against the supplier master file"},
			{Name: "executive_directory", Description: "Confirm executive names and sanctioned mailboxes"},
			{Name: "payment_route_history", Description: "Show historical beneficiary accounts for a client"},
		},
	},
	model.TeamOperations: {
		Key:         model.TeamOperations,
		DisplayName: "Operations",
		Description: "IT, mailbox, delivery, shared-service and general operational notices.",
		Keywords:    []string{"it support", "mailbox", "storage", "delivery", "shipment", "system update", "maintenance", "helpdesk", "quota", "vpn", "document shared"},
		Personas: []Persona{
			{Name: "Security Operations Analyst", Role: "triages the technical indicators and blast radius", Style: "fast, technical"},
			{Name: "IT Service Manager", Role: "checks whether the notice matches any real internal change", Style: "process-oriented"},
			{Name: "Email Administrator", Role: "decides on mailbox-level actions such as purge and block", Style: "hands-on, specific"},
			{Name: "Operations Lead", Role: "weighs business disruption and closes the discussion", Style: "calm, summarising"},
		},
		Tools: []Tool{
			{Name: "mail_purge", Description: "Remove matching messages from all mailboxes"},
			{Name: "domain_block", Description: "Add a sender domain to the gateway blocklist"},
			{Name: "change_calendar", Description: "Look up scheduled maintenance and system changes"},
		},
	},
}

// Get returns the catalogue entry for key.
func Get(key model.TeamKey) (Team, bool) {
	t, ok := catalog[key]
	return t, ok
}

// All returns every team in catalogue order.
func All() []Team {
	out := make([]Team, 0, len(model.Teams))
	for _, k := range model.Teams {
		out = append(out, catalog[k])
	}
	return out
}

func Personas(key model.TeamKey) []Persona {
	return catalog[key].Personas
}
