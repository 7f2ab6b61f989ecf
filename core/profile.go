package core

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// RiskLevel is a user's investment risk tolerance.
type RiskLevel string

const (
	RiskConservative RiskLevel = "conservative"
	RiskModerate     RiskLevel = "moderate"
	RiskAggressive   RiskLevel = "aggressive"
)

// ParseRiskLevel maps free-form input to a RiskLevel. Anything unrecognized
// falls back to moderate.
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskConservative:
		return RiskConservative
	case RiskAggressive:
		return RiskAggressive
	default:
		return RiskModerate
	}
}

// Holding describes a single portfolio position.
type Holding struct {
	Quantity decimal.Decimal `json:"quantity"`
	Note     string          `json:"note,omitempty"`
}

// FinancialProfile holds a user's durable attributes. It is created at
// session start from the user record and mutated only through explicit
// profile updates.
type FinancialProfile struct {
	Name      string             `json:"name"`
	RiskLevel RiskLevel          `json:"risk_level"`
	Portfolio map[string]Holding `json:"portfolio"`
}

// TurnState carries the transient per-conversation financial details the
// user has shared so far. The zero value means nothing collected yet.
type TurnState struct {
	Income           *decimal.Decimal `json:"income,omitempty"`
	Expenses         *decimal.Decimal `json:"expenses,omitempty"`
	FinancialGoals   json.RawMessage  `json:"financial_goals,omitempty"`
	BudgetingDetails json.RawMessage  `json:"budgeting_details,omitempty"`
}

// StateUpdate is a partial update to a TurnState, as sent by the client in
// a financial_data message. Absent fields leave the state untouched.
type StateUpdate struct {
	Income           *decimal.Decimal `json:"income,omitempty"`
	Expenses         *decimal.Decimal `json:"expenses,omitempty"`
	FinancialGoals   json.RawMessage  `json:"financial_goals,omitempty"`
	BudgetingDetails json.RawMessage  `json:"budgeting_details,omitempty"`
}

// Apply merges an update into the state. Only provided fields change.
func (s *TurnState) Apply(u StateUpdate) {
	if u.Income != nil {
		s.Income = u.Income
	}
	if u.Expenses != nil {
		s.Expenses = u.Expenses
	}
	if len(u.FinancialGoals) > 0 {
		s.FinancialGoals = u.FinancialGoals
	}
	if len(u.BudgetingDetails) > 0 {
		s.BudgetingDetails = u.BudgetingDetails
	}
}
