// Package advisor holds the tool-free half of FinBot: intent
// classification and the deterministic budgeting/portfolio advice
// generators. Everything here is a pure function over the current state.
package advisor

import (
	"fmt"
	"strings"

	"github.com/finbotlabs/finbot/core"
)

// Action tags the kind of help a turn needs.
type Action string

const (
	ActionCollectInfo     Action = "collect_info"
	ActionStockAnalysis   Action = "stock_analysis"
	ActionMarketOverview  Action = "market_overview"
	ActionCurrencyRates   Action = "currency_rates"
	ActionBudgetingAdvice Action = "budgeting_advice"
	ActionPortfolioAdvice Action = "portfolio_advice"
	ActionGeneralHelp     Action = "general_help"
	ActionError           Action = "error"
)

// Intent is the classification of a single user utterance.
type Intent struct {
	Action        Action
	RequiresTools bool

	// Prompt is set for collect_info: the reply asking for the missing
	// fields, in their fixed order.
	Prompt string
}

// keywordRule associates a keyword set with an intent. Rules are checked in
// slice order; the first match wins.
type keywordRule struct {
	keywords      []string
	action        Action
	requiresTools bool
}

var keywordRules = []keywordRule{
	{[]string{"stock", "ticker", "share", "equity", "price", "quote", "dividend"}, ActionStockAnalysis, true},
	{[]string{"market", "index", "dow", "s&p", "nasdaq"}, ActionMarketOverview, true},
	{[]string{"currency", "exchange", "conversion", "forex"}, ActionCurrencyRates, true},
	{[]string{"budget", "expense", "income", "saving"}, ActionBudgetingAdvice, false},
	{[]string{"portfolio", "investment", "diversify", "allocation"}, ActionPortfolioAdvice, false},
}

// Classify maps an utterance to an intent. If any mandatory financial field
// is still missing from the state, the turn becomes collect_info regardless
// of the utterance. Classification never fails; anything unmatched is
// general_help.
func Classify(utterance string, state *core.TurnState) Intent {
	if missing := missingFields(state); len(missing) > 0 {
		return Intent{
			Action: ActionCollectInfo,
			Prompt: collectInfoPrompt(missing),
		}
	}

	lower := strings.ToLower(utterance)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return Intent{Action: rule.action, RequiresTools: rule.requiresTools}
			}
		}
	}

	return Intent{Action: ActionGeneralHelp}
}

// missingFields returns the absent mandatory fields in their fixed order:
// income, expenses, goals, budgeting details.
func missingFields(state *core.TurnState) []string {
	var missing []string
	if state == nil || state.Income == nil {
		missing = append(missing, "monthly income")
	}
	if state == nil || state.Expenses == nil {
		missing = append(missing, "monthly expenses")
	}
	if state == nil || len(state.FinancialGoals) == 0 {
		missing = append(missing, "financial goals")
	}
	if state == nil || len(state.BudgetingDetails) == 0 {
		missing = append(missing, "budgeting details")
	}
	return missing
}

func collectInfoPrompt(missing []string) string {
	return fmt.Sprintf(
		"I'd be happy to help you with your financial planning! To provide you with the best advice, I need some information about your: %s. Could you please share these details?",
		strings.Join(missing, ", "),
	)
}
