package advisor

import (
	"fmt"
	"strings"

	"github.com/finbotlabs/finbot/core"
)

// SystemPrompt is the fixed system instruction for the FinBot agent.
const SystemPrompt = `You are a helpful and conversational financial assistant named FinBot. You should:

1. Always respond directly to the user's question or message
2. Be friendly, conversational, and personable
3. Provide helpful financial advice and information
4. Ask follow-up questions when you need more details
5. Explain financial concepts in simple terms
6. Use the available tools when users ask for specific financial data like stock prices, market data, or currency rates
7. Provide personalized advice based on the user's risk tolerance and financial goals when known
8. Always remind users that this is general guidance and they should consult professional advisors for major financial decisions

AVAILABLE CAPABILITIES:
- Stock analysis and market data
- Investment advice and portfolio planning
- Budgeting and financial planning
- Currency conversion
- Market insights
- General financial education

Respond naturally to whatever the user says, whether it's a greeting, question, or request for help.`

// ProfileContext renders the user's profile and collected financial details
// as an additional system context block. Empty when nothing is known yet.
func ProfileContext(profile *core.FinancialProfile, state *core.TurnState) string {
	var parts []string

	if profile != nil {
		if profile.Name != "" {
			parts = append(parts, fmt.Sprintf("The user's name is %s.", profile.Name))
		}
		parts = append(parts, fmt.Sprintf("Their risk tolerance is %s.", core.ParseRiskLevel(string(profile.RiskLevel))))
		if snapshot := portfolioSnapshot(profile); snapshot != "No current holdings reported" {
			parts = append(parts, fmt.Sprintf("Their portfolio holds: %s.", snapshot))
		}
	}

	if state != nil {
		if state.Income != nil {
			parts = append(parts, fmt.Sprintf("Monthly income: $%s.", state.Income.StringFixed(2)))
		}
		if state.Expenses != nil {
			parts = append(parts, fmt.Sprintf("Monthly expenses: $%s.", state.Expenses.StringFixed(2)))
		}
		if goals := GoalsSummary(state); goals != "" {
			parts = append(parts, fmt.Sprintf("Financial goals: %s.", goals))
		}
	}

	if len(parts) == 0 {
		return ""
	}
	return "User context: " + strings.Join(parts, " ")
}
