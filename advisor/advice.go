package advisor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/finbotlabs/finbot/core"
)

var (
	hundred   = decimal.NewFromInt(100)
	tenPct    = decimal.NewFromInt(10)
	twentyPct = decimal.NewFromInt(20)
)

// BudgetingAdvice produces deterministic budgeting guidance from the
// collected income and expenses. If either value is missing or non-positive
// it returns a request for that specific value instead.
func BudgetingAdvice(state *core.TurnState) string {
	if state == nil || state.Income == nil || !state.Income.IsPositive() {
		return "I need your monthly income information to provide budgeting advice."
	}
	if state.Expenses == nil || !state.Expenses.IsPositive() {
		return "I need your monthly expenses information to provide budgeting advice."
	}

	income := *state.Income
	expenses := *state.Expenses
	savingsRate := income.Sub(expenses).Div(income).Mul(hundred)

	var b strings.Builder
	b.WriteString("Based on your financial profile:\n\n")
	fmt.Fprintf(&b, "Monthly Income: $%s\n", income.StringFixed(2))
	fmt.Fprintf(&b, "Monthly Expenses: $%s\n", expenses.StringFixed(2))
	fmt.Fprintf(&b, "Current Savings Rate: %s%%\n\n", savingsRate.StringFixed(1))

	switch {
	case savingsRate.LessThan(tenPct):
		b.WriteString("Your savings rate is below the recommended 10-20%. Consider:\n")
		b.WriteString("- Reviewing and reducing non-essential expenses\n")
		b.WriteString("- Looking for ways to increase income\n")
		b.WriteString("- Creating a detailed budget to track spending\n")
	case savingsRate.LessThan(twentyPct):
		b.WriteString("Good savings rate! Consider:\n")
		b.WriteString("- Building an emergency fund (3-6 months of expenses)\n")
		b.WriteString("- Starting to invest for long-term goals\n")
	default:
		b.WriteString("Excellent savings rate! You're doing great!\n")
		b.WriteString("- Consider maximizing retirement contributions\n")
		b.WriteString("- Exploring investment opportunities\n")
		b.WriteString("- Planning for major financial goals\n")
	}

	return b.String()
}

// PortfolioAdvice produces the fixed target-allocation template for the
// profile's risk level, with the current portfolio snapshot appended.
// Unrecognized risk levels use the moderate template.
func PortfolioAdvice(profile *core.FinancialProfile) string {
	risk := core.RiskModerate
	if profile != nil {
		risk = core.ParseRiskLevel(string(profile.RiskLevel))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Portfolio advice for %s risk investor:\n\n", risk)

	switch risk {
	case core.RiskConservative:
		b.WriteString("Recommended allocation:\n")
		b.WriteString("- 60% Bonds/Fixed Income\n")
		b.WriteString("- 30% Large Cap Stocks\n")
		b.WriteString("- 10% Cash/Money Market\n\n")
		b.WriteString("Focus on: Stability, capital preservation, dividend-paying stocks")
	case core.RiskAggressive:
		b.WriteString("Recommended allocation:\n")
		b.WriteString("- 80% Stocks (mix of large, mid, small cap)\n")
		b.WriteString("- 15% International/Emerging Markets\n")
		b.WriteString("- 5% Bonds\n\n")
		b.WriteString("Focus on: Growth stocks, international diversification, higher potential returns")
	default:
		b.WriteString("Recommended allocation:\n")
		b.WriteString("- 60% Stocks (large and mid cap)\n")
		b.WriteString("- 30% Bonds\n")
		b.WriteString("- 10% International/REITs\n\n")
		b.WriteString("Focus on: Balanced growth and income, diversification")
	}

	b.WriteString("\n\nCurrent portfolio: ")
	b.WriteString(portfolioSnapshot(profile))
	b.WriteString("\n\nRemember: This is general guidance. Consider consulting with a financial advisor for personalized advice.")

	return b.String()
}

// portfolioSnapshot renders holdings deterministically, symbols sorted.
func portfolioSnapshot(profile *core.FinancialProfile) string {
	if profile == nil || len(profile.Portfolio) == 0 {
		return "No current holdings reported"
	}

	symbols := make([]string, 0, len(profile.Portfolio))
	for sym := range profile.Portfolio {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	parts := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		h := profile.Portfolio[sym]
		parts = append(parts, fmt.Sprintf("%s: %s", sym, h.Quantity.String()))
	}
	return strings.Join(parts, ", ")
}

// GoalsSummary renders the stored goals JSON for prompt context. Empty or
// unparseable goals render as an empty string.
func GoalsSummary(state *core.TurnState) string {
	if state == nil || len(state.FinancialGoals) == 0 {
		return ""
	}
	var pretty interface{}
	if err := json.Unmarshal(state.FinancialGoals, &pretty); err != nil {
		return ""
	}
	out, err := json.Marshal(pretty)
	if err != nil {
		return ""
	}
	return string(out)
}
