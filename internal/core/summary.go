package core

import "github.com/shopspring/decimal"

// MonthlyExpense is the expense total of one calendar month.
type MonthlyExpense struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// CategoryExpense is the expense total of one category with display metadata.
type CategoryExpense struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Color    string          `json:"color"`
}

// BudgetComparison sets a budget against actual spend for one period.
type BudgetComparison struct {
	Category   string          `json:"category"`
	Budgeted   decimal.Decimal `json:"budgeted"`
	Actual     decimal.Decimal `json:"actual"`
	Remaining  decimal.Decimal `json:"remaining"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Summary is the all-time income and expense position.
type Summary struct {
	TotalIncome      decimal.Decimal `json:"totalIncome"`
	TotalExpenses    decimal.Decimal `json:"totalExpenses"`
	Net              decimal.Decimal `json:"net"`
	TransactionCount int             `json:"transactionCount"`
}

// Dashboard bundles every analytics view for one period.
type Dashboard struct {
	Summary    Summary            `json:"summary"`
	Monthly    []MonthlyExpense   `json:"monthly"`
	Categories []CategoryExpense  `json:"categories"`
	Budgets    []BudgetComparison `json:"budgets"`
	Month      int                `json:"month"`
	Year       int                `json:"year"`
}

// NewBudgetComparison derives remaining and percentage for a budget.
func NewBudgetComparison(category string, budgeted, actual decimal.Decimal) BudgetComparison {
	return BudgetComparison{
		Category:   category,
		Budgeted:   budgeted,
		Actual:     actual,
		Remaining:  Remaining(actual, budgeted),
		Percentage: Percentage(actual, budgeted),
	}
}
