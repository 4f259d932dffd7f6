package http

import (
	"net/http"
	"strings"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// transactionUpdate is a patch that may carry its target id in the body.
type transactionUpdate struct {
	ID       string `json:"id"`
	LegacyID string `json:"_id"`
	core.TransactionPatch
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := parseTransactionFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err, applog.OpList, "Failed to fetch transactions")
		return
	}
	txs, err := s.deps.Transactions.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err, applog.OpList, "Failed to fetch transactions")
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Transactions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, applog.OpRead, "Failed to fetch transaction")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in core.TransactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err, applog.OpCreate, "Failed to create transaction")
		return
	}
	t, err := s.deps.Transactions.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err, applog.OpCreate, "Failed to create transaction")
		return
	}
	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogMutation(r.Context(), "Transaction created",
		applog.OpCreate, applog.NewFields().WithTransaction(t.ID, string(t.Type), t.Category, t.Amount))
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var in transactionUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err, applog.OpUpdate, "Failed to update transaction")
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		id = strings.TrimSpace(in.ID)
	}
	if id == "" {
		id = strings.TrimSpace(in.LegacyID)
	}
	if id == "" {
		writeError(w, r, &core.ValidationError{Field: "id", Message: "is required"}, applog.OpUpdate, "Failed to update transaction")
		return
	}

	t, err := s.deps.Transactions.Update(r.Context(), id, in.TransactionPatch)
	if err != nil {
		writeError(w, r, err, applog.OpUpdate, "Failed to update transaction")
		return
	}
	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogMutation(r.Context(), "Transaction updated",
		applog.OpUpdate, applog.NewFields().WithTransaction(t.ID, string(t.Type), t.Category, t.Amount))
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := requireID(r)
	if err != nil {
		writeError(w, r, err, applog.OpDelete, "Failed to delete transaction")
		return
	}
	if err := s.deps.Transactions.Delete(r.Context(), id); err != nil {
		writeError(w, r, err, applog.OpDelete, "Failed to delete transaction")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Transaction deleted successfully"})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.deps.Categories.List(r.Context())
	if err != nil {
		writeError(w, r, err, applog.OpList, "Failed to fetch categories")
		return
	}
	if cats == nil {
		cats = []core.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month, err := queryInt(q, "month")
	if err != nil {
		writeError(w, r, err, applog.OpList, "Failed to fetch budgets")
		return
	}
	year, err := queryInt(q, "year")
	if err != nil {
		writeError(w, r, err, applog.OpList, "Failed to fetch budgets")
		return
	}
	budgets, err := s.deps.Budgets.List(r.Context(), month, year)
	if err != nil {
		writeError(w, r, err, applog.OpList, "Failed to fetch budgets")
		return
	}
	if budgets == nil {
		budgets = []core.Budget{}
	}
	writeJSON(w, http.StatusOK, budgets)
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	var in core.BudgetInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err, applog.OpUpsert, "Failed to create/update budget")
		return
	}
	b, err := s.deps.Budgets.Upsert(r.Context(), in)
	if err != nil {
		writeError(w, r, err, applog.OpUpsert, "Failed to create/update budget")
		return
	}
	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogMutation(r.Context(), "Budget saved",
		applog.OpUpsert, applog.LogFields{applog.FieldBudgetID: b.ID, applog.FieldCategory: b.Category}.WithPeriod(b.Month, b.Year))
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	id, err := requireID(r)
	if err != nil {
		writeError(w, r, err, applog.OpDelete, "Failed to delete budget")
		return
	}
	if err := s.deps.Budgets.Delete(r.Context(), id); err != nil {
		writeError(w, r, err, applog.OpDelete, "Failed to delete budget")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Budget deleted successfully"})
}
