package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/Rhymond/go-money"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"fintrack/internal/backend"
	"fintrack/internal/core"
	"fintrack/internal/export/sheets"
	applog "fintrack/internal/log"
)

// session is an open backend plus the function that releases it.
type session struct {
	*backend.Backend
	close backend.CleanupFunc
}

func (s *session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

type app struct {
	out       io.Writer
	open      func(ctx context.Context) (*session, error)
	newWriter func(ctx context.Context) (sheets.ValueWriter, error)
}

func (a *app) commands() []subcommands.Command {
	return []subcommands.Command{
		&monthlyCmd{app: a, months: 12},
		&categoriesCmd{app: a},
		&budgetsCmd{app: a, month: -1},
		&summaryCmd{app: a},
		&seedCmd{app: a},
		&exportCmd{app: a, months: 12},
	}
}

// run opens the backend, hands it to fn and closes it again.
func (a *app) run(ctx context.Context, fn func(*session) error) subcommands.ExitStatus {
	s, err := a.open(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to open backend", "error", err)
		return subcommands.ExitFailure
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.WarnContext(ctx, "Backend cleanup error", "error", err)
		}
	}()
	if err := fn(s); err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 0, 2, ' ', tabwriter.AlignRight)
}

const displayCurrency = "USD"

// usd renders an amount the way a person reads it, e.g. $1,234.50.
func usd(d decimal.Decimal) string {
	return money.New(core.ToCents(d), displayCurrency).Display()
}

type monthlyCmd struct {
	app    *app
	months int
}

func (*monthlyCmd) Name() string     { return "monthly" }
func (*monthlyCmd) Synopsis() string { return "Print monthly expense totals." }
func (*monthlyCmd) Usage() string {
	return `monthly [-months N]:
  Print the expense total of each of the last N months, oldest first.
`
}

func (c *monthlyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.months, "months", c.months, "number of months to show")
}

func (c *monthlyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.months < 1 {
		fmt.Fprintln(c.app.out, "-months must be at least 1")
		return subcommands.ExitUsageError
	}
	return c.app.run(ctx, func(s *session) error {
		trend, err := s.Analytics.MonthlyTrend(ctx, c.months)
		if err != nil {
			return err
		}
		w := c.app.table()
		fmt.Fprintln(w, "MONTH\tEXPENSES\t")
		for _, m := range trend {
			fmt.Fprintf(w, "%s\t%s\t\n", m.Month, usd(m.Amount))
		}
		return w.Flush()
	})
}

type categoriesCmd struct {
	app *app
	all bool
}

func (*categoriesCmd) Name() string     { return "categories" }
func (*categoriesCmd) Synopsis() string { return "Print spending per category." }
func (*categoriesCmd) Usage() string {
	return `categories [-all]:
  Print all-time expenses per category, most recently used first.
  With -all, list the category catalog instead.
`
}

func (c *categoriesCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.all, "all", false, "list the category catalog")
}

func (c *categoriesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(s *session) error {
		w := c.app.table()
		if c.all {
			cats, err := s.Categories.List(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tCOLOR\t")
			for _, cat := range cats {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", cat.ID, cat.Name, cat.Type, cat.Color)
			}
			return w.Flush()
		}

		breakdown, err := s.Analytics.CategoryBreakdown(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "CATEGORY\tEXPENSES\t")
		for _, e := range breakdown {
			fmt.Fprintf(w, "%s\t%s\t\n", e.Category, usd(e.Amount))
		}
		return w.Flush()
	})
}

type budgetsCmd struct {
	app   *app
	month int
	year  int
}

func (*budgetsCmd) Name() string     { return "budgets" }
func (*budgetsCmd) Synopsis() string { return "Compare budgets with actual spending." }
func (*budgetsCmd) Usage() string {
	return `budgets [-month M] [-year Y]:
  Compare each budget of the period with the expenses recorded in it.
  Months are zero based; the current period is the default.
`
}

func (c *budgetsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.month, "month", c.month, "month, 0 (January) to 11 (December)")
	f.IntVar(&c.year, "year", 0, "four digit year")
}

func (c *budgetsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.month < -1 || c.month > 11 {
		fmt.Fprintln(c.app.out, "-month must be between 0 and 11")
		return subcommands.ExitUsageError
	}
	return c.app.run(ctx, func(s *session) error {
		month, year := s.Analytics.CurrentPeriod()
		if c.month >= 0 {
			month = c.month
		}
		if c.year > 0 {
			year = c.year
		}
		rows, err := s.Analytics.BudgetComparison(ctx, month, year)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintf(c.app.out, "no budgets for %d-%02d\n", year, month+1)
			return nil
		}
		w := c.app.table()
		fmt.Fprintln(w, "CATEGORY\tBUDGETED\tACTUAL\tREMAINING\tUSED\t")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s%%\t\n",
				r.Category, usd(r.Budgeted), usd(r.Actual), usd(r.Remaining), r.Percentage.StringFixed(0))
		}
		return w.Flush()
	})
}

type summaryCmd struct {
	app *app
}

func (*summaryCmd) Name() string           { return "summary" }
func (*summaryCmd) Synopsis() string       { return "Print all-time income, expenses and net." }
func (*summaryCmd) Usage() string          { return "summary:\n  Print all-time totals.\n" }
func (*summaryCmd) SetFlags(*flag.FlagSet) {}

func (c *summaryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(s *session) error {
		sum, err := s.Analytics.Summary(ctx)
		if err != nil {
			return err
		}
		w := c.app.table()
		fmt.Fprintf(w, "Income\t%s\t\n", usd(sum.TotalIncome))
		fmt.Fprintf(w, "Expenses\t%s\t\n", usd(sum.TotalExpenses))
		fmt.Fprintf(w, "Net\t%s\t\n", usd(sum.Net))
		fmt.Fprintf(w, "Transactions\t%d\t\n", sum.TransactionCount)
		return w.Flush()
	})
}

type seedCmd struct {
	app *app
}

func (*seedCmd) Name() string           { return "seed" }
func (*seedCmd) Synopsis() string       { return "Insert the default categories if none exist." }
func (*seedCmd) Usage() string          { return "seed:\n  Insert the default category catalog into an empty store.\n" }
func (*seedCmd) SetFlags(*flag.FlagSet) {}

func (c *seedCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(s *session) error {
		if err := s.Categories.Seed(ctx); err != nil {
			return err
		}
		cats, err := s.Categories.List(ctx)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "Categories seeded",
			applog.FieldOperation, applog.OpSeed,
			applog.FieldBackend, s.Store.Kind(),
			"count", len(cats))
		fmt.Fprintf(c.app.out, "%d categories in %s store\n", len(cats), s.Store.Kind())
		return nil
	})
}

type exportCmd struct {
	app           *app
	spreadsheetID string
	months        int
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "Write the ledger to a Google spreadsheet." }
func (*exportCmd) Usage() string {
	return `export -spreadsheet ID [-months N]:
  Replace the Transactions and Monthly sheets of the spreadsheet.
  Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.spreadsheetID, "spreadsheet", "", "target spreadsheet id")
	f.IntVar(&c.months, "months", c.months, "months of trend to export")
}

func (c *exportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.spreadsheetID == "" {
		fmt.Fprintln(c.app.out, "-spreadsheet is required")
		return subcommands.ExitUsageError
	}
	if c.months < 1 {
		fmt.Fprintln(c.app.out, "-months must be at least 1")
		return subcommands.ExitUsageError
	}
	return c.app.run(ctx, func(s *session) error {
		writer, err := c.app.newWriter(ctx)
		if err != nil {
			return err
		}
		logger := slog.Default().With(
			applog.FieldComponent, applog.ComponentSheets,
			applog.FieldOperation, applog.OpExport)
		exporter, err := sheets.NewExporter(writer, c.spreadsheetID, logger)
		if err != nil {
			return err
		}
		txs, err := s.Transactions.List(ctx, core.TransactionFilter{})
		if err != nil {
			return err
		}
		trend, err := s.Analytics.MonthlyTrend(ctx, c.months)
		if err != nil {
			return err
		}
		res, err := exporter.Export(ctx, txs, trend)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.app.out, "exported %d transactions and %d months\n", res.Transactions, res.Months)
		return nil
	})
}
