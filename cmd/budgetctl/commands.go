package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"FamilyBudget/internal/config"
	"FamilyBudget/internal/ledger"
	"FamilyBudget/internal/logger"
	"FamilyBudget/internal/model"
	"FamilyBudget/internal/money"
	"FamilyBudget/internal/recorder"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// environment is shared by all commands.
type environment struct {
	configPath string
	out        io.Writer
}

func commands(env *environment) []subcommands.Command {
	return []subcommands.Command{
		&balanceCmd{env: env},
		&archiveCmd{env: env},
		&setLimitCmd{env: env},
		&historyCmd{env: env},
		&rolloverCmd{env: env},
	}
}

func (e *environment) load() (*config.Config, zerolog.Logger, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.ValidateLedger(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid config: %w", err)
	}
	log := logger.NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr}).Level(logger.ParseLevel(cfg.Log.Level))
	return cfg, log, nil
}

// manager opens the ledger. Any pending rollover is applied and recorded
// in the history database, as the bot would.
func (e *environment) manager() (*config.Config, *ledger.Manager, func(), error) {
	cfg, log, err := e.load()
	if err != nil {
		return nil, nil, nil, err
	}
	loc, _ := cfg.Location()

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("history database unavailable")
		} else {
			rec = sr
		}
	}

	m, err := ledger.NewManager(ledger.NewFileStore(cfg.Budget.StateFile), ledger.Config{
		BaseLimit:            cfg.Budget.BaseLimit,
		IncomeAffectsBalance: cfg.Budget.IncomeAffectsBalance,
		Contributors:         cfg.Contributors,
		Location:             loc,
	}, ledger.WithRecorder(rec), ledger.WithLogger(log))
	if err != nil {
		rec.Close()
		return nil, nil, nil, err
	}
	return cfg, m, func() { rec.Close() }, nil
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

func roleOf(members []model.Contributor, id int64) string {
	for _, c := range members {
		if c.ID == id {
			return c.Role
		}
	}
	return fmt.Sprint(id)
}

func printReport(w io.Writer, r model.Report, members []model.Contributor, currency string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Period:\t%s\n", r.Period)
	fmt.Fprintf(tw, "Limit:\t%s\n", money.Format(r.Limit, currency))
	fmt.Fprintf(tw, "Carry-over:\t%s\n", money.FormatSigned(r.CarryOver, currency))
	fmt.Fprintf(tw, "Effective limit:\t%s\n", money.Format(r.EffectiveLimit, currency))
	for _, c := range members {
		fmt.Fprintf(tw, "Expenses %s:\t%s\n", c.Role, money.Format(r.ExpensesOf(c.ID), currency))
	}
	fmt.Fprintf(tw, "Income:\t%s\n", money.Format(r.TotalIncome, currency))
	fmt.Fprintf(tw, "Balance:\t%s\n", money.Format(r.Balance, currency))
	tw.Flush()
}

type balanceCmd struct{ env *environment }

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "show the report of the live period" }
func (*balanceCmd) Usage() string {
	return `budgetctl balance

  Prints limit, carry-over, per-contributor expenses and balance of the
  current month.
`
}
func (*balanceCmd) SetFlags(*flag.FlagSet) {}

func (c *balanceCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, m, closeFn, err := c.env.manager()
	if err != nil {
		return fail(err)
	}
	defer closeFn()
	r, err := m.Report()
	if err != nil {
		return fail(err)
	}
	printReport(c.env.out, r, cfg.Contributors, cfg.Budget.Currency)
	return subcommands.ExitSuccess
}

type archiveCmd struct{ env *environment }

func (*archiveCmd) Name() string     { return "archive" }
func (*archiveCmd) Synopsis() string { return "list concluded months or show one of them" }
func (*archiveCmd) Usage() string {
	return `budgetctl archive [YYYY-MM]

  Without an argument lists every archived month in the order it was
  closed. With a period prints that month's frozen report and transactions.
`
}
func (*archiveCmd) SetFlags(*flag.FlagSet) {}

func (c *archiveCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	cfg, m, closeFn, err := c.env.manager()
	if err != nil {
		return fail(err)
	}
	defer closeFn()
	cur := cfg.Budget.Currency

	if f.NArg() == 0 {
		entries, err := m.Archive()
		if err != nil {
			return fail(err)
		}
		if len(entries) == 0 {
			fmt.Fprintln(c.env.out, "archive is empty")
			return subcommands.ExitSuccess
		}
		tw := tabwriter.NewWriter(c.env.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PERIOD\tEXPENSES\tBALANCE\tCARRY")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Period,
				money.Format(e.Report.TotalExpenses, cur),
				money.Format(e.Report.Balance, cur),
				money.FormatSigned(e.Carry, cur))
		}
		tw.Flush()
		return subcommands.ExitSuccess
	}

	p, err := model.ParsePeriod(f.Arg(0))
	if err != nil {
		return fail(err)
	}
	e, err := m.ArchivedPeriod(p)
	if err != nil {
		return fail(err)
	}
	printReport(c.env.out, e.Report, cfg.Contributors, cur)
	fmt.Fprintf(c.env.out, "Closed at: %s\n\n", e.ClosedAt.Format("2006-01-02 15:04"))
	for _, member := range cfg.Contributors {
		for _, tx := range e.Expenses[member.ID] {
			fmt.Fprintf(c.env.out, "  %s  %-8s %s\n", tx.At.Format("01-02 15:04"), member.Role, money.Format(tx.Amount, cur))
		}
	}
	for _, tx := range e.Income {
		fmt.Fprintf(c.env.out, "  %s  %-8s +%s\n", tx.At.Format("01-02 15:04"), roleOf(cfg.Contributors, tx.Contributor), money.Format(tx.Amount, cur))
	}
	return subcommands.ExitSuccess
}

type setLimitCmd struct {
	env *environment
	as  int64
}

func (*setLimitCmd) Name() string     { return "set-limit" }
func (*setLimitCmd) Synopsis() string { return "replace the monthly limit" }
func (*setLimitCmd) Usage() string {
	return `budgetctl set-limit [-as <contributor id>] <amount>

  Replaces the base limit of the live period. The carry-over and the
  booked transactions are kept. The change is recorded under the given
  contributor, the first configured one by default.
`
}

func (c *setLimitCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.as, "as", 0, "contributor id the change is attributed to")
}

func (c *setLimitCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	cfg, m, closeFn, err := c.env.manager()
	if err != nil {
		return fail(err)
	}
	defer closeFn()

	as := c.as
	if as == 0 {
		as = cfg.Contributors[0].ID
	}
	r, err := m.SetLimit(as, f.Arg(0))
	if err != nil {
		return fail(err)
	}
	printReport(c.env.out, r, cfg.Contributors, cfg.Budget.Currency)
	return subcommands.ExitSuccess
}

type historyCmd struct {
	env *environment
	n   int
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "show recent ledger events from the history database" }
func (*historyCmd) Usage() string {
	return `budgetctl history [-n <count>]

  Prints the most recent ledger events, newest first.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.n, "n", 20, "number of events to show")
}

func (c *historyCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := c.env.load()
	if err != nil {
		return fail(err)
	}
	if cfg.Database.SQLitePath == "" {
		return fail(fmt.Errorf("database.sqlite_path is not configured"))
	}
	rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
	if err != nil {
		return fail(err)
	}
	defer rec.Close()

	events, err := rec.RecentEvents(c.n)
	if err != nil {
		return fail(err)
	}
	loc, _ := cfg.Location()
	tw := tabwriter.NewWriter(c.env.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tPERIOD\tEVENT\tWHO\tAMOUNT\tBALANCE\tNOTE")
	for _, e := range events {
		who := ""
		if e.Contributor != 0 {
			who = roleOf(cfg.Contributors, e.Contributor)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.At.In(loc).Format("2006-01-02 15:04"), e.Period, e.Type, who,
			money.Format(e.Amount, cfg.Budget.Currency), money.Format(e.Balance, cfg.Budget.Currency), e.Note)
	}
	tw.Flush()
	return subcommands.ExitSuccess
}

type rolloverCmd struct{ env *environment }

func (*rolloverCmd) Name() string     { return "rollover" }
func (*rolloverCmd) Synopsis() string { return "apply a pending month rollover now" }
func (*rolloverCmd) Usage() string {
	return `budgetctl rollover

  Archives the live period if the calendar month has changed and carries
  its balance into the new month. Does nothing otherwise.
`
}
func (*rolloverCmd) SetFlags(*flag.FlagSet) {}

func (c *rolloverCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, m, closeFn, err := c.env.manager()
	if err != nil {
		return fail(err)
	}
	defer closeFn()

	// Opening the manager already applies a pending rollover; report what
	// the archive looks like now.
	if _, err := m.CheckRollover(); err != nil {
		return fail(err)
	}
	entries, err := m.Archive()
	if err != nil {
		return fail(err)
	}
	r, _ := m.Report()
	if n := len(entries); n > 0 {
		last := entries[n-1]
		fmt.Fprintf(c.env.out, "last closed period %s, carried %s into %s\n",
			last.Period, money.FormatSigned(last.Carry, cfg.Budget.Currency), r.Period)
	} else {
		fmt.Fprintf(c.env.out, "period %s is current, nothing archived\n", r.Period)
	}
	return subcommands.ExitSuccess
}
