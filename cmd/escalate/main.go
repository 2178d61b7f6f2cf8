// escalate runs one escalation sweep and prints what fired.
// Usage: from project root, run: go run ./cmd/escalate [--company=<id>] [--dry-run]
// Requires .env (or env) with DATABASE_URL or DB_*.
package main

import (
	"casewatch/bootstrap"
	"casewatch/config"
	"casewatch/logger"
	"casewatch/models"
	"casewatch/service"
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type options struct {
	companyID int64
	dryRun    bool
	timeout   time.Duration
	migrate   bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("escalate", pflag.ContinueOnError)
	fs.Int64Var(&opts.companyID, "company", 0, "restrict the sweep to one company id (0 = all)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "report what would escalate without writing or notifying")
	fs.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "bound for the whole sweep")
	fs.BoolVar(&opts.migrate, "migrate", false, "apply embedded migrations before sweeping")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.companyID < 0 {
		return opts, fmt.Errorf("--company must be a positive id")
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	opts, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	envErr := godotenv.Load()
	cfg := config.LoadConfig()
	logger.Init(cfg.Logging)
	log := logger.Component("escalate")
	if envErr != nil {
		log.Warn(".env not found")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("invalid configuration")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	db, err := bootstrap.OpenDatabase(ctx, cfg.Database, opts.migrate)
	if err != nil {
		log.WithError(err).Error("database not ready")
		return 1
	}
	defer db.Close()

	engine, err := bootstrap.Build(db, cfg, nil)
	if err != nil {
		log.WithError(err).Error("failed to wire services")
		return 1
	}

	sweep := service.SweepOptions{DryRun: opts.dryRun}
	if opts.companyID > 0 {
		sweep.CompanyID = &opts.companyID
	}
	report, err := engine.Escalations.RunSweep(ctx, sweep)
	if err != nil {
		log.WithError(err).Error("sweep failed")
		return 1
	}
	if err := printReport(stdout, report); err != nil {
		log.WithError(err).Error("failed to print report")
		return 1
	}
	return 0
}

func printReport(w io.Writer, report *models.SweepReport) error {
	mode := "live"
	if report.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(w, "run %s (%s): scanned=%d skipped=%d failed=%d stale_resolved=%d\n",
		report.RunID, mode, report.CasesScanned, report.CasesSkipped, report.CasesFailed, report.StaleResolved)

	if len(report.Escalations) == 0 {
		fmt.Fprintln(w, "nothing to escalate")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if report.DryRun {
		fmt.Fprintln(tw, "CASE_TOKEN\tCOMPANY\tSTAGE\tRULE\tTHRESHOLD\tELAPSED\tOVERDUE_BY")
		for _, e := range report.Escalations {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dm\t%dm\t%dm\n",
				e.CaseToken, e.CompanyName, e.Stage, e.RuleName, e.ThresholdMin, e.ElapsedMin, e.OverdueMinutes)
		}
		return tw.Flush()
	}

	fmt.Fprintln(tw, "CASE_ID\tRULE\tOVERDUE\tRESULT")
	for _, e := range report.Escalations {
		fmt.Fprintf(tw, "%d\t%s\t%dm\t%s\n", e.CaseID, e.RuleName, e.OverdueMinutes, outcome(e))
	}
	return tw.Flush()
}

func outcome(e models.EscalationSummary) string {
	switch {
	case e.AlreadyExisted:
		return "already escalated"
	case e.EscalationID != nil:
		tier := e.RecipientTier
		if tier == "" {
			tier = "no recipients"
		}
		return fmt.Sprintf("escalated #%d -> %s", *e.EscalationID, tier)
	default:
		return "not recorded"
	}
}
