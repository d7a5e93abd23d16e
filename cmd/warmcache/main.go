// Command warmcache is the operator surface for cache warming and cutover:
//
//	warmcache warm    -categories catalog,users [-batch N] [-retries N] [-parallel N]
//	warmcache cutover [-force]
//	warmcache report  [-job ID] [-trend N]
//
// Exit codes: 0 success; 2 partial success (job completed with aborted
// categories, or cutover retired after rollback); 1 hard failure (job failed
// or connectivity could not be established).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	uberzap "go.uber.org/zap"

	"github.com/unkn0wn-root/warmcache"
	"github.com/unkn0wn-root/warmcache/audit"
	asynchook "github.com/unkn0wn-root/warmcache/hooks/async"
	"github.com/unkn0wn-root/warmcache/infra"
	logzap "github.com/unkn0wn-root/warmcache/log/zap"
	srcpg "github.com/unkn0wn-root/warmcache/source/postgres"
	stredis "github.com/unkn0wn-root/warmcache/store/redis"
)

const (
	exitOK      = 0
	exitHard    = 1
	exitPartial = 2
)

func main() { os.Exit(run(os.Args[1:])) }

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitHard
	}
	switch args[0] {
	case "warm":
		return cmdWarm(args[1:])
	case "cutover":
		return cmdCutover(args[1:])
	case "report":
		return cmdReport(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		usage()
		return exitHard
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: warmcache <command> [flags]

commands:
  warm     run a warming job and print the report
  cutover  deploy, warm, validate and switch traffic end-to-end
  report   print persisted reports/decisions

exit codes: 0 success, 2 partial success, 1 hard failure`)
}

// app wires the shared collaborators: config, policy, logger, cache store,
// source reader, audit log and orchestrator.
type app struct {
	cfg    *warmcache.Config
	policy *warmcache.Policy
	zl     *uberzap.Logger
	log    warmcache.Logger
	store  *stredis.Redis
	pool   *pgxpool.Pool
	audit  *audit.Log
	hooks  *asynchook.Hooks
	orch   *warmcache.Orchestrator
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := warmcache.LoadConfig()
	if err != nil {
		return nil, err
	}
	policy, err := warmcache.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}

	zl, err := uberzap.NewProduction()
	if err != nil {
		return nil, err
	}
	log := logzap.ZapLogger{L: zl}

	store, err := stredis.New(stredis.Config{
		Client: goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		CloseClient: true,
	})
	if err != nil {
		return nil, err
	}

	if cfg.SourceDSN == "" {
		return nil, errors.New("SOURCE_DSN is required")
	}
	pool, err := pgxpool.New(ctx, cfg.SourceDSN)
	if err != nil {
		return nil, fmt.Errorf("source pool: %w", err)
	}

	reader, err := srcpg.New(srcpg.Config{
		Pool:         pool,
		Specs:        policy.TableSpecs(),
		QueryTimeout: policy.QueryTimeout,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.Open(cfg.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}

	hooks := asynchook.New(eventLogger{log: log}, 1, 1024)

	orch, err := warmcache.NewOrchestrator(warmcache.OrchestratorOptions{
		Reader:       reader,
		Store:        store,
		Policies:     policy.TTLPolicies(),
		Required:     policy.RequiredFields(),
		WriteTimeout: policy.WriteTimeout,
		Logger:       log,
		Hooks:        hooks,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		policy: policy,
		zl:     zl,
		log:    log,
		store:  store,
		pool:   pool,
		audit:  auditLog,
		hooks:  hooks,
		orch:   orch,
	}, nil
}

func (a *app) close(ctx context.Context) {
	a.hooks.Close()
	if err := a.audit.Close(); err != nil {
		a.log.Warn("audit close failed", warmcache.Fields{"err": err})
	}
	a.pool.Close()
	if err := a.store.Close(ctx); err != nil {
		a.log.Warn("store close failed", warmcache.Fields{"err": err})
	}
	_ = a.zl.Sync()
}

func (a *app) jobSpec(categories string, batch, retries, parallel int) (warmcache.JobSpec, error) {
	cats := a.policy.CategoryNames()
	if categories != "" {
		cats = cats[:0]
		for _, s := range strings.Split(categories, ",") {
			c, err := warmcache.ParseCategory(strings.TrimSpace(s))
			if err != nil {
				return warmcache.JobSpec{}, err
			}
			cats = append(cats, c)
		}
	}
	spec := warmcache.JobSpec{
		Categories:  cats,
		BatchSize:   a.policy.BatchSize,
		MaxRetries:  a.policy.MaxRetries,
		MaxParallel: a.policy.MaxParallel,
	}
	if batch > 0 {
		spec.BatchSize = batch
	}
	if retries > 0 {
		spec.MaxRetries = retries
	}
	if parallel > 0 {
		spec.MaxParallel = parallel
	}
	return spec, nil
}

func cmdWarm(args []string) int {
	fs := flag.NewFlagSet("warm", flag.ContinueOnError)
	categories := fs.String("categories", "", "comma-separated categories (default: all configured)")
	batch := fs.Int("batch", 0, "rows per source page")
	retries := fs.Int("retries", 0, "max retries per read/write")
	parallel := fs.Int("parallel", 0, "max concurrent category warmers")
	if err := fs.Parse(args); err != nil {
		return exitHard
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitHard
	}
	defer a.close(context.Background())

	spec, err := a.jobSpec(*categories, *batch, *retries, *parallel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitHard
	}

	report, err := a.orch.Run(ctx, spec)
	if err != nil {
		a.log.Error("warming job did not run", warmcache.Fields{"err": err})
		return exitHard
	}
	if err := a.audit.SaveReport(report); err != nil {
		a.log.Warn("report not persisted", warmcache.Fields{"job": report.JobID, "err": err})
	}
	printJSON(report)

	if report.Status != warmcache.JobCompleted {
		return exitHard
	}
	if len(report.AbortedCategories()) > 0 {
		return exitPartial
	}
	return exitOK
}

func cmdCutover(args []string) int {
	fs := flag.NewFlagSet("cutover", flag.ContinueOnError)
	force := fs.Bool("force", false, "cut over even if validation fails (separately authorized)")
	categories := fs.String("categories", "", "comma-separated categories (default: all configured)")
	if err := fs.Parse(args); err != nil {
		return exitHard
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitHard
	}
	defer a.close(context.Background())

	if a.cfg.InfraBaseURL == "" {
		fmt.Fprintln(os.Stderr, "INFRA_BASE_URL is required for cutover")
		return exitHard
	}
	ic, err := infra.New(infra.Config{BaseURL: a.cfg.InfraBaseURL, Token: a.cfg.InfraToken})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitHard
	}

	gate, err := warmcache.NewGate(warmcache.GateOptions{
		Store:          a.store,
		MaxSampleBytes: a.policy.MaxSampleBytes,
		Logger:         a.log,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitHard
	}

	spec, err := a.jobSpec(*categories, 0, 0, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitHard
	}

	ctrl, err := warmcache.NewController(warmcache.ControllerOptions{
		Provisioner: ic,
		Router:      ic,
		Warm: func(ctx context.Context, envID string) (*warmcache.Report, error) {
			a.log.Info("warming new environment", warmcache.Fields{"env": envID})
			return a.orch.Run(ctx, spec)
		},
		Validate: func(ctx context.Context, r *warmcache.Report) warmcache.Decision {
			return gate.Validate(ctx, r, a.policy.Thresholds)
		},
		Recorder:    a.audit,
		ActiveEnv:   a.cfg.ActiveEnv,
		GracePeriod: a.policy.GracePeriod,
		Force:       *force,
		Logger:      a.log,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitHard
	}

	res, err := ctrl.Run(ctx)
	if res != nil {
		printJSON(res)
	}
	if err != nil {
		a.log.Error("cutover failed", warmcache.Fields{"err": err})
		return exitHard
	}
	if res.State == warmcache.StateActive {
		return exitOK
	}
	return exitPartial
}

func cmdReport(args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	jobID := fs.String("job", "", "job id (default: latest)")
	trend := fs.Int("trend", 0, "print the last N reports instead")
	if err := fs.Parse(args); err != nil {
		return exitHard
	}

	cfg, err := warmcache.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitHard
	}
	aud, err := audit.Open(cfg.AuditPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitHard
	}
	defer aud.Close()

	if *trend > 0 {
		reports, err := aud.Reports(*trend)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitHard
		}
		printJSON(reports)
		return exitOK
	}

	var report *warmcache.Report
	if *jobID != "" {
		report, err = aud.Report(*jobID)
	} else {
		report, err = aud.LatestReport()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitHard
	}

	out := struct {
		Report   *warmcache.Report   `json:"report"`
		Decision *warmcache.Decision `json:"decision,omitempty"`
	}{Report: report}
	if d, derr := aud.Decision(report.JobID); derr == nil {
		out.Decision = &d
	}
	printJSON(out)
	return exitOK
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(string(b))
}

// eventLogger surfaces warming events in the process log; wrapped by the
// async hook so warmers never block on logging.
type eventLogger struct{ log warmcache.Logger }

func (e eventLogger) RecordFailed(cat warmcache.Category, rowID string, err error) {
	e.log.Debug("record failed", warmcache.Fields{"category": cat, "row": rowID, "err": err})
}
func (e eventLogger) StoreSetRejected(key string) {
	e.log.Warn("store rejected write", warmcache.Fields{"key": key})
}
func (e eventLogger) BatchDone(cat warmcache.Category, rows int) {
	e.log.Debug("batch done", warmcache.Fields{"category": cat, "rows": rows})
}
func (e eventLogger) CategoryAborted(cat warmcache.Category, err error) {
	e.log.Warn("category aborted", warmcache.Fields{"category": cat, "err": err})
}
func (e eventLogger) JobFinished(jobID string, status warmcache.JobStatus) {
	e.log.Info("job finished", warmcache.Fields{"job": jobID, "status": status})
}
