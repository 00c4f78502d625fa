package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/davidahmann/alzpolicy/internal/assignment"
	"github.com/davidahmann/alzpolicy/internal/catalog"
	"github.com/davidahmann/alzpolicy/internal/config"
	"github.com/davidahmann/alzpolicy/internal/naming"
	"github.com/davidahmann/alzpolicy/internal/plan"
	"github.com/davidahmann/alzpolicy/internal/roles"
	"github.com/davidahmann/alzpolicy/pkg/types"
)

const (
	defaultConfigPath = "alzpolicy.yaml"
	defaultLogLevel   = "WARNING"
)

var logger = loggo.GetLogger("alzpolicy.cli")

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var (
	exitFn = os.Exit
	nowFn  = time.Now
)

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "name":
		return handleName(args[2:], stdout, stderr)
	case "descriptors":
		return handleDescriptors(args[2:], stdout, stderr)
	case "plan":
		return handlePlan(args[2:], stdout, stderr)
	case "deploy":
		return handleDeploy(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func handleName(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "assignment":
		fs := flag.NewFlagSet("name assignment", flag.ContinueOnError)
		fs.SetOutput(stderr)
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() != 3 {
			fmt.Fprintln(stderr, "name assignment requires <scope> <policy_definition_id> <display_name>")
			fs.Usage()
			return 2
		}
		name, err := naming.AssignmentName(fs.Arg(0), fs.Arg(1), fs.Arg(2))
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		fmt.Fprintln(stdout, name)
		return 0
	case "hash":
		fs := flag.NewFlagSet("name hash", flag.ContinueOnError)
		fs.SetOutput(stderr)
		chars := fs.Int("chars", 6, "characters per field (even, 2-26)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() == 0 {
			fmt.Fprintln(stderr, "name hash requires <field>...")
			fs.Usage()
			return 2
		}
		name, err := naming.Generate(fs.Args(), *chars)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		fmt.Fprintln(stdout, name)
		return 0
	default:
		usage(stderr)
		return 2
	}
}

func handleDescriptors(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "lint" {
		usage(stderr)
		return 2
	}
	fs := flag.NewFlagSet("descriptors lint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := registerCommonFlags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	cfg, ok := common.load(stderr)
	if !ok {
		return 1
	}

	loaded, err := assignment.LoadDescriptors(firstNonEmpty(fs.Arg(0), cfg.DescriptorsPath))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	// Lint runs offline: ___ID parameters are checked for syntax but not
	// resolved, and user assigned identities are not looked up.
	enricher := &assignment.Enricher{Organization: cfg.Organization, Tokens: cfg.Tokens(), Lookup: unresolvedLookup{}}
	assignments, err := enricher.EnrichAll(context.Background(), loaded.Descriptors)
	for _, a := range assignments {
		fmt.Fprintf(stdout, "%s\t%s\t%s\n", a.Name, a.ManagementGroupID, a.DisplayName)
	}
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	fmt.Fprintf(stdout, "ok descriptors=%d descriptors_hash=%s\n", len(assignments), loaded.Hash)
	return 0
}

func handlePlan(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := registerCommonFlags(fs)
	outPath := fs.String("out", "-", "plan output path, - for stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, ok := common.load(stderr)
	if !ok {
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p, err := buildPlan(ctx, cfg, newAzureEnv(cfg), stderr)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if *outPath == "-" {
		if err := plan.Write(stdout, p); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		return 0
	}
	if err := plan.WriteFile(*outPath, p); err != nil {
		fmt.Fprintln(stderr, "write plan:", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s plan_id=%s scopes=%d\n", *outPath, p.PlanID, len(p.Scopes))
	return 0
}

func handleDeploy(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("deploy", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := registerCommonFlags(fs)
	planPath := fs.String("plan", "", "deploy a plan written by the plan command instead of building one")
	testMode := fs.Bool("test-mode", envBool("ALZPOLICY_TEST_MODE"), "validate templates instead of deploying")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, ok := common.load(stderr)
	if !ok {
		return 1
	}
	if err := cfg.ValidateDeploy(); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env := newAzureEnv(cfg)
	var (
		p   types.Plan
		err error
	)
	if *planPath != "" {
		p, err = plan.ReadFile(*planPath)
		if err == nil && !strings.EqualFold(p.Organization, cfg.Organization) {
			err = errors.NotValidf("plan for organization %q with configuration for %q", p.Organization, cfg.Organization)
		}
	} else {
		p, err = buildPlan(ctx, cfg, env, stderr)
	}
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	runner, err := env.runner(ctx, cfg, *testMode || cfg.TestMode)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	results, err := runner.Run(ctx, p)
	for _, res := range results {
		fmt.Fprintln(stdout, res.String())
	}
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	fmt.Fprintf(stdout, "ok plan_id=%s scopes=%d\n", p.PlanID, len(results))
	return 0
}

// buildPlan runs descriptor enrichment and role resolution and groups the
// result into a plan.
func buildPlan(ctx context.Context, cfg config.Config, env azureEnv, stderr io.Writer) (types.Plan, error) {
	loaded, err := assignment.LoadDescriptors(cfg.DescriptorsPath)
	if err != nil {
		return types.Plan{}, errors.Trace(err)
	}

	enricher := &assignment.Enricher{
		Organization: cfg.Organization,
		Tokens:       cfg.Tokens(),
		Lookup:       env.lookup(),
		Identities:   env.identities(),
	}
	assignments, err := enricher.EnrichAll(ctx, loaded.Descriptors)
	if err != nil {
		var batch *assignment.BatchError
		if !cfg.ContinueOnError || !errors.As(err, &batch) {
			return types.Plan{}, err
		}
		fmt.Fprintln(stderr, err.Error())
		logger.Warningf("continuing with %d of %d descriptor(s)", len(assignments), len(loaded.Descriptors))
	}

	source, err := env.source()
	if err != nil {
		return types.Plan{}, errors.Trace(err)
	}
	cat, err := catalog.Load(ctx, source, cfg.Organization)
	if err != nil {
		return types.Plan{}, errors.Trace(err)
	}
	resolver := &roles.Resolver{Catalog: cat, Lenient: cfg.LenientLookups}
	reqs, err := resolver.Resolve(assignments)
	if err != nil {
		return types.Plan{}, errors.Trace(err)
	}

	return plan.Build(assignments, reqs, plan.Options{
		Organization:    cfg.Organization,
		Location:        cfg.Location,
		DescriptorsHash: loaded.Hash,
		CreatedAt:       nowFn(),
	})
}

type commonFlags struct {
	configPath *string
	logLevel   *string
}

func registerCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", envOrDefault("ALZPOLICY_CONFIG", defaultConfigPath), "configuration file"),
		logLevel:   fs.String("log-level", envOrDefault("ALZPOLICY_LOG", defaultLogLevel), "log level (TRACE, DEBUG, INFO, WARNING, ERROR)"),
	}
}

func (f commonFlags) load(stderr io.Writer) (config.Config, bool) {
	if err := loggo.ConfigureLoggers("<root>=" + strings.ToUpper(*f.logLevel)); err != nil {
		fmt.Fprintln(stderr, "log level:", err)
		return config.Config{}, false
	}
	cfg, err := config.Load(*f.configPath)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return config.Config{}, false
	}
	return cfg, true
}

// unresolvedLookup stands in for ARM when linting offline.
type unresolvedLookup struct{}

func (unresolvedLookup) ResourceID(_ context.Context, name string) (string, error) {
	return "<unresolved:" + name + ">", nil
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func envBool(key string) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func usage(w io.Writer) {
	fmt.Fprint(w, `alzpolicy: Azure landing zone policy assignment deployment

Usage:
  alzpolicy name assignment <scope> <policy_definition_id> <display_name>
  alzpolicy name hash [-chars N] <field>...
  alzpolicy descriptors lint [-config FILE] [descriptors_path]
  alzpolicy plan [-config FILE] [-out plan.json]
  alzpolicy deploy [-config FILE] [-plan plan.json] [-test-mode]

Common flags:
  -config FILE      configuration file (env ALZPOLICY_CONFIG, default alzpolicy.yaml)
  -log-level LEVEL  log level (env ALZPOLICY_LOG, default WARNING)
`)
}
