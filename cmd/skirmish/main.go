// Package main provides the skirmish command: run a battle map, a scenario or a
// directory of scenarios, optionally searching for the minimal attack power that
// wins without losses. With -remote the work is sent to a simserver instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/battlemap"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/search"
	"github.com/cory-johannsen/skirmish/internal/observability"
	"github.com/cory-johannsen/skirmish/internal/scenario"
	"github.com/cory-johannsen/skirmish/internal/scripting"
	"github.com/cory-johannsen/skirmish/internal/simserver"
	"github.com/cory-johannsen/skirmish/internal/storage/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "skirmish:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	configPath   string
	mapPath      string
	scenarioPath string
	scenarioDir  string
	showRun      string
	remote       string
	search       bool
	render       bool
	trace        bool
	store        bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("skirmish", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "path to configuration file (defaults and SKIRMISH_* env when empty)")
	fs.StringVar(&o.mapPath, "map", "", "path to a battle map, or - for stdin")
	fs.StringVar(&o.scenarioPath, "scenario", "", "path to a scenario YAML file")
	fs.StringVar(&o.scenarioDir, "scenarios", "", "run every scenario YAML file in a directory")
	fs.StringVar(&o.showRun, "show-run", "", "print a stored run by id")
	fs.StringVar(&o.remote, "remote", "", "simserver address; simulate there instead of locally")
	fs.BoolVar(&o.search, "search", false, "search for the minimal attack power giving a flawless victory (with -scenarios, only where one is expected)")
	fs.BoolVar(&o.render, "render", false, "print the final map with hit points")
	fs.BoolVar(&o.trace, "trace", false, "print every turn as it happens")
	fs.BoolVar(&o.store, "store", false, "save results to the configured database")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	sources := 0
	for _, v := range []string{o.mapPath, o.scenarioPath, o.scenarioDir, o.showRun} {
		if v != "" {
			sources++
		}
	}
	if sources != 1 {
		return options{}, errors.New("exactly one of -map, -scenario, -scenarios or -show-run is required")
	}
	if o.remote != "" && (o.scenarioDir != "" || o.showRun != "" || o.trace || o.store) {
		return options{}, errors.New("-remote works with -map or -scenario and excludes -trace and -store")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = observability.Sync(logger) }()

	if opts.showRun != "" {
		return showRun(ctx, cfg, opts.showRun, stdout)
	}

	var scenarios []*scenario.Scenario
	if opts.scenarioDir != "" {
		scenarios, err = scenario.LoadFromDir(opts.scenarioDir)
		if err != nil {
			return err
		}
	} else {
		sc, err := loadScenario(opts, stdin)
		if err != nil {
			return err
		}
		scenarios = []*scenario.Scenario{sc}
	}

	if opts.remote != "" {
		return runRemote(ctx, cfg, opts, scenarios[0], stdout)
	}

	var repo *postgres.RunRepository
	if opts.store {
		if !cfg.Database.Enabled {
			return errors.New("-store requires database.enabled")
		}
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		repo = pool.Runs()
	}

	start := time.Now()
	var checkErr error
	for _, sc := range scenarios {
		searchIt := opts.search && (opts.scenarioDir == "" || sc.HasSearchExpectation())
		err := runScenario(ctx, cfg, logger, opts, repo, sc, searchIt, stdout)
		if err != nil && !errors.Is(err, scenario.ErrMismatch) {
			return err
		}
		checkErr = errors.Join(checkErr, err)
	}
	logger.Info("skirmish finished",
		zap.Int("scenarios", len(scenarios)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return checkErr
}

// runScenario plays sc locally and, when searchIt is set, runs the attack power
// search. Expectation mismatches are returned wrapping scenario.ErrMismatch.
func runScenario(ctx context.Context, cfg config.Config, logger *zap.Logger, opts options, repo *postgres.RunRepository, sc *scenario.Scenario, searchIt bool, stdout io.Writer) error {
	defaults := battlemap.Stats{HitPoints: cfg.Combat.HitPoints, AttackPower: cfg.Combat.AttackPower}
	initial, err := sc.Build(defaults)
	if err != nil {
		return err
	}

	driverOpts := []combat.Option{combat.WithLogger(logger), combat.WithMaxRounds(cfg.Combat.MaxRounds)}
	if opts.trace {
		driverOpts = append(driverOpts, combat.WithRoundObserver(func(round int, _ *combat.State, r combat.RoundResult) {
			for _, ev := range r.Events {
				fmt.Fprintf(stdout, "round %d: %s\n", round, ev)
			}
		}))
	}

	final := initial.Clone()
	out, err := combat.NewDriver(driverOpts...).Run(ctx, final)
	if err != nil {
		return err
	}
	printOutcome(stdout, sc.Name, out)
	if opts.render {
		fmt.Fprint(stdout, battlemap.Render(final, battlemap.Options{HitPoints: true}))
	}
	if repo != nil {
		rec, err := repo.SaveRun(ctx, postgres.NewRunRecord(sc.Name, combat.NoFaction, 0, out))
		if err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
		fmt.Fprintf(stdout, "%s: stored run %s\n", sc.Name, rec.ID)
	}
	checkErr := sc.Check(out)
	if !searchIt {
		return checkErr
	}

	res, err := runSearch(ctx, cfg, logger, initial)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: minimal %s attack power %d after %d attempts\n",
		sc.Name, cfg.Search.Faction, res.AttackPower, res.Attempts)
	printOutcome(stdout, sc.Name, res.Outcome)
	if opts.render {
		fmt.Fprint(stdout, battlemap.Render(res.Final, battlemap.Options{HitPoints: true}))
	}
	if repo != nil {
		_, err := repo.SaveSearch(ctx, postgres.SearchRecord{
			Scenario:    sc.Name,
			Faction:     cfg.Search.Faction,
			Floor:       cfg.Search.Floor,
			AttackPower: res.AttackPower,
			Score:       res.Outcome.Score,
			Attempts:    res.Attempts,
		})
		if err != nil {
			return fmt.Errorf("saving search: %w", err)
		}
	}
	return errors.Join(checkErr, sc.CheckSearch(res))
}

// showRun prints one stored run.
func showRun(ctx context.Context, cfg config.Config, rawID string, stdout io.Writer) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("parsing run id: %w", err)
	}
	if !cfg.Database.Enabled {
		return errors.New("-show-run requires database.enabled")
	}
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rec, err := pool.Runs().GetRun(ctx, id)
	if err != nil {
		return err
	}
	winner := rec.Winner
	if winner == "" {
		winner = "nobody"
	}
	fmt.Fprintf(stdout, "%s: %d rounds, %d hit points left, score %d, %s wins (%s)\n",
		rec.Scenario, rec.Rounds, rec.HitPoints, rec.Score, winner, rec.Termination)
	fmt.Fprintf(stdout, "run %s stored %s\n", rec.ID, rec.CreatedAt.Format(time.RFC3339))
	return nil
}

// runRemote sends sc to a simserver and prints its answers in the local format.
func runRemote(ctx context.Context, cfg config.Config, opts options, sc *scenario.Scenario, stdout io.Writer) error {
	if opts.search && cfg.Search.PredicateScript != "" {
		return errors.New("search.predicate_script is not supported with -remote")
	}
	conn, err := grpc.NewClient(opts.remote, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dialing %s: %w", opts.remote, err)
	}
	defer conn.Close()
	client := simserver.NewClient(conn)

	fields := map[string]any{
		"map":        sc.Map,
		"scenario":   sc.Name,
		"max_rounds": cfg.Combat.MaxRounds,
	}
	defaults := battlemap.Stats{HitPoints: cfg.Combat.HitPoints, AttackPower: cfg.Combat.AttackPower}
	for f, st := range sc.Params(defaults) {
		fields[f.String()+"_hit_points"] = st.HitPoints
		fields[f.String()+"_attack_power"] = st.AttackPower
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := client.Simulate(ctx, req)
	if err != nil {
		return fmt.Errorf("simulating on %s: %w", opts.remote, err)
	}
	out := remoteOutcome(resp)
	printOutcome(stdout, sc.Name, out)
	if opts.render {
		fmt.Fprint(stdout, resp.GetFields()["render"].GetStringValue())
	}
	checkErr := sc.Check(out)
	if !opts.search {
		return checkErr
	}

	req.Fields["faction"] = structpb.NewStringValue(cfg.Search.Faction)
	req.Fields["floor"] = structpb.NewNumberValue(float64(cfg.Search.Floor))
	req.Fields["ceiling"] = structpb.NewNumberValue(float64(cfg.Search.Ceiling))
	req.Fields["workers"] = structpb.NewNumberValue(float64(cfg.Search.Workers))
	resp, err = client.Search(ctx, req)
	if err != nil {
		return fmt.Errorf("searching on %s: %w", opts.remote, err)
	}
	res := search.Result{
		AttackPower: int(resp.GetFields()["attack_power"].GetNumberValue()),
		Outcome:     remoteOutcome(resp),
		Attempts:    int(resp.GetFields()["attempts"].GetNumberValue()),
	}
	fmt.Fprintf(stdout, "%s: minimal %s attack power %d after %d attempts\n",
		sc.Name, cfg.Search.Faction, res.AttackPower, res.Attempts)
	printOutcome(stdout, sc.Name, res.Outcome)
	if opts.render {
		fmt.Fprint(stdout, resp.GetFields()["render"].GetStringValue())
	}
	return errors.Join(checkErr, sc.CheckSearch(res))
}

// remoteOutcome rebuilds the fields of an Outcome that a simserver response carries.
func remoteOutcome(resp *structpb.Struct) combat.Outcome {
	f := resp.GetFields()
	winner, _ := combat.ParseFaction(f["winner"].GetStringValue())
	out := combat.Outcome{
		Rounds:             int(f["rounds"].GetNumberValue()),
		HitPointsRemaining: int(f["hit_points"].GetNumberValue()),
		Score:              int(f["score"].GetNumberValue()),
		Winner:             winner,
		Casualties:         make(map[combat.Faction]int, len(combat.Factions)),
	}
	for _, fac := range combat.Factions {
		out.Casualties[fac] = int(f["casualties"].GetStructValue().GetFields()[fac.String()].GetNumberValue())
	}
	for _, t := range []combat.Termination{combat.Eliminated, combat.Deadlocked, combat.RoundLimit} {
		if t.String() == f["termination"].GetStringValue() {
			out.Termination = t
		}
	}
	return out
}

// loadScenario reads the scenario file, or wraps a bare map in an unnamed scenario.
func loadScenario(opts options, stdin io.Reader) (*scenario.Scenario, error) {
	if opts.scenarioPath != "" {
		return scenario.LoadFromFile(opts.scenarioPath)
	}
	var (
		data []byte
		err  error
	)
	if opts.mapPath == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(opts.mapPath)
	}
	if err != nil {
		return nil, fmt.Errorf("reading map: %w", err)
	}
	name := opts.mapPath
	if name == "-" {
		name = "stdin"
	}
	return &scenario.Scenario{Name: name, Map: string(data)}, nil
}

func runSearch(ctx context.Context, cfg config.Config, logger *zap.Logger, initial *combat.State) (search.Result, error) {
	faction, err := combat.ParseFaction(cfg.Search.Faction)
	if err != nil {
		return search.Result{}, err
	}
	sc := search.Config{
		Faction: faction,
		Floor:   cfg.Search.Floor,
		Ceiling: cfg.Search.Ceiling,
		Workers: cfg.Search.Workers,
	}
	if cfg.Search.PredicateScript != "" {
		p, err := scripting.NewPredicateFromFile(cfg.Search.PredicateScript, cfg.Search.InstructionLimit, logger)
		if err != nil {
			return search.Result{}, err
		}
		defer p.Close()
		sc.Predicate = p
	}
	driver := combat.NewDriver(combat.WithMaxRounds(cfg.Combat.MaxRounds))
	s, err := search.New(sc, driver, logger)
	if err != nil {
		return search.Result{}, err
	}
	return s.Run(ctx, initial)
}

func printOutcome(w io.Writer, name string, o combat.Outcome) {
	winner := o.Winner.String()
	if winner == "" {
		winner = "nobody"
	}
	fmt.Fprintf(w, "%s: %d rounds, %d hit points left, score %d, %s wins (%s)\n",
		name, o.Rounds, o.HitPointsRemaining, o.Score, winner, o.Termination)
}
