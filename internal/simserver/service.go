// Package simserver exposes combat simulation and attack power search over gRPC.
package simserver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/battlemap"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/search"
	"github.com/cory-johannsen/skirmish/internal/storage/postgres"
)

// RunStore persists finished runs and searches. postgres.RunRepository satisfies it.
type RunStore interface {
	SaveRun(ctx context.Context, rec postgres.RunRecord) (postgres.RunRecord, error)
	SaveSearch(ctx context.Context, rec postgres.SearchRecord) (postgres.SearchRecord, error)
}

// Service implements SimulatorServer.
//
// Request keys: "map" (required), "scenario", "elf_hit_points", "elf_attack_power",
// "goblin_hit_points", "goblin_attack_power", "max_rounds", and for Search also
// "faction", "floor", "ceiling" and "workers". Missing keys use the configured defaults.
//
// Response keys: "rounds", "hit_points", "score", "winner", "termination",
// "casualties", "survivors" and "render"; Search adds "attack_power" and "attempts".
// "run_id" or "search_id" is set when a store is configured.
type Service struct {
	combat config.CombatConfig
	search config.SearchConfig
	store  RunStore
	logger *zap.Logger
}

// NewService creates a Service. store may be nil to disable persistence.
//
// Precondition: logger must be non-nil; combatCfg and searchCfg must be validated.
func NewService(combatCfg config.CombatConfig, searchCfg config.SearchConfig, store RunStore, logger *zap.Logger) *Service {
	return &Service{combat: combatCfg, search: searchCfg, store: store, logger: logger}
}

// request is a decoded Simulate or Search request.
type request struct {
	scenario  string
	mapText   string
	params    battlemap.Params
	maxRounds int
	faction   combat.Faction
	floor     int
	ceiling   int
	workers   int
}

// Simulate runs one combat to completion.
func (s *Service) Simulate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	req, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	st, err := battlemap.Parse(req.mapText, req.params)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "parsing map: %v", err)
	}

	driver := combat.NewDriver(combat.WithLogger(s.logger), combat.WithMaxRounds(req.maxRounds))
	out, err := driver.Run(ctx, st)
	if err != nil {
		return nil, rpcError(err)
	}

	resp := outcomeFields(out)
	resp["render"] = battlemap.Render(st, battlemap.Options{HitPoints: true})
	if s.store != nil {
		rec, err := s.store.SaveRun(ctx, postgres.NewRunRecord(req.scenario, combat.NoFaction, 0, out))
		if err != nil {
			s.logger.Warn("saving run", zap.String("scenario", req.scenario), zap.Error(err))
		} else {
			resp["run_id"] = rec.ID.String()
		}
	}
	s.logger.Info("simulate",
		zap.String("scenario", req.scenario),
		zap.Int("score", out.Score),
		zap.Duration("elapsed", time.Since(start)),
	)
	return toStruct(resp)
}

// Search finds the minimal attack power giving the requested faction a flawless victory.
func (s *Service) Search(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	req, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	if err := s.decodeSearch(in, &req); err != nil {
		return nil, err
	}
	st, err := battlemap.Parse(req.mapText, req.params)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "parsing map: %v", err)
	}

	driver := combat.NewDriver(combat.WithMaxRounds(req.maxRounds))
	searcher, err := search.New(search.Config{
		Faction: req.faction,
		Floor:   req.floor,
		Ceiling: req.ceiling,
		Workers: req.workers,
	}, driver, s.logger)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := searcher.Run(ctx, st)
	if err != nil {
		return nil, rpcError(err)
	}

	resp := outcomeFields(res.Outcome)
	resp["attack_power"] = res.AttackPower
	resp["attempts"] = res.Attempts
	resp["render"] = battlemap.Render(res.Final, battlemap.Options{HitPoints: true})
	if s.store != nil {
		rec, err := s.store.SaveSearch(ctx, postgres.SearchRecord{
			Scenario:    req.scenario,
			Faction:     req.faction.String(),
			Floor:       req.floor,
			AttackPower: res.AttackPower,
			Score:       res.Outcome.Score,
			Attempts:    res.Attempts,
		})
		if err != nil {
			s.logger.Warn("saving search", zap.String("scenario", req.scenario), zap.Error(err))
		} else {
			resp["search_id"] = rec.ID.String()
		}
	}
	s.logger.Info("search",
		zap.String("scenario", req.scenario),
		zap.Int("attack_power", res.AttackPower),
		zap.Duration("elapsed", time.Since(start)),
	)
	return toStruct(resp)
}

func (s *Service) decode(in *structpb.Struct) (request, error) {
	f := in.GetFields()
	req := request{scenario: "adhoc"}

	mapVal, ok := f["map"]
	if !ok {
		return request{}, status.Error(codes.InvalidArgument, "map is required")
	}
	if _, isString := mapVal.GetKind().(*structpb.Value_StringValue); !isString {
		return request{}, status.Error(codes.InvalidArgument, "map must be a string")
	}
	req.mapText = mapVal.GetStringValue()
	if v, ok := f["scenario"]; ok && v.GetStringValue() != "" {
		req.scenario = v.GetStringValue()
	}

	ints := []intParam{
		{"max_rounds", s.combat.MaxRounds, 0, &req.maxRounds},
	}
	stats := make(map[combat.Faction]*battlemap.Stats, len(combat.Factions))
	for _, fac := range combat.Factions {
		st := &battlemap.Stats{HitPoints: s.combat.HitPoints, AttackPower: s.combat.AttackPower}
		stats[fac] = st
		ints = append(ints,
			intParam{fac.String() + "_hit_points", st.HitPoints, 1, &st.HitPoints},
			intParam{fac.String() + "_attack_power", st.AttackPower, 1, &st.AttackPower},
		)
	}
	if err := decodeInts(f, ints); err != nil {
		return request{}, err
	}
	req.params = make(battlemap.Params, len(stats))
	for fac, st := range stats {
		req.params[fac] = *st
	}
	return req, nil
}

// decodeSearch fills the keys only Search reads.
func (s *Service) decodeSearch(in *structpb.Struct, req *request) error {
	f := in.GetFields()
	factionName := s.search.Faction
	if v, ok := f["faction"]; ok {
		factionName = v.GetStringValue()
	}
	faction, err := combat.ParseFaction(factionName)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	req.faction = faction

	return decodeInts(f, []intParam{
		{"floor", s.search.Floor, 1, &req.floor},
		{"ceiling", s.search.Ceiling, 1, &req.ceiling},
		{"workers", s.search.Workers, 1, &req.workers},
	})
}

func decodeInts(f map[string]*structpb.Value, ints []intParam) error {
	for _, p := range ints {
		n, err := intField(f, p.key, p.def)
		if err != nil {
			return err
		}
		if n < p.min {
			return status.Errorf(codes.InvalidArgument, "%s must be >= %d, got %d", p.key, p.min, n)
		}
		*p.dst = n
	}
	return nil
}

// intParam is an optional integer request key with its default and lower bound.
type intParam struct {
	key string
	def int
	min int
	dst *int
}

func intField(f map[string]*structpb.Value, key string, def int) (int, error) {
	v, ok := f[key]
	if !ok {
		return def, nil
	}
	num, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", key)
	}
	x := num.NumberValue
	if x != math.Trunc(x) || x > math.MaxInt32 || x < math.MinInt32 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer, got %v", key, x)
	}
	return int(x), nil
}

func outcomeFields(o combat.Outcome) map[string]any {
	casualties := make(map[string]any, len(combat.Factions))
	for _, f := range combat.Factions {
		casualties[f.String()] = o.Casualties[f]
	}
	survivors := make([]any, 0, len(o.Survivors))
	for _, u := range o.Survivors {
		survivors = append(survivors, map[string]any{
			"id":         int(u.ID),
			"faction":    u.Faction.String(),
			"x":          u.Position.X,
			"y":          u.Position.Y,
			"hit_points": u.HitPoints,
		})
	}
	return map[string]any{
		"rounds":      o.Rounds,
		"hit_points":  o.HitPointsRemaining,
		"score":       o.Score,
		"winner":      o.Winner.String(),
		"termination": o.Termination.String(),
		"casualties":  casualties,
		"survivors":   survivors,
	}
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}

func rpcError(err error) error {
	switch {
	case errors.Is(err, search.ErrNoSolution):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(unwrapContext(err)).Err()
	default:
		return status.Error(codes.Internal, fmt.Sprintf("simulation failed: %v", err))
	}
}

// unwrapContext returns the context error inside err so gRPC maps it to the right code.
func unwrapContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return context.Canceled
}
