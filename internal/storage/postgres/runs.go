package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
)

// ErrRunNotFound is returned when a run lookup yields no results.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one finished combat.
type RunRecord struct {
	ID       uuid.UUID
	Scenario string
	// Faction is the faction whose attack power was overridden, or "" for a plain run.
	Faction     string
	AttackPower int
	Rounds      int
	HitPoints   int
	Score       int
	Winner      string
	Termination string
	CreatedAt   time.Time
}

// NewRunRecord builds a record for o. boosted is NoFaction for a plain run.
func NewRunRecord(scenario string, boosted combat.Faction, attackPower int, o combat.Outcome) RunRecord {
	return RunRecord{
		Scenario:    scenario,
		Faction:     boosted.String(),
		AttackPower: attackPower,
		Rounds:      o.Rounds,
		HitPoints:   o.HitPointsRemaining,
		Score:       o.Score,
		Winner:      o.Winner.String(),
		Termination: o.Termination.String(),
	}
}

// SearchRecord is one finished attack power search.
type SearchRecord struct {
	ID          uuid.UUID
	Scenario    string
	Faction     string
	Floor       int
	AttackPower int
	Score       int
	Attempts    int
	CreatedAt   time.Time
}

// RunRepository stores combat and search results.
type RunRepository struct {
	db *pgxpool.Pool
}

// NewRunRepository creates a RunRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRunRepository(db *pgxpool.Pool) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id::text, scenario, faction, attack_power, rounds, hit_points, score, winner, termination, created_at`

// SaveRun inserts rec, assigning a new ID when rec.ID is zero.
//
// Postcondition: Returns rec with ID and CreatedAt set.
func (r *RunRepository) SaveRun(ctx context.Context, rec RunRecord) (RunRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO combat_runs (id, scenario, faction, attack_power, rounds, hit_points, score, winner, termination)
		 VALUES ($1::text::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		rec.ID.String(), rec.Scenario, rec.Faction, rec.AttackPower,
		rec.Rounds, rec.HitPoints, rec.Score, rec.Winner, rec.Termination,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return RunRecord{}, fmt.Errorf("inserting run: %w", err)
	}
	return rec, nil
}

// GetRun loads a run by ID.
//
// Postcondition: Returns the run or ErrRunNotFound.
func (r *RunRepository) GetRun(ctx context.Context, id uuid.UUID) (RunRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+runColumns+` FROM combat_runs WHERE id = $1::text::uuid`, id.String())
	rec, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return RunRecord{}, ErrRunNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("querying run %s: %w", id, err)
	}
	return rec, nil
}

// ListRunsByScenario returns up to limit runs for scenario, newest first.
//
// Precondition: limit > 0.
func (r *RunRepository) ListRunsByScenario(ctx context.Context, scenario string, limit int) ([]RunRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+runColumns+` FROM combat_runs
		 WHERE scenario = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`, scenario, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs for %q: %w", scenario, err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return out, nil
}

// SaveSearch inserts rec, assigning a new ID when rec.ID is zero.
//
// Postcondition: Returns rec with ID and CreatedAt set.
func (r *RunRepository) SaveSearch(ctx context.Context, rec SearchRecord) (SearchRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO searches (id, scenario, faction, floor, attack_power, score, attempts)
		 VALUES ($1::text::uuid, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		rec.ID.String(), rec.Scenario, rec.Faction, rec.Floor, rec.AttackPower, rec.Score, rec.Attempts,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return SearchRecord{}, fmt.Errorf("inserting search: %w", err)
	}
	return rec, nil
}

func scanRun(row pgx.Row) (RunRecord, error) {
	var (
		rec RunRecord
		id  string
	)
	err := row.Scan(&id, &rec.Scenario, &rec.Faction, &rec.AttackPower,
		&rec.Rounds, &rec.HitPoints, &rec.Score, &rec.Winner, &rec.Termination, &rec.CreatedAt)
	if err != nil {
		return RunRecord{}, err
	}
	rec.ID, err = uuid.Parse(id)
	if err != nil {
		return RunRecord{}, fmt.Errorf("parsing run id %q: %w", id, err)
	}
	return rec, nil
}
