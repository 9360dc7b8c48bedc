package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/offer-goat/offer-goat/internal/experiment"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    shop_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'draft',
    primary_metric TEXT NOT NULL,
    control_pct INTEGER NOT NULL,
    variant_a_pct INTEGER NOT NULL,
    variant_b_pct INTEGER NOT NULL DEFAULT 0,
    mde REAL NOT NULL,
    significance_level REAL NOT NULL,
    statistical_power REAL NOT NULL,
    baseline_rate REAL NOT NULL,
    auto_select_winner INTEGER NOT NULL DEFAULT 0,
    sample_size_per_variant INTEGER NOT NULL,
    estimated_days INTEGER NOT NULL DEFAULT 0,

    control_impressions INTEGER NOT NULL DEFAULT 0,
    control_clicks INTEGER NOT NULL DEFAULT 0,
    control_conversions INTEGER NOT NULL DEFAULT 0,
    control_revenue REAL NOT NULL DEFAULT 0,
    control_conversion_rate REAL NOT NULL DEFAULT 0,
    control_ci_lower REAL NOT NULL DEFAULT 0,
    control_ci_upper REAL NOT NULL DEFAULT 0,
    control_click_rate REAL NOT NULL DEFAULT 0,
    control_revenue_per_impression REAL NOT NULL DEFAULT 0,
    control_p_value REAL NOT NULL DEFAULT 0,

    variant_a_impressions INTEGER NOT NULL DEFAULT 0,
    variant_a_clicks INTEGER NOT NULL DEFAULT 0,
    variant_a_conversions INTEGER NOT NULL DEFAULT 0,
    variant_a_revenue REAL NOT NULL DEFAULT 0,
    variant_a_conversion_rate REAL NOT NULL DEFAULT 0,
    variant_a_ci_lower REAL NOT NULL DEFAULT 0,
    variant_a_ci_upper REAL NOT NULL DEFAULT 0,
    variant_a_click_rate REAL NOT NULL DEFAULT 0,
    variant_a_revenue_per_impression REAL NOT NULL DEFAULT 0,
    variant_a_p_value REAL NOT NULL DEFAULT 0,

    variant_b_impressions INTEGER NOT NULL DEFAULT 0,
    variant_b_clicks INTEGER NOT NULL DEFAULT 0,
    variant_b_conversions INTEGER NOT NULL DEFAULT 0,
    variant_b_revenue REAL NOT NULL DEFAULT 0,
    variant_b_conversion_rate REAL NOT NULL DEFAULT 0,
    variant_b_ci_lower REAL NOT NULL DEFAULT 0,
    variant_b_ci_upper REAL NOT NULL DEFAULT 0,
    variant_b_click_rate REAL NOT NULL DEFAULT 0,
    variant_b_revenue_per_impression REAL NOT NULL DEFAULT 0,
    variant_b_p_value REAL NOT NULL DEFAULT 0,

    p_value_vs_control REAL NOT NULL DEFAULT 1,
    is_significant INTEGER NOT NULL DEFAULT 0,
    winning_variant TEXT,
    winning_lift REAL,
    selected_variant TEXT,
    counter_generation INTEGER NOT NULL DEFAULT 0,

    created_at INTEGER NOT NULL,
    started_at INTEGER,
    ended_at INTEGER,
    winner_selected_at INTEGER,
    stats_updated_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_experiments_shop ON experiments(shop_id);
CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status, auto_select_winner);

CREATE TABLE IF NOT EXISTS conversion_events (
    id TEXT PRIMARY KEY,
    shop_id TEXT NOT NULL,
    offer_id TEXT NOT NULL,
    experiment_id TEXT,
    session_id TEXT NOT NULL,
    assigned_variant TEXT,
    impression_at INTEGER NOT NULL,
    clicked_at INTEGER,
    converted_at INTEGER,
    conversion_order_id TEXT,
    conversion_revenue REAL,
    conversion_quantity INTEGER,
    counter_generation INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_experiment ON conversion_events(experiment_id, impression_at);
CREATE INDEX IF NOT EXISTS idx_events_offer ON conversion_events(shop_id, offer_id);
CREATE INDEX IF NOT EXISTS idx_events_session ON conversion_events(session_id);
`

var armFields = []string{
	"impressions", "clicks", "conversions", "revenue",
	"conversion_rate", "ci_lower", "ci_upper", "click_rate", "revenue_per_impression", "p_value",
}

var experimentColumns = buildExperimentColumns()

func buildExperimentColumns() string {
	cols := []string{
		"id", "shop_id", "name", "description", "status", "primary_metric",
		"control_pct", "variant_a_pct", "variant_b_pct",
		"mde", "significance_level", "statistical_power", "baseline_rate", "auto_select_winner",
		"sample_size_per_variant", "estimated_days",
	}
	for _, v := range experiment.AllVariants {
		for _, f := range armFields {
			cols = append(cols, v.String()+"_"+f)
		}
	}
	cols = append(cols,
		"p_value_vs_control", "is_significant", "winning_variant", "winning_lift", "selected_variant",
		"created_at", "started_at", "ended_at", "winner_selected_at", "stats_updated_at",
	)
	return strings.Join(cols, ", ")
}

const eventColumns = `id, shop_id, offer_id, experiment_id, session_id, assigned_variant,
	impression_at, clicked_at, converted_at, conversion_order_id, conversion_revenue, conversion_quantity`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers; counter updates are
	// read-modify-write statements and must never interleave.
	db.SetMaxOpenConns(1)

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *experiment.Experiment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, shop_id, name, description, status, primary_metric,
			control_pct, variant_a_pct, variant_b_pct,
			mde, significance_level, statistical_power, baseline_rate, auto_select_winner,
			sample_size_per_variant, estimated_days, p_value_vs_control, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.ShopID, exp.Name, exp.Description, string(exp.Status), exp.PrimaryMetric,
		exp.Split.Control, exp.Split.VariantA, exp.Split.VariantB,
		exp.MinimumDetectableEffect, exp.SignificanceLevel, exp.StatisticalPower, exp.BaselineRate, exp.AutoSelectWinner,
		exp.SampleSizePerVariant, exp.EstimatedDaysToComplete, exp.PValueVsControl, toMillis(exp.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id)

	exp, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context, filter ListFilter) ([]*experiment.Experiment, error) {
	var where []string
	var args []any
	if filter.ShopID != "" {
		where = append(where, "shop_id = ?")
		args = append(args, filter.ShopID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.AutoSelectOnly {
		where = append(where, "auto_select_winner = 1")
	}

	query := `SELECT ` + experimentColumns + ` FROM experiments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var exps []*experiment.Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		exps = append(exps, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}

	return exps, nil
}

func (s *SQLiteStore) CountExperiments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count experiments: %w", err)
	}
	return n, nil
}

// ApplyTransition moves the experiment from tr.From to tr.To in one guarded
// statement. started_at is only ever set on the first start.
func (s *SQLiteStore) ApplyTransition(ctx context.Context, tr experiment.Transition) error {
	at := toMillis(tr.At)
	sets := []string{"status = ?"}
	args := []any{string(tr.To)}

	switch tr.To {
	case experiment.StatusRunning:
		sets = append(sets, "started_at = COALESCE(started_at, ?)")
		args = append(args, at)
	case experiment.StatusCompleted:
		sets = append(sets, "ended_at = ?")
		args = append(args, at)
	case experiment.StatusWinnerSelected:
		sets = append(sets, "ended_at = ?", "winner_selected_at = ?", "selected_variant = ?")
		args = append(args, at, at, nullVariant(tr.Winner))
	}
	args = append(args, tr.ExperimentID, string(tr.From))

	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update experiment status: %w", err)
	}
	return s.checkAffected(ctx, s.db, result, tr.ExperimentID)
}

// AddCounts atomically adds delta to the counters of arm v. It only succeeds
// while the experiment is running or paused.
func (s *SQLiteStore) AddCounts(ctx context.Context, id string, v experiment.Variant, delta experiment.Counters) error {
	return s.addCounts(ctx, s.db, id, v, delta)
}

func (s *SQLiteStore) addCounts(ctx context.Context, q querier, id string, v experiment.Variant, delta experiment.Counters) error {
	prefix, err := armPrefix(v)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, fmt.Sprintf(
		`UPDATE experiments SET
			%[1]s_impressions = %[1]s_impressions + ?,
			%[1]s_clicks = %[1]s_clicks + ?,
			%[1]s_conversions = %[1]s_conversions + ?,
			%[1]s_revenue = %[1]s_revenue + ?
		 WHERE id = ? AND status IN ('running', 'paused')`, prefix),
		delta.Impressions, delta.Clicks, delta.Conversions, delta.Revenue, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update counters: %w", err)
	}
	return s.checkAffected(ctx, q, result, id)
}

// SaveResults writes derived statistics only; counters are left untouched so
// a recompute never races event ingestion.
func (s *SQLiteStore) SaveResults(ctx context.Context, id string, r experiment.Results) error {
	var b experiment.ArmStats
	if r.VariantB != nil {
		b = *r.VariantB
	}

	var sets []string
	var args []any
	for _, arm := range []struct {
		prefix string
		stats  experiment.ArmStats
	}{{"control", r.Control}, {"variant_a", r.VariantA}, {"variant_b", b}} {
		for _, f := range armFields[4:] {
			sets = append(sets, arm.prefix+"_"+f+" = ?")
		}
		args = append(args,
			arm.stats.ConversionRate, arm.stats.CILower, arm.stats.CIUpper,
			arm.stats.ClickRate, arm.stats.RevenuePerImpression, arm.stats.PValueVsControl,
		)
	}
	sets = append(sets,
		"p_value_vs_control = ?", "is_significant = ?", "winning_variant = ?", "winning_lift = ?", "stats_updated_at = ?")
	args = append(args,
		r.PValueVsControl, r.IsStatisticallySignificant, nullVariant(r.WinningVariant), nullFloat(r.WinningLift), toMillis(r.ComputedAt),
		id,
	)

	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	return s.checkAffected(ctx, s.db, result, id)
}

// ResetCounters zeroes counters and derived statistics of a draft or paused
// experiment. It also bumps the counter generation, so clicks and
// conversions on events recorded before the reset are no longer counted.
func (s *SQLiteStore) ResetCounters(ctx context.Context, id string) error {
	var sets []string
	for _, v := range experiment.AllVariants {
		for _, f := range armFields {
			sets = append(sets, v.String()+"_"+f+" = 0")
		}
	}
	sets = append(sets,
		"p_value_vs_control = 1", "is_significant = 0", "winning_variant = NULL", "winning_lift = NULL", "stats_updated_at = NULL",
		"counter_generation = counter_generation + 1")

	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status IN ('draft', 'paused')`, id)
	if err != nil {
		return fmt.Errorf("failed to reset counters: %w", err)
	}
	return s.checkAffected(ctx, s.db, result, id)
}

// RecordImpression stores ev and, when it belongs to an experiment, counts
// the impression in the same transaction. An unknown experiment id leaves
// counters alone and still stores the event.
func (s *SQLiteStore) RecordImpression(ctx context.Context, ev *experiment.ConversionEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.countEvent(ctx, tx, ev, experiment.Counters{Impressions: 1}); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO conversion_events (id, shop_id, offer_id, experiment_id, session_id, assigned_variant, impression_at, counter_generation)
			 VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT counter_generation FROM experiments WHERE id = ?), 0))`,
			ev.ID, ev.ShopID, ev.OfferID, nullString(ev.ExperimentID), ev.SessionID, nullVariant(ev.AssignedVariant), toMillis(ev.ImpressionAt),
			nullString(ev.ExperimentID),
		)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		return nil
	})
}

// RecordClick marks the event clicked. The bool result is false when the
// event was already clicked, in which case nothing is counted.
func (s *SQLiteStore) RecordClick(ctx context.Context, eventID string, at time.Time) (*experiment.ConversionEvent, bool, error) {
	var ev *experiment.ConversionEvent
	var changed bool

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		ev, err = getEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if ev.ClickedAt != nil {
			return nil
		}

		if err := s.countFollowUp(ctx, tx, ev, experiment.Counters{Clicks: 1}); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversion_events SET clicked_at = ? WHERE id = ? AND clicked_at IS NULL`,
			toMillis(at), eventID,
		); err != nil {
			return fmt.Errorf("failed to record click: %w", err)
		}

		ev.ClickedAt = &at
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return ev, changed, nil
}

// RecordConversion sets the conversion facts of the event once. The bool
// result is false when the event had already converted.
func (s *SQLiteStore) RecordConversion(ctx context.Context, eventID string, conv experiment.Conversion, at time.Time) (*experiment.ConversionEvent, bool, error) {
	var ev *experiment.ConversionEvent
	var changed bool

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		ev, err = getEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if ev.ConvertedAt != nil {
			return nil
		}

		if err := s.countFollowUp(ctx, tx, ev, experiment.Counters{Conversions: 1, Revenue: conv.Revenue}); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversion_events
			 SET converted_at = ?, conversion_order_id = ?, conversion_revenue = ?, conversion_quantity = ?
			 WHERE id = ? AND converted_at IS NULL`,
			toMillis(at), conv.OrderID, conv.Revenue, conv.Quantity, eventID,
		); err != nil {
			return fmt.Errorf("failed to record conversion: %w", err)
		}

		ev.ConvertedAt = &at
		ev.ConversionOrderID = conv.OrderID
		ev.ConversionRevenue = conv.Revenue
		ev.ConversionQuantity = conv.Quantity
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return ev, changed, nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*experiment.ConversionEvent, error) {
	return getEvent(ctx, s.db, id)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, experimentID string) ([]*experiment.ConversionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM conversion_events WHERE experiment_id = ? ORDER BY impression_at DESC, id`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []*experiment.ConversionEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	return events, nil
}

// countEvent applies delta to the event's experiment, if any.
func (s *SQLiteStore) countEvent(ctx context.Context, q querier, ev *experiment.ConversionEvent, delta experiment.Counters) error {
	if !ev.Counted() {
		return nil
	}
	err := s.addCounts(ctx, q, ev.ExperimentID, *ev.AssignedVariant, delta)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// countFollowUp counts a click or conversion only when the event's impression
// belongs to the experiment's current counter generation. Events from before
// a reset keep their facts but no longer move counters.
func (s *SQLiteStore) countFollowUp(ctx context.Context, q querier, ev *experiment.ConversionEvent, delta experiment.Counters) error {
	if !ev.Counted() {
		return nil
	}

	var current int
	err := q.QueryRowContext(ctx,
		`SELECT e.counter_generation = x.counter_generation
		 FROM conversion_events e JOIN experiments x ON x.id = e.experiment_id
		 WHERE e.id = ?`, ev.ID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check counter generation: %w", err)
	}
	if current == 0 {
		return nil
	}
	return s.countEvent(ctx, q, ev, delta)
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// checkAffected turns a zero-row guarded update into ErrNotFound or ErrStale.
func (s *SQLiteStore) checkAffected(ctx context.Context, q querier, result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var one int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM experiments WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check experiment: %w", err)
	}
	return fmt.Errorf("experiment %s: %w", id, ErrStale)
}

func getEvent(ctx context.Context, q querier, id string) (*experiment.ConversionEvent, error) {
	row := q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM conversion_events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return ev, nil
}

func armPrefix(v experiment.Variant) (string, error) {
	switch v {
	case experiment.Control, experiment.VariantA, experiment.VariantB:
		return v.String(), nil
	}
	return "", fmt.Errorf("invalid variant %d", uint8(v))
}
