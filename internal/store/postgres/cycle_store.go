package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/safearb/internal/domain"
)

const cycleCols = `id, cycle, first_round, path, prices, amounts, ratio, ref_price_usd, event, tx_hash, status, started_at, completed_at`

// CycleStore implements domain.CycleStore using PostgreSQL.
type CycleStore struct {
	pool *pgxpool.Pool
}

// NewCycleStore creates a new CycleStore.
func NewCycleStore(pool *pgxpool.Pool) *CycleStore {
	return &CycleStore{pool: pool}
}

// Save inserts one completed cycle. Amounts are stored as decimal strings so
// 18-decimal token quantities survive unclipped.
func (s *CycleStore) Save(ctx context.Context, rec domain.CycleRecord) error {
	prices := rec.Prices
	if prices == nil {
		prices = []float64{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cycles (`+cycleCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, int64(rec.Cycle), int64(rec.FirstRound), rec.Path,
		prices, amountsToStrings(rec.Amounts), rec.Ratio, rec.RefPriceUSD,
		string(rec.Event), rec.TxHash, string(rec.Status),
		rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert cycle: %w", err)
	}
	return nil
}

// GetByID returns one cycle record.
func (s *CycleStore) GetByID(ctx context.Context, id string) (domain.CycleRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+cycleCols+` FROM cycles WHERE id = $1`, id)
	rec, err := scanCycle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CycleRecord{}, domain.ErrNotFound
		}
		return domain.CycleRecord{}, fmt.Errorf("postgres: get cycle %s: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns the most recent cycles, newest first.
func (s *CycleStore) ListRecent(ctx context.Context, limit int) ([]domain.CycleRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+cycleCols+` FROM cycles ORDER BY cycle DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list cycles: %w", err)
	}
	return collectCycles(rows)
}

// List returns cycles with pagination and optional completion-time filtering.
func (s *CycleStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.CycleRecord, error) {
	query := `SELECT ` + cycleCols + ` FROM cycles WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND completed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND completed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY cycle DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list cycles: %w", err)
	}
	return collectCycles(rows)
}

// ListBefore returns all cycles completed strictly before the cutoff, oldest
// first. The blob archiver reads aged history through it.
func (s *CycleStore) ListBefore(ctx context.Context, before time.Time) ([]domain.CycleRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+cycleCols+` FROM cycles
		WHERE completed_at IS NOT NULL AND completed_at < $1
		ORDER BY completed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list cycles before %s: %w", before.Format(time.RFC3339), err)
	}
	return collectCycles(rows)
}

// Stats aggregates the stored cycles.
func (s *CycleStore) Stats(ctx context.Context) (domain.CycleStats, error) {
	var st domain.CycleStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			MAX(completed_at),
			COALESCE(MAX(ratio) FILTER (WHERE ratio > 0), 0),
			COALESCE(MIN(ratio) FILTER (WHERE ratio > 0), 0)
		FROM cycles`,
		string(domain.CycleTransacted), string(domain.CycleDone), string(domain.CycleFailed),
	).Scan(&st.TotalCycles, &st.TransactCycles, &st.DoneCycles, &st.FailedCycles,
		&st.LastCycleAt, &st.BestRatioSeen, &st.WorstRatioSeen)
	if err != nil {
		return domain.CycleStats{}, fmt.Errorf("postgres: cycle stats: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT tx_hash FROM cycles WHERE status = $1 ORDER BY cycle DESC LIMIT 1`,
		string(domain.CycleTransacted),
	).Scan(&st.LastTransactTx)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.CycleStats{}, fmt.Errorf("postgres: last transact hash: %w", err)
	}
	return st, nil
}

func scanCycle(row pgx.Row) (domain.CycleRecord, error) {
	var rec domain.CycleRecord
	var cycle, firstRound int64
	var amounts []string
	var event, status string
	if err := row.Scan(&rec.ID, &cycle, &firstRound, &rec.Path, &rec.Prices, &amounts,
		&rec.Ratio, &rec.RefPriceUSD, &event, &rec.TxHash, &status,
		&rec.StartedAt, &rec.CompletedAt); err != nil {
		return domain.CycleRecord{}, err
	}
	rec.Cycle = uint64(cycle)
	rec.FirstRound = uint64(firstRound)
	rec.Amounts = stringsToAmounts(amounts)
	rec.Event = domain.Event(event)
	rec.Status = domain.CycleStatus(status)
	return rec, nil
}

func collectCycles(rows pgx.Rows) ([]domain.CycleRecord, error) {
	defer rows.Close()
	var list []domain.CycleRecord
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

func amountsToStrings(amounts []*big.Int) []string {
	out := make([]string, len(amounts))
	for i, a := range amounts {
		if a == nil {
			out[i] = "0"
			continue
		}
		out[i] = a.String()
	}
	return out
}

func stringsToAmounts(vals []string) []*big.Int {
	out := make([]*big.Int, 0, len(vals))
	for _, v := range vals {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			n = big.NewInt(0)
		}
		out = append(out, n)
	}
	return out
}

// Compile-time interface check.
var _ domain.CycleStore = (*CycleStore)(nil)
