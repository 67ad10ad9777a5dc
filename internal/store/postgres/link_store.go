package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

// LinkStore implements domain.LinkStore on the market_links table.
type LinkStore struct {
	pool *pgxpool.Pool
}

// NewLinkStore creates a LinkStore on pool.
func NewLinkStore(pool *pgxpool.Pool) *LinkStore {
	return &LinkStore{pool: pool}
}

const linkColumns = `id, left_venue, left_market_id, right_venue, right_market_id,
	score, reason, status, algo_version, topic, meta, created_at, updated_at`

// The WHERE clause on DO UPDATE keeps confirmed links (and rejected ones
// unless $11) untouched; in that case no row is returned.
const upsertLinkSQL = `
	INSERT INTO market_links (
		id, left_venue, left_market_id, right_venue, right_market_id,
		score, reason, status, algo_version, topic, meta
	) VALUES ($1, $2, $3, $4, $5, $6, $7, 'suggested', $8, $9, $10)
	ON CONFLICT (left_venue, left_market_id, right_venue, right_market_id) DO UPDATE SET
		score        = EXCLUDED.score,
		reason       = EXCLUDED.reason,
		algo_version = EXCLUDED.algo_version,
		topic        = EXCLUDED.topic,
		meta         = EXCLUDED.meta,
		status       = 'suggested',
		updated_at   = NOW()
	WHERE market_links.status = 'suggested'
	   OR (market_links.status = 'rejected' AND $11::boolean)
	RETURNING ` + linkColumns + `, (xmax = 0) AS created`

func validateInput(in domain.SuggestionInput) error {
	if in.LeftVenue == "" || in.LeftMarketID == "" || in.RightVenue == "" || in.RightMarketID == "" {
		return fmt.Errorf("postgres: link key incomplete: %w", domain.ErrInvalidInput)
	}
	if in.Score < 0 || in.Score > 1 {
		return fmt.Errorf("postgres: score %.4f out of range: %w", in.Score, domain.ErrInvalidInput)
	}
	return nil
}

// Upsert inserts or re-scores one suggestion.
func (s *LinkStore) Upsert(ctx context.Context, in domain.SuggestionInput, opts domain.UpsertOpts) (domain.UpsertResult, error) {
	if err := validateInput(in); err != nil {
		return domain.UpsertResult{}, err
	}
	return upsertLink(ctx, s.pool, in, opts)
}

func upsertLink(ctx context.Context, q querier, in domain.SuggestionInput, opts domain.UpsertOpts) (domain.UpsertResult, error) {
	meta, err := marshalMeta(in.Meta)
	if err != nil {
		return domain.UpsertResult{}, err
	}

	var created bool
	l, err := scanLink(q.QueryRow(ctx, upsertLinkSQL,
		uuid.NewString(),
		string(in.LeftVenue), in.LeftMarketID,
		string(in.RightVenue), in.RightMarketID,
		in.Score, in.Reason, in.AlgoVersion, in.Topic, meta,
		opts.ReopenRejected,
	), &created)
	if err == nil {
		return domain.UpsertResult{Link: l, Created: created}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.UpsertResult{}, fmt.Errorf("postgres: upsert link %s/%s: %w", in.LeftMarketID, in.RightMarketID, err)
	}

	// Guarded row: report the stored link as-is.
	l, err = scanLink(q.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM market_links
		 WHERE left_venue = $1 AND left_market_id = $2 AND right_venue = $3 AND right_market_id = $4`,
		string(in.LeftVenue), in.LeftMarketID, string(in.RightVenue), in.RightMarketID,
	))
	if err != nil {
		return domain.UpsertResult{}, fmt.Errorf("postgres: load guarded link %s/%s: %w", in.LeftMarketID, in.RightMarketID, err)
	}
	return domain.UpsertResult{Link: l, Unchanged: true}, nil
}

// UpsertBatch writes one left market's suggestions in a single transaction
// with a savepoint per item, so one failing row does not undo the others.
func (s *LinkStore) UpsertBatch(ctx context.Context, ins []domain.SuggestionInput, opts domain.UpsertOpts) ([]domain.UpsertResult, []error, error) {
	results := make([]domain.UpsertResult, len(ins))
	errs := make([]error, len(ins))
	if len(ins) == 0 {
		return results, errs, nil
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for i, in := range ins {
			if err := validateInput(in); err != nil {
				errs[i] = err
				continue
			}
			sp, err := tx.Begin(ctx)
			if err != nil {
				return fmt.Errorf("postgres: savepoint: %w", err)
			}
			res, err := upsertLink(ctx, sp, in, opts)
			if err != nil {
				errs[i] = err
				if rbErr := sp.Rollback(ctx); rbErr != nil {
					return fmt.Errorf("postgres: rollback savepoint: %w", rbErr)
				}
				continue
			}
			if err := sp.Commit(ctx); err != nil {
				return fmt.Errorf("postgres: release savepoint: %w", err)
			}
			results[i] = res
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: upsert link batch: %w", err)
	}
	return results, errs, nil
}

// GetByID returns a link by id.
func (s *LinkStore) GetByID(ctx context.Context, id string) (domain.Link, error) {
	l, err := scanLink(s.pool.QueryRow(ctx, `SELECT `+linkColumns+` FROM market_links WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Link{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Link{}, fmt.Errorf("postgres: get link %s: %w", id, err)
	}
	return l, nil
}

// SetStatus moves a link to confirmed or rejected. updated_at only moves
// when the status actually changes.
func (s *LinkStore) SetStatus(ctx context.Context, id string, status domain.LinkStatus) (domain.Link, error) {
	if status != domain.LinkConfirmed && status != domain.LinkRejected {
		return domain.Link{}, fmt.Errorf("postgres: set status %q: %w", status, domain.ErrInvalidTransition)
	}
	l, err := scanLink(s.pool.QueryRow(ctx, `
		UPDATE market_links SET
			updated_at = CASE WHEN status = $2 THEN updated_at ELSE NOW() END,
			status     = $2
		WHERE id = $1
		RETURNING `+linkColumns, id, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Link{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Link{}, fmt.Errorf("postgres: set link %s status %s: %w", id, status, err)
	}
	return l, nil
}

// HasConfirmedLink reports whether the market has a confirmed link on
// either side.
func (s *LinkStore) HasConfirmedLink(ctx context.Context, venue domain.Venue, marketID string) (bool, error) {
	ids, err := s.ConfirmedMarketIDs(ctx, venue, []string{marketID})
	if err != nil {
		return false, err
	}
	return ids[marketID], nil
}

// ConfirmedMarketIDs returns the subset of marketIDs with a confirmed link.
func (s *LinkStore) ConfirmedMarketIDs(ctx context.Context, venue domain.Venue, marketIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(marketIDs) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT left_market_id FROM market_links
		WHERE status = 'confirmed' AND left_venue = $1 AND left_market_id = ANY($2)
		UNION
		SELECT right_market_id FROM market_links
		WHERE status = 'confirmed' AND right_venue = $1 AND right_market_id = ANY($2)`,
		string(venue), marketIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: confirmed market ids %s: %w", venue, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan confirmed market ids %s: %w", venue, err)
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// List returns links matching f, most recently updated first.
func (s *LinkStore) List(ctx context.Context, f domain.LinkFilter) ([]domain.Link, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Topic != "" {
		add("topic = $%d", f.Topic)
	}
	if f.LeftVenue != "" {
		add("left_venue = $%d", string(f.LeftVenue))
	}
	if f.RightVenue != "" {
		add("right_venue = $%d", string(f.RightVenue))
	}
	if f.MinScore != nil {
		add("score >= $%d", *f.MinScore)
	}
	if f.MaxScore != nil {
		add("score < $%d", *f.MaxScore)
	}
	if f.UpdatedBefore != nil {
		add("updated_at < $%d", *f.UpdatedBefore)
	}

	q := `SELECT ` + linkColumns + ` FROM market_links`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY updated_at DESC, id"
	q, args = paginate(q, args, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list links: %w", err)
	}
	links, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Link, error) {
		return scanLink(row)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan links: %w", err)
	}
	return links, nil
}

// Stats counts links by topic and status.
func (s *LinkStore) Stats(ctx context.Context) (domain.LinkStats, error) {
	st := domain.LinkStats{
		ByStatus: make(map[domain.LinkStatus]int64),
		ByTopic:  make(map[string]map[domain.LinkStatus]int64),
	}
	rows, err := s.pool.Query(ctx, `SELECT topic, status, COUNT(*) FROM market_links GROUP BY topic, status`)
	if err != nil {
		return st, fmt.Errorf("postgres: link stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			topic, status string
			n             int64
		)
		if err := rows.Scan(&topic, &status, &n); err != nil {
			return st, fmt.Errorf("postgres: scan link stats: %w", err)
		}
		ls := domain.LinkStatus(status)
		st.Total += n
		st.ByStatus[ls] += n
		if st.ByTopic[topic] == nil {
			st.ByTopic[topic] = make(map[domain.LinkStatus]int64)
		}
		st.ByTopic[topic][ls] += n
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("postgres: link stats rows: %w", err)
	}
	return st, nil
}

func scanLink(row pgx.Row, extra ...any) (domain.Link, error) {
	var (
		l                     domain.Link
		leftVenue, rightVenue string
		status                string
		meta                  []byte
	)
	dest := append([]any{
		&l.ID, &leftVenue, &l.LeftMarketID, &rightVenue, &l.RightMarketID,
		&l.Score, &l.Reason, &status, &l.AlgoVersion, &l.Topic, &meta,
		&l.CreatedAt, &l.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Link{}, err
	}
	l.LeftVenue = domain.Venue(leftVenue)
	l.RightVenue = domain.Venue(rightVenue)
	l.Status = domain.LinkStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &l.Meta); err != nil {
			return domain.Link{}, fmt.Errorf("postgres: decode link meta: %w", err)
		}
	}
	return l, nil
}

func marshalMeta(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal link meta: %w", err)
	}
	return raw, nil
}
