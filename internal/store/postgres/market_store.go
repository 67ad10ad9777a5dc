package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

// MarketStore reads the eligible-market listing written by ingestion.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore on pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const upsertMarketSQL = `
	INSERT INTO markets (venue, id, title, category, close_time, metadata, active, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW())
	ON CONFLICT (venue, id) DO UPDATE SET
		title      = EXCLUDED.title,
		category   = EXCLUDED.category,
		close_time = EXCLUDED.close_time,
		metadata   = EXCLUDED.metadata,
		active     = TRUE,
		updated_at = NOW()`

// UpsertBatch writes market listings in one round trip. Matching never
// calls it; seeding and ingestion jobs do.
func (s *MarketStore) UpsertBatch(ctx context.Context, ms []domain.EligibleMarket) error {
	if len(ms) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range ms {
		meta := m.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("postgres: marshal market metadata %s: %w", m.ID, err)
		}
		batch.Queue(upsertMarketSQL, string(m.Venue), m.ID, m.Title, m.Category, m.CloseTime, raw)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range ms {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market %s: %w", ms[i].ID, err)
		}
	}
	return nil
}

// ListEligible returns active markets on venue filtered by opts.
func (s *MarketStore) ListEligible(ctx context.Context, venue domain.Venue, opts domain.EligibleOpts) ([]domain.EligibleMarket, error) {
	args := []any{string(venue)}
	where := []string{"venue = $1", "active"}

	if opts.LookbackHours > 0 {
		args = append(args, opts.LookbackHours)
		where = append(where, fmt.Sprintf("updated_at >= NOW() - make_interval(hours => $%d)", len(args)))
	}
	if len(opts.TitleKeywords) > 0 {
		patterns := make([]string, 0, len(opts.TitleKeywords))
		for _, kw := range opts.TitleKeywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				patterns = append(patterns, "%"+escapeLike(kw)+"%")
			}
		}
		if len(patterns) > 0 {
			args = append(args, patterns)
			where = append(where, fmt.Sprintf("title ILIKE ANY($%d)", len(args)))
		}
	}
	if len(opts.Categories) > 0 {
		args = append(args, opts.Categories)
		where = append(where, fmt.Sprintf("category = ANY($%d)", len(args)))
	}

	q := `SELECT id, venue, title, category, close_time, metadata, updated_at FROM markets WHERE ` +
		strings.Join(where, " AND ")
	if opts.OrderBy == "updated_at" {
		q += " ORDER BY updated_at DESC, id"
	} else {
		q += " ORDER BY close_time ASC NULLS LAST, id"
	}
	q, args = paginate(q, args, opts.Limit, 0)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list eligible %s: %w", venue, err)
	}
	out, err := pgx.CollectRows(rows, scanEligible)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan eligible %s: %w", venue, err)
	}
	return out, nil
}

func scanEligible(row pgx.CollectableRow) (domain.EligibleMarket, error) {
	var (
		m         domain.EligibleMarket
		venue     string
		closeTime *time.Time
		raw       []byte
	)
	if err := row.Scan(&m.ID, &venue, &m.Title, &m.Category, &closeTime, &raw, &m.UpdatedAt); err != nil {
		return m, err
	}
	m.Venue = domain.Venue(venue)
	m.CloseTime = closeTime
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m.Metadata); err != nil {
			return m, err
		}
	}
	return m, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
