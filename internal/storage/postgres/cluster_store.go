package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/storage"
)

// ClusterStore implements storage.ClusterStore using PostgreSQL.
type ClusterStore struct {
	pool *Pool
}

// NewClusterStore creates a new ClusterStore.
func NewClusterStore(pool *Pool) *ClusterStore {
	return &ClusterStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ClusterStore = (*ClusterStore)(nil)

const clusterColumns = `id, token, members, methods, window_start, window_end, volume_usd::text,
	smart_money_fraction, score, signal, status, detected_at, expires_at`

// Insert adds a cluster. Returns ErrDuplicateKey if the id exists.
func (s *ClusterStore) Insert(ctx context.Context, c *domain.Cluster) error {
	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO clusters (
			id, token, members, methods, window_start, window_end, volume_usd,
			smart_money_fraction, score, signal, status, detected_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.pool.Exec(ctx, query,
		c.ID,
		c.Token,
		c.Members,
		c.Methods.String(),
		c.WindowStart,
		c.WindowEnd,
		c.VolumeUSD.String(),
		c.SmartMoneyFraction,
		c.Score,
		string(c.Signal),
		string(c.Status),
		c.DetectedAt,
		c.ExpiresAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert cluster: %w", err)
	}
	return nil
}

// UpdateStatus changes a cluster's status. Returns ErrNotFound for an unknown id.
func (s *ClusterStore) UpdateStatus(ctx context.Context, id string, status domain.ClusterStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE clusters SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update cluster status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID returns a cluster. Returns ErrNotFound if the id does not exist.
func (s *ClusterStore) GetByID(ctx context.Context, id string) (*domain.Cluster, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+clusterColumns+` FROM clusters WHERE id = $1`, id)
	c, err := scanCluster(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get cluster by id: %w", err)
	}
	return c, nil
}

// GetByToken returns the token's clusters ordered by detection time.
func (s *ClusterStore) GetByToken(ctx context.Context, token string) ([]*domain.Cluster, error) {
	query := `SELECT ` + clusterColumns + ` FROM clusters WHERE token = $1 ORDER BY detected_at ASC, id ASC`
	rows, err := s.pool.Query(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("get clusters by token: %w", err)
	}
	defer rows.Close()

	var clusters []*domain.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cluster row: %w", err)
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster rows: %w", err)
	}
	return clusters, nil
}

func scanCluster(row pgx.Row) (*domain.Cluster, error) {
	var c domain.Cluster
	var methods, volume, signal, status string
	err := row.Scan(
		&c.ID,
		&c.Token,
		&c.Members,
		&methods,
		&c.WindowStart,
		&c.WindowEnd,
		&volume,
		&c.SmartMoneyFraction,
		&c.Score,
		&signal,
		&status,
		&c.DetectedAt,
		&c.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	var n numerics
	c.Methods = domain.ParseMethods(methods)
	c.VolumeUSD = n.dec(volume)
	c.Signal = domain.Signal(signal)
	c.Status = domain.ClusterStatus(status)
	return &c, n.err
}
