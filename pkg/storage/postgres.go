package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/cuemby/wafflemaker/pkg/types"
	"github.com/cuemby/wafflemaker/pkg/wferrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS deployments (
	commit     TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS changes (
	id      BIGSERIAL PRIMARY KEY,
	commit  TEXT NOT NULL REFERENCES deployments(commit),
	path    TEXT NOT NULL,
	action  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS services (
	id         TEXT PRIMARY KEY,
	domain     TEXT NOT NULL DEFAULT '',
	path       TEXT NOT NULL DEFAULT '/',
	spec       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS containers (
	service_id TEXT PRIMARY KEY REFERENCES services(id) ON DELETE CASCADE,
	runtime_id TEXT NOT NULL,
	image      TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS leases (
	service_id TEXT NOT NULL REFERENCES services(id) ON DELETE CASCADE,
	id         TEXT NOT NULL,
	expiration TIMESTAMPTZ NOT NULL,
	ttl_ns     BIGINT NOT NULL,
	PRIMARY KEY (service_id, id)
);
`

// PostgresRegistry implements Registry on top of a Postgres database,
// storing each Service's parsed spec as JSONB.
type PostgresRegistry struct {
	db *sqlx.DB
}

// NewPostgresRegistry opens dsn and ensures the schema exists.
func NewPostgresRegistry(ctx context.Context, dsn string) (*PostgresRegistry, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to registry: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate registry schema: %w", err)
	}
	return &PostgresRegistry{db: db}, nil
}

func (r *PostgresRegistry) Close() error {
	return r.db.Close()
}

func (r *PostgresRegistry) RecordDeployment(ctx context.Context, d *types.Deployment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin deployment tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO deployments (commit, created_at) VALUES ($1, $2)`,
		d.Commit, d.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}

	for _, c := range d.Changes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO changes (commit, path, action) VALUES ($1, $2, $3)`,
			c.Commit, c.Path, c.Action,
		); err != nil {
			return fmt.Errorf("insert change %s: %w", c.Path, err)
		}
	}

	return tx.Commit()
}

func (r *PostgresRegistry) LastCommit(ctx context.Context) (string, error) {
	var commit string
	err := r.db.GetContext(ctx, &commit,
		`SELECT commit FROM deployments ORDER BY created_at DESC LIMIT 1`)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last commit: %w", err)
	}
	return commit, nil
}

func (r *PostgresRegistry) UpsertService(ctx context.Context, svc *types.Service) error {
	spec, err := json.Marshal(svc.Spec)
	if err != nil {
		return wferrors.Wrap(wferrors.KindFatal, "marshal service spec", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO services (id, domain, path, spec, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			domain = EXCLUDED.domain,
			path = EXCLUDED.path,
			spec = EXCLUDED.spec,
			updated_at = EXCLUDED.updated_at
	`, svc.ID, svc.Domain, svc.Path, spec, svc.CreatedAt, svc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert service %s: %w", svc.ID, err)
	}
	return nil
}

type serviceRow struct {
	ID        string `db:"id"`
	Domain    string `db:"domain"`
	Path      string `db:"path"`
	Spec      []byte `db:"spec"`
	CreatedAt sql.NullTime `db:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at"`
}

func (row serviceRow) toService() (*types.Service, error) {
	var spec types.ServiceSpec
	if err := json.Unmarshal(row.Spec, &spec); err != nil {
		return nil, wferrors.Wrap(wferrors.KindFatal, "unmarshal service spec", err)
	}
	return &types.Service{
		ID:        row.ID,
		Domain:    row.Domain,
		Path:      row.Path,
		Spec:      spec,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}, nil
}

func (r *PostgresRegistry) GetService(ctx context.Context, id string) (*types.Service, error) {
	var row serviceRow
	err := r.db.GetContext(ctx, &row, `SELECT id, domain, path, spec, created_at, updated_at FROM services WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, wferrors.New(wferrors.KindNotFound, fmt.Sprintf("service %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get service %s: %w", id, err)
	}
	return row.toService()
}

func (r *PostgresRegistry) ListServices(ctx context.Context) ([]*types.Service, error) {
	var rows []serviceRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, domain, path, spec, created_at, updated_at FROM services ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	services := make([]*types.Service, 0, len(rows))
	for _, row := range rows {
		svc, err := row.toService()
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}

func (r *PostgresRegistry) DeleteService(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service %s: %w", id, err)
	}
	return nil
}

type containerRow struct {
	ServiceID string    `db:"service_id"`
	RuntimeID string    `db:"runtime_id"`
	Image     string    `db:"image"`
	Status    string    `db:"status"`
	CreatedAt sql.NullTime `db:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at"`
}

func (row containerRow) toContainer() *types.Container {
	return &types.Container{
		ServiceID: row.ServiceID,
		RuntimeID: row.RuntimeID,
		Image:     row.Image,
		Status:    types.ContainerStatus(row.Status),
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
}

func (r *PostgresRegistry) GetContainer(ctx context.Context, serviceID string) (*types.Container, error) {
	var row containerRow
	err := r.db.GetContext(ctx, &row, `SELECT service_id, runtime_id, image, status, created_at, updated_at FROM containers WHERE service_id = $1`, serviceID)
	if err == sql.ErrNoRows {
		return nil, wferrors.New(wferrors.KindNotFound, fmt.Sprintf("container for service %s not found", serviceID))
	}
	if err != nil {
		return nil, fmt.Errorf("get container for service %s: %w", serviceID, err)
	}
	return row.toContainer(), nil
}

func (r *PostgresRegistry) UpsertContainer(ctx context.Context, c *types.Container) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO containers (service_id, runtime_id, image, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (service_id) DO UPDATE SET
			runtime_id = EXCLUDED.runtime_id,
			image = EXCLUDED.image,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, c.ServiceID, c.RuntimeID, c.Image, c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert container for service %s: %w", c.ServiceID, err)
	}
	return nil
}

func (r *PostgresRegistry) DeleteContainer(ctx context.Context, serviceID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM containers WHERE service_id = $1`, serviceID)
	if err != nil {
		return fmt.Errorf("delete container for service %s: %w", serviceID, err)
	}
	return nil
}

type leaseRow struct {
	ServiceID  string    `db:"service_id"`
	ID         string    `db:"id"`
	Expiration sql.NullTime `db:"expiration"`
	TTLNs      int64     `db:"ttl_ns"`
}

func (row leaseRow) toLease() *types.Lease {
	return &types.Lease{
		ServiceID:  row.ServiceID,
		ID:         row.ID,
		Expiration: row.Expiration.Time,
		TTL:        time.Duration(row.TTLNs),
	}
}

func (r *PostgresRegistry) ListLeases(ctx context.Context, serviceID string) ([]*types.Lease, error) {
	var rows []leaseRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT service_id, id, expiration, ttl_ns FROM leases WHERE service_id = $1 ORDER BY id`, serviceID); err != nil {
		return nil, fmt.Errorf("list leases for service %s: %w", serviceID, err)
	}
	leases := make([]*types.Lease, 0, len(rows))
	for _, row := range rows {
		leases = append(leases, row.toLease())
	}
	return leases, nil
}

func (r *PostgresRegistry) ListAllLeases(ctx context.Context) ([]*types.Lease, error) {
	var rows []leaseRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT service_id, id, expiration, ttl_ns FROM leases ORDER BY service_id, id`); err != nil {
		return nil, fmt.Errorf("list all leases: %w", err)
	}
	leases := make([]*types.Lease, 0, len(rows))
	for _, row := range rows {
		leases = append(leases, row.toLease())
	}
	return leases, nil
}

func (r *PostgresRegistry) DeleteLease(ctx context.Context, serviceID, leaseID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM leases WHERE service_id = $1 AND id = $2`, serviceID, leaseID)
	if err != nil {
		return fmt.Errorf("delete lease %s for service %s: %w", leaseID, serviceID, err)
	}
	return nil
}

// Commit performs the end-of-Reconcile atomic write (§4.7 step 9) in a
// single transaction: replace the Container row, insert new Lease rows,
// delete retired Lease rows.
func (r *PostgresRegistry) Commit(ctx context.Context, svc *types.Service, container *types.Container, newLeases []*types.Lease, retiredLeaseIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit tx: %w", err)
	}
	defer tx.Rollback()

	spec, err := json.Marshal(svc.Spec)
	if err != nil {
		return wferrors.Wrap(wferrors.KindFatal, "marshal service spec", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO services (id, domain, path, spec, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			domain = EXCLUDED.domain,
			path = EXCLUDED.path,
			spec = EXCLUDED.spec,
			updated_at = EXCLUDED.updated_at
	`, svc.ID, svc.Domain, svc.Path, spec, svc.CreatedAt, svc.UpdatedAt); err != nil {
		return fmt.Errorf("commit service %s: %w", svc.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO containers (service_id, runtime_id, image, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (service_id) DO UPDATE SET
			runtime_id = EXCLUDED.runtime_id,
			image = EXCLUDED.image,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, container.ServiceID, container.RuntimeID, container.Image, container.Status, container.CreatedAt, container.UpdatedAt); err != nil {
		return fmt.Errorf("commit container for service %s: %w", svc.ID, err)
	}

	for _, l := range newLeases {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO leases (service_id, id, expiration, ttl_ns)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (service_id, id) DO UPDATE SET expiration = EXCLUDED.expiration, ttl_ns = EXCLUDED.ttl_ns
		`, l.ServiceID, l.ID, l.Expiration, int64(l.TTL)); err != nil {
			return fmt.Errorf("commit lease %s: %w", l.ID, err)
		}
	}

	for _, id := range retiredLeaseIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM leases WHERE service_id = $1 AND id = $2`, svc.ID, id); err != nil {
			return fmt.Errorf("retire lease %s: %w", id, err)
		}
	}

	return tx.Commit()
}
