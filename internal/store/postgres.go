package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"duffel/pkg/fault"
	"duffel/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS lists (
	id       UUID PRIMARY KEY,
	name     TEXT NOT NULL,
	last_seq BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS containers (
	id      UUID PRIMARY KEY,
	list_id UUID NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	kind    TEXT NOT NULL CHECK (kind IN ('category', 'bag', 'traveler')),
	name    TEXT NOT NULL,
	seq     BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS items (
	id          UUID PRIMARY KEY,
	list_id     UUID NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	quantity    INT NOT NULL,
	packed      BOOLEAN NOT NULL DEFAULT FALSE,
	category_id UUID REFERENCES containers(id) ON DELETE SET NULL,
	bag_id      UUID REFERENCES containers(id) ON DELETE SET NULL,
	traveler_id UUID REFERENCES containers(id) ON DELETE SET NULL,
	seq         BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_containers_list ON containers(list_id);
CREATE INDEX IF NOT EXISTS idx_items_list ON items(list_id);

-- The unassigned views are the hot read path; each gets a partial index.
CREATE INDEX IF NOT EXISTS idx_items_unassigned_category ON items(list_id) WHERE category_id IS NULL;
CREATE INDEX IF NOT EXISTS idx_items_unassigned_bag ON items(list_id) WHERE bag_id IS NULL;
CREATE INDEX IF NOT EXISTS idx_items_unassigned_traveler ON items(list_id) WHERE traveler_id IS NULL;
`

const itemColumns = `id::text, list_id::text, name, quantity, packed,
	category_id::text, bag_id::text, traveler_id::text, seq`

// Postgres is the production Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ Store = (*Postgres)(nil)

// EnsureSchema creates the tables and indexes if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) CreateList(ctx context.Context, list model.List) error {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO lists (id, name, last_seq) VALUES ($1::uuid, $2, $3) ON CONFLICT (id) DO NOTHING`,
		list.ID.String(), list.Name, int64(list.LastSeq))
	if err != nil {
		return fmt.Errorf("insert list: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("list %s: %w", list.ID, fault.ErrConflict)
	}
	return nil
}

func (p *Postgres) GetList(ctx context.Context, id model.ListID) (model.List, error) {
	var (
		rawID, name string
		lastSeq     int64
	)
	err := p.pool.QueryRow(ctx,
		`SELECT id::text, name, last_seq FROM lists WHERE id = $1::uuid`,
		id.String()).Scan(&rawID, &name, &lastSeq)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.List{}, fmt.Errorf("list %s: %w", id, fault.ErrNotFound)
	}
	if err != nil {
		return model.List{}, fmt.Errorf("select list: %w", err)
	}
	parsed, err := model.ParseListID(rawID)
	if err != nil {
		return model.List{}, fmt.Errorf("select list: %w", err)
	}
	return model.List{ID: parsed, Name: name, LastSeq: uint64(lastSeq)}, nil
}

func (p *Postgres) ListExists(ctx context.Context, id model.ListID) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM lists WHERE id = $1::uuid)`, id.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("list exists: %w", err)
	}
	return exists, nil
}

func (p *Postgres) MaxSeq(ctx context.Context, id model.ListID) (uint64, error) {
	var lastSeq int64
	err := p.pool.QueryRow(ctx,
		`SELECT last_seq FROM lists WHERE id = $1::uuid`, id.String()).Scan(&lastSeq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("list %s: %w", id, fault.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("select last_seq: %w", err)
	}
	return uint64(lastSeq), nil
}

// bumpSeq raises the list's high-water mark inside the caller's tx.
func bumpSeq(ctx context.Context, tx pgx.Tx, listID model.ListID, seq uint64) error {
	tag, err := tx.Exec(ctx,
		`UPDATE lists SET last_seq = GREATEST(last_seq, $2) WHERE id = $1::uuid`,
		listID.String(), int64(seq))
	if err != nil {
		return fmt.Errorf("bump last_seq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("list %s: %w", listID, fault.ErrNotFound)
	}
	return nil
}

func refArg(r model.Ref) any {
	if !r.Valid {
		return nil
	}
	return r.ID.String()
}

func scanItem(row pgx.Row) (model.Item, error) {
	var (
		rawID, rawList, name string
		quantity             int
		packed               bool
		cat, bag, trav       *string
		seq                  int64
	)
	if err := row.Scan(&rawID, &rawList, &name, &quantity, &packed, &cat, &bag, &trav, &seq); err != nil {
		return model.Item{}, err
	}

	it := model.Item{Name: name, Quantity: quantity, Packed: packed, Seq: uint64(seq)}
	var err error
	if it.ID, err = model.ParseItemID(rawID); err != nil {
		return model.Item{}, err
	}
	if it.ListID, err = model.ParseListID(rawList); err != nil {
		return model.Item{}, err
	}
	for kind, raw := range map[model.ContainerKind]*string{
		model.KindCategory: cat,
		model.KindBag:      bag,
		model.KindTraveler: trav,
	} {
		if raw == nil {
			continue
		}
		id, err := model.ParseContainerID(*raw)
		if err != nil {
			return model.Item{}, err
		}
		it.SetContainer(kind, model.RefTo(id))
	}
	return it, nil
}

func (p *Postgres) GetItem(ctx context.Context, id model.ItemID) (model.Item, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1::uuid`, id.String())
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Item{}, fmt.Errorf("item %s: %w", id, fault.ErrNotFound)
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("select item: %w", err)
	}
	return it, nil
}

func (p *Postgres) PutItem(ctx context.Context, item model.Item) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := bumpSeq(ctx, tx, item.ListID, item.Seq); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO items (id, list_id, name, quantity, packed, category_id, bag_id, traveler_id, seq)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6::uuid, $7::uuid, $8::uuid, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			quantity = EXCLUDED.quantity,
			packed = EXCLUDED.packed,
			category_id = EXCLUDED.category_id,
			bag_id = EXCLUDED.bag_id,
			traveler_id = EXCLUDED.traveler_id,
			seq = EXCLUDED.seq
		WHERE items.list_id = EXCLUDED.list_id`,
		item.ID.String(), item.ListID.String(), item.Name, item.Quantity, item.Packed,
		refArg(item.Category), refArg(item.Bag), refArg(item.Traveler), int64(item.Seq))
	if err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %s belongs to another list: %w", item.ID, fault.ErrConflict)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) DeleteItem(ctx context.Context, id model.ItemID, seq uint64) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var rawList string
	err = tx.QueryRow(ctx,
		`DELETE FROM items WHERE id = $1::uuid RETURNING list_id::text`, id.String()).Scan(&rawList)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("item %s: %w", id, fault.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	listID, err := model.ParseListID(rawList)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if err := bumpSeq(ctx, tx, listID, seq); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) queryItems(ctx context.Context, sql string, args ...any) ([]model.Item, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := make([]model.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	return items, nil
}

func (p *Postgres) ItemsByList(ctx context.Context, listID model.ListID) ([]model.Item, error) {
	return p.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE list_id = $1::uuid ORDER BY name COLLATE "C", id`,
		listID.String())
}

func (p *Postgres) ItemsUnassigned(ctx context.Context, listID model.ListID, kind model.ContainerKind) ([]model.Item, error) {
	col, err := kindColumn(kind)
	if err != nil {
		return nil, err
	}
	return p.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE list_id = $1::uuid AND `+col+` IS NULL ORDER BY name COLLATE "C", id`,
		listID.String())
}

func (p *Postgres) ItemsInContainer(ctx context.Context, listID model.ListID, containerID model.ContainerID) ([]model.Item, error) {
	return p.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE list_id = $1::uuid
		   AND (category_id = $2::uuid OR bag_id = $2::uuid OR traveler_id = $2::uuid)
		 ORDER BY name COLLATE "C", id`,
		listID.String(), containerID.String())
}

func kindColumn(kind model.ContainerKind) (string, error) {
	switch kind {
	case model.KindCategory:
		return "category_id", nil
	case model.KindBag:
		return "bag_id", nil
	case model.KindTraveler:
		return "traveler_id", nil
	}
	return "", fmt.Errorf("unknown container kind %q", kind)
}

func (p *Postgres) GetContainer(ctx context.Context, id model.ContainerID) (model.Container, error) {
	var (
		rawID, rawList, kind, name string
		seq                        int64
	)
	err := p.pool.QueryRow(ctx,
		`SELECT id::text, list_id::text, kind, name, seq FROM containers WHERE id = $1::uuid`,
		id.String()).Scan(&rawID, &rawList, &kind, &name, &seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Container{}, fmt.Errorf("container %s: %w", id, fault.ErrContainerNotFound)
	}
	if err != nil {
		return model.Container{}, fmt.Errorf("select container: %w", err)
	}
	return buildContainer(rawID, rawList, kind, name, seq)
}

func buildContainer(rawID, rawList, kind, name string, seq int64) (model.Container, error) {
	c := model.Container{Name: name, Seq: uint64(seq)}
	var err error
	if c.ID, err = model.ParseContainerID(rawID); err != nil {
		return model.Container{}, err
	}
	if c.ListID, err = model.ParseListID(rawList); err != nil {
		return model.Container{}, err
	}
	if c.Kind, err = model.ParseKind(kind); err != nil {
		return model.Container{}, err
	}
	return c, nil
}

func (p *Postgres) PutContainer(ctx context.Context, c model.Container) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := bumpSeq(ctx, tx, c.ListID, c.Seq); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO containers (id, list_id, kind, name, seq)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, seq = EXCLUDED.seq
		WHERE containers.list_id = EXCLUDED.list_id AND containers.kind = EXCLUDED.kind`,
		c.ID.String(), c.ListID.String(), string(c.Kind), c.Name, int64(c.Seq))
	if err != nil {
		return fmt.Errorf("upsert container: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("container %s kind or list mismatch: %w", c.ID, fault.ErrConflict)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) DeleteContainer(ctx context.Context, id model.ContainerID, seq uint64) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var rawList string
	err = tx.QueryRow(ctx,
		`DELETE FROM containers WHERE id = $1::uuid RETURNING list_id::text`, id.String()).Scan(&rawList)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("container %s: %w", id, fault.ErrContainerNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete container: %w", err)
	}
	listID, err := model.ParseListID(rawList)
	if err != nil {
		return fmt.Errorf("delete container: %w", err)
	}
	if err := bumpSeq(ctx, tx, listID, seq); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) ContainersByList(ctx context.Context, listID model.ListID) ([]model.Container, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id::text, list_id::text, kind, name, seq FROM containers
		 WHERE list_id = $1::uuid ORDER BY kind, name COLLATE "C", id`,
		listID.String())
	if err != nil {
		return nil, fmt.Errorf("query containers: %w", err)
	}
	defer rows.Close()

	out := make([]model.Container, 0)
	for rows.Next() {
		var (
			rawID, rawList, kind, name string
			seq                        int64
		)
		if err := rows.Scan(&rawID, &rawList, &kind, &name, &seq); err != nil {
			return nil, fmt.Errorf("scan container: %w", err)
		}
		c, err := buildContainer(rawID, rawList, kind, name, seq)
		if err != nil {
			return nil, fmt.Errorf("scan container: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query containers: %w", err)
	}
	return out, nil
}
