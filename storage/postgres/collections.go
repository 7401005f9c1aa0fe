package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/lookatitude/docintel/domain"
)

// CollectionRepo persists domain.Collection records.
type CollectionRepo struct {
	db *sql.DB
}

func (r *CollectionRepo) Create(ctx context.Context, c domain.Collection) error {
	if err := requireOrgMatch(ctx, "postgres.collections.create", c.OrgID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO collections (id, owner_user_id, org_id, name, document_ids, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, c.ID, c.OwnerUserID, c.OrgID, c.Name, pq.Array(c.DocumentIDs), c.CreatedAt)
	return wrapErr("postgres.collections.create", err)
}

func (r *CollectionRepo) Get(ctx context.Context, id string) (domain.Collection, error) {
	var c domain.Collection
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_user_id, org_id, name, document_ids, created_at FROM collections WHERE id = $1
	`, id).Scan(&c.ID, &c.OwnerUserID, &c.OrgID, &c.Name, pq.Array(&c.DocumentIDs), &c.CreatedAt)
	if err != nil {
		return domain.Collection{}, wrapErr("postgres.collections.get", err)
	}
	if err := requireOrgMatch(ctx, "postgres.collections.get", c.OrgID); err != nil {
		return domain.Collection{}, wrapErr("postgres.collections.get", sql.ErrNoRows)
	}
	return c, nil
}

// AddDocument appends a document id to a collection if not already present.
func (r *CollectionRepo) AddDocument(ctx context.Context, collectionID, documentID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE collections SET document_ids = array_append(document_ids, $1)
		WHERE id = $2 AND NOT ($1 = ANY(document_ids))
	`, documentID, collectionID)
	return wrapErr("postgres.collections.add_document", err)
}

func (r *CollectionRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]domain.Collection, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_user_id, org_id, name, document_ids, created_at FROM collections
		WHERE owner_user_id = $1 ORDER BY created_at DESC
	`, ownerUserID)
	if err != nil {
		return nil, wrapErr("postgres.collections.list_by_owner", err)
	}
	defer rows.Close()

	var out []domain.Collection
	for rows.Next() {
		var c domain.Collection
		if err := rows.Scan(&c.ID, &c.OwnerUserID, &c.OrgID, &c.Name, pq.Array(&c.DocumentIDs), &c.CreatedAt); err != nil {
			return nil, wrapErr("postgres.collections.list_by_owner", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
