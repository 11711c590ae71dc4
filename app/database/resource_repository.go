package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ ResourceRepository = (*resourceRepository)(nil)

type resourceRepository struct {
	db *DB
}

func NewResourceRepository(db *DB) ResourceRepository {
	return &resourceRepository{db: db}
}

const resourceColumns = `id, user_id, url, name, path, status, size, type, hash, created_at`

func (r *resourceRepository) GetByURLAndUser(url string, userID int64) (*Resource, error) {
	row := r.db.QueryRow(`SELECT `+resourceColumns+` FROM resources WHERE url = ? AND user_id = ? LIMIT 1`, url, userID)
	return scanResourceOrNil(row)
}

func (r *resourceRepository) GetByHashAndUser(hash string, userID int64) (*Resource, error) {
	row := r.db.QueryRow(`SELECT `+resourceColumns+` FROM resources WHERE hash = ? AND user_id = ? LIMIT 1`, hash, userID)
	return scanResourceOrNil(row)
}

func (r *resourceRepository) GetSuccessByURL(url string) (*Resource, error) {
	row := r.db.QueryRow(`SELECT `+resourceColumns+` FROM resources WHERE url = ? AND status = ? LIMIT 1`, url, StatusSuccess)
	return scanResourceOrNil(row)
}

func (r *resourceRepository) HasSuccessByName(name string) (bool, error) {
	var one int
	err := r.db.QueryRow(`SELECT 1 FROM resources WHERE name = ? AND status = ? LIMIT 1`, name, StatusSuccess).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up resource by name: %w", err)
	}
	return true, nil
}

func (r *resourceRepository) InsertResource(resource *Resource) error {
	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRow(`
		INSERT INTO resources (user_id, url, name, path, status, size, type, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		resource.UserID, resource.URL, resource.Name, resource.Path, resource.Status,
		resource.Size, resource.Type, resource.Hash, resource.CreatedAt,
	).Scan(&resource.ID)
	if err != nil {
		return fmt.Errorf("failed to insert resource: %w", err)
	}
	return nil
}

func (r *resourceRepository) UpdateResource(resource *Resource) error {
	_, err := r.db.Exec(`
		UPDATE resources SET url = ?, name = ?, path = ?, status = ?, size = ?, type = ?, hash = ?
		WHERE id = ?`,
		resource.URL, resource.Name, resource.Path, resource.Status,
		resource.Size, resource.Type, resource.Hash, resource.ID)
	if err != nil {
		return fmt.Errorf("failed to update resource: %w", err)
	}
	return nil
}

func (r *resourceRepository) GetResourceCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM resources`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count resources: %w", err)
	}
	return count, nil
}

func (r *resourceRepository) CountCreatedBetween(start, end time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM resources WHERE created_at >= ? AND created_at < ?`, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count resources in range: %w", err)
	}
	return count, nil
}

func (r *resourceRepository) DeleteCreatedBefore(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM resources WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old resources: %w", err)
	}
	return res.RowsAffected()
}

func scanResourceOrNil(row rowScanner) (*Resource, error) {
	var res Resource
	err := row.Scan(&res.ID, &res.UserID, &res.URL, &res.Name, &res.Path, &res.Status,
		&res.Size, &res.Type, &res.Hash, &res.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan resource: %w", err)
	}
	return &res, nil
}
