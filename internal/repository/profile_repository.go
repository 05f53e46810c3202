package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"profilephoto/internal/apperr"
	"profilephoto/internal/models"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so the same repository
// serves both autocommit reads and a unit of work.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var ErrProfileNotFound = errors.New("profile not found")

type ProfileRepository struct {
	db DBTX
}

func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `
	id, first_name, last_name, address, mobile, email,
	temp_picture_name, has_thumbnail, thumbnail_name, created_at, updated_at
`

func (r *ProfileRepository) Create(ctx context.Context, profile models.Profile) (models.Profile, error) {
	const query = `
		INSERT INTO profiles (id, first_name, last_name, address, mobile, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING ` + profileColumns

	row := r.db.QueryRow(ctx, query,
		profile.ID,
		profile.FirstName,
		profile.LastName,
		profile.Address,
		profile.Mobile,
		profile.Email,
	)
	created, err := scanProfile(row)
	if err != nil {
		return models.Profile{}, classify("profiles.create", err)
	}
	return created, nil
}

func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (models.Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	profile, err := scanProfile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return models.Profile{}, classify("profiles.get", err)
	}
	return profile, nil
}

// SelectPending returns up to limit ids of profiles that have an upload and
// no thumbnail, oldest first.
func (r *ProfileRepository) SelectPending(ctx context.Context, limit int) ([]uuid.UUID, error) {
	const query = `
		SELECT id
		FROM profiles
		WHERE has_thumbnail = FALSE AND temp_picture_name IS NOT NULL
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, classify("profiles.select_pending", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0, limit)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, classify("profiles.select_pending", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("profiles.select_pending", err)
	}
	return ids, nil
}

// Update writes the mutable thumbnail columns of profile.
func (r *ProfileRepository) Update(ctx context.Context, profile models.Profile) error {
	const query = `
		UPDATE profiles
		SET temp_picture_name = $2,
		    has_thumbnail = $3,
		    thumbnail_name = $4,
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		profile.ID,
		profile.TempPictureName,
		profile.HasThumbnail,
		profile.ThumbnailName,
	)
	if err != nil {
		return classify("profiles.update", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.E(apperr.KindNotFound, "profiles.update", ErrProfileNotFound)
	}
	return nil
}

// SetTempPicture records a new upload and resets the thumbnail state.
func (r *ProfileRepository) SetTempPicture(ctx context.Context, id uuid.UUID, objectName string) (models.Profile, error) {
	const query = `
		UPDATE profiles
		SET temp_picture_name = $2,
		    has_thumbnail = FALSE,
		    thumbnail_name = NULL,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns

	profile, err := scanProfile(r.db.QueryRow(ctx, query, id, objectName))
	if err != nil {
		return models.Profile{}, classify("profiles.set_temp_picture", err)
	}
	return profile, nil
}

func scanProfile(row pgx.Row) (models.Profile, error) {
	var p models.Profile
	err := row.Scan(
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&p.Address,
		&p.Mobile,
		&p.Email,
		&p.TempPictureName,
		&p.HasThumbnail,
		&p.ThumbnailName,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}
