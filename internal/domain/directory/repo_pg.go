package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docbook/docbook/internal/platform/db"
	"github.com/docbook/docbook/pkg/apperr"
)

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const doctorSelect = `SELECT d.id, d.user_id, d.specialty, d.experience_years, d.qualification,
	d.consultation_fee, d.location, d.bio, d.status, d.created_at, d.updated_at,
	u.full_name, u.email
	FROM doctors d JOIN users u ON u.id = d.user_id`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.UserID, &d.Specialty, &d.ExperienceYears, &d.Qualification,
		&d.ConsultationFee, &d.Location, &d.Bio, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		&d.FullName, &d.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("doctor not found")
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	if d.Status == "" {
		d.Status = StatusPending
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (id, user_id, specialty, experience_years, qualification,
			consultation_fee, location, bio, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		d.ID, d.UserID, d.Specialty, d.ExperienceYears, d.Qualification,
		d.ConsultationFee, d.Location, d.Bio, d.Status,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if db.IsUniqueViolation(err, "doctors_user_id_key") {
		return apperr.Validation("user already has a doctor profile")
	}
	return err
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, doctorSelect+` WHERE d.id = $1`, id))
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, doctorSelect+` WHERE d.user_id = $1`, userID))
}

func (r *doctorRepoPG) ListApproved(ctx context.Context) ([]*Doctor, error) {
	return r.list(ctx, doctorSelect+` WHERE d.status = $1 ORDER BY d.created_at DESC`, StatusApproved)
}

func (r *doctorRepoPG) ListByStatus(ctx context.Context, status DoctorStatus, limit, offset int) ([]*Doctor, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM doctors WHERE $1::text = '' OR status = $1`, string(status),
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	items, err := r.list(ctx,
		doctorSelect+` WHERE $1::text = '' OR d.status = $1 ORDER BY d.created_at DESC LIMIT $2 OFFSET $3`,
		string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *doctorRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status DoctorStatus) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE doctors SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor not found")
	}
	return nil
}
