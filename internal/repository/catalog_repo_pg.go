package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zsp-sports/gymbooking/internal/domain"
)

type CatalogRepository interface {
	GetPackage(ctx context.Context, id int64) (*domain.Package, error)
	ListActivePackages(ctx context.Context) ([]domain.Package, error)
	AvailabilityByPackage(ctx context.Context, packageID int64) ([]domain.TimeslotAvailability, error)
}

type PGCatalogRepository struct {
	db *pgxpool.Pool
}

func NewCatalogRepository(db *pgxpool.Pool) CatalogRepository {
	return &PGCatalogRepository{db: db}
}

func (r *PGCatalogRepository) GetPackage(ctx context.Context, id int64) (*domain.Package, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, description, price_cents, sessions_included, active, created_at, updated_at
		FROM packages WHERE id = $1`, id)
	var p domain.Package
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.SessionsIncluded, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("package %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get package: %w", err)
	}
	return &p, nil
}

func (r *PGCatalogRepository) ListActivePackages(ctx context.Context) ([]domain.Package, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, description, price_cents, sessions_included, active, created_at, updated_at
		FROM packages WHERE active ORDER BY price_cents`)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	packages := make([]domain.Package, 0)
	for rows.Next() {
		var p domain.Package
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.SessionsIncluded, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

// AvailabilityByPackage lists future timeslots a package can be scheduled
// into, with remaining capacity derived from the active-bookings count.
func (r *PGCatalogRepository) AvailabilityByPackage(ctx context.Context, packageID int64) ([]domain.TimeslotAvailability, error) {
	rows, err := r.db.Query(ctx, `SELECT ts.id, ts.coach_id, ts.date, ts.start_time::text, ts.end_time::text, ts.max_capacity, ts.package_id,
			c.first_name, c.last_name,
			COALESCE(b.cnt, 0) AS booked,
			ts.max_capacity - COALESCE(b.cnt, 0) AS remaining
		FROM timeslots ts
		JOIN coaches c ON c.id = ts.coach_id
		LEFT JOIN (
			SELECT timeslot_id, COUNT(*) AS cnt
			FROM bookings
			WHERE status = $1
			GROUP BY timeslot_id
		) b ON b.timeslot_id = ts.id
		WHERE (ts.package_id = $2 OR ts.package_id IS NULL)
		  AND ts.date + ts.start_time >= now()
		ORDER BY ts.date, ts.start_time`, domain.BookingStatusActive, packageID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	defer rows.Close()

	slots := make([]domain.TimeslotAvailability, 0)
	for rows.Next() {
		var a domain.TimeslotAvailability
		if err := rows.Scan(&a.ID, &a.CoachID, &a.Date, &a.StartTime, &a.EndTime, &a.MaxCapacity, &a.PackageID,
			&a.CoachFirstName, &a.CoachLastName, &a.BookedCount, &a.RemainingCapacity); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		slots = append(slots, a)
	}
	return slots, rows.Err()
}

var _ CatalogRepository = (*PGCatalogRepository)(nil)
