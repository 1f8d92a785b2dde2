package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
)

type FacilityRepo struct {
	db DB
}

const facilityColumns = `id, facility_type, name, description, price, status, created_at, updated_at`

func scanFacility(row pgx.Row) (domain.Facility, error) {
	var f domain.Facility
	err := row.Scan(&f.ID, &f.Type, &f.Name, &f.Description, &f.Price, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (r *FacilityRepo) Create(ctx context.Context, f domain.Facility) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO facilities (id, facility_type, name, description, price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, f.ID, f.Type, f.Name, f.Description, f.Price, f.Status, f.CreatedAt)
	return wrap("facilities.Create", err)
}

func (r *FacilityRepo) Get(ctx context.Context, id uuid.UUID) (domain.Facility, error) {
	f, err := scanFacility(r.db.QueryRow(ctx, `SELECT `+facilityColumns+` FROM facilities WHERE id = $1`, id))
	return f, wrap("facilities.Get", err)
}

// GetMany returns the facilities found among ids, keyed by id.
func (r *FacilityRepo) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Facility, error) {
	rows, err := r.db.Query(ctx, `SELECT `+facilityColumns+` FROM facilities WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, wrap("facilities.GetMany", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]domain.Facility, len(ids))
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, wrap("facilities.GetMany", err)
		}
		out[f.ID] = f
	}
	return out, wrap("facilities.GetMany", rows.Err())
}

func (r *FacilityRepo) Update(ctx context.Context, f domain.Facility) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE facilities SET name = $2, description = $3, price = $4, status = $5, updated_at = $6
		WHERE id = $1
	`, f.ID, f.Name, f.Description, f.Price, f.Status, f.UpdatedAt)
	if err != nil {
		return wrap("facilities.Update", err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("facilities.Update", pgx.ErrNoRows)
	}
	return nil
}

func (r *FacilityRepo) InsertUpdates(ctx context.Context, updates []domain.FacilityUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(`
			INSERT INTO facility_updates (id, facility_id, field, old_value, new_value, updated_by, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New(), u.FacilityID, u.Field, u.OldValue, u.NewValue, u.UpdatedBy, u.UpdatedAt)
	}
	return wrap("facilities.InsertUpdates", r.db.SendBatch(ctx, batch).Close())
}

func (r *FacilityRepo) ListUpdates(ctx context.Context, facilityID uuid.UUID) ([]domain.FacilityUpdate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT facility_id, field, old_value, new_value, updated_by, updated_at
		FROM facility_updates WHERE facility_id = $1 ORDER BY updated_at, field
	`, facilityID)
	if err != nil {
		return nil, wrap("facilities.ListUpdates", err)
	}
	defer rows.Close()

	var out []domain.FacilityUpdate
	for rows.Next() {
		var u domain.FacilityUpdate
		if err := rows.Scan(&u.FacilityID, &u.Field, &u.OldValue, &u.NewValue, &u.UpdatedBy, &u.UpdatedAt); err != nil {
			return nil, wrap("facilities.ListUpdates", err)
		}
		out = append(out, u)
	}
	return out, wrap("facilities.ListUpdates", rows.Err())
}

// Conflict is a live event holding a facility on a date for the queried slot.
type Conflict struct {
	Type       domain.FacilityType
	FacilityID uuid.UUID
	Date       time.Time
	EventID    uuid.UUID
}

// ConflictsFor returns every claim other live events hold on facilityIDs between from and to
// (inclusive) for slot. exclude is skipped so an event never conflicts with itself.
func (r *FacilityRepo) ConflictsFor(
	ctx context.Context,
	facilityIDs []uuid.UUID,
	from, to time.Time,
	slot domain.Slot,
	exclude uuid.UUID,
) ([]Conflict, error) {
	if len(facilityIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT fs.facility_type, fs.facility_id, e.event_date, e.id
		FROM facility_selections fs
		JOIN events e ON e.id = fs.event_id
		WHERE fs.facility_id = ANY($1)
		  AND fs.facility_type <> 'snack'
		  AND e.event_date BETWEEN $2 AND $3
		  AND e.slot = $4
		  AND e.status IN ('Booked', 'Rescheduled')
		  AND e.id <> $5
		ORDER BY e.event_date
	`, facilityIDs, from, to, slot, exclude)
	if err != nil {
		return nil, wrap("facilities.ConflictsFor", err)
	}
	defer rows.Close()

	var out []Conflict
	for rows.Next() {
		var c Conflict
		if err := rows.Scan(&c.Type, &c.FacilityID, &c.Date, &c.EventID); err != nil {
			return nil, wrap("facilities.ConflictsFor", err)
		}
		out = append(out, c)
	}
	return out, wrap("facilities.ConflictsFor", rows.Err())
}
