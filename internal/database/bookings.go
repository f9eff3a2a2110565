package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"salonsched/internal/domain"
	"salonsched/internal/timeutil"
)

const bookingColumns = `id, tenant_id, staff_id, client_id, service_id, scheduled_at, duration_minutes,
	status, series_id, session_number, fee_percent, fee_charged, cancelled_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var (
		b           domain.Booking
		status      string
		seriesID    sql.NullString
		feeCharged  sql.NullFloat64
		cancelledAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.TenantID, &b.StaffID, &b.ClientID, &b.ServiceID, &b.ScheduledAt, &b.DurationMinutes,
		&status, &seriesID, &b.SessionNumber, &b.FeePercent, &feeCharged, &cancelledAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = domain.BookingStatus(status)
	b.SeriesID = seriesID.String
	if feeCharged.Valid {
		fee := feeCharged.Float64
		b.FeeCharged = &fee
	}
	if cancelledAt.Valid {
		at := cancelledAt.Time
		b.CancelledAt = &at
	}
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (db *DB) GetBooking(ctx context.Context, tenantID, id string) (*domain.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE tenant_id = ? AND id = ?`, tenantID, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound("get booking", "booking", id, err)
	}
	return b, nil
}

func (db *DB) GetBookingsForStaff(ctx context.Context, tenantID, staffID string, from, to time.Time, statuses []domain.BookingStatus) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE tenant_id = ? AND staff_id = ? AND scheduled_at >= ? AND scheduled_at < ?`
	args := []any{tenantID, staffID, from.UTC(), to.UTC()}
	query, args = withStatuses(query, args, statuses)

	rows, err := db.QueryContext(ctx, query+` ORDER BY scheduled_at`, args...)
	if err != nil {
		return nil, domain.Unavailable("get staff bookings", err)
	}
	out, err := scanBookings(rows)
	if err != nil {
		return nil, domain.Unavailable("get staff bookings", err)
	}
	return out, nil
}

func (db *DB) GetBookingsForTenant(ctx context.Context, tenantID string, from, to time.Time, statuses []domain.BookingStatus) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE tenant_id = ? AND scheduled_at >= ? AND scheduled_at < ?`
	args := []any{tenantID, from.UTC(), to.UTC()}
	query, args = withStatuses(query, args, statuses)

	rows, err := db.QueryContext(ctx, query+` ORDER BY scheduled_at`, args...)
	if err != nil {
		return nil, domain.Unavailable("get tenant bookings", err)
	}
	out, err := scanBookings(rows)
	if err != nil {
		return nil, domain.Unavailable("get tenant bookings", err)
	}
	return out, nil
}

func withStatuses(query string, args []any, statuses []domain.BookingStatus) (string, []any) {
	if len(statuses) == 0 {
		return query, args
	}
	return query + fmt.Sprintf(" AND status IN (%s)", placeholders(len(statuses))), append(args, statusArgs(statuses)...)
}

// GetClientBookingCounts counts active bookings on day's date and in its Monday-start week.
// Day and week boundaries follow day's location.
func (db *DB) GetClientBookingCounts(ctx context.Context, tenantID, clientID string, day time.Time) (domain.ClientBookingCounts, error) {
	dayStart := timeutil.StartOfDay(day)
	weekStart := timeutil.StartOfWeek(day)
	active := statusArgs(domain.ActiveStatuses)

	query := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(CASE WHEN scheduled_at >= ? AND scheduled_at < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN scheduled_at >= ? AND scheduled_at < ? THEN 1 ELSE 0 END), 0)
		FROM bookings
		WHERE tenant_id = ? AND client_id = ? AND status IN (%s)
	`, placeholders(len(active)))
	args := []any{
		dayStart.UTC(), dayStart.AddDate(0, 0, 1).UTC(),
		weekStart.UTC(), weekStart.AddDate(0, 0, 7).UTC(),
		tenantID, clientID,
	}
	args = append(args, active...)

	var counts domain.ClientBookingCounts
	if err := db.QueryRowContext(ctx, query, args...).Scan(&counts.Daily, &counts.Weekly); err != nil {
		return domain.ClientBookingCounts{}, domain.Unavailable("count client bookings", err)
	}
	return counts, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertBooking(ctx context.Context, ex execer, b *domain.Booking) error {
	var seriesID any
	if b.SeriesID != "" {
		seriesID = b.SeriesID
	}
	var feeCharged any
	if b.FeeCharged != nil {
		feeCharged = *b.FeeCharged
	}
	var cancelledAt any
	if b.CancelledAt != nil {
		cancelledAt = b.CancelledAt.UTC()
	}
	_, err := ex.ExecContext(ctx, `INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TenantID, b.StaffID, b.ClientID, b.ServiceID, b.ScheduledAt.UTC(), b.DurationMinutes,
		string(b.Status), seriesID, b.SessionNumber, b.FeePercent, feeCharged, cancelledAt,
		b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	return err
}

// WriteBooking inserts a booking and returns it as stored.
func (db *DB) WriteBooking(ctx context.Context, b *domain.Booking) (*domain.Booking, error) {
	if err := insertBooking(ctx, db, b); err != nil {
		return nil, domain.Unavailable("write booking", err)
	}
	return db.GetBooking(ctx, b.TenantID, b.ID)
}

func (db *DB) UpdateBookingStatus(ctx context.Context, tenantID, id string, status domain.BookingStatus, meta domain.StatusMetadata) error {
	at := meta.At.UTC()
	var (
		res sql.Result
		err error
	)
	if status == domain.StatusCancelled {
		var feeCharged any
		if meta.FeeCharged != nil {
			feeCharged = *meta.FeeCharged
		}
		res, err = db.ExecContext(ctx, `
			UPDATE bookings SET status = ?, cancelled_at = ?, fee_percent = ?, fee_charged = ?, updated_at = ?
			WHERE tenant_id = ? AND id = ?
		`, string(status), at, meta.FeePercent, feeCharged, at, tenantID, id)
	} else {
		res, err = db.ExecContext(ctx, `
			UPDATE bookings SET status = ?, updated_at = ? WHERE tenant_id = ? AND id = ?
		`, string(status), at, tenantID, id)
	}
	if err != nil {
		return domain.Unavailable("update booking status", err)
	}
	return expectRow(res, "update booking status", "booking", id)
}

func (db *DB) UpdateBookingTime(ctx context.Context, tenantID, id string, scheduledAt, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings SET scheduled_at = ?, updated_at = ? WHERE tenant_id = ? AND id = ?
	`, scheduledAt.UTC(), at.UTC(), tenantID, id)
	if err != nil {
		return domain.Unavailable("update booking time", err)
	}
	return expectRow(res, "update booking time", "booking", id)
}

func expectRow(res sql.Result, op, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Unavailable(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return nil
}
