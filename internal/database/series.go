package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"salonsched/internal/domain"
)

// WriteSeries stores the series and all its sessions in one transaction.
func (db *DB) WriteSeries(ctx context.Context, s *domain.TreatmentSeries, sessions []domain.Booking) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO treatment_series (id, tenant_id, client_id, service_id, staff_id,
				total_sessions, interval_days, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, s.ID, s.TenantID, s.ClientID, s.ServiceID, s.StaffID,
			s.TotalSessions, s.IntervalDays, string(s.Status), s.CreatedAt.UTC(), s.UpdatedAt.UTC())
		if err != nil {
			return err
		}
		for i := range sessions {
			if err := insertBooking(ctx, tx, &sessions[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return domain.Unavailable("write series", err)
}

func (db *DB) GetSeries(ctx context.Context, tenantID, id string) (*domain.TreatmentSeries, error) {
	var (
		s      domain.TreatmentSeries
		status string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, tenant_id, client_id, service_id, staff_id, total_sessions, interval_days, status, created_at, updated_at
		FROM treatment_series WHERE tenant_id = ? AND id = ?
	`, tenantID, id).Scan(&s.ID, &s.TenantID, &s.ClientID, &s.ServiceID, &s.StaffID,
		&s.TotalSessions, &s.IntervalDays, &status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, notFound("get series", "series", id, err)
	}
	s.Status = domain.SeriesStatus(status)
	return &s, nil
}

// ListSeriesBookings returns every session of a series ordered by session number.
func (db *DB) ListSeriesBookings(ctx context.Context, tenantID, seriesID string) ([]domain.Booking, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE tenant_id = ? AND series_id = ? ORDER BY session_number, scheduled_at`, tenantID, seriesID)
	if err != nil {
		return nil, domain.Unavailable("list series bookings", err)
	}
	out, err := scanBookings(rows)
	if err != nil {
		return nil, domain.Unavailable("list series bookings", err)
	}
	return out, nil
}

// AppendSeriesSessions inserts replacement sessions of an existing series in one transaction.
func (db *DB) AppendSeriesSessions(ctx context.Context, tenantID, seriesID string, sessions []domain.Booking) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := seriesStatus(ctx, tx, tenantID, seriesID); err != nil {
			return err
		}
		for i := range sessions {
			if err := insertBooking(ctx, tx, &sessions[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return notFound("append series sessions", "series", seriesID, err)
}

func seriesStatus(ctx context.Context, q queryer, tenantID, id string) (domain.SeriesStatus, error) {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM treatment_series WHERE tenant_id = ? AND id = ?`,
		tenantID, id).Scan(&status)
	return domain.SeriesStatus(status), err
}

// UpdateSeriesStatus is a compare-and-set on the status column.
func (db *DB) UpdateSeriesStatus(ctx context.Context, tenantID, id string, from, to domain.SeriesStatus, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE treatment_series SET status = ?, updated_at = ? WHERE tenant_id = ? AND id = ? AND status = ?
	`, string(to), at.UTC(), tenantID, id, string(from))
	if err != nil {
		return domain.Unavailable("update series status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Unavailable("update series status", err)
	}
	if n > 0 {
		return nil
	}
	current, err := seriesStatus(ctx, db, tenantID, id)
	if err != nil {
		return notFound("update series status", "series", id, err)
	}
	return fmt.Errorf("%w: series %s is %s", domain.ErrInvalidTransition, id, current)
}

// CancelSeries marks the series cancelled and cancels its scheduled and confirmed
// sessions in one transaction. It returns how many sessions were cancelled.
func (db *DB) CancelSeries(ctx context.Context, tenantID, id string, at time.Time) (int, error) {
	at = at.UTC()
	var cancelled int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := seriesStatus(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			return fmt.Errorf("%w: series %s is %s", domain.ErrInvalidTransition, id, current)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE treatment_series SET status = ?, updated_at = ? WHERE tenant_id = ? AND id = ?
		`, string(domain.SeriesCancelled), at, tenantID, id)
		if err != nil {
			return err
		}
		if err := expectRow(res, "cancel series", "series", id); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE bookings SET status = ?, cancelled_at = ?, updated_at = ?
			WHERE tenant_id = ? AND series_id = ? AND status IN (?, ?)
		`, string(domain.StatusCancelled), at, at, tenantID, id,
			string(domain.StatusScheduled), string(domain.StatusConfirmed))
		if err != nil {
			return err
		}
		cancelled, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, notFound("cancel series", "series", id, err)
	}
	return int(cancelled), nil
}
