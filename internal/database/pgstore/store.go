// Package pgstore is the PostgreSQL implementation of the scheduling store.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salonsched/internal/config"
	"salonsched/internal/domain"
	"salonsched/internal/timeutil"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store implements domain.Store on top of gorm.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

var _ domain.Store = (*Store)(nil)

// Open connects to PostgreSQL and migrates the schema.
func Open(dsn string, logger *zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		Logger:      gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	s := New(db, logger)
	if err := s.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	s.logger.Info().Msg("Database initialized")
	return s, nil
}

// New wraps an open gorm handle.
func New(db *gorm.DB, logger *zerolog.Logger) *Store {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "pgstore").Logger()
	}
	return &Store{db: db, logger: l}
}

// Migrate creates or updates the schema.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(
		&tenantRow{},
		&staffRow{},
		&serviceRow{},
		&seriesRow{},
		&bookingRow{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// PingContext checks connectivity for the readiness check.
func (s *Store) PingContext(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(op, what, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return domain.Unavailable(op, err)
}

func expectRow(res *gorm.DB, op, what, id string) error {
	if res.Error != nil {
		return domain.Unavailable(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return nil
}

func statusStrings(statuses []domain.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

// SyncCatalog upserts tenants, staff and services and deactivates the ones
// no longer present in tenants.yaml.
func (s *Store) SyncCatalog(ctx context.Context, cat *config.Catalog) error {
	if cat == nil {
		return nil
	}
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range cat.Tenants {
			t := &cat.Tenants[i]
			tenant := tenantRow{
				ID:            t.TenantID,
				Name:          t.Name,
				Timezone:      t.Timezone,
				BusinessHours: t.BusinessHours,
				Closures:      t.Closures,
				Rules:         t.Rules,
				IsActive:      true,
				UpdatedAt:     now,
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&tenant).Error; err != nil {
				return fmt.Errorf("upsert tenant %s: %w", t.TenantID, err)
			}

			staffIDs := make([]string, 0, len(t.Staff))
			for _, st := range t.Staff {
				row := staffRow{
					TenantID:   t.TenantID,
					ID:         st.StaffID,
					Name:       st.Name,
					Week:       st.Week,
					Exceptions: st.Exceptions,
					IsActive:   true,
					UpdatedAt:  now,
				}
				if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
					return fmt.Errorf("upsert staff %s: %w", st.StaffID, err)
				}
				staffIDs = append(staffIDs, st.StaffID)
			}
			if err := deactivateMissing(tx, &staffRow{}, t.TenantID, staffIDs, now); err != nil {
				return err
			}

			serviceIDs := make([]string, 0, len(t.Services))
			for _, svc := range t.Services {
				row := serviceRow{
					TenantID:        t.TenantID,
					ID:              svc.ID,
					Name:            svc.Name,
					DurationMinutes: svc.DurationMinutes,
					Price:           svc.Price,
					IsActive:        true,
					UpdatedAt:       now,
				}
				if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
					return fmt.Errorf("upsert service %s: %w", svc.ID, err)
				}
				serviceIDs = append(serviceIDs, svc.ID)
			}
			if err := deactivateMissing(tx, &serviceRow{}, t.TenantID, serviceIDs, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func deactivateMissing(tx *gorm.DB, model any, tenantID string, keep []string, now time.Time) error {
	q := tx.Model(model).Where("tenant_id = ?", tenantID)
	if len(keep) > 0 {
		q = q.Where("id NOT IN ?", keep)
	}
	if err := q.Updates(map[string]any{"is_active": false, "updated_at": now}).Error; err != nil {
		return fmt.Errorf("deactivate missing rows: %w", err)
	}
	return nil
}

func (s *Store) GetTenantScheduleConfig(ctx context.Context, tenantID string) (*domain.TenantScheduleConfig, error) {
	var row tenantRow
	if err := s.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", tenantID, true).
		First(&row).Error; err != nil {
		return nil, notFound("get tenant config", "tenant", tenantID, err)
	}
	cfg := row.toDomain()
	return &cfg, nil
}

func (s *Store) GetStaffSchedule(ctx context.Context, tenantID, staffID string) (*domain.StaffSchedule, error) {
	var row staffRow
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND is_active = ?", tenantID, staffID, true).
		First(&row).Error; err != nil {
		return nil, notFound("get staff schedule", "staff", staffID, err)
	}
	st := row.toDomain()
	return &st, nil
}

func (s *Store) GetService(ctx context.Context, tenantID, serviceID string) (*domain.Service, error) {
	var row serviceRow
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND is_active = ?", tenantID, serviceID, true).
		First(&row).Error; err != nil {
		return nil, notFound("get service", "service", serviceID, err)
	}
	svc := row.toDomain()
	return &svc, nil
}

func (s *Store) GetBooking(ctx context.Context, tenantID, id string) (*domain.Booking, error) {
	var row bookingRow
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&row).Error; err != nil {
		return nil, notFound("get booking", "booking", id, err)
	}
	b := row.toDomain()
	return &b, nil
}

func findBookings(op string, q *gorm.DB, statuses []domain.BookingStatus) ([]domain.Booking, error) {
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(statuses))
	}
	var rows []bookingRow
	if err := q.Order("scheduled_at ASC").Find(&rows).Error; err != nil {
		return nil, domain.Unavailable(op, err)
	}
	out := make([]domain.Booking, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) GetBookingsForStaff(ctx context.Context, tenantID, staffID string, from, to time.Time, statuses []domain.BookingStatus) ([]domain.Booking, error) {
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND staff_id = ? AND scheduled_at >= ? AND scheduled_at < ?", tenantID, staffID, from.UTC(), to.UTC())
	return findBookings("get staff bookings", q, statuses)
}

func (s *Store) GetBookingsForTenant(ctx context.Context, tenantID string, from, to time.Time, statuses []domain.BookingStatus) ([]domain.Booking, error) {
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND scheduled_at >= ? AND scheduled_at < ?", tenantID, from.UTC(), to.UTC())
	return findBookings("get tenant bookings", q, statuses)
}

func (s *Store) GetClientBookingCounts(ctx context.Context, tenantID, clientID string, day time.Time) (domain.ClientBookingCounts, error) {
	dayStart := timeutil.StartOfDay(day)
	weekStart := timeutil.StartOfWeek(day)
	active := statusStrings(domain.ActiveStatuses)

	count := func(from, to time.Time) (int64, error) {
		var n int64
		err := s.db.WithContext(ctx).Model(&bookingRow{}).
			Where("tenant_id = ? AND client_id = ? AND status IN ?", tenantID, clientID, active).
			Where("scheduled_at >= ? AND scheduled_at < ?", from.UTC(), to.UTC()).
			Count(&n).Error
		return n, err
	}

	daily, err := count(dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return domain.ClientBookingCounts{}, domain.Unavailable("count client bookings", err)
	}
	weekly, err := count(weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return domain.ClientBookingCounts{}, domain.Unavailable("count client bookings", err)
	}
	return domain.ClientBookingCounts{Daily: int(daily), Weekly: int(weekly)}, nil
}

func (s *Store) WriteBooking(ctx context.Context, b *domain.Booking) (*domain.Booking, error) {
	row := bookingFromDomain(b)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, domain.Unavailable("write booking", err)
	}
	out := row.toDomain()
	return &out, nil
}

func (s *Store) UpdateBookingStatus(ctx context.Context, tenantID, id string, status domain.BookingStatus, meta domain.StatusMetadata) error {
	at := meta.At.UTC()
	updates := map[string]any{"status": string(status), "updated_at": at}
	if status == domain.StatusCancelled {
		updates["cancelled_at"] = at
		updates["fee_percent"] = meta.FeePercent
		updates["fee_charged"] = meta.FeeCharged
	}
	res := s.db.WithContext(ctx).Model(&bookingRow{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(updates)
	return expectRow(res, "update booking status", "booking", id)
}

func (s *Store) UpdateBookingTime(ctx context.Context, tenantID, id string, scheduledAt, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&bookingRow{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{"scheduled_at": scheduledAt.UTC(), "updated_at": at.UTC()})
	return expectRow(res, "update booking time", "booking", id)
}

// WriteSeries stores the series and its sessions in one transaction.
func (s *Store) WriteSeries(ctx context.Context, series *domain.TreatmentSeries, sessions []domain.Booking) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := seriesFromDomain(series)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if len(sessions) == 0 {
			return nil
		}
		rows := make([]bookingRow, len(sessions))
		for i := range sessions {
			rows[i] = bookingFromDomain(&sessions[i])
		}
		return tx.Create(&rows).Error
	})
	return domain.Unavailable("write series", err)
}

// AppendSeriesSessions inserts replacement sessions in one transaction, holding the series row.
func (s *Store) AppendSeriesSessions(ctx context.Context, tenantID, seriesID string, sessions []domain.Booking) error {
	if len(sessions) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSeries(tx, tenantID, seriesID); err != nil {
			return err
		}
		rows := make([]bookingRow, len(sessions))
		for i := range sessions {
			rows[i] = bookingFromDomain(&sessions[i])
		}
		return tx.Create(&rows).Error
	})
	return notFound("append series sessions", "series", seriesID, err)
}

func (s *Store) GetSeries(ctx context.Context, tenantID, id string) (*domain.TreatmentSeries, error) {
	var row seriesRow
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&row).Error; err != nil {
		return nil, notFound("get series", "series", id, err)
	}
	out := row.toDomain()
	return &out, nil
}

func (s *Store) ListSeriesBookings(ctx context.Context, tenantID, seriesID string) ([]domain.Booking, error) {
	var rows []bookingRow
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND series_id = ?", tenantID, seriesID).
		Order("session_number ASC, scheduled_at ASC").
		Find(&rows).Error; err != nil {
		return nil, domain.Unavailable("list series bookings", err)
	}
	out := make([]domain.Booking, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// lockSeries loads the series row FOR UPDATE inside tx.
func lockSeries(tx *gorm.DB, tenantID, id string) (*seriesRow, error) {
	var row seriesRow
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateSeriesStatus locks the row and applies the change only while the status is still from.
func (s *Store) UpdateSeriesStatus(ctx context.Context, tenantID, id string, from, to domain.SeriesStatus, at time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockSeries(tx, tenantID, id)
		if err != nil {
			return err
		}
		if domain.SeriesStatus(row.Status) != from {
			return fmt.Errorf("%w: series %s is %s", domain.ErrInvalidTransition, id, row.Status)
		}
		return tx.Model(row).Updates(map[string]any{"status": string(to), "updated_at": at.UTC()}).Error
	})
	if err != nil {
		return notFound("update series status", "series", id, err)
	}
	return nil
}

// CancelSeries cancels the series and its scheduled and confirmed sessions atomically.
func (s *Store) CancelSeries(ctx context.Context, tenantID, id string, at time.Time) (int, error) {
	at = at.UTC()
	var cancelled int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockSeries(tx, tenantID, id)
		if err != nil {
			return err
		}
		if domain.SeriesStatus(row.Status).IsTerminal() {
			return fmt.Errorf("%w: series %s is %s", domain.ErrInvalidTransition, id, row.Status)
		}
		if err := tx.Model(row).Updates(map[string]any{
			"status":     string(domain.SeriesCancelled),
			"updated_at": at,
		}).Error; err != nil {
			return err
		}

		res := tx.Model(&bookingRow{}).
			Where("tenant_id = ? AND series_id = ? AND status IN ?", tenantID, id,
				statusStrings([]domain.BookingStatus{domain.StatusScheduled, domain.StatusConfirmed})).
			Updates(map[string]any{
				"status":       string(domain.StatusCancelled),
				"cancelled_at": at,
				"updated_at":   at,
			})
		cancelled = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, notFound("cancel series", "series", id, err)
	}
	return int(cancelled), nil
}
