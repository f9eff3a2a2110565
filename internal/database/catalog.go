package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"salonsched/internal/config"
	"salonsched/internal/domain"
)

// SyncCatalog upserts tenants, staff and services from tenants.yaml.
// Staff and services missing from the file are deactivated, never deleted,
// so existing bookings keep their references.
func (db *DB) SyncCatalog(ctx context.Context, cat *config.Catalog) error {
	if cat == nil {
		return nil
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for i := range cat.Tenants {
			if err := syncTenant(ctx, tx, &cat.Tenants[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func syncTenant(ctx context.Context, tx *sql.Tx, t *config.TenantEntry) error {
	hoursJSON, err := json.Marshal(t.BusinessHours)
	if err != nil {
		return fmt.Errorf("marshal business hours: %w", err)
	}
	closuresJSON, err := json.Marshal(nonNil(t.Closures))
	if err != nil {
		return fmt.Errorf("marshal closures: %w", err)
	}
	rulesJSON, err := json.Marshal(t.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tenants (id, name, timezone, business_hours, closures, rules, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			timezone = excluded.timezone,
			business_hours = excluded.business_hours,
			closures = excluded.closures,
			rules = excluded.rules,
			is_active = 1,
			updated_at = CURRENT_TIMESTAMP
	`, t.TenantID, t.Name, t.Timezone, string(hoursJSON), string(closuresJSON), string(rulesJSON))
	if err != nil {
		return fmt.Errorf("upsert tenant %s: %w", t.TenantID, err)
	}

	staffIDs := make([]any, 0, len(t.Staff))
	for _, s := range t.Staff {
		weekJSON, err := json.Marshal(s.Week)
		if err != nil {
			return fmt.Errorf("marshal week for staff %s: %w", s.StaffID, err)
		}
		excJSON, err := json.Marshal(nonNil(s.Exceptions))
		if err != nil {
			return fmt.Errorf("marshal exceptions for staff %s: %w", s.StaffID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO staff (tenant_id, id, name, week, exceptions, is_active, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP)
			ON CONFLICT(tenant_id, id) DO UPDATE SET
				name = excluded.name,
				week = excluded.week,
				exceptions = excluded.exceptions,
				is_active = 1,
				updated_at = CURRENT_TIMESTAMP
		`, t.TenantID, s.StaffID, s.Name, string(weekJSON), string(excJSON))
		if err != nil {
			return fmt.Errorf("upsert staff %s: %w", s.StaffID, err)
		}
		staffIDs = append(staffIDs, s.StaffID)
	}
	if err := deactivateMissing(ctx, tx, "staff", t.TenantID, staffIDs); err != nil {
		return err
	}

	serviceIDs := make([]any, 0, len(t.Services))
	for _, s := range t.Services {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO services (tenant_id, id, name, duration_minutes, price, is_active, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP)
			ON CONFLICT(tenant_id, id) DO UPDATE SET
				name = excluded.name,
				duration_minutes = excluded.duration_minutes,
				price = excluded.price,
				is_active = 1,
				updated_at = CURRENT_TIMESTAMP
		`, t.TenantID, s.ID, s.Name, s.DurationMinutes, s.Price)
		if err != nil {
			return fmt.Errorf("upsert service %s: %w", s.ID, err)
		}
		serviceIDs = append(serviceIDs, s.ID)
	}
	return deactivateMissing(ctx, tx, "services", t.TenantID, serviceIDs)
}

func deactivateMissing(ctx context.Context, tx *sql.Tx, table, tenantID string, keep []any) error {
	query := fmt.Sprintf("UPDATE %s SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE tenant_id = ?", table)
	args := []any{tenantID}
	if len(keep) > 0 {
		query += fmt.Sprintf(" AND id NOT IN (%s)", placeholders(len(keep)))
		args = append(args, keep...)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deactivate %s: %w", table, err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (db *DB) GetTenantScheduleConfig(ctx context.Context, tenantID string) (*domain.TenantScheduleConfig, error) {
	var (
		cfg                       domain.TenantScheduleConfig
		name                      sql.NullString
		hoursJSON, closures, rule string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, name, timezone, business_hours, closures, rules
		FROM tenants WHERE id = ? AND is_active = 1
	`, tenantID).Scan(&cfg.TenantID, &name, &cfg.Timezone, &hoursJSON, &closures, &rule)
	if err != nil {
		return nil, notFound("get tenant config", "tenant", tenantID, err)
	}
	cfg.Name = name.String

	if err := json.Unmarshal([]byte(hoursJSON), &cfg.BusinessHours); err != nil {
		return nil, domain.InvalidConfig("business_hours", "stored value is corrupt: %v", err)
	}
	if err := json.Unmarshal([]byte(closures), &cfg.Closures); err != nil {
		return nil, domain.InvalidConfig("closures", "stored value is corrupt: %v", err)
	}
	if err := json.Unmarshal([]byte(rule), &cfg.Rules); err != nil {
		return nil, domain.InvalidConfig("rules", "stored value is corrupt: %v", err)
	}
	return &cfg, nil
}

func (db *DB) GetStaffSchedule(ctx context.Context, tenantID, staffID string) (*domain.StaffSchedule, error) {
	var (
		s                 domain.StaffSchedule
		name              sql.NullString
		weekJSON, excJSON string
	)
	err := db.QueryRowContext(ctx, `
		SELECT tenant_id, id, name, week, exceptions
		FROM staff WHERE tenant_id = ? AND id = ? AND is_active = 1
	`, tenantID, staffID).Scan(&s.TenantID, &s.StaffID, &name, &weekJSON, &excJSON)
	if err != nil {
		return nil, notFound("get staff schedule", "staff", staffID, err)
	}
	s.Name = name.String

	if err := json.Unmarshal([]byte(weekJSON), &s.Week); err != nil {
		return nil, domain.InvalidConfig(fmt.Sprintf("staff[%s].week", staffID), "stored value is corrupt: %v", err)
	}
	if err := json.Unmarshal([]byte(excJSON), &s.Exceptions); err != nil {
		return nil, domain.InvalidConfig(fmt.Sprintf("staff[%s].exceptions", staffID), "stored value is corrupt: %v", err)
	}
	return &s, nil
}

func (db *DB) GetService(ctx context.Context, tenantID, serviceID string) (*domain.Service, error) {
	var s domain.Service
	err := db.QueryRowContext(ctx, `
		SELECT tenant_id, id, name, duration_minutes, price
		FROM services WHERE tenant_id = ? AND id = ? AND is_active = 1
	`, tenantID, serviceID).Scan(&s.TenantID, &s.ID, &s.Name, &s.DurationMinutes, &s.Price)
	if err != nil {
		return nil, notFound("get service", "service", serviceID, err)
	}
	return &s, nil
}
