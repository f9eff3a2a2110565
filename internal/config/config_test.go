package config

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"salonsched/internal/domain"
	"salonsched/internal/timeutil"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SALONSCHED_TEST_KEY", "secret-key")
	path := writeFile(t, dir, "config.yaml", `
database:
  path: `+filepath.Join(dir, "db", "salon.db")+`
api:
  keys: ["${SALONSCHED_TEST_KEY}"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, []string{"secret-key"}, cfg.API.Keys)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 14, cfg.Scheduling.SearchWindowDays)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
	assert.Equal(t, "salonsched.events", cfg.AMQP.Queue)
	assert.Equal(t, []time.Duration{24 * time.Hour, 2 * time.Hour}, cfg.Reminders.Leads())
	assert.Equal(t, time.Minute, cfg.Reminders.CheckInterval())
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown driver", "database:\n  driver: mysql\n", "database.driver"},
		{"postgres without dsn", "database:\n  driver: postgres\n", "database.dsn"},
		{"bad port", "api:\n  port: 70000\n", "api.port"},
		{"empty key", "api:\n  keys: [\"\"]\n", "api.keys[0]"},
		{"negative reminder lead", "reminders:\n  lead_hours: [24, -1]\n", "reminders.lead_hours[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

const catalogYAML = `
tenants:
  - id: glow
    name: Glow Studio
    timezone: Europe/Berlin
    business_hours:
      - {weekday: monday, open: "09:00", close: "17:00"}
      - {weekday: tuesday, open: "09:00", close: "17:00"}
      - {weekday: wednesday, open: "09:00", close: "17:00"}
      - {weekday: thursday, open: "09:00", close: "20:00"}
      - {weekday: friday, open: "09:00", close: "17:00"}
      - {weekday: saturday, open: "10:00", close: "14:00"}
      - {weekday: sunday, closed: true}
    closures:
      - {date: "2026-12-25", kind: blocked, reason: Christmas}
    rules:
      min_advance_hours: 2
      max_advance_days: 60
      same_day_allowed: true
      buffer_before_minutes: 10
      buffer_after_minutes: 15
      cancellation_deadline_hours: 24
      cancellation_fee_enabled: true
      cancellation_fee_percent: 50
    staff:
      - id: anna
        name: Anna
        week:
          monday: [{start: "09:00", end: "13:00"}, {start: "14:00", end: "17:00"}]
          thursday: [{start: "12:00", end: "20:00"}]
        exceptions:
          - {date: "2026-03-05", kind: blocked, reason: training}
      - id: ben
        name: Ben
    services:
      - {id: facial, name: Facial, duration_minutes: 60, price: 80}
      - {id: cut, name: Haircut, duration_minutes: 30, price: 45}
`

func TestLoadCatalog(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tenants.yaml", catalogYAML)

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat.Tenants, 1)

	glow := cat.Tenant("glow")
	require.NotNil(t, glow)
	assert.Equal(t, "Europe/Berlin", glow.Timezone)
	assert.Equal(t, 15, glow.Rules.BufferAfterMinutes)
	require.Len(t, glow.Staff, 2)
	assert.Equal(t, "glow", glow.Staff[0].TenantID)
	assert.Len(t, glow.Staff[0].Week[timeutil.Monday], 2)
	assert.True(t, glow.Staff[1].FollowsBusinessHours())
	assert.Equal(t, "glow", glow.Services[1].TenantID)
	assert.Nil(t, cat.Tenant("other"))
	assert.Equal(t, []string{"glow"}, cat.TenantIDs())
	assert.Equal(t, "Catalog: 1 tenants, 2 staff, 2 services", cat.String())
}

func TestLoadCatalogRejectsMalformedSchedules(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantErr string
	}{
		{"bad open time", `weekday: monday, open: "09:00"`, `weekday: monday, open: "9am"`, "business_hours[0].open"},
		{"unknown timezone", "Europe/Berlin", "Mars/Olympus", "timezone"},
		{"staff interval reversed", `{start: "12:00", end: "20:00"}`, `{start: "20:00", end: "12:00"}`, "staff[anna]"},
		{"duplicate service", "id: cut,", "id: facial,", "services[1].id"},
		{"zero duration", "duration_minutes: 30", "duration_minutes: 0", "services[1].duration_minutes"},
		{"fee over 100", "cancellation_fee_percent: 50", "cancellation_fee_percent: 150", "rules.cancellation_fee_percent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := replaceOnce(t, catalogYAML, tt.from, tt.to)
			path := writeFile(t, t.TempDir(), "tenants.yaml", body)

			_, err := LoadCatalog(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidConfig), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func replaceOnce(t *testing.T, s, from, to string) string {
	t.Helper()
	for i := 0; i+len(from) <= len(s); i++ {
		if s[i:i+len(from)] == from {
			return s[:i] + to + s[i+len(from):]
		}
	}
	t.Fatalf("%q not found in fixture", from)
	return ""
}

func TestWatchCatalogReloads(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tenants.yaml", catalogYAML)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var loads []*Catalog
	logger := zerolog.New(io.Discard)
	err := WatchCatalog(ctx, path, 10*time.Millisecond, &logger, func(c *Catalog) {
		mu.Lock()
		defer mu.Unlock()
		loads = append(loads, c)
	})
	require.NoError(t, err)

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(loads)
	}
	assert.Equal(t, 1, count())

	// an invalid edit is skipped
	require.NoError(t, os.WriteFile(path, []byte("tenants: []\n"), 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, count())

	updated := replaceOnce(t, catalogYAML, "name: Glow Studio", "name: Glow Studio Mitte")
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	later := future.Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	require.Eventually(t, func() bool { return count() == 2 }, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, "Glow Studio Mitte", loads[1].Tenants[0].Name)
	mu.Unlock()
}
