package config

import (
	"fmt"
	"os"

	"salonsched/internal/availability"
	"salonsched/internal/domain"
	"salonsched/internal/hours"
	"salonsched/internal/rules"

	"gopkg.in/yaml.v3"
)

// TenantEntry is one salon in tenants.yaml: schedule config plus its staff and services.
type TenantEntry struct {
	domain.TenantScheduleConfig `yaml:",inline"`

	Staff    []domain.StaffSchedule `yaml:"staff"`
	Services []domain.Service       `yaml:"services"`
}

// Catalog is the root of tenants.yaml.
type Catalog struct {
	Tenants []TenantEntry `yaml:"tenants"`
}

// LoadCatalog loads and validates tenants.yaml.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		path = "configs/tenants.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants config: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse tenants config: %w", err)
	}
	c.link()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate tenants config: %w", err)
	}
	return &c, nil
}

// link stamps the owning tenant onto staff and services.
func (c *Catalog) link() {
	for i := range c.Tenants {
		t := &c.Tenants[i]
		for j := range t.Staff {
			t.Staff[j].TenantID = t.TenantID
		}
		for j := range t.Services {
			t.Services[j].TenantID = t.TenantID
		}
	}
}

// Validate runs the same parsing the scheduler applies per request, so malformed
// schedules fail at load time with domain.ErrInvalidConfig.
func (c *Catalog) Validate() error {
	if len(c.Tenants) == 0 {
		return domain.InvalidConfig("tenants", "no tenants defined")
	}

	ids := make(map[string]bool)
	for i := range c.Tenants {
		t := &c.Tenants[i]
		if t.TenantID == "" {
			return domain.InvalidConfig(fmt.Sprintf("tenants[%d].id", i), "id is required")
		}
		if ids[t.TenantID] {
			return domain.InvalidConfig(fmt.Sprintf("tenants[%d].id", i), "duplicate id '%s'", t.TenantID)
		}
		ids[t.TenantID] = true

		if _, err := hours.New(&t.TenantScheduleConfig); err != nil {
			return fmt.Errorf("tenants[%d]: %w", i, err)
		}
		if err := rules.Validate(t.Rules); err != nil {
			return fmt.Errorf("tenants[%d]: %w", i, err)
		}
		if err := validateStaff(t); err != nil {
			return fmt.Errorf("tenants[%d]: %w", i, err)
		}
		if err := validateServices(t); err != nil {
			return fmt.Errorf("tenants[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStaff(t *TenantEntry) error {
	seen := make(map[string]bool)
	for i := range t.Staff {
		s := &t.Staff[i]
		if s.StaffID == "" {
			return domain.InvalidConfig(fmt.Sprintf("staff[%d].id", i), "id is required")
		}
		if seen[s.StaffID] {
			return domain.InvalidConfig(fmt.Sprintf("staff[%d].id", i), "duplicate id '%s'", s.StaffID)
		}
		seen[s.StaffID] = true
		if _, err := availability.ParseStaffSchedule(s); err != nil {
			return err
		}
	}
	return nil
}

func validateServices(t *TenantEntry) error {
	seen := make(map[string]bool)
	for i, s := range t.Services {
		field := fmt.Sprintf("services[%d]", i)
		switch {
		case s.ID == "":
			return domain.InvalidConfig(field+".id", "id is required")
		case seen[s.ID]:
			return domain.InvalidConfig(field+".id", "duplicate id '%s'", s.ID)
		case s.Name == "":
			return domain.InvalidConfig(field+".name", "name is required")
		case s.DurationMinutes <= 0:
			return domain.InvalidConfig(field+".duration_minutes", "must be positive, got %d", s.DurationMinutes)
		case s.Price < 0:
			return domain.InvalidConfig(field+".price", "must not be negative")
		}
		seen[s.ID] = true
	}
	return nil
}

// Tenant returns the entry with id, or nil.
func (c *Catalog) Tenant(id string) *TenantEntry {
	for i := range c.Tenants {
		if c.Tenants[i].TenantID == id {
			return &c.Tenants[i]
		}
	}
	return nil
}

// TenantIDs lists the catalog's tenants in file order.
func (c *Catalog) TenantIDs() []string {
	ids := make([]string, 0, len(c.Tenants))
	for _, t := range c.Tenants {
		ids = append(ids, t.TenantID)
	}
	return ids
}

// String returns a summary of the catalog.
func (c *Catalog) String() string {
	staff, services := 0, 0
	for _, t := range c.Tenants {
		staff += len(t.Staff)
		services += len(t.Services)
	}
	return fmt.Sprintf("Catalog: %d tenants, %d staff, %d services", len(c.Tenants), staff, services)
}
