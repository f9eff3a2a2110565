package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"salonsched/internal/config"

	"github.com/rs/zerolog"
)

// BackupService takes periodic snapshots of the SQLite database.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	now    func() time.Time
	logger zerolog.Logger
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "backup").Logger()
	}
	return &BackupService{db: db, config: cfg, now: time.Now, logger: l}
}

// Start runs the backup loop until ctx is cancelled. The first snapshot is
// taken a minute after start so it does not compete with startup work.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	interval := s.config.Interval()
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	s.logger.Info().Dur("interval", interval).Str("path", s.config.Path).Msg("Backup service started")

	first := time.NewTimer(time.Minute)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-first.C:
		s.run(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *BackupService) run(ctx context.Context) {
	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled backup failed")
		return
	}
	s.CleanupOldBackups()
}

// PerformBackup writes a consistent snapshot with VACUUM INTO and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.Path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("backup_%s.db", s.now().Format("20060102_150405"))
	dest := filepath.Join(s.config.Path, name)

	s.logger.Info().Str("path", dest).Msg("Performing database backup")
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", dest, err)
	}

	s.logger.Info().Msg("Backup completed successfully")
	return dest, nil
}

// CleanupOldBackups removes snapshots older than the retention period.
func (s *BackupService) CleanupOldBackups() int {
	if s.config.RetentionDays <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.config.Path)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), "backup_") {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(s.config.Path, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete old backup")
				continue
			}
			removed++
		}
	}
	return removed
}
