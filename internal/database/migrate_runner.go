package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"frzterr/internal/gateway/sqlstore"
	"frzterr/internal/middleware"

	"gorm.io/gorm"
)

// Method says how a database gets its schema.
type Method string

const (
	// MethodSQL applies the versioned scripts. They are written for postgres.
	MethodSQL Method = "sql"
	// MethodModels runs gorm AutoMigrate over the sqlstore models and
	// records the script level it corresponds to.
	MethodModels Method = "models"
)

func methodFor(db *gorm.DB) Method {
	if db.Dialector.Name() == "postgres" {
		return MethodSQL
	}
	return MethodModels
}

// ledgerEntry is one row of migration_logs.
type ledgerEntry struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	Method    string    `gorm:"size:16;not null"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (ledgerEntry) TableName() string { return "migration_logs" }

const ensureLedgerSQL = `
CREATE TABLE IF NOT EXISTS migration_logs (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	method VARCHAR(16) NOT NULL DEFAULT 'sql',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// SchemaStatus reports how the schema of a database is managed and what is
// pending or missing.
type SchemaStatus struct {
	Dialect       string
	Method        Method
	Applied       []int
	Pending       []Script
	MissingTables []string
}

// Migrator keeps the sql backend's tables in step with the tables the
// gateway reads.
type Migrator struct {
	db      *gorm.DB
	method  Method
	scripts []Script
}

// NewMigrator picks the migration method from the dialect of db.
func NewMigrator(db *gorm.DB) (*Migrator, error) {
	scripts, err := Scripts()
	if err != nil {
		return nil, err
	}
	if len(scripts) == 0 {
		return nil, errors.New("no migrations embedded")
	}
	return &Migrator{db: db, method: methodFor(db), scripts: scripts}, nil
}

// Method returns how this database gets its schema.
func (m *Migrator) Method() Method { return m.method }

// Up applies what is pending and checks that every sqlstore table exists
// afterwards.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureLedger(ctx); err != nil {
		return err
	}
	applied, err := m.ledger(ctx)
	if err != nil {
		return err
	}
	if err := m.checkLedger(applied); err != nil {
		return err
	}

	if m.method == MethodSQL {
		err = m.upSQL(ctx, applied)
	} else {
		err = m.upModels(ctx, applied)
	}
	if err != nil {
		return err
	}

	missing, err := m.missingTables(ctx)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema is missing tables after %s migration: %s", m.method, strings.Join(missing, ", "))
	}
	return nil
}

func (m *Migrator) upSQL(ctx context.Context, applied []ledgerEntry) error {
	done := make(map[int]bool, len(applied))
	for _, e := range applied {
		done[e.Version] = true
	}
	for _, s := range m.scripts {
		if done[s.Version] {
			continue
		}
		middleware.Logger.InfoContext(ctx, "Applying migration", slog.String("migration", s.String()))
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(s.Up).Error; err != nil {
				return err
			}
			return tx.Create(&ledgerEntry{Version: s.Version, Name: s.Name, Method: string(MethodSQL)}).Error
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", s, err)
		}
	}
	return nil
}

func (m *Migrator) upModels(ctx context.Context, applied []ledgerEntry) error {
	middleware.Logger.InfoContext(ctx, "Running GORM AutoMigrate", slog.String("dialect", m.db.Dialector.Name()))
	if err := sqlstore.Migrate(m.db.WithContext(ctx)); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	latest := m.scripts[len(m.scripts)-1]
	if level(applied) >= latest.Version {
		return nil
	}
	entry := ledgerEntry{Version: latest.Version, Name: latest.Name, Method: string(MethodModels)}
	if err := m.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("record schema level %s: %w", latest, err)
	}
	return nil
}

// Down reverts one applied script. Databases migrated from the models have
// no down path; they are rebuilt instead.
func (m *Migrator) Down(ctx context.Context, version int) error {
	if m.method != MethodSQL {
		return fmt.Errorf("rollback needs sql migrations; %s databases are rebuilt from the models", m.db.Dialector.Name())
	}
	var script *Script
	for i := range m.scripts {
		if m.scripts[i].Version == version {
			script = &m.scripts[i]
		}
	}
	if script == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	applied, err := m.ledger(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, e := range applied {
		found = found || e.Version == version
	}
	if !found {
		return fmt.Errorf("migration %d has not been applied", version)
	}

	middleware.Logger.InfoContext(ctx, "Rolling back migration", slog.String("migration", script.String()))
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(script.Down).Error; err != nil {
			return fmt.Errorf("rollback %s: %w", script, err)
		}
		return tx.Where("version = ?", version).Delete(&ledgerEntry{}).Error
	})
}

// Status describes the schema without changing it.
func (m *Migrator) Status(ctx context.Context) (*SchemaStatus, error) {
	applied, err := m.ledger(ctx)
	if err != nil {
		return nil, err
	}
	status := &SchemaStatus{Dialect: m.db.Dialector.Name(), Method: m.method}
	done := make(map[int]bool, len(applied))
	for _, e := range applied {
		status.Applied = append(status.Applied, e.Version)
		done[e.Version] = true
	}

	top := level(applied)
	for _, s := range m.scripts {
		if (m.method == MethodSQL && !done[s.Version]) || (m.method == MethodModels && s.Version > top) {
			status.Pending = append(status.Pending, s)
		}
	}

	if status.MissingTables, err = m.missingTables(ctx); err != nil {
		return nil, err
	}
	return status, nil
}

func (m *Migrator) ensureLedger(ctx context.Context) error {
	var err error
	if m.method == MethodSQL {
		err = m.db.WithContext(ctx).Exec(ensureLedgerSQL).Error
	} else {
		err = m.db.WithContext(ctx).AutoMigrate(&ledgerEntry{})
	}
	if err != nil {
		return fmt.Errorf("ensure migration_logs: %w", err)
	}
	return nil
}

func (m *Migrator) ledger(ctx context.Context) ([]ledgerEntry, error) {
	var entries []ledgerEntry
	if err := m.db.WithContext(ctx).Order("version ASC").Find(&entries).Error; err != nil {
		if isMissingTableError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migration_logs: %w", err)
	}
	return entries, nil
}

// checkLedger rejects a ledger written by another method or by scripts this
// build does not have.
func (m *Migrator) checkLedger(applied []ledgerEntry) error {
	known := make(map[int]bool, len(m.scripts))
	for _, s := range m.scripts {
		known[s.Version] = true
	}

	var unknown []int
	for _, e := range applied {
		if e.Method != "" && Method(e.Method) != m.method {
			return fmt.Errorf("migration_logs records %s migrations but %s databases use %s",
				e.Method, m.db.Dialector.Name(), m.method)
		}
		if !known[e.Version] {
			unknown = append(unknown, e.Version)
		}
	}
	if len(unknown) == 0 {
		return nil
	}

	sort.Ints(unknown)
	parts := make([]string, 0, len(unknown))
	for _, version := range unknown {
		parts = append(parts, fmt.Sprintf("%06d", version))
	}
	return fmt.Errorf("migration_logs contains versions this build does not know: %s", strings.Join(parts, ", "))
}

func (m *Migrator) missingTables(ctx context.Context) ([]string, error) {
	tables, err := m.db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	have := make(map[string]bool, len(tables))
	for _, t := range tables {
		have[t] = true
	}
	var missing []string
	for _, t := range sqlstore.Tables() {
		if !have[t] {
			missing = append(missing, t)
		}
	}
	return missing, nil
}

func level(applied []ledgerEntry) int {
	top := 0
	for _, e := range applied {
		top = max(top, e.Version)
	}
	return top
}

func isMissingTableError(err error) bool {
	msg := err.Error()
	return (strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) ||
		strings.Contains(msg, "no such table")
}

// ApplySchema brings db up to date.
func ApplySchema(ctx context.Context, db *gorm.DB) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}
	return m.Up(ctx)
}

// GetSchemaStatus describes the schema state of db.
func GetSchemaStatus(ctx context.Context, db *gorm.DB) (*SchemaStatus, error) {
	m, err := NewMigrator(db)
	if err != nil {
		return nil, err
	}
	return m.Status(ctx)
}

// RollbackMigration reverts the script with version.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}
	return m.Down(ctx, version)
}
