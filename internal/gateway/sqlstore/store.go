// Package sqlstore implements the gateway data contract on a relational
// database through gorm. It backs local development, seeding and
// integration tests; the hosted backend is reached through package rest.
package sqlstore

import (
	"context"
	"errors"
	"sort"
	"strings"

	"frzterr/internal/gateway"
	"frzterr/internal/models"
	"frzterr/internal/observability"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const backendName = "sql"

// primaryKeys is the default conflict target of Upsert per table.
var primaryKeys = map[string][]string{
	gateway.TableUsers:        {"id"},
	gateway.TablePosts:        {"id"},
	gateway.TableComments:     {"id"},
	gateway.TableLikes:        {"post_id", "user_id"},
	gateway.TableReposts:      {"post_id", "user_id"},
	gateway.TableCommentLikes: {"comment_id", "user_id"},
	gateway.TableFollows:      {"follower_id", "following_id"},
}

// rowModel returns an empty row of table for gorm calls that need a model.
func rowModel(table string) any {
	switch table {
	case gateway.TableUsers:
		return &models.User{}
	case gateway.TablePosts:
		return &models.Post{}
	case gateway.TableComments:
		return &models.Comment{}
	case gateway.TableLikes:
		return &models.Like{}
	case gateway.TableReposts:
		return &models.Repost{}
	case gateway.TableCommentLikes:
		return &models.CommentLike{}
	case gateway.TableFollows:
		return &models.Follow{}
	default:
		return map[string]any{}
	}
}

// Migrate creates or updates every table the client core reads.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Like{},
		&models.Repost{},
		&models.Comment{},
		&models.CommentLike{},
		&models.Follow{},
		&identity{},
	)
}

// Tables lists every table Migrate manages, parents first.
func Tables() []string {
	return []string{
		gateway.TableUsers,
		gateway.TablePosts,
		gateway.TableLikes,
		gateway.TableReposts,
		gateway.TableComments,
		gateway.TableCommentLikes,
		gateway.TableFollows,
		identity{}.TableName(),
	}
}

// Store implements gateway.Data.
type Store struct {
	db  *gorm.DB
	log *observability.GatewayLogger
}

// New wraps db.
func New(db *gorm.DB) *Store {
	return &Store{db: db, log: observability.NewGatewayLogger(backendName)}
}

func (s *Store) call(ctx context.Context, op, table string, fn func(tx *gorm.DB) error) error {
	done := observability.TrackGatewayCall(backendName, op, table)
	err := fn(s.db.WithContext(ctx).Table(table))
	if err != nil {
		err = mapError(op+" "+table, err)
		s.log.LogError(ctx, err, op, table)
		done(models.CodeOf(err))
		return err
	}
	s.log.LogCall(ctx, op, table, nil)
	done("")
	return nil
}

// Select implements gateway.Data.
func (s *Store) Select(ctx context.Context, table string, q gateway.Query, dest any) error {
	if q.Filter.EmptyIn() {
		return json.Unmarshal([]byte("[]"), dest)
	}
	return s.call(ctx, "select", table, func(tx *gorm.DB) error {
		tx = applyFilter(tx, q.Filter)
		if len(q.Columns) > 0 {
			tx = tx.Select(q.Columns)
		}
		if q.OrderBy != "" {
			tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: q.OrderBy}, Desc: q.Desc})
		}
		if q.Limit > 0 {
			tx = tx.Limit(q.Limit)
		}
		return tx.Find(dest).Error
	})
}

// Insert implements gateway.Data.
func (s *Store) Insert(ctx context.Context, table string, row any) error {
	return s.call(ctx, "insert", table, func(tx *gorm.DB) error {
		return tx.Create(row).Error
	})
}

// Upsert implements gateway.Data.
func (s *Store) Upsert(ctx context.Context, table string, row any, onConflict ...string) error {
	keys := onConflict
	if len(keys) == 0 {
		keys = primaryKeys[table]
	}
	cols := make([]clause.Column, len(keys))
	for i, k := range keys {
		cols[i] = clause.Column{Name: k}
	}

	conflict := clause.OnConflict{Columns: cols, UpdateAll: true}
	if m, ok := row.(map[string]any); ok {
		conflict.UpdateAll = false
		conflict.DoUpdates = clause.AssignmentColumns(updatableColumns(m, keys))
		if len(conflict.DoUpdates) == 0 {
			conflict.DoNothing = true
		}
	}
	return s.call(ctx, "upsert", table, func(tx *gorm.DB) error {
		return tx.Clauses(conflict).Create(row).Error
	})
}

func updatableColumns(m map[string]any, keys []string) []string {
	skip := make(map[string]bool, len(keys))
	for _, k := range keys {
		skip[k] = true
	}
	cols := make([]string, 0, len(m))
	for k := range m {
		if !skip[k] {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	return cols
}

// Update implements gateway.Data.
func (s *Store) Update(ctx context.Context, table string, f gateway.Filter, values map[string]any) error {
	if f.EmptyIn() {
		return nil
	}
	return s.call(ctx, "update", table, func(tx *gorm.DB) error {
		return applyFilter(tx, f).Updates(values).Error
	})
}

// Delete implements gateway.Data.
func (s *Store) Delete(ctx context.Context, table string, f gateway.Filter) error {
	if f.EmptyIn() {
		return nil
	}
	return s.call(ctx, "delete", table, func(tx *gorm.DB) error {
		return applyFilter(tx, f).Delete(rowModel(table)).Error
	})
}

// Count implements gateway.Data.
func (s *Store) Count(ctx context.Context, table string, f gateway.Filter) (int, error) {
	if f.EmptyIn() {
		return 0, nil
	}
	var n int64
	err := s.call(ctx, "count", table, func(tx *gorm.DB) error {
		return applyFilter(tx, f).Count(&n).Error
	})
	return int(n), err
}

func applyFilter(tx *gorm.DB, f gateway.Filter) *gorm.DB {
	for _, c := range f {
		tx = tx.Where(expression(c))
	}
	return tx
}

func expression(c gateway.Condition) clause.Expression {
	col := clause.Column{Name: c.Column}
	switch c.Op {
	case gateway.OpIn:
		values := make([]any, len(c.Values))
		for i, v := range c.Values {
			values[i] = v
		}
		return clause.IN{Column: col, Values: values}
	case gateway.OpILike:
		return clause.Expr{SQL: `LOWER(?) LIKE LOWER(?) ESCAPE '\'`, Vars: []any{col, c.Value}}
	case gateway.OpOr:
		exprs := make([]clause.Expression, len(c.Any))
		for i, a := range c.Any {
			exprs[i] = expression(a)
		}
		return clause.Or(exprs...)
	default:
		return clause.Eq{Column: col, Value: c.Value}
	}
}

func mapError(op string, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey),
		errors.As(err, &pgErr) && pgErr.Code == "23505",
		strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return models.NewConflictError(op+": already exists", err)
	default:
		return models.NewTransportError(op, err)
	}
}
