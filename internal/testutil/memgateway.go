// Package testutil provides shared test doubles and fixtures.
package testutil

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/models"

	"github.com/goccy/go-json"
)

// Call records one gateway data call.
type Call struct {
	Op     string
	Table  string
	Filter gateway.Filter
}

type row = map[string]any

// uniqueKeys are the column sets that must be unique per table.
var uniqueKeys = map[string][][]string{
	gateway.TableUsers:        {{"id"}, {"username_lower"}},
	gateway.TablePosts:        {{"id"}},
	gateway.TableComments:     {{"id"}},
	gateway.TableLikes:        {{"post_id", "user_id"}},
	gateway.TableReposts:      {{"post_id", "user_id"}},
	gateway.TableCommentLikes: {{"comment_id", "user_id"}},
	gateway.TableFollows:      {{"follower_id", "following_id"}},
}

// MemData is an in-memory gateway.Data. Rows are stored in their JSON shape
// so filters see exactly the columns the hosted API would.
type MemData struct {
	mu     sync.Mutex
	tables map[string][]row
	calls  []Call
	fail   map[string]error

	// Hook, when set, runs before every call outside the lock. A non-nil
	// result fails the call. Tests use it to block or to count.
	Hook func(ctx context.Context, c Call) error
}

// NewMemData creates an empty store.
func NewMemData() *MemData {
	return &MemData{tables: map[string][]row{}, fail: map[string]error{}}
}

// FailOn makes every op on table fail with err. An empty table matches all
// tables; a nil err clears the rule.
func (m *MemData) FailOn(op, table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := op + ":" + table
	if err == nil {
		delete(m.fail, key)
		return
	}
	m.fail[key] = err
}

// Put stores rows without recording a call or checking uniqueness.
func (m *MemData) Put(table string, rows ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.tables[table] = append(m.tables[table], normalize(r))
	}
}

// Rows returns a copy of the stored rows of table.
func (m *MemData) Rows(table string) []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, len(m.tables[table]))
	for i, r := range m.tables[table] {
		out[i] = clone(r)
	}
	return out
}

// Calls returns the recorded calls.
func (m *MemData) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount counts recorded calls of op on table; an empty table counts all.
func (m *MemData) CallCount(op, table string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Op == op && (table == "" || c.Table == table) {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded calls.
func (m *MemData) ResetCalls() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

func (m *MemData) begin(ctx context.Context, c Call) error {
	if m.Hook != nil {
		if err := m.Hook(ctx, c); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return models.NewTransportError(c.Op+" "+c.Table, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	if err, ok := m.fail[c.Op+":"+c.Table]; ok {
		return err
	}
	if err, ok := m.fail[c.Op+":"]; ok {
		return err
	}
	return nil
}

// Select implements gateway.Data.
func (m *MemData) Select(ctx context.Context, table string, q gateway.Query, dest any) error {
	if err := m.begin(ctx, Call{Op: "select", Table: table, Filter: q.Filter}); err != nil {
		return err
	}
	m.mu.Lock()
	var out []row
	for _, r := range m.tables[table] {
		if matchAll(r, q.Filter) {
			out = append(out, clone(r))
		}
	}
	m.mu.Unlock()

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compare(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	if len(q.Columns) > 0 {
		for i, r := range out {
			p := row{}
			for _, col := range q.Columns {
				if v, ok := r[col]; ok {
					p[col] = v
				}
			}
			out[i] = p
		}
	}
	if out == nil {
		out = []row{}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}

// Insert implements gateway.Data.
func (m *MemData) Insert(ctx context.Context, table string, r any) error {
	if err := m.begin(ctx, Call{Op: "insert", Table: table}); err != nil {
		return err
	}
	n := normalize(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, keys := range uniqueKeys[table] {
		if m.indexOf(table, n, keys) >= 0 {
			return models.NewConflictError(fmt.Sprintf("duplicate %s %v", table, keys), nil)
		}
	}
	m.tables[table] = append(m.tables[table], n)
	return nil
}

// Upsert implements gateway.Data.
func (m *MemData) Upsert(ctx context.Context, table string, r any, onConflict ...string) error {
	if err := m.begin(ctx, Call{Op: "upsert", Table: table}); err != nil {
		return err
	}
	keys := onConflict
	if len(keys) == 0 && len(uniqueKeys[table]) > 0 {
		keys = uniqueKeys[table][0]
	}
	n := normalize(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(table, n, keys)
	for _, other := range uniqueKeys[table] {
		if j := m.indexOf(table, n, other); j >= 0 && j != i {
			return models.NewConflictError(fmt.Sprintf("duplicate %s %v", table, other), nil)
		}
	}
	if i < 0 {
		m.tables[table] = append(m.tables[table], n)
		return nil
	}
	for k, v := range n {
		m.tables[table][i][k] = v
	}
	return nil
}

// Update implements gateway.Data.
func (m *MemData) Update(ctx context.Context, table string, f gateway.Filter, values map[string]any) error {
	if f.EmptyIn() {
		return nil
	}
	if err := m.begin(ctx, Call{Op: "update", Table: table, Filter: f}); err != nil {
		return err
	}
	n := normalize(values)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.tables[table] {
		if !matchAll(r, f) {
			continue
		}
		for k, v := range n {
			r[k] = v
		}
	}
	return nil
}

// Delete implements gateway.Data.
func (m *MemData) Delete(ctx context.Context, table string, f gateway.Filter) error {
	if f.EmptyIn() {
		return nil
	}
	if err := m.begin(ctx, Call{Op: "delete", Table: table, Filter: f}); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.tables[table][:0]
	for _, r := range m.tables[table] {
		if !matchAll(r, f) {
			kept = append(kept, r)
		}
	}
	m.tables[table] = kept
	return nil
}

// Count implements gateway.Data.
func (m *MemData) Count(ctx context.Context, table string, f gateway.Filter) (int, error) {
	if f.EmptyIn() {
		return 0, nil
	}
	if err := m.begin(ctx, Call{Op: "count", Table: table, Filter: f}); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.tables[table] {
		if matchAll(r, f) {
			n++
		}
	}
	return n, nil
}

func (m *MemData) indexOf(table string, n row, keys []string) int {
	if len(keys) == 0 {
		return -1
	}
	for i, r := range m.tables[table] {
		same := true
		for _, k := range keys {
			if n[k] == nil || fmt.Sprint(r[k]) != fmt.Sprint(n[k]) {
				same = false
				break
			}
		}
		if same {
			return i
		}
	}
	return -1
}

func normalize(v any) row {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: cannot encode row: %v", err))
	}
	out := row{}
	if err := json.Unmarshal(b, &out); err != nil {
		panic(fmt.Sprintf("testutil: row is not an object: %v", err))
	}
	return out
}

func normalizeValue(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func clone(r row) row {
	out := make(row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func matchAll(r row, f gateway.Filter) bool {
	for _, c := range f {
		if !match(r, c) {
			return false
		}
	}
	return true
}

func match(r row, c gateway.Condition) bool {
	switch c.Op {
	case gateway.OpIn:
		got := fmt.Sprint(r[c.Column])
		for _, v := range c.Values {
			if got == v {
				return true
			}
		}
		return false
	case gateway.OpILike:
		s, ok := r[c.Column].(string)
		if !ok {
			return false
		}
		pattern, _ := c.Value.(string)
		return likeRegexp(pattern).MatchString(s)
	case gateway.OpOr:
		for _, a := range c.Any {
			if match(r, a) {
				return true
			}
		}
		return false
	default:
		return fmt.Sprint(r[c.Column]) == fmt.Sprint(normalizeValue(c.Value))
	}
}

// likeRegexp translates a LIKE pattern with backslash escapes.
func likeRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	escaped := false
	for _, ch := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(ch)))
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == '%':
			b.WriteString(".*")
		case ch == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func compare(a, b any) int {
	switch x := a.(type) {
	case float64:
		y, _ := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		y, _ := b.(string)
		if tx, err := time.Parse(time.RFC3339Nano, x); err == nil {
			if ty, err := time.Parse(time.RFC3339Nano, y); err == nil {
				return tx.Compare(ty)
			}
		}
		return strings.Compare(x, y)
	}
	return 0
}
