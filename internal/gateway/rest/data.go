package rest

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"frzterr/internal/gateway"
	"frzterr/internal/models"

	"github.com/goccy/go-json"
)

// tokenSource yields the bearer token of the signed-in user, or "".
type tokenSource interface {
	AccessToken() string
}

// Data implements gateway.Data over PostgREST.
type Data struct {
	t      *transport
	tokens tokenSource
}

// NewData creates a PostgREST data client.
func NewData(t *transport, tokens tokenSource) *Data {
	return &Data{t: t, tokens: tokens}
}

func tablePath(table string) string {
	return "/rest/v1/" + url.PathEscape(table)
}

func (d *Data) token() string {
	if d.tokens == nil {
		return ""
	}
	return d.tokens.AccessToken()
}

// Select implements gateway.Data.
func (d *Data) Select(ctx context.Context, table string, q gateway.Query, dest any) error {
	if q.Filter.EmptyIn() {
		return json.Unmarshal([]byte("[]"), dest)
	}
	return d.t.call(ctx, "select", table, func(ctx context.Context) error {
		resp, err := d.t.request(ctx, d.token()).
			SetQueryParamsFromValues(encodeQuery(q)).
			SetHeader("Accept", "application/json").
			Get(tablePath(table))
		if err := checkResponse("select "+table, resp, err); err != nil {
			return err
		}
		if err := json.Unmarshal(resp.Body(), dest); err != nil {
			return models.NewTransportError("decode "+table, err)
		}
		return nil
	})
}

// Insert implements gateway.Data.
func (d *Data) Insert(ctx context.Context, table string, row any) error {
	return d.t.call(ctx, "insert", table, func(ctx context.Context) error {
		resp, err := d.t.request(ctx, d.token()).
			SetHeader("Content-Type", "application/json").
			SetHeader("Prefer", "return=minimal").
			SetBody(row).
			Post(tablePath(table))
		return checkResponse("insert "+table, resp, err)
	})
}

// Upsert implements gateway.Data. onConflict names the unique columns used
// to detect an existing row; the primary key is used when empty.
func (d *Data) Upsert(ctx context.Context, table string, row any, onConflict ...string) error {
	return d.t.call(ctx, "upsert", table, func(ctx context.Context) error {
		req := d.t.request(ctx, d.token()).
			SetHeader("Content-Type", "application/json").
			SetHeader("Prefer", "resolution=merge-duplicates,return=minimal").
			SetBody(row)
		if len(onConflict) > 0 {
			req.SetQueryParam("on_conflict", strings.Join(onConflict, ","))
		}
		resp, err := req.Post(tablePath(table))
		return checkResponse("upsert "+table, resp, err)
	})
}

// Update implements gateway.Data.
func (d *Data) Update(ctx context.Context, table string, f gateway.Filter, values map[string]any) error {
	if f.EmptyIn() {
		return nil
	}
	params := url.Values{}
	encodeFilter(f, params)
	return d.t.call(ctx, "update", table, func(ctx context.Context) error {
		resp, err := d.t.request(ctx, d.token()).
			SetQueryParamsFromValues(params).
			SetHeader("Content-Type", "application/json").
			SetHeader("Prefer", "return=minimal").
			SetBody(values).
			Patch(tablePath(table))
		return checkResponse("update "+table, resp, err)
	})
}

// Delete implements gateway.Data.
func (d *Data) Delete(ctx context.Context, table string, f gateway.Filter) error {
	if f.EmptyIn() {
		return nil
	}
	params := url.Values{}
	encodeFilter(f, params)
	return d.t.call(ctx, "delete", table, func(ctx context.Context) error {
		resp, err := d.t.request(ctx, d.token()).
			SetQueryParamsFromValues(params).
			SetHeader("Prefer", "return=minimal").
			Delete(tablePath(table))
		return checkResponse("delete "+table, resp, err)
	})
}

// Count implements gateway.Data using an exact count in Content-Range.
func (d *Data) Count(ctx context.Context, table string, f gateway.Filter) (int, error) {
	if f.EmptyIn() {
		return 0, nil
	}
	params := url.Values{}
	params.Set("select", "*")
	encodeFilter(f, params)

	var n int
	err := d.t.call(ctx, "count", table, func(ctx context.Context) error {
		resp, err := d.t.request(ctx, d.token()).
			SetQueryParamsFromValues(params).
			SetHeader("Prefer", "count=exact").
			Head(tablePath(table))
		if err := checkResponse("count "+table, resp, err); err != nil {
			return err
		}
		n, err = parseContentRange(resp.Header().Get("Content-Range"))
		if err != nil {
			return models.NewTransportError("count "+table, err)
		}
		return nil
	})
	return n, err
}

// parseContentRange reads the total from "0-9/42" or "*/0".
func parseContentRange(v string) (int, error) {
	i := strings.LastIndex(v, "/")
	if i < 0 || i == len(v)-1 {
		return 0, fmt.Errorf("malformed Content-Range %q", v)
	}
	total := v[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("count not provided in Content-Range %q", v)
	}
	return strconv.Atoi(total)
}
