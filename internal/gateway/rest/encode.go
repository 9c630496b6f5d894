package rest

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"frzterr/internal/gateway"
)

// encodeFilter renders f in PostgREST query syntax. Top-level conditions
// become column=op.value pairs; OR groups become or=(...).
func encodeFilter(f gateway.Filter, params url.Values) {
	for _, c := range f {
		if c.Op == gateway.OpOr {
			params.Add("or", "("+encodeGroup(c.Any)+")")
			continue
		}
		params.Add(c.Column, encodeOperand(c, false))
	}
}

func encodeGroup(conds []gateway.Condition) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		if c.Op == gateway.OpOr {
			parts = append(parts, "or("+encodeGroup(c.Any)+")")
			continue
		}
		parts = append(parts, c.Column+"."+encodeOperand(c, true))
	}
	return strings.Join(parts, ",")
}

// encodeOperand renders "op.value". Inside an or=() group values holding
// reserved characters must be double-quoted.
func encodeOperand(c gateway.Condition, grouped bool) string {
	switch c.Op {
	case gateway.OpIn:
		quoted := make([]string, len(c.Values))
		for i, v := range c.Values {
			quoted[i] = quote(v)
		}
		return "in.(" + strings.Join(quoted, ",") + ")"
	case gateway.OpILike:
		v := likePattern(fmt.Sprint(c.Value))
		if grouped {
			v = quoteIfReserved(v)
		}
		return "ilike." + v
	default:
		v := formatValue(c.Value)
		if grouped {
			v = quoteIfReserved(v)
		}
		return "eq." + v
	}
}

// likePattern swaps unescaped % wildcards for PostgREST's URL-safe *.
func likePattern(p string) string {
	var b strings.Builder
	escaped := false
	for _, r := range p {
		switch {
		case escaped:
			b.WriteRune('\\')
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteRune('*')
		default:
			b.WriteRune(r)
		}
	}
	if escaped {
		b.WriteRune('\\')
	}
	return b.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case *string:
		if x == nil {
			return "null"
		}
		return *x
	default:
		return fmt.Sprint(x)
	}
}

func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

func quoteIfReserved(v string) string {
	if strings.ContainsAny(v, `,.:()" `) {
		return quote(v)
	}
	return v
}

// encodeQuery renders projection, order and limit next to the filter.
func encodeQuery(q gateway.Query) url.Values {
	params := url.Values{}
	sel := "*"
	if len(q.Columns) > 0 {
		sel = strings.Join(q.Columns, ",")
	}
	params.Set("select", sel)
	encodeFilter(q.Filter, params)
	if q.OrderBy != "" {
		dir := "asc"
		if q.Desc {
			dir = "desc"
		}
		params.Set("order", q.OrderBy+"."+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return params
}
