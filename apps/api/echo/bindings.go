package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trucvy/vietschool/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

func bindPagination(ctx echo.Context) (core.Pagination, error) {
	var pg core.Pagination
	if err := ctx.Bind(&pg); err != nil {
		return pg, errors.Wrap(err, "binding to Pagination")
	}
	pg.Clean()
	return pg, nil
}

// forceRefresh reports whether the request asked to bypass the list cache.
func forceRefresh(ctx echo.Context) bool {
	return ctx.QueryParam("refresh") == "true"
}
