package echoapi

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trucvy/vietschool/core"
	"github.com/trucvy/vietschool/core/payment"
)

type paymentApi struct {
	svc      payment.Service
	validate *validator.Validate
}

func registerPaymentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc payment.Service,
	validate *validator.Validate,
) {
	api := paymentApi{
		svc:      svc,
		validate: validate,
	}

	// the whole payment surface is admin only
	pg := g.Group("/payments", jwt, adminMiddleware())

	pg.GET("", api.query)
	pg.GET("/summary", api.summary)
	pg.GET("/export/csv", api.exportCSV)
	pg.GET("/enrolled-families", api.enrolledFamilies)
	pg.GET("/enrolled-families/summary", api.enrolledFamiliesSummary)
	pg.POST("", api.create)
	pg.GET("/:id", api.retrieve)
	pg.PUT("/:id", api.update)
	pg.DELETE("/:id", api.destroy)
	pg.POST("/mark-paid/:familyID", api.markPaid)
}

// Handlers

func (api *paymentApi) create(ctx echo.Context) error {
	var data payment.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	pmt, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		if errors.Cause(err) == payment.ErrFamilyNotFound {
			return core.NewValidationError(err,
				core.FieldError{Field: "family_id", Error: err.Error()})
		}
		return errors.Wrap(err, "creating payment")
	}
	return ctx.JSON(http.StatusCreated, pmt)
}

func (api *paymentApi) query(ctx echo.Context) error {
	filter := new(payment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	pg, err := bindPagination(ctx)
	if err != nil {
		return err
	}

	page, err := api.svc.Query(ctx.Request().Context(), filter, pg, forceRefresh(ctx))
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *paymentApi) summary(ctx echo.Context) error {
	summary, err := api.svc.Summary(ctx.Request().Context(), ctx.QueryParam("school_year"))
	if err != nil {
		return errors.Wrap(err, "summarizing payments")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	pmt, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return trapPaymentErr(err, "finding payment by ID")
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *paymentApi) update(ctx echo.Context) error {
	var data payment.UpdatePayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePayment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	pmt, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return trapPaymentErr(err, "updating payment")
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *paymentApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return trapPaymentErr(err, "deleting payment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *paymentApi) markPaid(ctx echo.Context) error {
	var data payment.MarkPaid
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkPaid")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	pmt, err := api.svc.MarkPaid(ctx.Request().Context(), ctx.Param("familyID"), data)
	if err != nil {
		return trapPaymentErr(err, "marking family paid")
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *paymentApi) enrolledFamilies(ctx echo.Context) error {
	yearID := 0
	if raw := ctx.QueryParam("school_year_id"); raw != "" {
		var err error
		if yearID, err = strconv.Atoi(raw); err != nil {
			return core.NewValidationError(err,
				core.FieldError{Field: "school_year_id", Error: "invalid school year id"})
		}
	}

	report, err := api.svc.EnrolledFamilies(ctx.Request().Context(), yearID)
	if err != nil {
		return trapYearErr(err, "reporting enrolled families")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *paymentApi) enrolledFamiliesSummary(ctx echo.Context) error {
	sum, err := api.svc.EnrolledFamiliesSummary(ctx.Request().Context())
	if err != nil {
		return trapYearErr(err, "summarizing enrolled families")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *paymentApi) exportCSV(ctx echo.Context) error {
	var buf bytes.Buffer
	filename, err := api.svc.ExportCSV(
		ctx.Request().Context(),
		ctx.QueryParam("school_year"),
		ctx.QueryParam("payment_status"),
		&buf,
	)
	if err != nil {
		return errors.Wrap(err, "exporting payments")
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return ctx.Blob(http.StatusOK, "text/csv", buf.Bytes())
}

func trapPaymentErr(err error, msg string) error {
	switch errors.Cause(err) {
	case payment.ErrNotFound, payment.ErrFamilyNotFound:
		return errHttpNotFound
	}
	return errors.Wrap(err, msg)
}
