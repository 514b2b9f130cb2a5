package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trucvy/vietschool/core/schoolyear"
)

type schoolYearApi struct {
	svc      schoolyear.Service
	validate *validator.Validate
}

func registerSchoolYearAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc schoolyear.Service,
	validate *validator.Validate,
) {
	api := schoolYearApi{
		svc:      svc,
		validate: validate,
	}

	yg := g.Group("/school-years", jwt)

	yg.GET("", api.query)
	yg.GET("/newest", api.newest)
	yg.GET("/active", api.active)
	yg.GET("/:id", api.retrieve)

	admin := adminMiddleware()
	yg.POST("", api.create, admin)
	yg.PUT("/:id", api.update, admin)
	yg.DELETE("/:id", api.destroy, admin)
	yg.POST("/transition", api.transition, admin)
	yg.POST("/check-auto-create", api.checkAutoCreate, admin)
	yg.POST("/check-transition", api.checkTransition, admin)

	// legacy read-only aliases kept for older clients
	lg := g.Group("/academic-years", jwt)
	lg.GET("", api.query)
	lg.GET("/current", api.active)
}

// Handlers

func (api *schoolYearApi) query(ctx echo.Context) error {
	includeArchived, _ := strconv.ParseBool(ctx.QueryParam("include_archived"))

	years, err := api.svc.Query(ctx.Request().Context(), includeArchived)
	if err != nil {
		return errors.Wrap(err, "querying school years")
	}
	if years == nil {
		years = []schoolyear.WithStats{}
	}
	return ctx.JSON(http.StatusOK, years)
}

func (api *schoolYearApi) newest(ctx echo.Context) error {
	year, err := api.svc.Newest(ctx.Request().Context())
	if err != nil {
		return trapYearErr(err, "finding newest school year")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *schoolYearApi) active(ctx echo.Context) error {
	year, err := api.svc.Active(ctx.Request().Context())
	if err != nil {
		return trapYearErr(err, "finding active school year")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *schoolYearApi) retrieve(ctx echo.Context) error {
	id, err := yearID(ctx)
	if err != nil {
		return err
	}

	year, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return trapYearErr(err, "finding school year by ID")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *schoolYearApi) create(ctx echo.Context) error {
	var data schoolyear.NewSchoolYear
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchoolYear")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	year, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating school year")
	}
	return ctx.JSON(http.StatusCreated, year)
}

func (api *schoolYearApi) update(ctx echo.Context) error {
	id, err := yearID(ctx)
	if err != nil {
		return err
	}

	var data schoolyear.UpdateSchoolYear
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchoolYear")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	year, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return trapYearErr(err, "updating school year")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *schoolYearApi) destroy(ctx echo.Context) error {
	id, err := yearID(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return trapYearErr(err, "deleting school year")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolYearApi) transition(ctx echo.Context) error {
	var data schoolyear.TransitionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TransitionRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Transition(ctx.Request().Context(), data.NewActiveYearID)
	if err != nil {
		return trapYearErr(err, "transitioning school year")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *schoolYearApi) checkAutoCreate(ctx echo.Context) error {
	check, err := api.svc.CheckAutoCreate(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "checking school year auto-create")
	}
	return ctx.JSON(http.StatusOK, check)
}

func (api *schoolYearApi) checkTransition(ctx echo.Context) error {
	check, err := api.svc.CheckTransition(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "checking school year transition")
	}
	return ctx.JSON(http.StatusOK, check)
}

func yearID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}

func trapYearErr(err error, msg string) error {
	switch errors.Cause(err) {
	case schoolyear.ErrNotFound, schoolyear.ErrYearNotFound:
		return errHttpNotFound
	}
	return errors.Wrap(err, msg)
}
