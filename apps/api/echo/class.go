package echoapi

import (
	"bytes"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trucvy/vietschool/core/class"
)

type classApi struct {
	svc      class.Service
	validate *validator.Validate
}

func registerClassAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc class.Service,
	validate *validator.Validate,
) {
	api := classApi{
		svc:      svc,
		validate: validate,
	}

	cg := g.Group("/classes", jwt)

	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)
	cg.GET("/:id/export/csv", api.exportRoster)

	admin := adminMiddleware()
	cg.POST("", api.create, admin)
	cg.PUT("/:id", api.update, admin)
	cg.DELETE("/:id", api.destroy, admin)
	cg.POST("/:id/enrollments", api.enroll, admin)
	cg.DELETE("/:id/enrollments/:studentID", api.unenroll, admin)

	pg := g.Group("/programs", jwt)
	pg.GET("", api.programs)
	pg.POST("", api.createProgram, admin)
}

// Handlers

func (api *classApi) create(ctx echo.Context) error {
	var data class.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *classApi) query(ctx echo.Context) error {
	filter := new(class.QueryFilter)
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
		return errors.Wrap(err, "querying classes")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *classApi) retrieve(ctx echo.Context) error {
	cls, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return trapClassErr(err, "finding class by ID")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) update(ctx echo.Context) error {
	var data class.UpdateClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return trapClassErr(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return trapClassErr(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) enroll(ctx echo.Context) error {
	var data class.NewEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	enr, err := api.svc.Enroll(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return trapClassErr(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *classApi) unenroll(ctx echo.Context) error {
	if err := api.svc.Unenroll(ctx.Request().Context(), ctx.Param("id"), ctx.Param("studentID")); err != nil {
		return trapClassErr(err, "unenrolling student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) exportRoster(ctx echo.Context) error {
	var buf bytes.Buffer
	filename, err := api.svc.ExportRosterCSV(ctx.Request().Context(), ctx.Param("id"), &buf)
	if err != nil {
		return trapClassErr(err, "exporting class roster")
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return ctx.Blob(http.StatusOK, "text/csv", buf.Bytes())
}

func (api *classApi) programs(ctx echo.Context) error {
	programs, err := api.svc.Programs(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying programs")
	}
	if programs == nil {
		programs = []class.Program{}
	}
	return ctx.JSON(http.StatusOK, programs)
}

func (api *classApi) createProgram(ctx echo.Context) error {
	var data class.NewProgram
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProgram")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prg, err := api.svc.CreateProgram(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating program")
	}
	return ctx.JSON(http.StatusCreated, prg)
}

func trapClassErr(err error, msg string) error {
	switch errors.Cause(err) {
	case class.ErrNotFound, class.ErrStudentNotFound, class.ErrEnrollmentNotFound:
		return errHttpNotFound
	}
	return errors.Wrap(err, msg)
}
