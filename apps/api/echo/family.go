package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trucvy/vietschool/core/family"
	"github.com/trucvy/vietschool/core/payment"
)

type familyApi struct {
	svc      family.Service
	paySvc   payment.Service
	validate *validator.Validate
}

func registerFamilyAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc family.Service,
	paySvc payment.Service,
	validate *validator.Validate,
) {
	api := familyApi{
		svc:      svc,
		paySvc:   paySvc,
		validate: validate,
	}

	fg := g.Group("/families", jwt)
	admin := adminMiddleware()

	// reads are open to any authenticated account
	fg.GET("", api.query)
	fg.GET("/all", api.queryAll)
	fg.GET("/:id", api.retrieve)
	fg.GET("/:id/payments", api.payments)

	// payment standing is admin only, like the payment surface
	fg.GET("/with-payments", api.withPayments, admin)

	// writes are admin only
	fg.POST("", api.create, admin)
	fg.PUT("/:id", api.update, admin)
	fg.DELETE("/:id", api.destroy, admin)

	fg.POST("/:id/guardians", api.addGuardian, admin)
	fg.PUT("/:id/guardians/:childID", api.updateGuardian, admin)
	fg.DELETE("/:id/guardians/:childID", api.removeGuardian, admin)

	fg.POST("/:id/students", api.addStudent, admin)
	fg.PUT("/:id/students/:childID", api.updateStudent, admin)
	fg.DELETE("/:id/students/:childID", api.removeStudent, admin)

	fg.POST("/:id/emergency-contacts", api.addEmergencyContact, admin)
	fg.PUT("/:id/emergency-contacts/:childID", api.updateEmergencyContact, admin)
	fg.DELETE("/:id/emergency-contacts/:childID", api.removeEmergencyContact, admin)
}

// Handlers

func (api *familyApi) create(ctx echo.Context) error {
	var data family.NewFamily
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFamily")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	fam, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating family")
	}
	return ctx.JSON(http.StatusCreated, fam)
}

func (api *familyApi) query(ctx echo.Context) error {
	filter := new(family.QueryFilter)
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
		return errors.Wrap(err, "querying families")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *familyApi) queryAll(ctx echo.Context) error {
	fams, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying families")
	}
	if fams == nil {
		fams = []family.Family{}
	}
	return ctx.JSON(http.StatusOK, fams)
}

func (api *familyApi) withPayments(ctx echo.Context) error {
	filter := new(payment.WithPaymentsFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to WithPaymentsFilter")
	}
	filter.Clean()

	pg, err := bindPagination(ctx)
	if err != nil {
		return err
	}

	page, err := api.paySvc.QueryFamiliesWithPayments(ctx.Request().Context(), filter, pg)
	if err != nil {
		return errors.Wrap(err, "querying families with payments")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *familyApi) retrieve(ctx echo.Context) error {
	fam, err := api.getFamily(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, fam)
}

func (api *familyApi) payments(ctx echo.Context) error {
	fam, err := api.getFamily(ctx)
	if err != nil {
		return err
	}

	pmts, err := api.paySvc.QueryByFamily(ctx.Request().Context(), fam.ID)
	if err != nil {
		return errors.Wrap(err, "querying family payments")
	}
	if pmts == nil {
		pmts = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, pmts)
}

func (api *familyApi) update(ctx echo.Context) error {
	fam, err := api.getFamily(ctx)
	if err != nil {
		return err
	}

	var data family.UpdateFamily
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFamily")
	}
	if err := data.Validate(fam, api.validate); err != nil {
		return err
	}

	fam, err = api.svc.Update(ctx.Request().Context(), fam, data)
	if err != nil {
		return errors.Wrap(err, "updating family")
	}
	return ctx.JSON(http.StatusOK, fam)
}

func (api *familyApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		if errors.Cause(err) == family.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "deleting family")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Guardians

func (api *familyApi) addGuardian(ctx echo.Context) error {
	var data family.NewGuardian
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGuardian")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	grd, err := api.svc.AddGuardian(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return trapFamilyErr(err, "adding guardian")
	}
	return ctx.JSON(http.StatusCreated, grd)
}

func (api *familyApi) updateGuardian(ctx echo.Context) error {
	var data family.NewGuardian
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGuardian")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	grd, err := api.svc.UpdateGuardian(ctx.Request().Context(), ctx.Param("id"), ctx.Param("childID"), data)
	if err != nil {
		return trapFamilyErr(err, "updating guardian")
	}
	return ctx.JSON(http.StatusOK, grd)
}

func (api *familyApi) removeGuardian(ctx echo.Context) error {
	if err := api.svc.RemoveGuardian(ctx.Request().Context(), ctx.Param("id"), ctx.Param("childID")); err != nil {
		return trapFamilyErr(err, "removing guardian")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Students

func (api *familyApi) addStudent(ctx echo.Context) error {
	var data family.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	std, err := api.svc.AddStudent(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return trapFamilyErr(err, "adding student")
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *familyApi) updateStudent(ctx echo.Context) error {
	var data family.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	std, err := api.svc.UpdateStudent(ctx.Request().Context(), ctx.Param("id"), ctx.Param("childID"), data)
	if err != nil {
		return trapFamilyErr(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *familyApi) removeStudent(ctx echo.Context) error {
	if err := api.svc.RemoveStudent(ctx.Request().Context(), ctx.Param("id"), ctx.Param("childID")); err != nil {
		return trapFamilyErr(err, "removing student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Emergency contacts

func (api *familyApi) addEmergencyContact(ctx echo.Context) error {
	var data family.NewEmergencyContact
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEmergencyContact")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ec, err := api.svc.AddEmergencyContact(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return trapFamilyErr(err, "adding emergency contact")
	}
	return ctx.JSON(http.StatusCreated, ec)
}

func (api *familyApi) updateEmergencyContact(ctx echo.Context) error {
	var data family.NewEmergencyContact
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEmergencyContact")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ec, err := api.svc.UpdateEmergencyContact(ctx.Request().Context(), ctx.Param("id"), ctx.Param("childID"), data)
	if err != nil {
		return trapFamilyErr(err, "updating emergency contact")
	}
	return ctx.JSON(http.StatusOK, ec)
}

func (api *familyApi) removeEmergencyContact(ctx echo.Context) error {
	if err := api.svc.RemoveEmergencyContact(ctx.Request().Context(), ctx.Param("id"), ctx.Param("childID")); err != nil {
		return trapFamilyErr(err, "removing emergency contact")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *familyApi) getFamily(ctx echo.Context) (family.Family, error) {
	fam, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == family.ErrNotFound {
			return family.Family{}, errHttpNotFound
		}
		return family.Family{}, errors.Wrap(err, "finding family by ID")
	}
	return fam, nil
}

func trapFamilyErr(err error, msg string) error {
	switch errors.Cause(err) {
	case family.ErrNotFound, family.ErrChildNotFound:
		return errHttpNotFound
	}
	return errors.Wrap(err, msg)
}
