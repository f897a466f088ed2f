package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/claim"
)

type claimApi struct {
	auth *authenticator
	svc  *claim.Service
}

func registerClaimAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, svc *claim.Service) {
	api := claimApi{auth: auth, svc: svc}

	cg := g.Group("/claims", jwt, activeUserMiddleware(auth))
	cg.POST("", api.create)
	cg.GET("", api.query)
	cg.GET("/existing", api.existing)

	dg := cg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.GET("/history", api.history)
	dg.GET("/transitions", api.transitions)
	dg.POST("/transitions", api.transition)
	dg.POST("/payment", api.payment)
	dg.POST("/resubmit", api.resubmit)
}

func (api *claimApi) create(ctx echo.Context) error {
	var data claim.NewClaim
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClaim")
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating claim")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *claimApi) query(ctx echo.Context) error {
	filter := new(claim.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []claim.Claim{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	claims, err := api.svc.Query(ctx.Request().Context(), usr, *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying claims")
	}
	return ctx.JSON(http.StatusOK, claims)
}

// existing reports whether a published claim exists for the school, year and payment head.
func (api *claimApi) existing(ctx echo.Context) error {
	var query ExistingRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to ExistingRequest")
	}
	query.SchoolID = core.CleanString(query.SchoolID)
	if err := api.svc.Validate.Struct(query); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	schoolID, ok, err := api.svc.Reports.ResolveSchoolID(reqCtx, usr, query.SchoolID, query.AcademicYear)
	if err != nil {
		return errors.Wrap(err, "resolving school")
	}
	if !ok {
		return ctx.JSON(http.StatusOK, ExistingResponse{IDs: []string{}})
	}

	ids, err := api.svc.GetExisting(reqCtx, claim.ExistingFilter{
		AcademicYear: query.AcademicYear,
		PaymentHead:  query.PaymentHead,
		SchoolID:     schoolID,
		Published:    true,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ExistingResponse{Exists: len(ids) > 0, IDs: ids})
}

func (api *claimApi) retrieve(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	c, err := api.svc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting claim")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *claimApi) history(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	entries, err := api.svc.History(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting claim history")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *claimApi) transitions(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	states, err := api.svc.AvailableTransitions(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting available transitions")
	}
	return ctx.JSON(http.StatusOK, TransitionsResponse{Transitions: states})
}

func (api *claimApi) transition(ctx echo.Context) error {
	var data claim.NewTransition
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTransition")
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	c, err := api.svc.Transition(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "transitioning claim")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *claimApi) payment(ctx echo.Context) error {
	var data claim.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	c, err := api.svc.RecordPayment(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *claimApi) resubmit(ctx echo.Context) error {
	var data CommentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CommentRequest")
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	c, err := api.svc.Resubmit(ctx.Request().Context(), usr, ctx.Param("id"), data.Comment)
	if err != nil {
		return errors.Wrap(err, "resubmitting claim")
	}
	return ctx.JSON(http.StatusOK, c)
}

type (
	ExistingRequest struct {
		SchoolID     string `query:"school_id" validate:"omitempty,uuid"`
		AcademicYear string `query:"academic_year" validate:"required,academicyear"`
		PaymentHead  string `query:"payment_head" validate:"required,paymenthead"`
	}

	ExistingResponse struct {
		Exists bool     `json:"exists"`
		IDs    []string `json:"ids"`
	}

	TransitionsResponse struct {
		Transitions []claim.State `json:"transitions"`
	}
)
