package echoapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/fee"
	exportsvc "github.com/rtemis/reimbursement/services/export"
)

type reimbursementApi struct {
	auth     *authenticator
	svc      *fee.Service
	exporter Exporter
	validate *validator.Validate
}

func registerReimbursementAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc *fee.Service,
	exporter Exporter,
	validate *validator.Validate,
) {
	api := reimbursementApi{auth: auth, svc: svc, exporter: exporter, validate: validate}

	rg := g.Group("/reimbursement", jwt, activeUserMiddleware(auth))
	rg.GET("/report", api.report)
	rg.GET("/report.xlsx", api.reportXLSX)
	rg.GET("/heading", api.heading)
	rg.GET("/classes", api.classes)
	rg.GET("/state-fees", api.stateFees)
}

func (api *reimbursementApi) loadReport(ctx echo.Context) (fee.Report, fee.ReportParams, error) {
	var params fee.ReportParams
	if err := ctx.Bind(&params); err != nil {
		return fee.Report{}, params, errors.Wrap(err, "binding to ReportParams")
	}
	params.Clean()
	if err := api.validate.Struct(params); err != nil {
		return fee.Report{}, params, err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return fee.Report{}, params, err
	}
	report, err := api.svc.LoadStudentData(ctx.Request().Context(), usr, params)
	if err != nil {
		return fee.Report{}, params, errors.Wrap(err, "loading student data")
	}
	return report, params, nil
}

func (api *reimbursementApi) report(ctx echo.Context) error {
	report, _, err := api.loadReport(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ReportResponse{Report: report, Total: fee.FormatAmount(report.Total())})
}

func (api *reimbursementApi) reportXLSX(ctx echo.Context) error {
	report, params, err := api.loadReport(ctx)
	if err != nil {
		return err
	}

	title := strings.ReplaceAll(params.AcademicYear, "_", "-")
	if report.SchoolID != "" {
		if school, err := api.svc.GetSchool(ctx.Request().Context(), report.SchoolID); err == nil {
			title = school.Name + " " + title
		}
	}
	buf, err := api.exporter.Export(report, title)
	if err != nil {
		return errors.Wrap(err, "exporting report")
	}

	filename := fmt.Sprintf("reimbursement_%s_%s.xlsx", params.AcademicYear, params.ApprovalAuthority)
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, exportsvc.ContentType, buf.Bytes())
}

func (api *reimbursementApi) heading(ctx echo.Context) error {
	var params fee.ReportParams
	if err := ctx.Bind(&params); err != nil {
		return errors.Wrap(err, "binding to ReportParams")
	}
	params.Clean()
	return ctx.JSON(http.StatusOK, api.svc.TableHeading(params.AdditionalFees))
}

func (api *reimbursementApi) classes(ctx echo.Context) error {
	authority := core.CleanString(ctx.QueryParam("approval_authority"))
	if !core.IsPaymentHead(authority) {
		return core.NewValidationError(nil, core.FieldError{Field: "approval_authority", Error: "unknown payment head"})
	}
	return ctx.JSON(http.StatusOK, ClassesResponse{Classes: api.svc.ClassList(authority)})
}

func (api *reimbursementApi) stateFees(ctx echo.Context) error {
	var query StateFeesRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to StateFeesRequest")
	}
	query.SchoolID = core.CleanString(query.SchoolID)
	if err := api.validate.Struct(query); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	schoolID, ok, err := api.svc.ResolveSchoolID(reqCtx, usr, query.SchoolID, query.AcademicYear)
	if err != nil {
		return errors.Wrap(err, "resolving school")
	}
	if !ok {
		return ctx.JSON(http.StatusOK, []fee.GovernmentFeeEntry{})
	}

	entries, err := api.svc.StateDefinedFees(reqCtx, query.AcademicYear, query.PaymentHead, schoolID)
	if err != nil {
		return errors.Wrap(err, "querying state defined fees")
	}
	return ctx.JSON(http.StatusOK, entries)
}

type (
	ReportResponse struct {
		fee.Report
		Total string `json:"total"`
	}

	ClassesResponse struct {
		Classes []int `json:"classes"`
	}

	StateFeesRequest struct {
		SchoolID     string `query:"school_id" validate:"omitempty,uuid"`
		AcademicYear string `query:"academic_year" validate:"required,academicyear"`
		PaymentHead  string `query:"payment_head" validate:"required,paymenthead"`
	}
)
