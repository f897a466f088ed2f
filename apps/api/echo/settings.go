package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rtemis/reimbursement/core"
)

type settingsApi struct {
	conf *core.Config
}

func registerSettingsAPI(g *echo.Group, jwt echo.MiddlewareFunc, conf *core.Config) {
	api := settingsApi{conf: conf}

	sg := g.Group("/settings", jwt)
	sg.GET("/approval", api.approval)
	sg.GET("/school", api.school)
}

func (api *settingsApi) approval(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.conf.Reimbursement)
}

func (api *settingsApi) school(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.conf.School)
}
