package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kavos113/dynctf/usecase"
)

type HealthHandler struct {
	containers *usecase.ContainerService
}

func NewHealthHandler(containers *usecase.ContainerService) *HealthHandler {
	return &HealthHandler{containers: containers}
}

type runnerHealthResponse struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// RunnerHealth handles GET /runner/health. A failing backend answers 503 so
// load balancer checks can act on it.
func (h *HealthHandler) RunnerHealth(c echo.Context) error {
	health := h.containers.RunnerHealth(c.Request().Context())

	status := http.StatusOK
	if !health.OK {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, &runnerHealthResponse{
		OK:     health.OK,
		Detail: health.Detail,
	})
}
