package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kavos113/dynctf/domain"
	"github.com/kavos113/dynctf/interface/middleware"
	"github.com/kavos113/dynctf/usecase"
)

type InstanceHandler struct {
	challengeRepo domain.ChallengeRepository
	containers    *usecase.ContainerService
	log           *slog.Logger
}

func NewInstanceHandler(challengeRepo domain.ChallengeRepository, containers *usecase.ContainerService, log *slog.Logger) *InstanceHandler {
	return &InstanceHandler{
		challengeRepo: challengeRepo,
		containers:    containers,
		log:           log,
	}
}

type instanceResponse struct {
	InstanceID  int64      `json:"instance_id"`
	ChallengeID int64      `json:"challenge_id"`
	Status      string     `json:"status"`
	AccessURL   string     `json:"access_url,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Shared      bool       `json:"shared"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (h *InstanceHandler) toResponse(challenge *domain.Challenge, instance *domain.Instance) *instanceResponse {
	return &instanceResponse{
		InstanceID:  instance.InstanceID,
		ChallengeID: instance.ChallengeID,
		Status:      string(instance.Status),
		AccessURL:   h.containers.BuildAccessURL(challenge, instance),
		StartedAt:   instance.StartedAt,
		ExpiresAt:   instance.ExpiresAt,
		Shared:      instance.UserID == nil,
	}
}

// Start launches (or reuses) the instance behind POST /challenges/:id/instance.
func (h *InstanceHandler) Start(c echo.Context) error {
	challenge, err := h.findChallenge(c)
	if err != nil {
		return err
	}
	user := middleware.UserFrom(c)

	var instance *domain.Instance
	switch challenge.DeploymentType {
	case domain.DeploymentStaticContainer:
		instance, err = h.containers.EnsureStaticInstance(c.Request().Context(), challenge)
	default:
		instance, err = h.containers.StartInstance(c.Request().Context(), challenge, user)
	}
	if err != nil {
		return h.mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, h.toResponse(challenge, instance))
}

// Get returns the caller's live instance, GET /challenges/:id/instance.
func (h *InstanceHandler) Get(c echo.Context) error {
	challenge, err := h.findChallenge(c)
	if err != nil {
		return err
	}
	user := middleware.UserFrom(c)

	instance, err := h.lookupInstance(c, challenge, user)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &errorResponse{Message: "failed to load instance"})
	}
	if instance == nil {
		return c.JSON(http.StatusNotFound, &errorResponse{Message: "no active instance"})
	}

	return c.JSON(http.StatusOK, h.toResponse(challenge, instance))
}

// Stop handles DELETE /challenges/:id/instance. Shared instances outlive any
// single user and cannot be stopped here.
func (h *InstanceHandler) Stop(c echo.Context) error {
	challenge, err := h.findChallenge(c)
	if err != nil {
		return err
	}
	if challenge.DeploymentType == domain.DeploymentStaticContainer {
		return c.JSON(http.StatusForbidden, &errorResponse{Message: "shared instances cannot be stopped"})
	}
	user := middleware.UserFrom(c)

	instance, err := h.containers.GetLatestActiveInstance(c.Request().Context(), challenge.ChallengeID, user.UserID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &errorResponse{Message: "failed to load instance"})
	}
	if instance == nil {
		return c.JSON(http.StatusNotFound, &errorResponse{Message: "no active instance"})
	}

	stopped, err := h.containers.StopInstance(c.Request().Context(), instance)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &errorResponse{Message: "failed to stop instance"})
	}

	return c.JSON(http.StatusOK, h.toResponse(challenge, stopped))
}

func (h *InstanceHandler) lookupInstance(c echo.Context, challenge *domain.Challenge, user *domain.User) (*domain.Instance, error) {
	if challenge.DeploymentType == domain.DeploymentStaticContainer {
		return h.containers.GetSharedInstance(c.Request().Context(), challenge.ChallengeID)
	}
	return h.containers.GetLatestActiveInstance(c.Request().Context(), challenge.ChallengeID, user.UserID)
}

func (h *InstanceHandler) findChallenge(c echo.Context) (*domain.Challenge, error) {
	challengeID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid challenge id")
	}

	challenge, err := h.challengeRepo.FindByID(c.Request().Context(), challengeID)
	if err != nil {
		if errors.Is(err, domain.ErrChallengeNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "challenge not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to load challenge")
	}
	return challenge, nil
}

func (h *InstanceHandler) mapServiceError(c echo.Context, err error) error {
	var notAllowed *usecase.NotAllowedError
	if errors.As(err, &notAllowed) {
		return c.JSON(http.StatusForbidden, &errorResponse{Message: notAllowed.Reason})
	}

	var launchErr *usecase.LaunchError
	if errors.As(err, &launchErr) {
		h.log.Error("instance launch failed", slog.String("error", launchErr.Error()))
		return c.JSON(http.StatusBadGateway, &errorResponse{Message: "failed to launch instance"})
	}

	h.log.Error("instance request failed", slog.String("error", err.Error()))
	return c.JSON(http.StatusInternalServerError, &errorResponse{Message: "internal error"})
}
