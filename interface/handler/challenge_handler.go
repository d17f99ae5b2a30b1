package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kavos113/dynctf/domain"
)

type ChallengeHandler struct {
	challengeRepo domain.ChallengeRepository
	log           *slog.Logger
}

func NewChallengeHandler(challengeRepo domain.ChallengeRepository, log *slog.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		challengeRepo: challengeRepo,
		log:           log,
	}
}

type challengeResponse struct {
	ChallengeID    int64  `json:"challenge_id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	CategoryID     int64  `json:"category_id"`
	Points         int    `json:"points"`
	Difficulty     string `json:"difficulty,omitempty"`
	DeploymentType string `json:"deployment_type"`
}

// List handles GET /challenges: the currently visible, public challenges.
// The flag hash and container configuration never leave the server.
func (h *ChallengeHandler) List(c echo.Context) error {
	challenges, err := h.challengeRepo.FindAll(c.Request().Context())
	if err != nil {
		h.log.Error("failed to list challenges", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list challenges")
	}

	now := time.Now().UTC()
	response := make([]*challengeResponse, 0, len(challenges))
	for _, challenge := range challenges {
		if challenge.IsPrivate || !challenge.VisibleAt(now) {
			continue
		}
		response = append(response, &challengeResponse{
			ChallengeID:    challenge.ChallengeID,
			Title:          challenge.Title,
			Description:    challenge.Description,
			CategoryID:     challenge.CategoryID,
			Points:         challenge.Points,
			Difficulty:     challenge.Difficulty,
			DeploymentType: string(challenge.DeploymentType),
		})
	}
	return c.JSON(http.StatusOK, response)
}
