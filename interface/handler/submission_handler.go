package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kavos113/dynctf/domain"
	"github.com/kavos113/dynctf/infrastructure/ratelimit"
	"github.com/kavos113/dynctf/interface/middleware"
	"github.com/kavos113/dynctf/usecase"
)

type SubmissionHandler struct {
	submissions *usecase.SubmissionService
	limiter     ratelimit.Limiter
	log         *slog.Logger
}

func NewSubmissionHandler(submissions *usecase.SubmissionService, limiter ratelimit.Limiter, log *slog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		limiter:     limiter,
		log:         log,
	}
}

type submitRequest struct {
	ChallengeID int64   `json:"challenge_id"`
	Flag        string  `json:"flag"`
	UsedHintIDs []int64 `json:"used_hint_ids"`
}

type submitResponse struct {
	Correct    bool   `json:"correct"`
	FirstBlood bool   `json:"first_blood"`
	Score      int    `json:"score"`
	Message    string `json:"message"`
}

// Submit handles POST /submit. Submissions are rate limited per user so the
// flag cannot be brute forced through the api.
func (h *SubmissionHandler) Submit(c echo.Context) error {
	user := middleware.UserFrom(c)

	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ChallengeID == 0 || req.Flag == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "challenge_id and flag are required")
	}

	if h.limiter != nil {
		err := h.limiter.Allow(c.Request().Context(), strconv.FormatInt(user.UserID, 10))
		if errors.Is(err, ratelimit.ErrRateLimited) {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many submissions, slow down")
		}
		if err != nil {
			// The limiter backend being down must not block the competition.
			h.log.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		}
	}

	result, err := h.submissions.SubmitFlag(c.Request().Context(), user.UserID, req.ChallengeID, req.Flag, req.UsedHintIDs)
	if err != nil {
		var notAllowed *usecase.NotAllowedError
		if errors.As(err, &notAllowed) {
			return echo.NewHTTPError(http.StatusForbidden, notAllowed.Reason)
		}
		if errors.Is(err, domain.ErrChallengeNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "challenge not found")
		}
		h.log.Error("flag submission failed", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record submission")
	}

	return c.JSON(http.StatusOK, &submitResponse{
		Correct:    result.Correct,
		FirstBlood: result.FirstBlood,
		Score:      result.Score,
		Message:    result.Message,
	})
}

type leaderboardEntry struct {
	Rank         int    `json:"rank"`
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	Score        int    `json:"score"`
	LastSolvedAt string `json:"last_solved_at"`
}

// Leaderboard handles GET /leaderboard.
func (h *SubmissionHandler) Leaderboard(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	entries, err := h.submissions.Leaderboard(c.Request().Context(), limit)
	if err != nil {
		h.log.Error("failed to load leaderboard", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load leaderboard")
	}

	response := make([]*leaderboardEntry, 0, len(entries))
	for _, entry := range entries {
		response = append(response, &leaderboardEntry{
			Rank:         entry.Rank,
			UserID:       entry.UserID,
			Username:     entry.Username,
			Score:        entry.Score,
			LastSolvedAt: entry.LastSolvedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return c.JSON(http.StatusOK, response)
}
