package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/songgift/api/internal/apperror"
	"github.com/songgift/api/internal/middleware"
	"github.com/songgift/api/internal/model"
	"github.com/songgift/api/internal/service"
	"github.com/songgift/api/internal/store"
	"github.com/songgift/api/pkg/response"
)

type SongHandler struct {
	generations *service.GenerationService
	status      *service.StatusService
	validator   *validator.Validate
}

func NewSongHandler(gen *service.GenerationService, status *service.StatusService, v *validator.Validate) *SongHandler {
	return &SongHandler{
		generations: gen,
		status:      status,
		validator:   v,
	}
}

// Create handles POST /api/songs
// @Summary      Submit song generation
// @Description  Submit a new personalized song generation job
// @Tags         Songs
// @Accept       json
// @Produce      json
// @Param        request body model.CreateSongRequest true "Song creation request"
// @Success      201 {object} model.CreateSongResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/songs [post]
func (h *SongHandler) Create(c *fiber.Ctx) error {
	var req model.CreateSongRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	userID := middleware.GetUserID(c)
	record, err := h.generations.CreateSong(c.Context(), userID, &req)
	if err != nil {
		var classified *apperror.ClassifiedError
		if errors.As(err, &classified) {
			return classifiedResponse(c, classified)
		}
		return response.ServiceError(c, "Failed to create song")
	}

	return response.Created(c, model.CreateSongResponse{
		SongID:    record.ID,
		Status:    record.Status,
		CreatedAt: record.CreatedAt.Format(time.RFC3339),
	})
}

// Status handles GET /api/songs/:songId/status
// @Summary      Get song generation status
// @Description  Get the current status and variants of a song generation job
// @Tags         Songs
// @Produce      json
// @Param        songId path int true "Song ID"
// @Success      200 {object} model.StatusResult
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/songs/{songId}/status [get]
func (h *SongHandler) Status(c *fiber.Ctx) error {
	songID, err := strconv.ParseInt(c.Params("songId"), 10, 64)
	if err != nil || songID <= 0 {
		return response.ValidationError(c, "Invalid song ID", nil)
	}

	result, err := h.status.GetStatus(c.Context(), songID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Song not found")
		}
		var classified *apperror.ClassifiedError
		if errors.As(err, &classified) {
			return classifiedResponse(c, classified)
		}
		return response.ServiceError(c, "Failed to fetch song status")
	}

	return response.OK(c, result)
}

// classifiedResponse maps a classified error onto an HTTP response
func classifiedResponse(c *fiber.Ctx, classified *apperror.ClassifiedError) error {
	switch classified.Code {
	case apperror.CodeNotFound:
		return response.NotFound(c, classified.UserMessage)
	case apperror.CodeRateLimited:
		return response.RateLimited(c)
	case apperror.CodeAuthError:
		return response.ServiceError(c, classified.UserMessage)
	case apperror.CodeNetworkError, apperror.CodeTimeout, apperror.CodeProviderError, apperror.CodeServerError:
		return response.ProviderError(c, classified.UserMessage)
	default:
		return response.ServiceError(c, classified.UserMessage)
	}
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
