// Package http exposes the classifier over a JSON HTTP API.
package http

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"classifier_server/core/domain"
	"classifier_server/core/port/in"
	"classifier_server/pkg/apperr"
)

// ClassifierHandler handles classification, feedback and learning endpoints.
type ClassifierHandler struct {
	service    in.ClassifierService
	persistent bool // learned patterns are backed by Redis
}

// NewClassifierHandler creates a new ClassifierHandler.
func NewClassifierHandler(service in.ClassifierService, persistent bool) *ClassifierHandler {
	return &ClassifierHandler{service: service, persistent: persistent}
}

// Register registers classifier routes. feedbackLimiter may be nil.
func (h *ClassifierHandler) Register(router fiber.Router, feedbackLimiter fiber.Handler) {
	router.Post("/classify", h.Classify)
	if feedbackLimiter != nil {
		router.Post("/feedback", feedbackLimiter, h.Feedback)
	} else {
		router.Post("/feedback", h.Feedback)
	}
	router.Get("/stats", h.Stats)
	router.Post("/reset", h.Reset)
	router.Get("/categories", h.Categories)
}

// =============================================================================
// Request / Response
// =============================================================================

// ClassifyRequest is the body of POST /classify. Title and body may be null.
type ClassifyRequest struct {
	AppName *string `json:"app_name"`
	Title   *string `json:"title"`
	Body    *string `json:"body"`
}

// FeedbackRequest is the body of POST /feedback.
type FeedbackRequest struct {
	AppName           *string `json:"app_name"`
	Title             *string `json:"title"`
	Body              *string `json:"body"`
	PredictedCategory *string `json:"predicted_category"`
	ActualCategory    *string `json:"actual_category"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	CategoryStats        map[domain.Category]*domain.CategoryStats `json:"category_stats"`
	TotalLearnedPatterns int                                       `json:"total_learned_patterns"`
	RedisConnected       bool                                      `json:"redis_connected"`
}

// StatusResponse is the plain acknowledgement used by feedback and reset.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// =============================================================================
// Handlers
// =============================================================================

// Classify handles POST /classify.
func (h *ClassifierHandler) Classify(c *fiber.Ctx) error {
	var req ClassifyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body").WithError(err)
	}
	if req.AppName == nil {
		return apperr.MissingField("app_name")
	}

	result := h.service.Classify(c.UserContext(), *req.AppName, deref(req.Title), deref(req.Body))
	return c.JSON(result)
}

// Feedback handles POST /feedback.
func (h *ClassifierHandler) Feedback(c *fiber.Ctx) error {
	var req FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body").WithError(err)
	}

	required := []struct {
		field string
		value *string
	}{
		{"app_name", req.AppName},
		{"predicted_category", req.PredictedCategory},
		{"actual_category", req.ActualCategory},
	}
	for _, r := range required {
		if r.value == nil {
			return apperr.MissingField(r.field)
		}
	}

	predicted, err := parseCategoryField("predicted_category", *req.PredictedCategory)
	if err != nil {
		return err
	}
	actual, err := parseCategoryField("actual_category", *req.ActualCategory)
	if err != nil {
		return err
	}

	h.service.LearnFromFeedback(c.UserContext(), &domain.FeedbackEvent{
		AppName:           *req.AppName,
		Title:             deref(req.Title),
		Body:              deref(req.Body),
		PredictedCategory: predicted,
		ActualCategory:    actual,
		Timestamp:         time.Now(),
	})

	return c.JSON(StatusResponse{
		Status:  "success",
		Message: fmt.Sprintf("Feedback received: %s → %s", *req.AppName, actual),
	})
}

// Stats handles GET /stats.
func (h *ClassifierHandler) Stats(c *fiber.Ctx) error {
	stats := h.service.GetCategoryStats()

	total := 0
	for _, s := range stats {
		total += s.LearnedApps + s.LearnedContentPatterns
	}

	return c.JSON(StatsResponse{
		CategoryStats:        stats,
		TotalLearnedPatterns: total,
		RedisConnected:       h.persistent,
	})
}

// Reset handles POST /reset.
func (h *ClassifierHandler) Reset(c *fiber.Ctx) error {
	h.service.ResetLearnedPatterns(c.UserContext())
	return c.JSON(StatusResponse{
		Status:  "success",
		Message: "All learned patterns have been reset",
	})
}

// Categories handles GET /categories.
func (h *ClassifierHandler) Categories(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"categories":   domain.Categories,
		"descriptions": domain.CategoryDescriptions,
	})
}

func parseCategoryField(field, value string) (domain.Category, error) {
	category, err := domain.ParseCategory(value)
	if err != nil {
		var invalid *domain.InvalidCategoryError
		if errors.As(err, &invalid) {
			return "", apperr.InvalidInput(field, invalid.Error()).WithDetail("value", invalid.Value)
		}
		return "", apperr.InvalidInput(field, err.Error())
	}
	return category, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
