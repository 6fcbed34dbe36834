package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/apperror"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// errorResponse writes the JSON error body for an application error.
func errorResponse(c *fiber.Ctx, err error, message string) error {
	return c.Status(apperror.HTTPStatus(err)).JSON(fiber.Map{
		"error":   apperror.Code(err),
		"message": message,
	})
}

// parseLimit reads ?limit= and clamps it to (0, maxListLimit].
func parseLimit(c *fiber.Ctx) int {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
