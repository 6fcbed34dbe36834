package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/billing"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/billing/billingtest"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/config"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/payment"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/usercontext"
)

const webhookSecret = "whsec_controller"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// asUser stands in for TrustedIdentity: the X-User-ID header is taken as is.
func asUser(c *fiber.Ctx) error {
	if raw := c.Get(usercontext.HeaderUserID); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			usercontext.Set(c, usercontext.UserContext{UserID: uint(id), Username: "user", Email: "user@example.com", IsLoggedIn: true})
		}
	}
	return c.Next()
}

func newBillingService(repo *billingtest.Repository, gw *payment.SandboxGateway) *billing.Service {
	return billing.NewService(repo, gw, billing.Options{
		Prices: config.PlanPrices{
			Monthly: decimal.RequireFromString("20.00"),
			Yearly:  decimal.RequireFromString("100.00"),
		},
		Currency: "usd",
		Now:      func() time.Time { return fixedNow },
	})
}

func doJSON(t *testing.T, app *fiber.App, method, path string, userID string, body []byte, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if userID != "" {
		req.Header.Set(usercontext.HeaderUserID, userID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}
