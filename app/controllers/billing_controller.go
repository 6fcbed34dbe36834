package controllers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/apperror"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/billing"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/usercontext"
)

type checkoutRequest struct {
	PlanType string `json:"plan_type" validate:"required,max=32"`
}

// BillingController serves checkout, order queries and provider webhooks.
type BillingController struct {
	svc      *billing.Service
	validate *validator.Validate
}

func NewBillingController(svc *billing.Service) *BillingController {
	return &BillingController{svc: svc, validate: validator.New()}
}

// HandleCheckout starts a purchase for the caller.
func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, apperror.Validation("invalid body"), "Request body must be JSON with plan_type")
	}
	if err := bc.validate.Struct(req); err != nil {
		return errorResponse(c, apperror.Validation("%v", err), "plan_type is required")
	}

	res, err := bc.svc.StartCheckout(c.UserContext(), billing.CheckoutRequest{
		UserID:   userCtx.UserID,
		PlanType: req.PlanType,
		Email:    userCtx.Email,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperror.ErrValidation):
			return errorResponse(c, err, "plan_type must be monthly or yearly")
		case errors.Is(err, apperror.ErrProviderUnavailable):
			return errorResponse(c, err, "Payment provider unavailable, please retry")
		default:
			return errorResponse(c, err, "Checkout failed")
		}
	}
	return c.JSON(res)
}

// HandleWebhook receives provider notifications on /webhook/:provider. Only
// the configured provider is served. A verified delivery for an unknown order
// is acknowledged so the provider stops retrying it.
func (bc *BillingController) HandleWebhook(c *fiber.Ctx) error {
	gateway := bc.svc.Gateway()
	provider := strings.ToLower(c.Params("provider"))
	if provider != gateway.Name() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "provider not enabled"})
	}

	payload := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get(gateway.SignatureHeader())

	res, err := bc.svc.HandleWebhook(c.UserContext(), payload, signature)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"received": true, "result": res})
	case errors.Is(err, apperror.ErrAuthentication):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	case apperror.IsUnknownOrder(err):
		return c.JSON(fiber.Map{"received": true, "result": res})
	default:
		log.Errorf("[Webhook] %s delivery not processed: %v", provider, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}
}

// HandleOrderStatus returns one of the caller's orders. Orders of other
// users look exactly like missing ones.
func (bc *BillingController) HandleOrderStatus(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	st, err := bc.svc.OrderStatus(c.UserContext(), c.Params("orderId"))
	if err != nil {
		return errorResponse(c, err, "Order not found")
	}
	if st.Purchase.UserID != userID {
		return errorResponse(c, apperror.UnknownOrder("order_id", st.OrderID), "Order not found")
	}
	history, err := bc.svc.PurchaseHistory(c.UserContext(), st.Purchase.ID)
	if err != nil {
		return errorResponse(c, err, "Failed to load order history")
	}
	return c.JSON(fiber.Map{
		"order_id":     st.OrderID,
		"purchase":     st.Purchase,
		"subscription": st.Subscription,
		"history":      history,
	})
}

// HandlePurchases lists the caller's purchases, newest first.
func (bc *BillingController) HandlePurchases(c *fiber.Ctx) error {
	purchases, err := bc.svc.ListPurchases(c.UserContext(), usercontext.GetUserID(c), parseLimit(c))
	if err != nil {
		return errorResponse(c, err, "Failed to load purchases")
	}
	return c.JSON(fiber.Map{"purchases": purchases})
}

// HandlePlans lists plan prices.
func (bc *BillingController) HandlePlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": bc.svc.Plans()})
}
