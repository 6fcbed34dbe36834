package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/config"
)

const sandboxSignatureHeader = "X-Sandbox-Signature"

// SandboxGateway is a local provider for development and tests. It never
// charges anything; events are posted by hand or by tests and signed with
// HMAC-SHA256 over the raw body.
type SandboxGateway struct {
	secret  string
	siteURL string
}

// SandboxEvent is the wire format accepted on /webhook/sandbox.
type SandboxEvent struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	Data SandboxEventData `json:"data"`
}

type SandboxEventData struct {
	OrderID           string `json:"order_id,omitempty"`
	ProviderReference string `json:"provider_reference,omitempty"`
}

func NewSandboxGateway(secret, siteURL string) *SandboxGateway {
	return &SandboxGateway{secret: strings.TrimSpace(secret), siteURL: strings.TrimRight(siteURL, "/")}
}

func (g *SandboxGateway) Name() string {
	return config.ProviderSandbox
}

func (g *SandboxGateway) SignatureHeader() string {
	return sandboxSignatureHeader
}

func (g *SandboxGateway) PublishableKey() string {
	return ""
}

func (g *SandboxGateway) CreatePayableOrder(ctx context.Context, order PayableOrder) (*CreatedOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref := "sbx_" + uuid.New().String()
	return &CreatedOrder{
		ProviderReference: ref,
		ClientSecret:      ref + "_secret",
		CheckoutURL:       fmt.Sprintf("%s/checkout/sandbox/?order_id=%s", g.siteURL, order.OrderID),
	}, nil
}

// Sign returns the hex signature for payload.
func (g *SandboxGateway) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *SandboxGateway) VerifySignature(payload []byte, header string) bool {
	sig := strings.TrimSpace(header)
	if sig == "" || g.secret == "" {
		return false
	}
	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decoded)
}

func (g *SandboxGateway) ParseEvent(payload []byte) (*Event, error) {
	var se SandboxEvent
	if err := json.Unmarshal(payload, &se); err != nil {
		return nil, fmt.Errorf("decode sandbox event: %w", err)
	}
	ev := &Event{
		ID:                se.ID,
		ProviderType:      se.Type,
		OrderID:           strings.TrimSpace(se.Data.OrderID),
		ProviderReference: strings.TrimSpace(se.Data.ProviderReference),
	}
	switch se.Type {
	case EventOrderCompleted, EventPaymentFailed:
		ev.Type = se.Type
	}
	return ev, nil
}
