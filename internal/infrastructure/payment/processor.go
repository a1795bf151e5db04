package payment

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "github.com/shippingkart/backend/internal/domain/payment"
	"github.com/shippingkart/backend/internal/pkg/logging"
)

// VerdictProcessor relays the verdict the external payment collaborator
// already produced for this attempt. The core treats payment as an opaque
// boolean outcome; nothing here moves money.
type VerdictProcessor struct{}

func NewVerdictProcessor() *VerdictProcessor { return &VerdictProcessor{} }

func (p *VerdictProcessor) Authorize(ctx context.Context, userID string, input domain.Input) (domain.Verdict, error) {
	ref := input.Reference
	if ref == "" {
		ref = uuid.NewString()
	}
	logging.FromContext(ctx).Info("payment_verdict",
		zap.String("user_id", userID),
		zap.Bool("approved", input.Approved),
		zap.String("payment_ref", ref),
	)
	return domain.Verdict{Approved: input.Approved, Reference: ref}, nil
}
