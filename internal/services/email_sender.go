package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/matchaleaf/storefront/internal/email"
	"github.com/matchaleaf/storefront/internal/models"
)

type OrderEmailSender interface {
	SendOrderPlaced(ctx context.Context, order *models.Order) error
	SendPaymentConfirmed(ctx context.Context, order *models.Order) error
	SendOrderShipped(ctx context.Context, order *models.Order) error
	SendOperatorNewOrder(ctx context.Context, order *models.Order) error
}

type TemplateEmailSender struct {
	provider      email.Provider
	renderer      *email.Renderer
	shop          ShopDetails
	operatorEmail string
}

// NewOrderEmailSender returns a no-op sender when provider is nil.
func NewOrderEmailSender(provider email.Provider, renderer *email.Renderer, shop ShopDetails, operatorEmail string) (OrderEmailSender, error) {
	if provider == nil {
		return noopOrderEmailSender{}, nil
	}
	if renderer == nil {
		var err error
		renderer, err = email.NewRenderer()
		if err != nil {
			return nil, fmt.Errorf("failed to build email renderer: %w", err)
		}
	}
	return &TemplateEmailSender{
		provider:      provider,
		renderer:      renderer,
		shop:          shop,
		operatorEmail: strings.TrimSpace(operatorEmail),
	}, nil
}

func (s *TemplateEmailSender) SendOrderPlaced(ctx context.Context, order *models.Order) error {
	return s.sendToCustomer(ctx, email.TemplateOrderPlaced, order)
}

func (s *TemplateEmailSender) SendPaymentConfirmed(ctx context.Context, order *models.Order) error {
	return s.sendToCustomer(ctx, email.TemplatePaymentConfirmed, order)
}

func (s *TemplateEmailSender) SendOrderShipped(ctx context.Context, order *models.Order) error {
	return s.sendToCustomer(ctx, email.TemplateOrderShipped, order)
}

// SendOperatorNewOrder is skipped when no operator address is configured.
func (s *TemplateEmailSender) SendOperatorNewOrder(ctx context.Context, order *models.Order) error {
	if s.operatorEmail == "" || order == nil {
		return nil
	}
	msg, err := s.renderer.RenderTo(email.TemplateOperatorNewOrder, BuildOrderInfo(s.shop, order, OrderInfoOverrides{}), s.operatorEmail)
	if err != nil {
		return fmt.Errorf("failed to render operator email: %w", err)
	}
	if err := s.provider.SendEmail(ctx, msg); err != nil {
		return fmt.Errorf("failed to send operator email: %w", err)
	}
	return nil
}

func (s *TemplateEmailSender) sendToCustomer(ctx context.Context, templateName string, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if strings.TrimSpace(order.Customer.Email) == "" {
		return nil
	}
	msg, err := s.renderer.Render(templateName, BuildOrderInfo(s.shop, order, OrderInfoOverrides{}))
	if err != nil {
		return fmt.Errorf("failed to render %s email: %w", templateName, err)
	}
	if err := s.provider.SendEmail(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s email: %w", templateName, err)
	}
	return nil
}

type noopOrderEmailSender struct{}

func (noopOrderEmailSender) SendOrderPlaced(context.Context, *models.Order) error {
	return nil
}

func (noopOrderEmailSender) SendPaymentConfirmed(context.Context, *models.Order) error {
	return nil
}

func (noopOrderEmailSender) SendOrderShipped(context.Context, *models.Order) error {
	return nil
}

func (noopOrderEmailSender) SendOperatorNewOrder(context.Context, *models.Order) error {
	return nil
}
