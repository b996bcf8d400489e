package factory

import (
	"context"
	"fmt"

	"github.com/mikey/mail-groomer/internal/adapters/delivery"
	"github.com/mikey/mail-groomer/internal/config"
	"github.com/mikey/mail-groomer/internal/ports"
	"github.com/mikey/mail-groomer/internal/utils"
	"go.uber.org/zap"
)

// DeliveryFactory creates delivery back-ends based on configuration
type DeliveryFactory struct {
	cfg    *config.Config
	logger *zap.Logger
	text   *utils.TextProcessor
}

// NewDeliveryFactory creates a new delivery factory
func NewDeliveryFactory(cfg *config.Config, logger *zap.Logger, text *utils.TextProcessor) *DeliveryFactory {
	return &DeliveryFactory{
		cfg:    cfg,
		logger: logger,
		text:   text,
	}
}

// CreateDelivery creates the configured delivery back-end
func (f *DeliveryFactory) CreateDelivery() (ports.Delivery, error) {
	deliveryCfg, err := f.cfg.GetDelivery()
	if err != nil {
		return nil, err
	}

	switch deliveryCfg.Type {
	case "smtp":
		return delivery.NewSMTPRelay(
			deliveryCfg.SMTP.Address,
			deliveryCfg.SMTP.Port,
			delivery.BreakerSettings{
				Timeout:     deliveryCfg.SMTP.BreakerTimeout,
				MaxRequests: deliveryCfg.SMTP.BreakerMaxRequests,
			},
			f.logger,
		), nil
	case "directory":
		return delivery.NewDirectory(deliveryCfg.Directory, f.text, f.logger)
	case "stdout":
		return delivery.NewStdout(), nil
	case "ses":
		return delivery.NewSES(context.Background(), delivery.SESConfig{
			Region:          deliveryCfg.SES.Region,
			AccessKeyID:     deliveryCfg.SES.AccessKeyID,
			SecretAccessKey: deliveryCfg.SES.SecretAccessKey,
			From:            deliveryCfg.SES.From,
		}, f.logger)
	default:
		return nil, fmt.Errorf("unsupported delivery type: %s", deliveryCfg.Type)
	}
}
