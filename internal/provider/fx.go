package provider

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/payconnect/internal/clock"
	"github.com/smallbiznis/payconnect/internal/config"
	"github.com/smallbiznis/payconnect/internal/observability/metrics"
	"github.com/smallbiznis/payconnect/internal/provider/domain"
	"github.com/smallbiznis/payconnect/internal/provider/stripe"
	"github.com/smallbiznis/payconnect/internal/webhook"
)

var Module = fx.Module("provider",
	fx.Provide(
		newVerifier,
		newClient,
	),
)

func newVerifier(cfg config.Config, clk clock.Clock) *webhook.Verifier {
	return webhook.NewVerifier(cfg.Provider.WebhookSigningSecret, cfg.Provider.WebhookTolerance, clk)
}

func newClient(cfg config.Config, verifier *webhook.Verifier, m *metrics.Metrics, log *zap.Logger) (domain.Client, error) {
	return stripe.New(cfg, verifier, m, log)
}
