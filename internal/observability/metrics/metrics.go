package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	commissions        metric.Int64Counter
	referralRewards    metric.Int64Counter
	subscriptionEvents metric.Int64Counter
	withdrawals        metric.Int64Counter
	ledgerEntries      metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "partnerpay"
	}
	meter := provider.Meter(name)

	commissions, err := meter.Int64Counter("partnerpay_commissions_total")
	if err != nil {
		return nil, err
	}
	referralRewards, err := meter.Int64Counter("partnerpay_referral_rewards_total")
	if err != nil {
		return nil, err
	}
	subscriptionEvents, err := meter.Int64Counter("partnerpay_subscription_events_total")
	if err != nil {
		return nil, err
	}
	withdrawals, err := meter.Int64Counter("partnerpay_withdrawal_transitions_total")
	if err != nil {
		return nil, err
	}
	ledgerEntries, err := meter.Int64Counter("partnerpay_ledger_entries_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		commissions:        commissions,
		referralRewards:    referralRewards,
		subscriptionEvents: subscriptionEvents,
		withdrawals:        withdrawals,
		ledgerEntries:      ledgerEntries,
	}, nil
}

// RecordCommission increments commission calculation counts.
func (m *Metrics) RecordCommission(ctx context.Context, tierCode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("tier", strings.TrimSpace(tierCode)))
	m.commissions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReferralReward increments referral reward counts.
func (m *Metrics) RecordReferralReward(ctx context.Context) {
	if m == nil {
		return
	}
	m.referralRewards.Add(ctx, 1)
}

// RecordSubscriptionEvent increments provider subscription event counts.
func (m *Metrics) RecordSubscriptionEvent(ctx context.Context, providerStatus string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("provider_status", strings.TrimSpace(providerStatus)))
	m.subscriptionEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWithdrawalTransition increments withdrawal transition counts.
func (m *Metrics) RecordWithdrawalTransition(ctx context.Context, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action", strings.TrimSpace(action)))
	m.withdrawals.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerEntry increments balance ledger entry counts.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, sourceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source_type", strings.TrimSpace(sourceType)))
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"tier":            {},
	"action":          {},
	"source_type":     {},
	"provider_status": {},
	"endpoint":        {},
	"status_code":     {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
