package service

import (
	"context"
	"encoding/json"
	"fmt"

	"shopify-feed-service/internal/models"
	"shopify-feed-service/internal/util"

	"go.uber.org/zap"
)

const merchantConfigKey = "merchant_config"

// ConfigStore reads and writes the key/JSON configuration blob.
type ConfigStore interface {
	GetConfigValue(ctx context.Context, key string) (string, bool, error)
	SetConfigValue(ctx context.Context, key, value string) error
}

// CredentialTarget receives updated shop credentials when the merchant
// config is saved.
type CredentialTarget interface {
	Configure(shopURL, accessToken string)
}

// ConfigService owns the merchant configuration blob: typed defaults,
// stored JSON merged over them, and field-by-field patch updates.
type ConfigService struct {
	store  ConfigStore
	client CredentialTarget
	logger *zap.Logger
}

// NewConfigService creates a new config service. client may be nil.
func NewConfigService(store ConfigStore, client CredentialTarget) *ConfigService {
	return &ConfigService{
		store:  store,
		client: client,
		logger: util.GetLogger(),
	}
}

func defaultMerchantConfig() *models.MerchantConfig {
	return &models.MerchantConfig{
		AutoSync:            false,
		SyncInterval:        "6h",
		HigherVariantLabels: true,
		FeedBatchSize:       defaultFeedBatchSize,
	}
}

// Get returns the stored configuration merged over the defaults.
func (s *ConfigService) Get(ctx context.Context) (*models.MerchantConfig, error) {
	cfg := defaultMerchantConfig()

	raw, ok, err := s.store.GetConfigValue(ctx, merchantConfigKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return cfg, nil
	}

	if err := json.Unmarshal([]byte(raw), cfg); err != nil {
		return nil, fmt.Errorf("stored merchant config is malformed: %w", err)
	}
	if cfg.FeedBatchSize <= 0 {
		cfg.FeedBatchSize = defaultFeedBatchSize
	}
	return cfg, nil
}

// Save applies the patch field-by-field over the current configuration,
// persists the result and pushes any credential change to the client.
func (s *ConfigService) Save(ctx context.Context, patch models.MerchantConfigPatch) (*models.MerchantConfig, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	applyPatch(cfg, patch)

	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merchant config: %w", err)
	}
	if err := s.store.SetConfigValue(ctx, merchantConfigKey, string(data)); err != nil {
		return nil, err
	}

	if s.client != nil && cfg.ShopURL != "" && cfg.AccessToken != "" {
		s.client.Configure(cfg.ShopURL, cfg.AccessToken)
		s.logger.Info("Shop credentials updated", zap.String("shop_url", cfg.ShopURL))
	}

	return cfg, nil
}

// ApplyToClient pushes the stored credentials to the client, typically at
// startup.
func (s *ConfigService) ApplyToClient(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	cfg, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if cfg.ShopURL != "" && cfg.AccessToken != "" {
		s.client.Configure(cfg.ShopURL, cfg.AccessToken)
	}
	return nil
}

func applyPatch(cfg *models.MerchantConfig, patch models.MerchantConfigPatch) {
	if patch.ShopURL != nil {
		cfg.ShopURL = *patch.ShopURL
	}
	if patch.AccessToken != nil {
		cfg.AccessToken = *patch.AccessToken
	}
	if patch.AutoSync != nil {
		cfg.AutoSync = *patch.AutoSync
	}
	if patch.SyncInterval != nil {
		cfg.SyncInterval = *patch.SyncInterval
	}
	if patch.HigherVariantLabels != nil {
		cfg.HigherVariantLabels = *patch.HigherVariantLabels
	}
	if patch.FeedBatchSize != nil && *patch.FeedBatchSize > 0 {
		cfg.FeedBatchSize = *patch.FeedBatchSize
	}
}
