package service

import (
	"context"
	"testing"

	"shopify-feed-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfigStore struct {
	values map[string]string
}

func newFakeConfigStore() *fakeConfigStore {
	return &fakeConfigStore{values: make(map[string]string)}
}

func (f *fakeConfigStore) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	value, ok := f.values[key]
	return value, ok, nil
}

func (f *fakeConfigStore) SetConfigValue(ctx context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

type fakeCredentialTarget struct {
	shopURL     string
	accessToken string
	calls       int
}

func (f *fakeCredentialTarget) Configure(shopURL, accessToken string) {
	f.shopURL = shopURL
	f.accessToken = accessToken
	f.calls++
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int { return &n }

func TestGetReturnsDefaultsWhenUnset(t *testing.T) {
	svc := NewConfigService(newFakeConfigStore(), nil)

	cfg, err := svc.Get(context.Background())
	require.NoError(t, err)

	assert.Empty(t, cfg.ShopURL)
	assert.False(t, cfg.AutoSync)
	assert.Equal(t, "6h", cfg.SyncInterval)
	assert.True(t, cfg.HigherVariantLabels)
	assert.Equal(t, defaultFeedBatchSize, cfg.FeedBatchSize)
}

func TestSaveMergesPatchOverCurrent(t *testing.T) {
	store := newFakeConfigStore()
	svc := NewConfigService(store, nil)
	ctx := context.Background()

	_, err := svc.Save(ctx, models.MerchantConfigPatch{
		ShopURL:     strPtr("acme.myshopify.com"),
		AccessToken: strPtr("shpat_abc"),
	})
	require.NoError(t, err)

	// A later partial update leaves untouched fields alone.
	updated, err := svc.Save(ctx, models.MerchantConfigPatch{
		AutoSync:            boolPtr(true),
		HigherVariantLabels: boolPtr(false),
	})
	require.NoError(t, err)

	assert.Equal(t, "acme.myshopify.com", updated.ShopURL)
	assert.Equal(t, "shpat_abc", updated.AccessToken)
	assert.True(t, updated.AutoSync)
	assert.False(t, updated.HigherVariantLabels)

	reloaded, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, updated, reloaded)
}

func TestSavePushesCredentialsToClient(t *testing.T) {
	target := &fakeCredentialTarget{}
	svc := NewConfigService(newFakeConfigStore(), target)

	_, err := svc.Save(context.Background(), models.MerchantConfigPatch{
		ShopURL:     strPtr("acme.myshopify.com"),
		AccessToken: strPtr("shpat_abc"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, target.calls)
	assert.Equal(t, "acme.myshopify.com", target.shopURL)
	assert.Equal(t, "shpat_abc", target.accessToken)
}

func TestSaveIgnoresInvalidBatchSize(t *testing.T) {
	svc := NewConfigService(newFakeConfigStore(), nil)

	cfg, err := svc.Save(context.Background(), models.MerchantConfigPatch{
		FeedBatchSize: intPtr(-5),
	})
	require.NoError(t, err)
	assert.Equal(t, defaultFeedBatchSize, cfg.FeedBatchSize)
}

func TestApplyToClientUsesStoredCredentials(t *testing.T) {
	store := newFakeConfigStore()
	store.values[merchantConfigKey] = `{"shop_url":"acme.myshopify.com","access_token":"shpat_abc"}`

	target := &fakeCredentialTarget{}
	svc := NewConfigService(store, target)

	require.NoError(t, svc.ApplyToClient(context.Background()))
	assert.Equal(t, "acme.myshopify.com", target.shopURL)
	assert.Equal(t, "shpat_abc", target.accessToken)
}
