package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura/pkg/agent/llm"
	"aura/pkg/agent/llmerrors"
	"aura/pkg/config"
)

func TestScriptedFactoryConsumesScriptsInOrder(t *testing.T) {
	f := NewScriptedFactory().
		On("m", "k1", RateLimited(), Text("second")).
		On("", "", Text("anything"))

	c, err := f.NewClient(config.ProviderGoogle, "m", config.Credential{ID: "k1"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), llm.CompletionRequest{})
	assert.Equal(t, llmerrors.KindRateLimited, llmerrors.Classify(err))

	for range 2 {
		resp, err := c.Complete(context.Background(), llm.CompletionRequest{})
		require.NoError(t, err)
		assert.Equal(t, "second", resp.Content)
	}

	other, _ := f.NewClient(config.ProviderGoogle, "x", config.Credential{ID: "k9"})
	resp, err := other.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "anything", resp.Content)

	calls := f.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "x", calls[3].Model)
	assert.Equal(t, "k9", calls[3].CredentialID)
}

func TestScriptedFactoryHandlerAndDefault(t *testing.T) {
	f := NewScriptedFactory()
	c, _ := f.NewClient(config.ProviderGoogle, "m", config.Credential{ID: "k"})
	_, err := c.Complete(context.Background(), llm.CompletionRequest{})
	assert.Equal(t, llmerrors.KindOther, llmerrors.Classify(err))

	f.Handle(func(model, _ string, _ llm.CompletionRequest) Reply { return Text("from " + model) })
	resp, err := c.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from m", resp.Content)
}

func TestScriptedClientHonorsCancellation(t *testing.T) {
	f := NewScriptedFactory().On("", "", Text("never"))
	c, _ := f.NewClient(config.ProviderGoogle, "m", config.Credential{ID: "k"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Complete(ctx, llm.CompletionRequest{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.Calls())
}

func TestCredentials(t *testing.T) {
	creds := Credentials("k1", "k2")
	require.Len(t, creds, 2)
	assert.Equal(t, "k2", creds[1].ID)
	assert.Equal(t, "key-k2", creds[1].Key)
}

func TestSnapshot(t *testing.T) {
	snap := Snapshot("x-lite", "k1", "k2")
	assert.Equal(t, "x-lite", snap.ActiveModel())
	creds := snap.Credentials()
	require.Len(t, creds, 2)
	assert.Equal(t, "k1", creds[0].ID)
}
