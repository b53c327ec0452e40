package invoke_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura/pkg/agent/invoke"
	"aura/pkg/agent/llm"
	"aura/pkg/agent/llmerrors"
	"aura/pkg/config"
	"aura/pkg/testkit"
)

func request(models []string, creds ...string) invoke.Request {
	return invoke.Request{
		Provider:    config.ProviderGoogle,
		Models:      models,
		Credentials: testkit.Credentials(creds...),
		Messages:    []llm.CompletionMessage{llm.NewUserMessage("hello")},
	}
}

func TestInvokeConfigurationErrors(t *testing.T) {
	f := testkit.NewScriptedFactory()
	engine := invoke.New(f, nil)

	_, err := engine.Invoke(context.Background(), request(nil, "k1"))
	var cfgErr *invoke.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	_, err = engine.Invoke(context.Background(), request([]string{"m"}))
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "API key missing")

	assert.Empty(t, f.Calls())
}

func TestInvokeShortCircuitsOnFirstSuccess(t *testing.T) {
	f := testkit.NewScriptedFactory().On("m1", "k1", testkit.Text("hi"))
	engine := invoke.New(f, nil)

	res, err := engine.Invoke(context.Background(), request([]string{"m1", "m2"}, "k1", "k2"))
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, "hi", res.Response.Content)
	assert.Equal(t, "m1", res.Model)
	assert.Equal(t, "k1", res.CredentialID)
	assert.Len(t, f.Calls(), 1)
	assert.NoError(t, res.Err())
	assert.Empty(t, res.UserMessage())
}

func TestInvokeLiteModelSecondCredential(t *testing.T) {
	f := testkit.NewScriptedFactory().
		On("x-lite", "k1", testkit.RateLimited()).
		On("x-lite", "k2", testkit.Text("ok"))
	engine := invoke.New(f, nil)

	models := invoke.DeriveModelCandidates("x-lite", invoke.Policy{StableFallback: "gemini-2.5-flash"})
	require.Equal(t, []string{"x-lite", "gemini-2.5-flash"}, models)

	res, err := engine.Invoke(context.Background(), request(models, "k1", "k2"))
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, "x-lite", res.Model)
	assert.Equal(t, "k2", res.CredentialID)
	assert.Equal(t, 1, res.CredentialIndex)

	for _, c := range f.Calls() {
		assert.NotEqual(t, "gemini-2.5-flash", c.Model)
	}
	require.Len(t, res.Errors, 1)
	assert.Equal(t, llmerrors.KindRateLimited, res.Errors[0].Kind)
}

func TestInvokeAllOtherExhausts(t *testing.T) {
	f := testkit.NewScriptedFactory().On("", "", testkit.Other("503 unavailable"))
	engine := invoke.New(f, nil)

	res, err := engine.Invoke(context.Background(), request([]string{"m1", "m2"}, "k1", "k2"))
	require.NoError(t, err)
	assert.Equal(t, invoke.OutcomeExhausted, res.Outcome)
	require.Len(t, res.Errors, 4)

	want := [][2]string{{"m1", "k1"}, {"m1", "k2"}, {"m2", "k1"}, {"m2", "k2"}}
	for i, w := range want {
		assert.Equal(t, w[0], res.Errors[i].Model)
		assert.Equal(t, w[1], res.Errors[i].CredentialID)
		assert.Equal(t, llmerrors.KindOther, res.Errors[i].Kind)
	}
	assert.Equal(t, 2, res.ModelsAttempted)
	assert.Equal(t, 2, res.CredentialsAttempted)

	var exhausted *invoke.ExhaustionError
	require.ErrorAs(t, res.Err(), &exhausted)
	assert.False(t, exhausted.RateLimited)
	assert.Len(t, exhausted.Attempts, 4)

	msg := res.UserMessage()
	assert.Contains(t, msg, "All attempts failed")
	assert.Contains(t, msg, "**m2** (key #1)")
}

func TestInvokeAllRateLimited(t *testing.T) {
	f := testkit.NewScriptedFactory().On("", "", testkit.RateLimited())
	engine := invoke.New(f, nil)

	res, err := engine.Invoke(context.Background(), request([]string{"m1", "m2"}, "k1", "k2", "k3"))
	require.NoError(t, err)
	assert.Equal(t, invoke.OutcomeRateLimited, res.Outcome)
	assert.Len(t, f.Calls(), 6)
	assert.Contains(t, res.UserMessage(), "Rate Limit")
	assert.NotContains(t, res.UserMessage(), "All attempts failed")

	var exhausted *invoke.ExhaustionError
	require.ErrorAs(t, res.Err(), &exhausted)
	assert.True(t, exhausted.RateLimited)
}

func TestInvokeLastFailureDecidesOutcome(t *testing.T) {
	f := testkit.NewScriptedFactory().
		On("m1", "k1", testkit.RateLimited()).
		On("m1", "k2", testkit.Unauthorized())
	engine := invoke.New(f, nil)

	res, err := engine.Invoke(context.Background(), request([]string{"m1"}, "k1", "k2"))
	require.NoError(t, err)
	assert.Equal(t, invoke.OutcomeExhausted, res.Outcome)
	assert.Equal(t, llmerrors.KindUnauthorized, res.Errors[1].Kind)
}

func TestUserMessageBoundsErrorLog(t *testing.T) {
	f := testkit.NewScriptedFactory().On("", "", testkit.NotFound())
	engine := invoke.New(f, nil)

	res, err := engine.Invoke(context.Background(), request([]string{"a", "b", "c"}, "k1", "k2", "k3"))
	require.NoError(t, err)
	require.Len(t, res.Errors, 9)

	msg := res.UserMessage()
	assert.Equal(t, invoke.MaxLoggedAttempts, strings.Count(msg, "\n- **"))
	assert.Contains(t, msg, "... 4 more")
}

func TestUserMessageKeepsLongNonASCIIErrorsValid(t *testing.T) {
	res := invoke.Result{
		Outcome:         invoke.OutcomeExhausted,
		ModelsAttempted: 1,
		Errors: []invoke.Attempt{{
			Model: "gemini-2.5-flash",
			Err:   errors.New("a" + strings.Repeat("é", 400)),
		}},
	}
	msg := res.UserMessage()
	assert.True(t, utf8.ValidString(msg))
	assert.Contains(t, msg, "[401 chars, hash:")
}

func TestInvokeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := testkit.NewScriptedFactory().Handle(func(string, string, llm.CompletionRequest) testkit.Reply {
		cancel()
		return testkit.Fail(context.Canceled)
	})
	engine := invoke.New(f, nil)

	_, err := engine.Invoke(ctx, request([]string{"m1", "m2"}, "k1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, f.Calls(), 1)
}

func TestInvokeAppliesRequestOptions(t *testing.T) {
	f := testkit.NewScriptedFactory().On("", "", testkit.Text("ok"))
	engine := invoke.New(f, nil)

	req := request([]string{"m"}, "k")
	req.Temperature = invoke.Temperature(0)
	req.ToolChoice = llm.ToolChoiceAny
	req.MaxTokens = 77
	_, err := engine.Invoke(context.Background(), req)
	require.NoError(t, err)

	sent := f.Calls()[0].Request
	assert.InDelta(t, 0, sent.Temperature, 0)
	assert.Equal(t, llm.ToolChoiceAny, sent.ToolChoice)
	assert.Equal(t, 77, sent.MaxTokens)
}

func TestInvokeIsReentrant(t *testing.T) {
	f := testkit.NewScriptedFactory().
		On("m", "k1", testkit.RateLimited()).
		Handle(func(model, cred string, _ llm.CompletionRequest) testkit.Reply {
			return testkit.Text(model + "/" + cred)
		})
	engine := invoke.New(f, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.Invoke(context.Background(), request([]string{"m"}, "k2"))
			assert.NoError(t, err)
			assert.Equal(t, "m/k2", res.Response.Content)
		}()
	}
	wg.Wait()
}

func TestNewRequestFromSnapshot(t *testing.T) {
	cfg := config.Default()
	cfg.ActiveModelID = "gemini-2.5-flash-lite"
	cfg.APIKeys = []config.Credential{
		{ID: "a", Key: "ka", Provider: config.ProviderGoogle},
		{ID: "b", Key: "kb", Provider: config.ProviderGoogle},
	}
	cfg.ActiveAPIKeyID = "b"
	snap := config.NewSnapshot(cfg, 1)

	req := invoke.NewRequest(snap, []llm.CompletionMessage{llm.NewUserMessage("x")})
	assert.Equal(t, []string{"gemini-2.5-flash-lite", "gemini-2.5-flash"}, req.Models)
	require.Len(t, req.Credentials, 2)
	assert.Equal(t, "b", req.Credentials[0].ID)
	assert.Equal(t, config.DefaultMaxTokens, req.MaxTokens)
	assert.Same(t, snap, req.Snapshot)
}
