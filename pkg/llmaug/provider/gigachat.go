package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wholesale-bot/resolver/pkg/cache"
)

// GigaChat is the remote-model provider, grounded on
// _examples/original_source/app/services/llm_gigachat.py: OAuth token
// fetch cached in Redis, one unauthorized-retry on 401/403.
type GigaChat struct {
	OAuthURL            string
	APIBaseURL          string
	BasicAuthKey        string
	Model               string
	Scope               string
	TokenCacheKeyPrefix string
	Timeout             time.Duration

	cache  *cache.Cache
	client *http.Client
}

// NewGigaChat builds a GigaChat provider. c may be a disabled cache (nil
// client) — the token is then re-fetched on every call.
func NewGigaChat(oauthURL, apiBaseURL, basicAuthKey, model, scope, tokenCacheKeyPrefix string, timeout time.Duration, c *cache.Cache) *GigaChat {
	return &GigaChat{
		OAuthURL:            oauthURL,
		APIBaseURL:          apiBaseURL,
		BasicAuthKey:        basicAuthKey,
		Model:               model,
		Scope:               scope,
		TokenCacheKeyPrefix: tokenCacheKeyPrefix,
		Timeout:             timeout,
		cache:               c,
		client:              &http.Client{Timeout: timeout},
	}
}

func (g *GigaChat) Available() bool {
	return strings.TrimSpace(g.BasicAuthKey) != "" &&
		strings.TrimSpace(g.APIBaseURL) != "" &&
		strings.TrimSpace(g.Model) != ""
}

type gigachatTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

func (g *GigaChat) tokenKey() string   { return g.TokenCacheKeyPrefix + ":value" }
func (g *GigaChat) expiresKey() string { return g.TokenCacheKeyPrefix + ":expires_at" }

// accessToken returns a cached token when it has more than 60s left,
// otherwise fetches and caches a fresh one via OAuth.
func (g *GigaChat) accessToken(ctx context.Context) (string, error) {
	if g.BasicAuthKey == "" {
		return "", errors.New("gigachat basic auth key is missing")
	}

	if cached, ok := g.cache.Get(ctx, g.tokenKey()); ok {
		if expiresRaw, ok := g.cache.Get(ctx, g.expiresKey()); ok {
			if expiresAt, err := strconv.ParseInt(expiresRaw, 10, 64); err == nil {
				nowMs := time.Now().UnixMilli()
				if expiresAt-nowMs > 60_000 {
					return cached, nil
				}
			}
		}
	}

	return g.fetchAccessToken(ctx)
}

func (g *GigaChat) fetchAccessToken(ctx context.Context) (string, error) {
	form := url.Values{"scope": {g.Scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.OAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Authorization", "Basic "+g.BasicAuthKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gigachat oauth request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("gigachat oauth failed: status %d", resp.StatusCode)
	}

	var decoded gigachatTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("gigachat oauth decode failed: %w", err)
	}
	if decoded.AccessToken == "" || decoded.ExpiresAt == 0 {
		return "", errors.New("gigachat oauth response missing token")
	}

	nowMs := time.Now().UnixMilli()
	ttlSeconds := (decoded.ExpiresAt-nowMs)/1000 - 60
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	g.cache.Set(ctx, g.tokenKey(), decoded.AccessToken, ttl)
	g.cache.Set(ctx, g.expiresKey(), strconv.FormatInt(decoded.ExpiresAt, 10), ttl)

	return decoded.AccessToken, nil
}

func (g *GigaChat) invalidateToken(ctx context.Context) {
	g.cache.Delete(ctx, g.tokenKey(), g.expiresKey())
}

type gigachatChatRequest struct {
	Model       string              `json:"model"`
	Messages    []ollamaChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type gigachatChatResponse struct {
	Choices []struct {
		Message ollamaChatMessage `json:"message"`
	} `json:"choices"`
}

func (g *GigaChat) Chat(ctx context.Context, messages []Message, temperature float64) (string, error) {
	payload := gigachatChatRequest{Model: g.Model, Temperature: temperature}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, ollamaChatMessage{Role: m.Role, Content: m.Content})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	token, err := g.accessToken(ctx)
	if err != nil {
		return "", err
	}

	resp, err := g.postChat(ctx, body, token)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		g.invalidateToken(ctx)
		token, err = g.fetchAccessToken(ctx)
		if err != nil {
			return "", err
		}
		resp, err = g.postChat(ctx, body, token)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("gigachat chat failed: status %d", resp.StatusCode)
	}

	var decoded gigachatChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("gigachat decode failed: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("gigachat empty response")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

func (g *GigaChat) postChat(ctx context.Context, body []byte, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.APIBaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return g.client.Do(req)
}
