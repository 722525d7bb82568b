package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

var ErrNoAccessToken = errors.New("oauth: no access token")

// UserInfo resolves the account name the access token belongs to.
func (m *Manager) UserInfo(ctx context.Context, timeout time.Duration) (string, error) {
	at := m.AccessToken()
	if at == "" {
		return "", ErrNoAccessToken
	}
	ctx, cancel := m.context(ctx, timeout)
	defer cancel()

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: at, TokenType: "Bearer"}))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.userInfoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("userinfo: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo: status %d", resp.StatusCode)
	}
	var info struct {
		Username          string `json:"username"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("userinfo: %w", err)
	}
	name := info.Username
	if name == "" {
		name = info.PreferredUsername
	}
	if name == "" {
		return "", errors.New("userinfo: no username")
	}
	m.log.V(1).Info("Resolved identity", "username", name)
	return name, nil
}
