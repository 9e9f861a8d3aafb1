package devicetool

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Minimal Tuya cloud client: token grant plus device commands, with the
// HMAC-SHA256 request signing the cloud API requires.

var tuyaRegionHosts = map[string]string{
	"us": "https://openapi.tuyaus.com",
	"eu": "https://openapi.tuyaeu.com",
	"cn": "https://openapi.tuyacn.com",
	"in": "https://openapi.tuyain.com",
}

type tuyaClient struct {
	host      string
	apiKey    string
	apiSecret string
	client    *http.Client

	accessToken string
	tokenExpiry time.Time
}

func newTuyaClient(region, apiKey, apiSecret string) *tuyaClient {
	host, ok := tuyaRegionHosts[strings.ToLower(region)]
	if !ok {
		host = tuyaRegionHosts["us"]
	}
	return &tuyaClient{
		host:      host,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type tuyaResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
}

type tuyaTokenResult struct {
	AccessToken string `json:"access_token"`
	ExpireTime  int    `json:"expire_time"`
}

// sign computes the v2 cloud signature:
// HMAC-SHA256(client_id [+ access_token] + t + nonce + stringToSign).
func (c *tuyaClient) sign(token, t, nonce, method, path string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	stringToSign := method + "\n" + hex.EncodeToString(bodyHash[:]) + "\n\n" + path

	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(c.apiKey + token + t + nonce + stringToSign))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

func (c *tuyaClient) request(ctx context.Context, method, path string, body []byte, token string) (*tuyaResponse, error) {
	t := fmt.Sprintf("%d", time.Now().UnixMilli())
	nonce := uuid.New().String()

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("client_id", c.apiKey)
	req.Header.Set("t", t)
	req.Header.Set("nonce", nonce)
	req.Header.Set("sign_method", "HMAC-SHA256")
	req.Header.Set("sign", c.sign(token, t, nonce, method, path, body))
	if token != "" {
		req.Header.Set("access_token", token)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var parsed tuyaResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode tuya response: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("tuya API error: %s", parsed.Msg)
	}
	return &parsed, nil
}

func (c *tuyaClient) ensureToken(ctx context.Context) (string, error) {
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}
	resp, err := c.request(ctx, http.MethodGet, "/v1.0/token?grant_type=1", nil, "")
	if err != nil {
		return "", fmt.Errorf("token grant failed: %w", err)
	}
	var result tuyaTokenResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("failed to decode token: %w", err)
	}
	c.accessToken = result.AccessToken
	// Renew a minute early.
	c.tokenExpiry = time.Now().Add(time.Duration(result.ExpireTime-60) * time.Second)
	return c.accessToken, nil
}

// SendCommand issues one device command code/value pair.
func (c *tuyaClient) SendCommand(ctx context.Context, deviceID, code string, value any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{
		"commands": []map[string]any{{"code": code, "value": value}},
	})
	if err != nil {
		return err
	}
	path := "/v1.0/devices/" + deviceID + "/commands"
	if _, err := c.request(ctx, http.MethodPost, path, body, token); err != nil {
		// A stale token is the common failure; drop it so the next call
		// re-grants.
		c.accessToken = ""
		return err
	}
	return nil
}
