// Package api is the HTTP gateway to the remote planner service.
//
// Every operation folds transport and decode failures into a normalized
// result instead of surfacing raw errors; callers branch on status codes
// the same way for a network outage and a server rejection. Successful
// login/registration/refresh calls install credentials into the session
// manager as a side effect — the gateway never hands out credentials
// without installing them.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	applog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/session"
)

// AuthResult is the normalized outcome of login/registration/refresh.
type AuthResult struct {
	Status      int
	Message     string
	FieldErrors map[string]string
}

// OK reports whether the call succeeded.
func (r AuthResult) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Response is the normalized outcome of a generic authorized request.
type Response struct {
	StatusCode int
	Message    string
	Payload    json.RawMessage
}

// OK reports whether the call succeeded.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client issues calls against the planner API.
type Client struct {
	baseURL  string
	http     *http.Client
	sessions *session.Manager
}

// NewClient creates a gateway bound to baseURL. All credential mutations go
// through sessions.
func NewClient(baseURL string, timeout time.Duration, sessions *session.Manager) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		sessions: sessions,
	}
}

// authResponse is the wire shape of a successful auth call.
type authResponse struct {
	AccessToken string `json:"accessToken"`
	UserUID     string `json:"userUid"`
}

// Login authenticates with email and password. On success the returned
// credentials are installed into the session manager; with remember set
// they are also persisted.
func (c *Client) Login(ctx context.Context, email, password string, remember bool) AuthResult {
	body := map[string]string{"email": email, "password": password}

	status, payload, err := c.post(ctx, "/api/auth/login", body, "")
	if err != nil {
		applog.Error("login transport failure", err)
		return AuthResult{Status: http.StatusInternalServerError, Message: "Login failed"}
	}
	if status < 200 || status >= 300 {
		return authFailure(status, payload, "Login failed")
	}

	var auth authResponse
	if err := json.Unmarshal(payload, &auth); err != nil || auth.AccessToken == "" {
		applog.Error("login response undecodable", err, "status", status)
		return AuthResult{Status: http.StatusInternalServerError, Message: "Login failed"}
	}

	creds := model.Credentials{UserID: auth.UserUID, AccessToken: auth.AccessToken}
	if err := c.sessions.Set(creds, remember); err != nil {
		applog.Error("login rejected by session manager", err, "user_id", auth.UserUID)
		return AuthResult{Status: http.StatusInternalServerError, Message: "Login failed"}
	}

	applog.Info("login successful", "user_id", auth.UserUID, "remember", remember)
	return AuthResult{Status: status, Message: "Login successful"}
}

// Register creates an account and, like Login, installs the returned
// credentials on success.
func (c *Client) Register(ctx context.Context, reg model.Registration, remember bool) AuthResult {
	status, payload, err := c.post(ctx, "/api/auth/registration", reg, "")
	if err != nil {
		applog.Error("registration transport failure", err)
		return AuthResult{Status: http.StatusInternalServerError, Message: "Registration failed"}
	}
	if status < 200 || status >= 300 {
		return authFailure(status, payload, "Registration failed")
	}

	var auth authResponse
	if err := json.Unmarshal(payload, &auth); err != nil || auth.AccessToken == "" {
		applog.Error("registration response undecodable", err, "status", status)
		return AuthResult{Status: http.StatusInternalServerError, Message: "Registration failed"}
	}

	creds := model.Credentials{UserID: auth.UserUID, AccessToken: auth.AccessToken}
	if err := c.sessions.Set(creds, remember); err != nil {
		applog.Error("registration rejected by session manager", err, "user_id", auth.UserUID)
		return AuthResult{Status: http.StatusInternalServerError, Message: "Registration failed"}
	}

	applog.Info("registration successful", "user_id", auth.UserUID, "remember", remember)
	return AuthResult{Status: status, Message: "Registration successful"}
}

// RefreshToken exchanges the current (possibly stale) token for a fresh
// one. It is safe to call unauthenticated: that reports a normalized
// failure rather than sending a malformed request. On success only the
// access token is replaced; the user identifier is preserved. On failure
// the in-memory credentials are left untouched.
func (c *Client) RefreshToken(ctx context.Context) AuthResult {
	creds, ok := c.sessions.Credentials()
	if !ok {
		return AuthResult{Status: http.StatusUnauthorized, Message: "Not authenticated"}
	}

	status, payload, err := c.post(ctx, "/api/auth/refresh", nil, creds.AccessToken)
	if err != nil {
		applog.Error("token refresh transport failure", err)
		return AuthResult{Status: http.StatusInternalServerError, Message: "Token refresh failed"}
	}
	if status < 200 || status >= 300 {
		return authFailure(status, payload, "Token refresh failed")
	}

	var auth authResponse
	if err := json.Unmarshal(payload, &auth); err != nil || auth.AccessToken == "" {
		applog.Error("refresh response undecodable", err, "status", status)
		return AuthResult{Status: http.StatusInternalServerError, Message: "Token refresh failed"}
	}

	if err := c.sessions.InstallToken(auth.AccessToken); err != nil {
		applog.Error("refreshed token rejected by session manager", err)
		return AuthResult{Status: http.StatusInternalServerError, Message: "Token refresh failed"}
	}

	applog.Debug("token refreshed")
	return AuthResult{Status: status, Message: "Token refreshed successfully"}
}

// Do issues a generic request against subRoute with the current access
// token attached as a bearer credential. Calls without a valid token fail
// with an explicit unauthenticated result instead of hitting the network.
func (c *Client) Do(ctx context.Context, subRoute string, payload any, method string) Response {
	creds, ok := c.sessions.Credentials()
	if !ok {
		return Response{StatusCode: http.StatusUnauthorized, Message: "Not authenticated"}
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			applog.Error("request payload unmarshalable", err, "route", subRoute)
			return Response{StatusCode: http.StatusInternalServerError, Message: "Request failed"}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+subRoute, body)
	if err != nil {
		return Response{StatusCode: http.StatusInternalServerError, Message: "Request failed"}
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		applog.Error("request transport failure", err, "route", subRoute)
		return Response{StatusCode: http.StatusInternalServerError, Message: "Request failed"}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		applog.Error("request body unreadable", err, "route", subRoute)
		return Response{StatusCode: http.StatusInternalServerError, Message: "Request failed"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		applog.Warn("request rejected", "route", subRoute, "status", resp.StatusCode)
		return Response{
			StatusCode: resp.StatusCode,
			Message:    messageFromBody(data, "Request failed"),
		}
	}

	return Response{
		StatusCode: resp.StatusCode,
		Message:    "Request successful",
		Payload:    json.RawMessage(data),
	}
}

// post sends a JSON POST and returns the raw status and body. The bearer
// token is attached only when provided. Transport errors are returned for
// the caller to fold into its normalized result.
func (c *Client) post(ctx context.Context, subRoute string, payload any, bearer string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+subRoute, body)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

// authFailure maps a non-2xx auth response onto an AuthResult, lifting
// server-provided field validation messages into FieldErrors.
func authFailure(status int, payload []byte, fallback string) AuthResult {
	result := AuthResult{Status: status, Message: fallback}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return result
	}

	if msg, ok := body["message"].(string); ok && msg != "" {
		result.Message = msg
	}

	// Servers report validation problems either under an "errors" object or
	// as loose string fields next to "message".
	if errsObj, ok := body["errors"].(map[string]any); ok {
		result.FieldErrors = stringValues(errsObj)
		return result
	}
	delete(body, "message")
	if fields := stringValues(body); len(fields) > 0 {
		result.FieldErrors = fields
	}
	return result
}

func stringValues(m map[string]any) map[string]string {
	out := make(map[string]string)
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// messageFromBody extracts a server "message" field, falling back when the
// body is not JSON or carries none.
func messageFromBody(payload []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Message == "" {
		return fallback
	}
	return body.Message
}
