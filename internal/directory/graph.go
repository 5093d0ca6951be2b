// Package directory supplies normalized sign-in and account facts from
// Microsoft Entra ID via the Graph API. It implements risk.DataProvider;
// the scoring engine never talks to Graph directly.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/entraguard/entraguard/internal/common/config"
	apperrors "github.com/entraguard/entraguard/internal/common/errors"
	"github.com/entraguard/entraguard/internal/geo"
	"github.com/entraguard/entraguard/internal/metrics"
	"github.com/entraguard/entraguard/internal/risk"
)

// recentChangeWindow bounds how far back an auth-method change or password
// reset still counts as recent.
const recentChangeWindow = 14 * 24 * time.Hour

// GraphClient fetches sign-in logs and account configuration from
// Microsoft Graph using the client-credentials flow.
type GraphClient struct {
	cfg      config.GraphConfig
	logger   *zap.Logger
	client   *http.Client
	tokenURL string

	// mu guards token acquisition and refresh; the client is shared
	// across concurrent requests.
	mu    sync.Mutex
	token *graphToken
}

type graphToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// NewGraphClient creates a Graph client for the configured tenant
func NewGraphClient(cfg config.GraphConfig, logger *zap.Logger) *GraphClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	return &GraphClient{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "graph-client")),
		client:   &http.Client{Timeout: timeout},
		tokenURL: fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
	}
}

// TestConnection verifies token acquisition and a basic /users query
func (c *GraphClient) TestConnection(ctx context.Context) error {
	if err := c.ensureToken(ctx); err != nil {
		return fmt.Errorf("failed to acquire Graph token: %w", err)
	}

	var probe struct{}
	if err := c.get(ctx, c.cfg.BaseURL+"/users?$top=1&$select=id", &probe); err != nil {
		return fmt.Errorf("failed to query Microsoft Graph: %w", err)
	}

	c.logger.Info("Graph connection test successful", zap.String("tenant_id", c.cfg.TenantID))
	return nil
}

// SignIns fetches and normalizes the sign-in log for an account since the
// given time, following pagination.
func (c *GraphClient) SignIns(ctx context.Context, upn string, since time.Time) ([]*risk.SignInFact, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrGraphError, "token acquisition failed", err)
	}

	filter := fmt.Sprintf("userPrincipalName eq '%s' and createdDateTime ge %s",
		upn, since.UTC().Format(time.RFC3339))
	endpoint := fmt.Sprintf("%s/auditLogs/signIns?$filter=%s&$top=500",
		c.cfg.BaseURL, url.QueryEscape(filter))

	var facts []*risk.SignInFact
	nextLink := endpoint
	start := time.Now()

	for nextLink != "" {
		var page graphSignInsResponse
		if err := c.get(ctx, nextLink, &page); err != nil {
			metrics.RecordExternalLookup("graph", "error", time.Since(start))
			return nil, apperrors.Wrap(apperrors.ErrGraphError, "sign-in log query failed", err)
		}
		for _, s := range page.Value {
			fact, err := normalizeSignIn(s)
			if err != nil {
				// One malformed record never aborts the run
				c.logger.Warn("Skipping malformed sign-in record",
					zap.String("id", s.ID),
					zap.Error(err),
				)
				continue
			}
			facts = append(facts, fact)
		}
		nextLink = page.NextLink
	}

	metrics.RecordExternalLookup("graph", "success", time.Since(start))
	c.logger.Debug("Sign-in log fetched",
		zap.String("upn", upn),
		zap.Int("count", len(facts)),
	)
	return facts, nil
}

// AccountFacts fetches the per-account configuration facts: MFA methods,
// forwarding, mailbox rules, consents, roles, account age, password reset.
func (c *GraphClient) AccountFacts(ctx context.Context, upn string) (*risk.UserFacts, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrGraphError, "token acquisition failed", err)
	}

	var user graphAccount
	endpoint := fmt.Sprintf("%s/users/%s?$select=id,userPrincipalName,createdDateTime,lastPasswordChangeDateTime",
		c.cfg.BaseURL, url.PathEscape(upn))
	if err := c.get(ctx, endpoint, &user); err != nil {
		if isNotFound(err) {
			return nil, apperrors.Wrap(apperrors.ErrAccountNotFound, "account not found in directory", err)
		}
		return nil, apperrors.Wrap(apperrors.ErrGraphError, "user query failed", err)
	}

	facts := &risk.UserFacts{UPN: user.UserPrincipalName}
	if t, err := time.Parse(time.RFC3339, user.CreatedDateTime); err == nil {
		facts.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, user.LastPasswordChange); err == nil {
		facts.PasswordResetRecently = time.Since(t) < recentChangeWindow
	}

	// Degraded sub-queries log a warning and leave the affected facts at
	// their zero values; the matching indicators resolve not-applicable.
	c.fillAuthMethods(ctx, user.ID, facts)
	c.fillMailbox(ctx, user.ID, facts)
	c.fillRolesAndConsents(ctx, user.ID, facts)
	c.fillCAPolicies(ctx, facts)

	return facts, nil
}

func (c *GraphClient) fillAuthMethods(ctx context.Context, userID string, facts *risk.UserFacts) {
	var methods struct {
		Value []struct {
			ID              string `json:"id"`
			CreatedDateTime string `json:"createdDateTime"`
		} `json:"value"`
	}
	endpoint := fmt.Sprintf("%s/users/%s/authentication/methods", c.cfg.BaseURL, userID)
	if err := c.get(ctx, endpoint, &methods); err != nil {
		c.logger.Warn("Authentication methods query failed", zap.Error(err))
		return
	}

	// The password method is always listed; only additional factors count
	count := 0
	for _, m := range methods.Value {
		count++
		if t, err := time.Parse(time.RFC3339, m.CreatedDateTime); err == nil &&
			time.Since(t) < recentChangeWindow {
			facts.AuthMethodChanged = true
		}
	}
	if count > 0 {
		count--
	}
	facts.MFAMethodCount = count
}

func (c *GraphClient) fillMailbox(ctx context.Context, userID string, facts *risk.UserFacts) {
	var rules struct {
		Value []struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
			IsEnabled   bool   `json:"isEnabled"`
			Actions     struct {
				ForwardTo []struct {
					EmailAddress struct {
						Address string `json:"address"`
					} `json:"emailAddress"`
				} `json:"forwardTo"`
				Delete       bool   `json:"delete"`
				MoveToFolder string `json:"moveToFolder"`
			} `json:"actions"`
		} `json:"value"`
	}
	endpoint := fmt.Sprintf("%s/users/%s/mailFolders/inbox/messageRules", c.cfg.BaseURL, userID)
	if err := c.get(ctx, endpoint, &rules); err != nil {
		c.logger.Warn("Mailbox rules query failed", zap.Error(err))
		return
	}

	for _, r := range rules.Value {
		if !r.IsEnabled {
			continue
		}
		if len(r.Actions.ForwardTo) > 0 {
			facts.ForwardingEnabled = true
			facts.ForwardingAddress = r.Actions.ForwardTo[0].EmailAddress.Address
		}
		if suspiciousRule(r.DisplayName, r.Actions.Delete, r.Actions.MoveToFolder) {
			facts.SuspiciousRuleCount++
		}
	}

	// Delegation surfaces as calendar permissions with a delegate role;
	// the default "My Organization" free/busy entry does not count.
	var permissions struct {
		Value []struct {
			Role string `json:"role"`
		} `json:"value"`
	}
	endpoint = fmt.Sprintf("%s/users/%s/calendar/calendarPermissions", c.cfg.BaseURL, userID)
	if err := c.get(ctx, endpoint, &permissions); err != nil {
		c.logger.Warn("Calendar permissions query failed", zap.Error(err))
		return
	}
	for _, p := range permissions.Value {
		if strings.HasPrefix(p.Role, "delegate") {
			facts.DelegateCount++
		}
	}
}

func (c *GraphClient) fillRolesAndConsents(ctx context.Context, userID string, facts *risk.UserFacts) {
	var memberships struct {
		Value []struct {
			ODataType   string `json:"@odata.type"`
			DisplayName string `json:"displayName"`
		} `json:"value"`
	}
	endpoint := fmt.Sprintf("%s/users/%s/memberOf", c.cfg.BaseURL, userID)
	if err := c.get(ctx, endpoint, &memberships); err != nil {
		c.logger.Warn("Role membership query failed", zap.Error(err))
	} else {
		for _, m := range memberships.Value {
			if m.ODataType == "#microsoft.graph.directoryRole" {
				facts.AdminRoles = append(facts.AdminRoles, m.DisplayName)
			}
		}
	}

	var grants struct {
		Value []struct {
			ID string `json:"id"`
		} `json:"value"`
	}
	endpoint = fmt.Sprintf("%s/users/%s/oauth2PermissionGrants", c.cfg.BaseURL, userID)
	if err := c.get(ctx, endpoint, &grants); err != nil {
		c.logger.Warn("Consent grants query failed", zap.Error(err))
		return
	}
	facts.ConsentCount = len(grants.Value)
}

func (c *GraphClient) fillCAPolicies(ctx context.Context, facts *risk.UserFacts) {
	var policies struct {
		Value []struct {
			State         string `json:"state"`
			GrantControls struct {
				BuiltInControls []string `json:"builtInControls"`
			} `json:"grantControls"`
			Conditions struct {
				Applications struct {
					IncludeApplications []string `json:"includeApplications"`
				} `json:"applications"`
			} `json:"conditions"`
		} `json:"value"`
	}
	endpoint := c.cfg.BaseURL + "/identity/conditionalAccess/policies"
	if err := c.get(ctx, endpoint, &policies); err != nil {
		c.logger.Warn("Conditional Access policy query failed", zap.Error(err))
		return
	}

	for _, p := range policies.Value {
		if p.State != "enabled" {
			continue
		}
		allApps := false
		for _, app := range p.Conditions.Applications.IncludeApplications {
			if app == "All" {
				allApps = true
			}
		}
		for _, ctrl := range p.GrantControls.BuiltInControls {
			switch ctrl {
			case "mfa":
				if allApps {
					facts.CAPolicies.MFAForAllApps = true
				} else {
					facts.CAPolicies.MFAForSomeApps = true
				}
			case "block":
				facts.CAPolicies.BlockPoliciesOnly = true
			}
		}
	}
}

// suspiciousRule matches the rule patterns attackers commonly create to
// hide their traces.
func suspiciousRule(name string, deletes bool, moveTo string) bool {
	if deletes {
		return true
	}
	lowered := strings.ToLower(moveTo)
	if strings.Contains(lowered, "rss") || strings.Contains(lowered, "deleted") ||
		strings.Contains(lowered, "archive") || strings.Contains(lowered, "junk") {
		return true
	}
	// Single-character or empty rule names are a known obfuscation habit
	return len(strings.TrimSpace(name)) <= 1
}

// ensureToken acquires or refreshes the access token via the client
// credentials flow, refreshing 60s before expiry. Concurrent callers
// serialize here so the token is fetched once per expiry.
func (c *GraphClient) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != nil && time.Now().Before(c.token.ExpiresAt) {
		return nil
	}

	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("token acquisition failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}

	c.token = &graphToken{
		AccessToken: tokenResp.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second),
	}

	c.logger.Debug("Graph token acquired", zap.String("tenant_id", c.cfg.TenantID))
	return nil
}

type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("Microsoft Graph returned %d: %s", e.Status, e.Body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.Status == http.StatusNotFound
}

func (c *GraphClient) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.mu.Lock()
	accessToken := ""
	if c.token != nil {
		accessToken = c.token.AccessToken
	}
	c.mu.Unlock()
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &statusError{Status: resp.StatusCode, Body: string(body)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// Graph API response types

type graphAccount struct {
	ID                 string `json:"id"`
	UserPrincipalName  string `json:"userPrincipalName"`
	CreatedDateTime    string `json:"createdDateTime"`
	LastPasswordChange string `json:"lastPasswordChangeDateTime"`
}

type graphSignInsResponse struct {
	Value    []graphSignIn `json:"value"`
	NextLink string        `json:"@odata.nextLink"`
}

type graphSignIn struct {
	ID                        string `json:"id"`
	CreatedDateTime           string `json:"createdDateTime"`
	IPAddress                 string `json:"ipAddress"`
	ClientAppUsed             string `json:"clientAppUsed"`
	CorrelationID             string `json:"correlationId"`
	ConditionalAccessStatus   string `json:"conditionalAccessStatus"`
	AuthenticationRequirement string `json:"authenticationRequirement"`
	RiskLevelDuringSignIn     string `json:"riskLevelDuringSignIn"`
	RiskDetail                string `json:"riskDetail"`
	Status                    struct {
		ErrorCode     int    `json:"errorCode"`
		FailureReason string `json:"failureReason"`
	} `json:"status"`
	DeviceDetail struct {
		DeviceID        string `json:"deviceId"`
		DisplayName     string `json:"displayName"`
		OperatingSystem string `json:"operatingSystem"`
		Browser         string `json:"browser"`
		TrustType       string `json:"trustType"`
		IsCompliant     bool   `json:"isCompliant"`
	} `json:"deviceDetail"`
	Location struct {
		City            string `json:"city"`
		CountryOrRegion string `json:"countryOrRegion"`
		GeoCoordinates  struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"geoCoordinates"`
	} `json:"location"`
}

// normalizeSignIn converts a Graph sign-in record to a SignInFact
func normalizeSignIn(s graphSignIn) (*risk.SignInFact, error) {
	ts, err := time.Parse(time.RFC3339, s.CreatedDateTime)
	if err != nil {
		return nil, fmt.Errorf("unparseable timestamp %q: %w", s.CreatedDateTime, err)
	}

	fact := &risk.SignInFact{
		ID:            s.ID,
		Timestamp:     ts,
		IPAddress:     s.IPAddress,
		ClientApp:     s.ClientAppUsed,
		CorrelationID: s.CorrelationID,
		CAStatus:      s.ConditionalAccessStatus,
		FailureCode:   s.Status.ErrorCode,
		FailureReason: s.Status.FailureReason,
		Device: risk.DeviceInfo{
			DeviceID:        s.DeviceDetail.DeviceID,
			DisplayName:     s.DeviceDetail.DisplayName,
			OperatingSystem: s.DeviceDetail.OperatingSystem,
			Browser:         s.DeviceDetail.Browser,
			TrustType:       s.DeviceDetail.TrustType,
			IsCompliant:     s.DeviceDetail.IsCompliant,
		},
	}

	if s.Status.ErrorCode == 0 {
		fact.Status = "success"
	} else {
		fact.Status = "failure"
	}

	fact.FactorCount = 1
	if s.AuthenticationRequirement == "multiFactorAuthentication" && fact.Status == "success" {
		fact.FactorCount = 2
	}

	switch s.RiskLevelDuringSignIn {
	case "low", "medium", "high":
		fact.RiskLevel = s.RiskLevelDuringSignIn
		fact.RiskDetail = s.RiskDetail
	}

	if s.Location.CountryOrRegion != "" {
		fact.Location = &geo.Location{
			IPAddress:   s.IPAddress,
			City:        s.Location.City,
			CountryCode: s.Location.CountryOrRegion,
			Latitude:    s.Location.GeoCoordinates.Latitude,
			Longitude:   s.Location.GeoCoordinates.Longitude,
		}
	}

	return fact, nil
}
