package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"therapy-app-server/internal/config"
	"therapy-app-server/internal/models"
)

// RoomInfo is the access metadata returned by the meeting provider for a
// newly created room.
type RoomInfo struct {
	MeetingID  string
	Link       string
	AccessCode string
}

// RoomCreator creates a meeting room for an appointment with the external
// provider.
type RoomCreator interface {
	CreateRoom(ctx context.Context, appt *models.Appointment) (*RoomInfo, error)
}

// ExchangeResult is the credential set returned by a code exchange.
type ExchangeResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenExchanger exchanges an authorization code for provider credentials.
type TokenExchanger interface {
	Exchange(ctx context.Context, code string) (*ExchangeResult, error)
}

// ProviderClient talks to the video-meeting provider's HTTP API. It
// implements RoomCreator and TokenExchanger. All calls are bounded by the
// underlying client's timeout.
type ProviderClient struct {
	cfg    config.MeetingConfig
	db     *gorm.DB
	client *http.Client
	now    func() time.Time
}

// NewProviderClient creates a provider client. The database handle is used to
// look up the doctor's authorization grant when creating rooms.
func NewProviderClient(cfg config.MeetingConfig, db *gorm.DB) *ProviderClient {
	return &ProviderClient{
		cfg:    cfg,
		db:     db,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// AuthorizationURL builds the provider's authorization URL carrying the
// resume token as OAuth state.
func (p *ProviderClient) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", p.cfg.CallbackURL)
	q.Set("state", state)
	return p.cfg.AuthorizeURL + "?" + q.Encode()
}

// CreateRoom creates a meeting room for the appointment on behalf of its
// doctor, using the doctor's stored grant.
func (p *ProviderClient) CreateRoom(ctx context.Context, appt *models.Appointment) (*RoomInfo, error) {
	var grant models.AuthorizationGrant
	err := p.db.WithContext(ctx).
		Where("doctor_id = ? AND provider = ?", appt.DoctorID, p.cfg.Provider).
		First(&grant).Error
	if err != nil {
		return nil, fmt.Errorf("load grant for doctor %s: %w", appt.DoctorID, err)
	}

	payload := map[string]interface{}{
		"topic":            "Pediatric consultation",
		"start_time":       appt.StartTime.UTC().Format(time.RFC3339),
		"duration_minutes": int(appt.EndTime.Sub(appt.StartTime).Minutes()),
		"reference":        appt.ID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIBaseURL+"/v1/meetings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+grant.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("meeting provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("meeting provider error: status %d", resp.StatusCode)
	}

	var result struct {
		ID       string `json:"id"`
		JoinURL  string `json:"join_url"`
		Passcode string `json:"passcode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode meeting provider response: %w", err)
	}

	return &RoomInfo{
		MeetingID:  result.ID,
		Link:       result.JoinURL,
		AccessCode: result.Passcode,
	}, nil
}

// Exchange trades an authorization code for a grant at the provider's token
// endpoint.
func (p *ProviderClient) Exchange(ctx context.Context, code string) (*ExchangeResult, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.cfg.CallbackURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange error: status %d", resp.StatusCode)
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	return &ExchangeResult{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    p.now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}
