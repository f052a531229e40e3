package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/boscod/trackwatch/config"
)

type WhatsAppService struct {
	cfg    config.WhatsAppConfig
	client *http.Client
}

func NewWhatsAppService(cfg config.WhatsAppConfig) *WhatsAppService {
	return &WhatsAppService{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *WhatsAppService) Enabled() bool {
	return s != nil && s.cfg.APIURL != ""
}

type whatsAppMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type whatsAppResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendMessage sends a text message. Phone is digits with country code,
// e.g. 628xxxxxxxxxx.
func (s *WhatsAppService) SendMessage(ctx context.Context, phone, message string) error {
	if !s.Enabled() {
		return fmt.Errorf("WHATSAPP_API_URL not configured")
	}

	jid := phone
	if !strings.HasSuffix(jid, "@s.whatsapp.net") {
		jid = strings.TrimPrefix(jid, "+") + "@s.whatsapp.net"
	}

	jsonBody, err := json.Marshal(whatsAppMessageRequest{Phone: jid, Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(s.cfg.APIURL, "/") + "/send/message"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.DeviceID != "" {
		req.Header.Set("X-Device-Id", s.cfg.DeviceID)
	}
	if s.cfg.User != "" && s.cfg.Password != "" {
		req.SetBasicAuth(s.cfg.User, s.cfg.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp whatsAppResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("WhatsApp API error (status %d): %s", resp.StatusCode, errResp.Message)
	}
	return nil
}
