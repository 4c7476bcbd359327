package room

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sereno/models"

	"go.uber.org/zap"
)

// RoomService is the real-time session room capability. Callers treat
// failures as non-fatal and defer to the reconciliation sweep.
type RoomService interface {
	CreateRoom(ctx context.Context, b *models.Booking) (string, error)
	EndRoom(ctx context.Context, roomID string) error
	ParticipantJoined(ctx context.Context, roomID, participantID string) (bool, error)
}

// HTTPRoomService talks to the room infrastructure service over its JSON API.
type HTTPRoomService struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Logger  *zap.Logger
}

func NewHTTPRoomService(baseURL, apiKey string, logger *zap.Logger) *HTTPRoomService {
	return &HTTPRoomService{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Logger:  logger,
	}
}

type createRoomRequest struct {
	BookingID       string `json:"bookingId"`
	Name            string `json:"name"`
	MaxParticipants int    `json:"maxParticipants"`
	EmptyTimeoutSec int    `json:"emptyTimeoutSec"`
}

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

func (s *HTTPRoomService) CreateRoom(ctx context.Context, b *models.Booking) (string, error) {
	maxP := b.MaxParticipants
	if maxP == 0 {
		maxP = 2
	}
	payload := createRoomRequest{
		BookingID:       b.ID,
		Name:            fmt.Sprintf("booking-%s", b.ID),
		MaxParticipants: maxP,
		EmptyTimeoutSec: 600,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal create room request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/rooms", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build create room request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create room call failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create room returned status %d", resp.StatusCode)
	}

	var out createRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode create room response: %w", err)
	}
	s.Logger.Info("room created", zap.String("bookingId", b.ID), zap.String("roomId", out.RoomID))
	return out.RoomID, nil
}

func (s *HTTPRoomService) EndRoom(ctx context.Context, roomID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.BaseURL+"/rooms/"+roomID, nil)
	if err != nil {
		return fmt.Errorf("build end room request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("end room call failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("end room returned status %d", resp.StatusCode)
	}
	return nil
}

type participantResponse struct {
	Joined bool `json:"joined"`
}

// ParticipantJoined asks the room service whether a participant has ever
// joined the room. Used by the attendance and no-show recovery checks.
func (s *HTTPRoomService) ParticipantJoined(ctx context.Context, roomID, participantID string) (bool, error) {
	url := fmt.Sprintf("%s/rooms/%s/participants/%s", s.BaseURL, roomID, participantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build participant request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("participant call failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("participant check returned status %d", resp.StatusCode)
	}

	var out participantResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode participant response: %w", err)
	}
	return out.Joined, nil
}
