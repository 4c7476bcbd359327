package notification

import (
	"context"
	"fmt"

	"sereno/database/repository"
	"sereno/utils"

	"firebase.google.com/go/v4/messaging"
)

// NotificationService defines methods for sending FCM pushes. Delivery is
// best-effort: callers never make booking correctness depend on it.
type NotificationService interface {
	SendUserPushNotification(ctx context.Context, userID, title, body string, data map[string]string) error
	SendPractitionerPushNotification(ctx context.Context, practitionerID, title, body string, data map[string]string) error
}

// DefaultNotificationService is the production implementation.
type DefaultNotificationService struct {
	Contacts repository.ContactRepository
}

func NewDefaultNotificationService(contacts repository.ContactRepository) (*DefaultNotificationService, error) {
	if contacts == nil {
		return nil, fmt.Errorf("notification service initialization error: contact repository is nil")
	}
	return &DefaultNotificationService{Contacts: contacts}, nil
}

// SendUserPushNotification looks up a user's FCM token and sends a push.
func (s *DefaultNotificationService) SendUserPushNotification(
	ctx context.Context,
	userID, title, body string,
	data map[string]string,
) error {
	token, err := s.Contacts.UserToken(ctx, userID)
	if err != nil {
		return fmt.Errorf("SendUserPushNotification: could not find user %s: %w", userID, err)
	}
	if token == "" {
		return fmt.Errorf("SendUserPushNotification: user %s has no FCM token", userID)
	}

	if _, ok := data["role"]; !ok {
		data["role"] = "user"
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	if _, err := utils.FCMClient.Send(ctx, msg); err != nil {
		return fmt.Errorf("SendUserPushNotification: failed to send FCM message: %w", err)
	}
	return nil
}

// SendPractitionerPushNotification sends a high-priority push to a practitioner.
func (s *DefaultNotificationService) SendPractitionerPushNotification(
	ctx context.Context,
	practitionerID, title, body string,
	data map[string]string,
) error {
	token, err := s.Contacts.PractitionerToken(ctx, practitionerID)
	if err != nil {
		return fmt.Errorf("SendPractitionerPushNotification: could not find practitioner %s: %w", practitionerID, err)
	}
	if token == "" {
		return fmt.Errorf("SendPractitionerPushNotification: practitioner %s has no FCM token", practitionerID)
	}

	if _, ok := data["role"]; !ok {
		data["role"] = "practitioner"
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "high_priority",
				Sound:     "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "alert",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}

	if _, err := utils.FCMClient.Send(ctx, msg); err != nil {
		return fmt.Errorf("SendPractitionerPushNotification: failed to send FCM message: %w", err)
	}
	return nil
}
