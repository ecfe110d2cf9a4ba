package push

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SherClockHolmes/webpush-go"

	"remindme/internal/notify"
)

// Sender delivers a single payload to a single web-push endpoint using VAPID
// credentials.
type Sender struct {
	vapidPublicKey  string
	vapidPrivateKey string
	contact         string
}

// NewSender validates the VAPID configuration. The contact is the mailto/URL
// identifying the sender to the push service.
func NewSender(publicKey, privateKey, contact string) (*Sender, error) {
	if publicKey == "" || privateKey == "" || contact == "" {
		return nil, errors.New("webpush requires VAPID public key, private key and contact")
	}
	return &Sender{
		vapidPublicKey:  publicKey,
		vapidPrivateKey: privateKey,
		contact:         contact,
	}, nil
}

// Send pushes the content to one subscription endpoint.
func (s *Sender) Send(target Target, content notify.Content) error {
	payload, err := json.Marshal(map[string]any{
		"title": content.Title,
		"body":  content.Body,
		"data":  content.Data,
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	sub := &webpush.Subscription{
		Endpoint: target.Endpoint,
		Keys: webpush.Keys{
			P256dh: target.Keys["p256dh"],
			Auth:   target.Keys["auth"],
		},
	}

	resp, err := webpush.SendNotification(payload, sub, &webpush.Options{
		Subscriber:      s.contact,
		VAPIDPublicKey:  s.vapidPublicKey,
		VAPIDPrivateKey: s.vapidPrivateKey,
		TTL:             86400,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("push rejected with status %d", resp.StatusCode)
	}
	return nil
}
