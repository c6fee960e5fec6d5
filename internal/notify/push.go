package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/c-pro/geche"
)

// Permission mirrors the browser notification permission states.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

var ErrPushDisabled = errors.New("web push is not configured")

// Native is the payload of a native notification.
type Native struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Tag   string `json:"tag"`
}

// Pusher delivers native notifications to a user's browsers.
type Pusher interface {
	Permission(userName string) Permission
	Notify(ctx context.Context, userName string, n Native) error
}

type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
	// BaseURL is the public address of the app. Relative icon paths are
	// resolved against it, as the notification is shown outside the page.
	BaseURL string
}

type subscription struct {
	UserName string
	Sub      webpush.Subscription
}

// WebPush keeps push subscriptions in memory, keyed by endpoint. A user
// with at least one subscription has granted notification permission.
type WebPush struct {
	vapid  VAPIDConfig
	subs   geche.Geche[string, subscription]
	client *http.Client
}

func NewWebPush(vapid VAPIDConfig) *WebPush {
	return &WebPush{
		vapid:  vapid,
		subs:   geche.NewMapCache[string, subscription](),
		client: http.DefaultClient,
	}
}

// Enabled reports whether VAPID keys are configured.
func (w *WebPush) Enabled() bool {
	return w.vapid.PublicKey != "" && w.vapid.PrivateKey != ""
}

func (w *WebPush) PublicKey() string {
	return w.vapid.PublicKey
}

// Subscribe registers a browser push subscription for a user.
func (w *WebPush) Subscribe(userName string, sub webpush.Subscription) error {
	if !w.Enabled() {
		return ErrPushDisabled
	}
	w.subs.Set(sub.Endpoint, subscription{UserName: userName, Sub: sub})
	return nil
}

// Unsubscribe drops a subscription by endpoint.
func (w *WebPush) Unsubscribe(endpoint string) {
	_ = w.subs.Del(endpoint)
}

func (w *WebPush) Permission(userName string) Permission {
	if !w.Enabled() {
		return PermissionDenied
	}
	if len(w.userSubs(userName)) > 0 {
		return PermissionGranted
	}
	return PermissionDefault
}

// Notify sends n to every subscription of the user. Subscriptions the push
// service reports as gone are dropped.
func (w *WebPush) Notify(ctx context.Context, userName string, n Native) error {
	if !w.Enabled() {
		return ErrPushDisabled
	}

	n.Icon = w.absolute(n.Icon)
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	var errs []error
	for _, s := range w.userSubs(userName) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.send(payload, s.Sub, n.Tag); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *WebPush) send(payload []byte, sub webpush.Subscription, tag string) error {
	resp, err := webpush.SendNotification(payload, &sub, &webpush.Options{
		HTTPClient:      w.client,
		Subscriber:      w.vapid.Subscriber,
		VAPIDPublicKey:  w.vapid.PublicKey,
		VAPIDPrivateKey: w.vapid.PrivateKey,
		TTL:             60,
		Topic:           topic(tag),
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		slog.Info("dropping expired push subscription", "endpoint", sub.Endpoint)
		w.Unsubscribe(sub.Endpoint)
		return nil
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service responded %d", resp.StatusCode)
	}
	return nil
}

// absolute resolves a path against the base URL. It is returned unchanged
// when either does not parse or no base URL is set.
func (w *WebPush) absolute(path string) string {
	if w.vapid.BaseURL == "" || path == "" {
		return path
	}
	base, err := url.Parse(w.vapid.BaseURL)
	if err != nil {
		return path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	return base.ResolveReference(ref).String()
}

func (w *WebPush) userSubs(userName string) []subscription {
	var out []subscription
	for _, s := range w.subs.Snapshot() {
		if s.UserName == userName {
			out = append(out, s)
		}
	}
	return out
}

// topic turns a tag into a Web Push topic: at most 32 URL-safe base64
// characters.
func topic(tag string) string {
	var b strings.Builder
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	s := strings.ReplaceAll(b.String(), "-", "")
	if len(s) > 32 {
		s = s[:32]
	}
	return s
}
