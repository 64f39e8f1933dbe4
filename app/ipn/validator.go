package ipn

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-amazonpay/app/factory"
)

type SignatureVerifier interface {
	Verify(ctx context.Context, env *Envelope) error
}

// NotificationKeysFunc returns the keys required in a decoded Notification payload.
type NotificationKeysFunc func(env *Envelope, version string) []KeySpec

// SubscriptionKeysFunc returns the keys required in a subscription or unsubscribe confirmation.
type SubscriptionKeysFunc func(env *Envelope) []KeySpec

type Validator struct {
	verifier         SignatureVerifier
	notificationKeys NotificationKeysFunc
	subscriptionKeys SubscriptionKeysFunc
	logger           logrus.FieldLogger
}

type Option func(*Validator)

func WithNotificationKeys(fn NotificationKeysFunc) Option {
	return func(v *Validator) {
		if fn != nil {
			v.notificationKeys = fn
		}
	}
}

func WithSubscriptionKeys(fn SubscriptionKeysFunc) Option {
	return func(v *Validator) {
		if fn != nil {
			v.subscriptionKeys = fn
		}
	}
}

func NewValidator(verifier SignatureVerifier, opts ...Option) *Validator {
	v := &Validator{
		verifier:         verifier,
		notificationKeys: DefaultNotificationKeys,
		subscriptionKeys: DefaultSubscriptionKeys,
		logger:           factory.NewModuleLogger("ipn-validator"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func DefaultNotificationKeys(_ *Envelope, version string) []KeySpec {
	if version != VersionV2 {
		return nil
	}
	return []KeySpec{Key("NotificationType"), Key("ObjectType"), Key("ObjectId")}
}

func DefaultSubscriptionKeys(_ *Envelope) []KeySpec {
	return []KeySpec{Key("SubscribeURL"), Key("Token")}
}

// Validate decodes, authenticates and types one inbound delivery.
func (v *Validator) Validate(ctx context.Context, raw []byte) (*Notification, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyBody
	}

	decoded, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := RequireKeys(decoded, envelopeKeys); err != nil {
		return nil, err
	}
	env := newEnvelope(NormalizeVendorVariant(decoded))

	if err := v.verifier.Verify(ctx, env); err != nil {
		return nil, err
	}

	var n *Notification
	switch env.Type() {
	case TypeNotification:
		payload, err := Decode([]byte(env.Message()))
		if err != nil {
			return nil, err
		}
		n = notificationFromPayload(env, payload)
		if err := RequireKeys(payload, v.notificationKeys(env, n.Version)); err != nil {
			return nil, err
		}
	case TypeSubscriptionConfirmation, TypeUnsubscribeConfirmation:
		if err := RequireKeys(decoded, v.subscriptionKeys(env)); err != nil {
			return nil, err
		}
		n = &Notification{Type: env.Type(), Envelope: env}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type())
	}

	v.logger.WithField("message_id", env.MessageID()).Infof("Valid IPN message %s", env.MessageID())
	return n, nil
}
