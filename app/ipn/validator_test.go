package ipn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vibast-solutions/ms-go-amazonpay/app/ipn/ipntest"
)

func newTestValidator(t *testing.T, opts ...Option) (*Validator, *ipntest.Signer, *ipntest.Fetcher) {
	t.Helper()
	signer := ipntest.NewSigner(t)
	fetcher := ipntest.NewFetcher(signer.CertPEM)
	return NewValidator(NewVerifier(fetcher), opts...), signer, fetcher
}

func TestValidateNotification(t *testing.T) {
	validator, signer, _ := newTestValidator(t)
	body := ipntest.Body(t, signer.Envelope(t, ipntest.StateChange("CHARGE", "C1", "CP1")))

	n, err := validator.Validate(context.Background(), body)
	require.NoError(t, err)
	require.Equal(t, TypeNotification, n.Type)
	require.Equal(t, VersionV2, n.Version)
	require.Equal(t, NotificationStateChange, n.NotificationType)
	require.Equal(t, ObjectCharge, n.ObjectType)
	require.Equal(t, "C1", n.ObjectID)
	require.Equal(t, "CP1", n.ChargePermissionID)
	require.Equal(t, "m1", n.MessageID())
	require.False(t, n.Mocked)
}

func TestValidateIsRepeatable(t *testing.T) {
	validator, signer, _ := newTestValidator(t)
	body := ipntest.Body(t, signer.Envelope(t, ipntest.StateChange("REFUND", "R1", "CP1")))

	first, err := validator.Validate(context.Background(), body)
	require.NoError(t, err)
	second, err := validator.Validate(context.Background(), body)
	require.NoError(t, err)
	require.Equal(t, first.ObjectID, second.ObjectID)
	require.Equal(t, first.ObjectType, second.ObjectType)
	require.Equal(t, first.Version, second.Version)
}

func TestValidateVersionDefaultsToV1(t *testing.T) {
	validator, signer, _ := newTestValidator(t)
	body := ipntest.Body(t, signer.Envelope(t, map[string]any{"ObjectType": "CHARGE"}))

	n, err := validator.Validate(context.Background(), body)
	require.NoError(t, err)
	require.Equal(t, VersionV1, n.Version)
}

func TestValidateCamelCaseCertificateKey(t *testing.T) {
	validator, signer, _ := newTestValidator(t)
	fields := signer.Envelope(t, ipntest.StateChange("CHARGE", "C1", "CP1"))
	fields["SigningCertUrl"] = fields["SigningCertURL"]
	delete(fields, "SigningCertURL")

	_, err := validator.Validate(context.Background(), ipntest.Body(t, fields))
	require.NoError(t, err)
}

func TestValidateMockedFlagIsKeyPresence(t *testing.T) {
	validator, signer, _ := newTestValidator(t)

	for _, value := range []any{true, false, "1", float64(0)} {
		message := ipntest.StateChange("CHARGE", "C1", "CP1")
		message["MockedIPN"] = value
		n, err := validator.Validate(context.Background(), ipntest.Body(t, signer.Envelope(t, message)))
		require.NoError(t, err)
		require.True(t, n.Mocked, "MockedIPN=%v", value)
	}

	message := ipntest.StateChange("CHARGE", "C1", "CP1")
	message["MockedIPN"] = nil
	n, err := validator.Validate(context.Background(), ipntest.Body(t, signer.Envelope(t, message)))
	require.NoError(t, err)
	require.False(t, n.Mocked)
}

func TestValidateFailures(t *testing.T) {
	validator, signer, fetcher := newTestValidator(t)

	t.Run("empty body", func(t *testing.T) {
		_, err := validator.Validate(context.Background(), nil)
		require.ErrorIs(t, err, ErrEmptyBody)
	})

	t.Run("malformed body", func(t *testing.T) {
		_, err := validator.Validate(context.Background(), []byte("{"))
		require.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("missing keys", func(t *testing.T) {
		fields := signer.Envelope(t, ipntest.StateChange("CHARGE", "C1", "CP1"))
		delete(fields, "TopicArn")
		_, err := validator.Validate(context.Background(), ipntest.Body(t, fields))
		require.ErrorIs(t, err, ErrMissingKeys)
	})

	t.Run("malformed nested message", func(t *testing.T) {
		fields := signer.Envelope(t, nil)
		fields["Message"] = "not json"
		fields["Signature"] = signer.Sign(t, fields)
		_, err := validator.Validate(context.Background(), ipntest.Body(t, fields))
		require.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("v2 payload missing object id", func(t *testing.T) {
		payload := ipntest.StateChange("CHARGE", "C1", "CP1")
		delete(payload, "ObjectId")
		_, err := validator.Validate(context.Background(), ipntest.Body(t, signer.Envelope(t, payload)))
		require.ErrorIs(t, err, ErrMissingKeys)
	})

	t.Run("unknown type", func(t *testing.T) {
		fields := signer.Envelope(t, ipntest.StateChange("CHARGE", "C1", "CP1"))
		fields["Type"] = "Surprise"
		fields["Signature"] = signer.Sign(t, fields)
		_, err := validator.Validate(context.Background(), ipntest.Body(t, fields))
		require.ErrorIs(t, err, ErrUnknownMessageType)
		require.Equal(t, ClassSchema, ClassOf(err))
	})

	t.Run("evil certificate url", func(t *testing.T) {
		before := fetcher.Calls()
		fields := signer.Envelope(t, ipntest.StateChange("CHARGE", "C1", "CP1"))
		fields["SigningCertURL"] = "http://evil.example.com/cert.pem"
		_, err := validator.Validate(context.Background(), ipntest.Body(t, fields))
		require.ErrorIs(t, err, ErrInvalidCertificateURL)
		require.Equal(t, before, fetcher.Calls())
	})
}

func TestValidateSubscriptionConfirmation(t *testing.T) {
	validator, signer, _ := newTestValidator(t)
	fields := signer.Envelope(t, nil)
	fields["Type"] = "SubscriptionConfirmation"
	fields["SubscribeUrl"] = "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription"
	fields["Token"] = "tok"
	fields["Signature"] = signer.Sign(t, map[string]string{
		"Type":         fields["Type"],
		"MessageId":    fields["MessageId"],
		"TopicArn":     fields["TopicArn"],
		"Timestamp":    fields["Timestamp"],
		"Message":      fields["Message"],
		"SubscribeURL": fields["SubscribeUrl"],
		"Token":        fields["Token"],
	})

	n, err := validator.Validate(context.Background(), ipntest.Body(t, fields))
	require.NoError(t, err)
	require.Equal(t, TypeSubscriptionConfirmation, n.Type)
	require.Equal(t, "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription", n.Envelope.SubscribeURL())
}

func TestValidateSubscriptionKeysExtensionPoint(t *testing.T) {
	validator, signer, _ := newTestValidator(t, WithSubscriptionKeys(func(*Envelope) []KeySpec {
		return []KeySpec{Key("SubscribeURL"), Key("Token"), Key("Extra")}
	}))
	fields := signer.Envelope(t, nil)
	fields["Type"] = "UnsubscribeConfirmation"
	fields["SubscribeURL"] = "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription"
	fields["Token"] = "tok"
	fields["Signature"] = signer.Sign(t, fields)

	_, err := validator.Validate(context.Background(), ipntest.Body(t, fields))
	require.ErrorIs(t, err, ErrMissingKeys)
	require.Contains(t, err.Error(), "Extra")
}

func TestValidateNotificationKeysExtensionPoint(t *testing.T) {
	var seenVersion string
	validator, signer, _ := newTestValidator(t, WithNotificationKeys(func(_ *Envelope, version string) []KeySpec {
		seenVersion = version
		return []KeySpec{Key("MerchantId")}
	}))

	_, err := validator.Validate(context.Background(), ipntest.Body(t, signer.Envelope(t, ipntest.StateChange("CHARGE", "C1", "CP1"))))
	require.ErrorIs(t, err, ErrMissingKeys)
	require.Equal(t, VersionV2, seenVersion)
}
