package ipn

import "strings"

type MessageType string

const (
	TypeNotification             MessageType = "Notification"
	TypeSubscriptionConfirmation MessageType = "SubscriptionConfirmation"
	TypeUnsubscribeConfirmation  MessageType = "UnsubscribeConfirmation"
)

type ObjectType string

const (
	ObjectCharge           ObjectType = "CHARGE"
	ObjectChargePermission ObjectType = "CHARGE_PERMISSION"
	ObjectRefund           ObjectType = "REFUND"
)

func (o ObjectType) Known() bool {
	switch o {
	case ObjectCharge, ObjectChargePermission, ObjectRefund:
		return true
	default:
		return false
	}
}

const (
	VersionV1               = "v1"
	VersionV2               = "v2"
	NotificationStateChange = "STATE_CHANGE"
	mockedKey               = "MockedIPN"
)

// signedKeys is the ordered key list of the SNS string-to-sign.
var signedKeys = []string{"Message", "MessageId", "Subject", "SubscribeURL", "Timestamp", "Token", "TopicArn", "Type"}

var envelopeKeys = []KeySpec{
	Key("Message"),
	Key("MessageId"),
	Key("Timestamp"),
	Key("TopicArn"),
	Key("Type"),
	Key("Signature"),
	AnyOf("SigningCertURL", "SigningCertUrl"),
	Key("SignatureVersion"),
}

// Envelope is the outer SNS message after key normalization.
type Envelope struct {
	fields map[string]string
}

func newEnvelope(decoded map[string]any) *Envelope {
	fields := make(map[string]string, len(decoded))
	for key := range decoded {
		if value, ok := stringField(decoded, key); ok {
			fields[key] = value
		}
	}
	return &Envelope{fields: fields}
}

func (e *Envelope) Get(key string) string {
	return e.fields[key]
}

func (e *Envelope) Has(key string) bool {
	_, ok := e.fields[key]
	return ok
}

func (e *Envelope) Type() MessageType        { return MessageType(e.fields["Type"]) }
func (e *Envelope) MessageID() string        { return e.fields["MessageId"] }
func (e *Envelope) Timestamp() string        { return e.fields["Timestamp"] }
func (e *Envelope) TopicArn() string         { return e.fields["TopicArn"] }
func (e *Envelope) Message() string          { return e.fields["Message"] }
func (e *Envelope) Signature() string        { return e.fields["Signature"] }
func (e *Envelope) SignatureVersion() string { return e.fields["SignatureVersion"] }
func (e *Envelope) SigningCertURL() string   { return e.fields["SigningCertURL"] }
func (e *Envelope) SubscribeURL() string     { return e.fields["SubscribeURL"] }
func (e *Envelope) Token() string            { return e.fields["Token"] }

// StringToSign concatenates "key\nvalue\n" for each present signed key.
func (e *Envelope) StringToSign() string {
	var b strings.Builder
	for _, key := range signedKeys {
		value, ok := e.fields[key]
		if !ok {
			continue
		}
		b.WriteString(key)
		b.WriteByte('\n')
		b.WriteString(value)
		b.WriteByte('\n')
	}
	return b.String()
}

// Notification is a validated message ready for routing.
type Notification struct {
	Type               MessageType
	Version            string
	NotificationType   string
	ObjectType         ObjectType
	ObjectID           string
	ChargePermissionID string
	Mocked             bool
	Envelope           *Envelope
	Payload            map[string]any
}

// NewMockedNotification builds the synthetic v2 state change used by the poll path.
func NewMockedNotification(objectType ObjectType, objectID, chargePermissionID string) *Notification {
	return &Notification{
		Type:               TypeNotification,
		Version:            VersionV2,
		NotificationType:   NotificationStateChange,
		ObjectType:         objectType,
		ObjectID:           objectID,
		ChargePermissionID: chargePermissionID,
		Mocked:             true,
	}
}

func (n *Notification) MessageID() string {
	if n.Envelope == nil {
		return ""
	}
	return n.Envelope.MessageID()
}

func notificationFromPayload(env *Envelope, payload map[string]any) *Notification {
	n := &Notification{
		Type:     TypeNotification,
		Version:  VersionV1,
		Envelope: env,
		Payload:  payload,
	}
	if version, ok := stringField(payload, "NotificationVersion"); ok && version != "" {
		n.Version = strings.ToLower(version)
	}
	if value, ok := stringField(payload, "NotificationType"); ok {
		n.NotificationType = strings.ToUpper(value)
	}
	if value, ok := stringField(payload, "ObjectType"); ok {
		n.ObjectType = ObjectType(strings.ToUpper(value))
	}
	n.ObjectID, _ = stringField(payload, "ObjectId")
	n.ChargePermissionID, _ = stringField(payload, "ChargePermissionId")
	if value, ok := payload[mockedKey]; ok && value != nil {
		n.Mocked = true
	}
	return n
}
