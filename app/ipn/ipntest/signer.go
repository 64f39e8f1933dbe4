// Package ipntest builds signed SNS deliveries for tests.
package ipntest

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"
)

const CertURL = "https://sns.us-east-1.amazonaws.com/SimpleNotificationService-test.pem"

var signedKeys = []string{"Message", "MessageId", "Subject", "SubscribeURL", "Timestamp", "Token", "TopicArn", "Type"}

type Signer struct {
	key     *rsa.PrivateKey
	CertPEM []byte
}

func NewSigner(t testing.TB) *Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "sns.amazonaws.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return &Signer{
		key:     key,
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

// Sign returns the base64 SHA1withRSA signature over the SNS string-to-sign of fields.
func (s *Signer) Sign(t testing.TB, fields map[string]string) string {
	t.Helper()
	var b strings.Builder
	for _, key := range signedKeys {
		value, ok := fields[key]
		if !ok {
			continue
		}
		b.WriteString(key + "\n" + value + "\n")
	}
	digest := sha1.Sum([]byte(b.String()))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA1, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

// Envelope returns a signed Notification envelope wrapping message.
func (s *Signer) Envelope(t testing.TB, message map[string]any) map[string]string {
	t.Helper()
	payload, err := json.Marshal(message)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	fields := map[string]string{
		"Type":             "Notification",
		"MessageId":        "m1",
		"TopicArn":         "t",
		"Timestamp":        "2024-01-01T00:00:00Z",
		"SignatureVersion": "1",
		"SigningCertURL":   CertURL,
		"Message":          string(payload),
	}
	fields["Signature"] = s.Sign(t, fields)
	return fields
}

func Body(t testing.TB, fields map[string]string) []byte {
	t.Helper()
	body, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return body
}

func StateChange(objectType, objectID, chargePermissionID string) map[string]any {
	return map[string]any{
		"NotificationVersion": "V2",
		"NotificationType":    "STATE_CHANGE",
		"ObjectType":          objectType,
		"ObjectId":            objectID,
		"ChargePermissionId":  chargePermissionID,
	}
}

// Fetcher serves the signer's certificate and counts calls.
type Fetcher struct {
	mu    sync.Mutex
	pem   []byte
	err   error
	calls []string
}

func NewFetcher(certPEM []byte) *Fetcher {
	return &Fetcher{pem: certPEM}
}

func NewFailingFetcher(err error) *Fetcher {
	return &Fetcher{err: err}
}

func (f *Fetcher) Fetch(_ context.Context, certURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, certURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.pem, nil
}

func (f *Fetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
