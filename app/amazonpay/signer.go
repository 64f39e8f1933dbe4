package amazonpay

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	signingAlgorithm = "AMZN-PAY-RSASSA-PSS-V2"
	pssSaltLength    = 32
	amzDateFormat    = "20060102T150405Z"

	headerAccept         = "accept"
	headerContentType    = "content-type"
	headerDate           = "x-amz-pay-date"
	headerHost           = "x-amz-pay-host"
	headerRegion         = "x-amz-pay-region"
	headerIdempotencyKey = "x-amz-pay-idempotency-key"
	headerAuthorization  = "authorization"
)

type Signer struct {
	publicKeyID string
	key         *rsa.PrivateKey
	now         func() time.Time
}

func NewSigner(publicKeyID string, privateKeyPEM []byte) (*Signer, error) {
	if strings.TrimSpace(publicKeyID) == "" {
		return nil, errors.New("amazon pay public key id is required")
	}
	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	return &Signer{publicKeyID: publicKeyID, key: key, now: time.Now}, nil
}

// Sign adds the date and authorization headers to headers for the given request.
func (s *Signer) Sign(method, path string, query url.Values, headers map[string]string, payload []byte) (map[string]string, error) {
	signed := make(map[string]string, len(headers)+2)
	for name, value := range headers {
		signed[strings.ToLower(name)] = strings.TrimSpace(value)
	}
	signed[headerDate] = s.now().UTC().Format(amzDateFormat)

	canonical, signedHeaders := canonicalRequest(method, path, query, signed, payload)
	digest := sha256.Sum256([]byte(stringToSign(canonical)))

	signature, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{SaltLength: pssSaltLength})
	if err != nil {
		return nil, err
	}

	signed[headerAuthorization] = fmt.Sprintf("%s PublicKeyId=%s, SignedHeaders=%s, Signature=%s",
		signingAlgorithm, s.publicKeyID, signedHeaders, base64.StdEncoding.EncodeToString(signature))
	return signed, nil
}

func stringToSign(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return signingAlgorithm + "\n" + hex.EncodeToString(sum[:])
}

func canonicalRequest(method, path string, query url.Values, headers map[string]string, payload []byte) (string, string) {
	names := make([]string, 0, len(headers))
	for name := range headers {
		if name == headerAuthorization {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var canonicalHeaders strings.Builder
	for _, name := range names {
		canonicalHeaders.WriteString(name)
		canonicalHeaders.WriteByte(':')
		canonicalHeaders.WriteString(headers[name])
		canonicalHeaders.WriteByte('\n')
	}
	signedHeaders := strings.Join(names, ";")

	payloadHash := sha256.Sum256(payload)

	parts := []string{
		strings.ToUpper(method),
		canonicalURI(path),
		canonicalQuery(query),
		canonicalHeaders.String(),
		signedHeaders,
		hex.EncodeToString(payloadHash[:]),
	}
	return strings.Join(parts, "\n"), signedHeaders
}

func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func canonicalQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	return strings.ReplaceAll(query.Encode(), "+", "%20")
}

func parsePrivateKey(privateKeyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("amazon pay private key is not PEM encoded")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse amazon pay private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("amazon pay private key is not RSA")
	}
	return key, nil
}
