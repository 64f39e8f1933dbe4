package ipn

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const supportedSignatureVersion = "1"

var certificateHostPattern = regexp.MustCompile(`^sns\.[a-zA-Z0-9\-]{3,}\.amazonaws\.com(\.cn)?$`)

type CertificateFetcher interface {
	Fetch(ctx context.Context, certURL string) ([]byte, error)
}

type Verifier struct {
	fetcher CertificateFetcher
}

func NewVerifier(fetcher CertificateFetcher) *Verifier {
	return &Verifier{fetcher: fetcher}
}

// Verify checks the certificate origin, signature version and SHA1withRSA signature of env.
func (v *Verifier) Verify(ctx context.Context, env *Envelope) error {
	certURL := env.SigningCertURL()
	if err := ValidateCertificateURL(certURL); err != nil {
		return err
	}
	if env.SignatureVersion() != supportedSignatureVersion {
		return fmt.Errorf("%w: %q", ErrUnsupportedSignatureVersion, env.SignatureVersion())
	}
	if v.fetcher == nil {
		return fmt.Errorf("%w: no certificate fetcher configured", ErrCryptoUnavailable)
	}

	certPEM, err := v.fetcher.Fetch(ctx, certURL)
	if err != nil {
		return fmt.Errorf("%w from %s: %v", ErrCertificateFetch, certURL, err)
	}
	publicKey, err := parsePublicKey(certPEM)
	if err != nil {
		return err
	}

	signature, err := base64.StdEncoding.DecodeString(env.Signature())
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", ErrSignatureMismatch)
	}

	digest := sha1.Sum([]byte(env.StringToSign()))
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA1, digest[:], signature); err != nil {
		return ErrSignatureMismatch
	}
	return nil
}

// ValidateCertificateURL accepts only https SNS regional endpoints serving a .pem file.
func ValidateCertificateURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidCertificateURL, raw)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("%w: %s", ErrInvalidCertificateURL, raw)
	}
	if parsed.User != nil || parsed.Port() != "" {
		return fmt.Errorf("%w: %s", ErrInvalidCertificateURL, raw)
	}
	if !certificateHostPattern.MatchString(parsed.Hostname()) {
		return fmt.Errorf("%w: %s", ErrInvalidCertificateURL, raw)
	}
	if !strings.HasSuffix(parsed.Path, ".pem") {
		return fmt.Errorf("%w: %s", ErrInvalidCertificateURL, raw)
	}
	return nil
}

func parsePublicKey(certPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: certificate is not PEM encoded", ErrCryptoUnavailable)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}
	publicKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: certificate key is not RSA", ErrCryptoUnavailable)
	}
	return publicKey, nil
}
