// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

// Package tls loads the certificate the API listener serves with and
// generates self-signed pairs for local development.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// KeyPair holds a certificate and its private key.
type KeyPair struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// GenerateSelfSigned creates a self-signed server certificate for hosts.
// Entries that parse as IP addresses become IP SANs, the rest DNS SANs.
// The first host is the common name.
func GenerateSelfSigned(hosts []string, validFor time.Duration) (*KeyPair, error) {
	if len(hosts) == 0 {
		return nil, oops.Code("TLS_NO_HOSTS").Errorf("at least one host is required")
	}
	if validFor <= 0 {
		return nil, oops.Code("TLS_INVALID_VALIDITY").With("valid_for", validFor).
			Errorf("validity must be positive")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, oops.Code("TLS_KEY_FAILED").Wrap(err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, oops.Code("TLS_SERIAL_FAILED").Wrap(err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"JobMarket"},
			CommonName:   hosts[0],
		},
		NotBefore:             now,
		NotAfter:              now.Add(validFor),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, oops.Code("TLS_CREATE_FAILED").Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("TLS_CREATE_FAILED").Wrap(err)
	}
	return &KeyPair{Certificate: cert, PrivateKey: key}, nil
}

// Save writes kp to dir as {name}.crt and {name}.key and returns both paths.
func Save(dir, name string, kp *KeyPair) (certPath, keyPath string, err error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", oops.Code("TLS_SAVE_FAILED").With("dir", dir).Wrap(err)
	}
	certPath = filepath.Join(dir, name+".crt")
	keyPath = filepath.Join(dir, name+".key")
	if err := saveCert(certPath, kp.Certificate); err != nil {
		return "", "", err
	}
	if err := saveKey(keyPath, kp.PrivateKey); err != nil {
		return "", "", err
	}
	return certPath, keyPath, nil
}

// LoadServerConfig reads a PEM certificate and key into a server TLS config.
// A certificate that is already expired at now is rejected.
func LoadServerConfig(certFile, keyFile string, now time.Time) (*cryptotls.Config, error) {
	pair, err := cryptotls.LoadX509KeyPair(filepath.Clean(certFile), filepath.Clean(keyFile))
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").
			With("cert_file", certFile).
			With("key_file", keyFile).
			Wrap(err)
	}

	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("cert_file", certFile).Wrap(err)
	}
	if now.After(leaf.NotAfter) {
		return nil, oops.Code("TLS_CERT_EXPIRED").
			With("cert_file", certFile).
			With("not_after", leaf.NotAfter).
			Errorf("certificate expired at %s", leaf.NotAfter.Format(time.RFC3339))
	}
	if now.Before(leaf.NotBefore) {
		return nil, oops.Code("TLS_CERT_NOT_YET_VALID").
			With("cert_file", certFile).
			With("not_before", leaf.NotBefore).
			Errorf("certificate not valid before %s", leaf.NotBefore.Format(time.RFC3339))
	}

	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{pair},
		MinVersion:   cryptotls.VersionTLS12,
	}, nil
}

func saveCert(path string, cert *x509.Certificate) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := pem.Encode(f, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}); err != nil {
		_ = f.Close()
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

func saveKey(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := pem.Encode(f, &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}); err != nil {
		_ = f.Close()
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
