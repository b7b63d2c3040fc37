// Package certs provides TLS for the helper page. Browsers only grant camera
// access to secure origins, so anything other than localhost needs HTTPS.
package certs

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

const (
	CertFile = "cert.pem"
	KeyFile  = "key.pem"
)

// ErrNoKeyPair means the certificate directory holds no cert.pem/key.pem pair.
var ErrNoKeyPair = errors.New("no certificate key pair")

// CertManager manages the certificate files in a directory.
type CertManager struct {
	certDir string
}

// NewCertManager creates a new CertManager for the given directory.
func NewCertManager(certDir string) *CertManager {
	return &CertManager{certDir: certDir}
}

func (cm *CertManager) Dir() string { return cm.certDir }

// LoadCertificates loads all certificates from the cert directory.
func (cm *CertManager) LoadCertificates() ([]*x509.Certificate, error) {
	var certs []*x509.Certificate

	err := filepath.Walk(cm.certDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(info.Name(), ".crt") || info.Name() == CertFile {
			cert, err := cm.loadCertificate(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			certs = append(certs, cert)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return certs, nil
}

// loadCertificate loads a certificate from a file.
func (cm *CertManager) loadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to parse certificate PEM")
	}

	return x509.ParseCertificate(block.Bytes)
}

// IsExpired checks if a certificate is expired.
func (cm *CertManager) IsExpired(cert *x509.Certificate) bool {
	return cert.NotAfter.Before(time.Now())
}

// LoadKeyPair loads cert.pem and key.pem from the cert directory.
func (cm *CertManager) LoadKeyPair() (tls.Certificate, error) {
	certPath := filepath.Join(cm.certDir, CertFile)
	keyPath := filepath.Join(cm.certDir, KeyFile)
	if _, err := os.Stat(certPath); errors.Is(err, os.ErrNotExist) {
		return tls.Certificate{}, ErrNoKeyPair
	}
	if _, err := os.Stat(keyPath); errors.Is(err, os.ErrNotExist) {
		return tls.Certificate{}, ErrNoKeyPair
	}
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load key pair: %w", err)
	}
	return pair, nil
}

// TLSConfig returns the TLS setup for the page server: ACME certificates when
// hosts are given, otherwise the key pair in the cert directory. It returns
// a nil config when neither is available; the caller then serves plain HTTP.
func (cm *CertManager) TLSConfig(acmeHosts []string, acmeCache string) (*tls.Config, error) {
	if len(acmeHosts) > 0 {
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(acmeHosts...),
			Cache:      autocert.DirCache(acmeCache),
		}
		return m.TLSConfig(), nil
	}

	pair, err := cm.LoadKeyPair()
	if errors.Is(err, ErrNoKeyPair) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{pair},
	}, nil
}
