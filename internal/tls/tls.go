// Package tls serves the API over HTTPS with a self-signed certificate that
// is generated on first start and reused until close to expiry.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	certName = "cfcal.crt"
	keyName  = "cfcal.key"

	validity = 365 * 24 * time.Hour

	// Certificates this close to expiry are replaced.
	renewBefore = 24 * time.Hour
)

// GenerateOrLoad returns a TLS config using the certificate in certDir,
// creating a new one when none exists or the existing one is about to
// expire. The certificate covers localhost, hostnames and the host's
// non-loopback addresses.
func GenerateOrLoad(certDir string, hostnames []string, logger *slog.Logger) (*tls.Config, error) {
	certFile := filepath.Join(certDir, certName)
	keyFile := filepath.Join(certDir, keyName)

	cert, expires, err := load(certFile, keyFile)
	switch {
	case err == nil && time.Now().Before(expires.Add(-renewBefore)):
		logger.Info("loaded existing TLS certificate", "cert", certFile, "expires", expires)
		return config(cert), nil
	case err == nil:
		logger.Info("TLS certificate expiring, regenerating", "expires", expires)
	case !errors.Is(err, os.ErrNotExist):
		logger.Warn("existing TLS certificate unusable, regenerating", "error", err)
	}

	if err := generate(certDir, certFile, keyFile, hostnames, logger); err != nil {
		return nil, err
	}
	cert, _, err = load(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load generated cert: %w", err)
	}
	return config(cert), nil
}

func config(cert tls.Certificate) *tls.Config {
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
}

func load(certFile, keyFile string) (tls.Certificate, time.Time, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, time.Time{}, err
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return tls.Certificate{}, time.Time{}, err
	}
	return cert, leaf.NotAfter, nil
}

func generate(certDir, certFile, keyFile string, hostnames []string, logger *slog.Logger) error {
	if err := os.MkdirAll(certDir, 0700); err != nil {
		return fmt.Errorf("create cert dir: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"cfcal (self-signed)"},
			CommonName:   "cfcal",
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              append([]string{"localhost"}, hostnames...),
		IPAddresses:           append([]net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}, localIPs()...),
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	if err := writePEM(certFile, "CERTIFICATE", der, 0644); err != nil {
		return fmt.Errorf("write cert: %w", err)
	}
	if err := writePEM(keyFile, "EC PRIVATE KEY", keyDER, 0600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}

	logger.Info("generated self-signed TLS certificate",
		"cert", certFile,
		"hostnames", template.DNSNames,
		"expires", template.NotAfter,
	)
	return nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	return os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), perm)
}

func localIPs() []net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []net.IP
	for _, addr := range addrs {
		if n, ok := addr.(*net.IPNet); ok && !n.IP.IsLoopback() {
			ips = append(ips, n.IP)
		}
	}
	return ips
}
