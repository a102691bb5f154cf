// Package cert issues the CA, server and client certificates used for mTLS
// between drivecheck agents and their clients.
package cert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Kind selects the extended key usage of an issued certificate.
type Kind int

const (
	Server Kind = iota + 1
	Client
)

func (k Kind) usage() x509.ExtKeyUsage {
	if k == Server {
		return x509.ExtKeyUsageServerAuth
	}
	return x509.ExtKeyUsageClientAuth
}

func (k Kind) String() string {
	switch k {
	case Server:
		return "server"
	case Client:
		return "client"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const organization = "drivecheck"

// KeyBits is the RSA modulus size for every generated key.
var KeyBits = 2048

// Authority is a self-signed CA.
type Authority struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

// Certificate is an issued leaf certificate with its key.
type Certificate struct {
	*x509.Certificate
	PrivateKey *rsa.PrivateKey
}

func serialNumber() (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
}

// NewAuthority creates a CA valid for validity.
func NewAuthority(commonName string, validity time.Duration) (*Authority, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}

	serial, err := serialNumber()
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   commonName,
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return &Authority{cert: cert, key: key}, nil
}

// LoadAuthority reads a CA written by Save.
func LoadAuthority(certPath, keyPath string) (*Authority, error) {
	cert, err := LoadCertificate(certPath)
	if err != nil {
		return nil, err
	}
	if !cert.IsCA {
		return nil, fmt.Errorf("%s is not a CA certificate", certPath)
	}

	keyPEM, err := os.ReadFile(keyPath) // #nosec G304 -- user supplied key path
	if err != nil {
		return nil, fmt.Errorf("failed to read CA key: %w", err)
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode CA key PEM")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA key: %w", err)
	}

	return &Authority{cert: cert, key: key}, nil
}

// LoadCertificate reads one PEM certificate.
func LoadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user supplied certificate path
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("failed to decode certificate PEM in %s", path)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// Certificate returns the CA certificate.
func (a *Authority) Certificate() *x509.Certificate {
	return a.cert
}

// Save writes the CA certificate and key. The key file is created 0600.
func (a *Authority) Save(certPath, keyPath string) error {
	if err := writePEM(certPath, "CERTIFICATE", a.cert.Raw, 0o644); err != nil {
		return fmt.Errorf("failed to write CA cert: %w", err)
	}
	if err := writePEM(keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(a.key), 0o600); err != nil {
		return fmt.Errorf("failed to write CA key: %w", err)
	}
	return nil
}

// Issue signs a new leaf certificate. Server certificates carry hosts as
// DNS names or IP addresses.
func (a *Authority) Issue(kind Kind, commonName string, hosts []string, validity time.Duration) (*Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := serialNumber()
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   commonName,
		},
		NotBefore:   now.Add(-time.Minute),
		NotAfter:    now.Add(validity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{kind.usage()},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, a.cert, &key.PublicKey, a.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s certificate: %w", kind, err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &Certificate{Certificate: cert, PrivateKey: key}, nil
}

// Verify checks that cert chains to the CA for the given usage.
func (a *Authority) Verify(cert *x509.Certificate, kind Kind) error {
	roots := x509.NewCertPool()
	roots.AddCert(a.cert)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{kind.usage()},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

// Save writes the certificate and key. The key file is created 0600.
func (c *Certificate) Save(certPath, keyPath string) error {
	if err := writePEM(certPath, "CERTIFICATE", c.Raw, 0o644); err != nil {
		return fmt.Errorf("failed to write cert: %w", err)
	}
	if err := writePEM(keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(c.PrivateKey), 0o600); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return err
	}
	return os.Chmod(path, perm)
}

// Paths names the files of a generated bundle.
type Paths struct {
	CACert     string
	CAKey      string
	ServerCert string
	ServerKey  string
	ClientCert string
	ClientKey  string
}

// BundlePaths returns the standard file names under dir.
func BundlePaths(dir string) Paths {
	return Paths{
		CACert:     filepath.Join(dir, "ca.crt"),
		CAKey:      filepath.Join(dir, "ca.key"),
		ServerCert: filepath.Join(dir, "server.crt"),
		ServerKey:  filepath.Join(dir, "server.key"),
		ClientCert: filepath.Join(dir, "client.crt"),
		ClientKey:  filepath.Join(dir, "client.key"),
	}
}

// GenerateBundle writes a fresh CA plus one server and one client
// certificate into dir.
func GenerateBundle(dir string, hosts []string, validity time.Duration) (Paths, error) {
	paths := BundlePaths(dir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return paths, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	ca, err := NewAuthority("drivecheck CA", validity)
	if err != nil {
		return paths, err
	}
	if err := ca.Save(paths.CACert, paths.CAKey); err != nil {
		return paths, err
	}

	server, err := ca.Issue(Server, "drivecheck agent", hosts, validity)
	if err != nil {
		return paths, err
	}
	if err := server.Save(paths.ServerCert, paths.ServerKey); err != nil {
		return paths, err
	}

	client, err := ca.Issue(Client, "drivecheck client", nil, validity)
	if err != nil {
		return paths, err
	}
	if err := client.Save(paths.ClientCert, paths.ClientKey); err != nil {
		return paths, err
	}

	return paths, nil
}
