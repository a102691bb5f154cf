package agent

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"
)

// DefaultPort is the agent's HTTPS port.
const DefaultPort = 2223

// Config contains configuration for the agent server
type Config struct {
	Port     int    // Server port
	CertFile string // Server certificate file
	KeyFile  string // Server private key file
	CAFile   string // CA certificate file for client verification
	LogFile  string // Optional log file path
}

// DefaultConfig returns default agent configuration
func DefaultConfig() Config {
	return Config{
		Port: DefaultPort,
	}
}

func validPort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}

// requireFiles checks that every named file is set and exists.
func requireFiles(files ...[2]string) error {
	for _, f := range files {
		what, path := f[0], f[1]
		if path == "" {
			return fmt.Errorf("%s file is required", what)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s file not found: %s", what, path)
		}
	}
	return nil
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if err := validPort(c.Port); err != nil {
		return err
	}
	return requireFiles(
		[2]string{"server certificate", c.CertFile},
		[2]string{"server key", c.KeyFile},
		[2]string{"CA certificate", c.CAFile},
	)
}

func loadCAPool(path string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(path) // #nosec G304 -- configured CA path
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}
	return pool, nil
}

// LoadTLSConfig builds a server TLS configuration that requires a client
// certificate signed by the CA.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	pool, err := loadCAPool(c.CAFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientConfig contains configuration for the agent client
type ClientConfig struct {
	Host     string        // Target host
	Port     int           // Target port
	CertFile string        // Client certificate file
	KeyFile  string        // Client private key file
	CAFile   string        // CA certificate file for server verification
	Timeout  time.Duration // Request timeout, zero uses 30s
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host:    "localhost",
		Port:    DefaultPort,
		Timeout: 30 * time.Second,
	}
}

// Validate checks if the client configuration is valid
func (c ClientConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if err := validPort(c.Port); err != nil {
		return err
	}
	return requireFiles(
		[2]string{"client certificate", c.CertFile},
		[2]string{"client key", c.KeyFile},
		[2]string{"CA certificate", c.CAFile},
	)
}

// LoadClientTLSConfig creates TLS configuration for the client
func (c ClientConfig) LoadClientTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	pool, err := loadCAPool(c.CAFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
