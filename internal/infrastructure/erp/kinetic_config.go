package erp

import (
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// KineticConfig holds configuration for the Kinetic REST v2 API
type KineticConfig struct {
	// URL is the server root, e.g. https://erp.example.com/api/v2/odata/
	URL string
	// Company is appended to URL to form the company root
	Company  string
	APIKey   string
	License  string
	Username string
	Password string
	// ClientCert and ClientKey are base64 encoded PEM blocks for mutual TLS
	ClientCert         string
	ClientKey          string
	InsecureSkipVerify bool
	Timeout            time.Duration
	// ProcessedFunction is the function resource that marks a staging
	// table as drained
	ProcessedFunction string
}

// Errors for Kinetic configuration
var (
	ErrKineticConfigMissingURL         = errors.New("kinetic: url is required")
	ErrKineticConfigMissingCompany     = errors.New("kinetic: company is required")
	ErrKineticConfigMissingCredentials = errors.New("kinetic: username and password are required")
	ErrKineticConfigPartialClientCert  = errors.New("kinetic: client cert and client key must be set together")
)

// Validate validates the configuration and fills defaults
func (c *KineticConfig) Validate() error {
	if c.URL == "" {
		return ErrKineticConfigMissingURL
	}
	if c.Company == "" {
		return ErrKineticConfigMissingCompany
	}
	if c.Username == "" || c.Password == "" {
		return ErrKineticConfigMissingCredentials
	}
	if (c.ClientCert == "") != (c.ClientKey == "") {
		return ErrKineticConfigPartialClientCert
	}
	if !strings.HasSuffix(c.URL, "/") {
		c.URL += "/"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.ProcessedFunction == "" {
		c.ProcessedFunction = "Ice.LIB.RBWebExportSvc/SetStagingTableProcessed"
	}
	return nil
}

// CompanyRoot returns the URL every resource is relative to
func (c *KineticConfig) CompanyRoot() string {
	return c.URL + strings.Trim(c.Company, "/") + "/"
}

// TLSConfig builds the client TLS configuration, with the client
// certificate when one is configured
func (c *KineticConfig) TLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // self-signed ERP hosts, rejected in production by config validation
	}
	if c.ClientCert == "" {
		return cfg, nil
	}

	certPEM, err := base64.StdEncoding.DecodeString(c.ClientCert)
	if err != nil {
		return nil, fmt.Errorf("kinetic: invalid client cert encoding: %w", err)
	}
	keyPEM, err := base64.StdEncoding.DecodeString(c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("kinetic: invalid client key encoding: %w", err)
	}
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("kinetic: invalid client key pair: %w", err)
	}
	cfg.Certificates = []tls.Certificate{pair}
	return cfg, nil
}
