package config

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/warrenq/warren/cli"
	"github.com/warrenq/warren/errors"
)

// TLSSettings describes the material needed to dial the broker over a
// TLS-secured connection.
type TLSSettings struct {
	// Enabled turns on these settings for the connection. It is not
	// set by an "amqps" broker URI scheme; while it is false, Validate
	// and Expand do nothing.
	Enabled bool

	// SystemCA adds the host's trusted root CAs to the pool alongside
	// any CustomCA entries.
	SystemCA bool

	// Cert and Key are either a PEM-encoded value or a path to a file
	// holding one; a base64-encoded value is also accepted.
	Cert string
	Key  string

	// CustomCA holds zero or more additional CA certificates, each
	// either inline PEM, base64, or a file path.
	CustomCA []string

	certPEM []byte
	keyPEM  []byte
	caPEM   [][]byte
}

// Params returns the CLI flags that populate a TLSSettings value, with
// keys namespaced under prefix (e.g. "broker" -> "--broker-tls-cert").
func Params(prefix string) []cli.Param {
	p := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "-" + name
	}
	return []cli.Param{
		{Name: p("tls"), Usage: "enable TLS for the broker connection", ByDefault: false},
		{Name: p("tls-system-ca"), Usage: "include the system trusted CA pool", ByDefault: true},
		{Name: p("tls-cert"), Usage: "client certificate, inline PEM or file path", ByDefault: ""},
		{Name: p("tls-key"), Usage: "client key, inline PEM or file path", ByDefault: ""},
		{Name: p("tls-ca"), Usage: "additional trusted CA certificates, inline PEM or file path", ByDefault: []string{}},
	}
}

// Validate loads and parses the configured certificate material,
// failing fast on anything malformed before a connection is attempted.
func (t *TLSSettings) Validate() error {
	if !t.Enabled {
		return nil
	}
	if (t.Cert == "") != (t.Key == "") {
		return errors.ConfigurationError(errors.New("tls: cert and key must be provided together"))
	}
	if t.Cert != "" {
		cert, err := loadPEM(t.Cert)
		if err != nil {
			return errors.ConfigurationError(errors.Wrap(err, "load tls certificate"))
		}
		key, err := loadPEM(t.Key)
		if err != nil {
			return errors.ConfigurationError(errors.Wrap(err, "load tls key"))
		}
		if _, err := tls.X509KeyPair(cert, key); err != nil {
			return errors.ConfigurationError(errors.Wrap(err, "parse tls key pair"))
		}
		t.certPEM, t.keyPEM = cert, key
	}
	for _, ca := range t.CustomCA {
		pem, err := loadPEM(ca)
		if err != nil {
			return errors.ConfigurationError(errors.Wrap(err, "load tls custom ca"))
		}
		t.caPEM = append(t.caPEM, pem)
	}
	return nil
}

// Expand builds the *tls.Config to hand to the AMQP dialer. Validate
// must be called first.
func (t *TLSSettings) Expand() (*tls.Config, error) {
	if !t.Enabled {
		return nil, nil
	}
	conf := &tls.Config{MinVersion: tls.VersionTLS12}
	if len(t.certPEM) > 0 {
		cert, err := tls.X509KeyPair(t.certPEM, t.keyPEM)
		if err != nil {
			return nil, errors.ConfigurationError(errors.Wrap(err, "build tls key pair"))
		}
		conf.Certificates = []tls.Certificate{cert}
	}
	if t.SystemCA || len(t.caPEM) > 0 {
		pool, err := systemPoolOrNew(t.SystemCA)
		if err != nil {
			return nil, errors.ConfigurationError(errors.Wrap(err, "load system ca pool"))
		}
		for _, ca := range t.caPEM {
			if !pool.AppendCertsFromPEM(ca) {
				return nil, errors.ConfigurationError(errors.New("tls: failed to parse custom ca"))
			}
		}
		conf.RootCAs = pool
	}
	return conf, nil
}

func systemPoolOrNew(useSystem bool) (*x509.CertPool, error) {
	if !useSystem {
		return x509.NewCertPool(), nil
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		return x509.NewCertPool(), nil
	}
	return pool, nil
}

// loadPEM resolves value as inline PEM, base64-encoded PEM, or a path
// to a file holding either.
func loadPEM(value string) ([]byte, error) {
	if looksLikePEM(value) {
		return []byte(value), nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		if looksLikePEM(string(decoded)) {
			return decoded, nil
		}
	}
	return os.ReadFile(filepath.Clean(value))
}

func looksLikePEM(s string) bool {
	return len(s) > 10 && s[0] == '-' && s[1] == '-' && s[2] == '-'
}
