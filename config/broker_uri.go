package config

import (
	"net/url"
	"strings"

	"github.com/warrenq/warren/errors"
)

// BrokerAddress is a parsed AMQP connection URI, resolved down to the
// fields a Dial call actually needs.
type BrokerAddress struct {
	// Scheme is either "amqp" or "amqps".
	Scheme string

	// Host is the broker hostname, without port.
	Host string

	// Port defaults to 5672 for "amqp" and 5671 for "amqps" when the
	// URI does not specify one.
	Port int

	// Vhost defaults to "/" when the URI path is empty or "/".
	Vhost string

	// User and Password, empty when the URI carries no userinfo.
	User     string
	Password string
}

// TLS reports whether this address requires a TLS connection.
func (b BrokerAddress) TLS() bool {
	return b.Scheme == "amqps"
}

// String renders the address back into a connection URI, with the
// password (if any) redacted.
func (b BrokerAddress) String() string {
	u := url.URL{
		Scheme: b.Scheme,
		Host:   b.hostport(),
		Path:   b.Vhost,
	}
	if b.User != "" {
		if b.Password != "" {
			u.User = url.UserPassword(b.User, "***")
		} else {
			u.User = url.User(b.User)
		}
	}
	return u.String()
}

func (b BrokerAddress) hostport() string {
	if b.Port == 0 {
		return b.Host
	}
	return b.Host + ":" + portString(b.Port)
}

func portString(p int) string {
	const digits = "0123456789"
	if p == 0 {
		return "0"
	}
	var buf [6]byte
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = digits[p%10]
		p /= 10
	}
	return string(buf[i:])
}

// ParseBrokerURI parses a raw AMQP connection string of the form
// `amqp(s)://[user[:pass]@]host[:port][/vhost]`, defaulting the port
// per scheme and the vhost to "/".
func ParseBrokerURI(raw string) (BrokerAddress, error) {
	if raw == "" {
		return BrokerAddress{}, errors.ConfigurationError(errors.New("broker uri is empty"))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return BrokerAddress{}, errors.ConfigurationError(errors.Wrap(err, "parse broker uri"))
	}
	switch u.Scheme {
	case "amqp", "amqps":
	default:
		return BrokerAddress{}, errors.ConfigurationError(
			errors.Errorf("unsupported broker uri scheme: %q", u.Scheme))
	}
	addr := BrokerAddress{
		Scheme: u.Scheme,
		Host:   u.Hostname(),
	}
	if addr.Host == "" {
		return BrokerAddress{}, errors.ConfigurationError(errors.New("broker uri is missing a host"))
	}
	if u.User != nil {
		addr.User = u.User.Username()
		addr.Password, _ = u.User.Password()
	}
	if p := u.Port(); p != "" {
		n := 0
		for _, c := range p {
			if c < '0' || c > '9' {
				return BrokerAddress{}, errors.ConfigurationError(errors.Errorf("invalid broker uri port: %q", p))
			}
			n = n*10 + int(c-'0')
		}
		addr.Port = n
	} else if addr.Scheme == "amqps" {
		addr.Port = 5671
	} else {
		addr.Port = 5672
	}
	vhost := strings.TrimPrefix(u.Path, "/")
	if vhost == "" {
		addr.Vhost = "/"
	} else {
		decoded, err := url.PathUnescape(vhost)
		if err != nil {
			return BrokerAddress{}, errors.ConfigurationError(errors.Wrap(err, "decode broker uri vhost"))
		}
		addr.Vhost = decoded
	}
	return addr, nil
}
