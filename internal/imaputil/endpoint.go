package imaputil

import (
	"fmt"
	"strings"
)

// Encryption selects how the connection to an IMAP server is secured.
type Encryption string

const (
	EncryptionTLS      Encryption = "tls"
	EncryptionSSL      Encryption = "ssl" // alias for tls, kept for familiarity
	EncryptionStartTLS Encryption = "starttls"
	EncryptionNone     Encryption = "none"
)

// ParseEncryption validates a user-supplied encryption mode.
func ParseEncryption(s string) (Encryption, error) {
	switch Encryption(strings.ToLower(s)) {
	case EncryptionTLS:
		return EncryptionTLS, nil
	case EncryptionSSL:
		return EncryptionSSL, nil
	case EncryptionStartTLS:
		return EncryptionStartTLS, nil
	case EncryptionNone:
		return EncryptionNone, nil
	}
	return "", fmt.Errorf("unknown encryption %q (use ssl, tls, starttls or none)", s)
}

// DefaultPort returns the conventional IMAP port for the encryption mode:
// implicit TLS listens on 993, plaintext and STARTTLS on 143.
func (e Encryption) DefaultPort() int {
	switch e {
	case EncryptionStartTLS, EncryptionNone:
		return 143
	default:
		return 993
	}
}

// Implicit reports whether the mode requires TLS from the first byte.
func (e Encryption) Implicit() bool {
	return e == EncryptionTLS || e == EncryptionSSL
}

// Endpoint describes one IMAP account. Immutable after creation.
type Endpoint struct {
	Host        string
	Port        int
	Encryption  Encryption
	Username    string
	Password    string
	InsecureTLS bool
}

// Addr returns the host:port dial address, filling in the default port
// for the encryption mode when none is configured.
func (e Endpoint) Addr() string {
	port := e.Port
	if port == 0 {
		port = e.Encryption.DefaultPort()
	}
	return fmt.Sprintf("%s:%d", e.Host, port)
}

// Validate checks that the endpoint has everything needed to log in.
func (e Endpoint) Validate() error {
	if e.Host == "" {
		return fmt.Errorf("imap server address not configured")
	}
	if e.Username == "" {
		return fmt.Errorf("imap username not configured")
	}
	if e.Password == "" {
		return fmt.Errorf("imap password not configured")
	}
	return nil
}
