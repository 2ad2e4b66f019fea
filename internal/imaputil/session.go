package imaputil

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/emersion/go-imap/client"
)

// SessionState tracks where a session is in its lifecycle.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateAuthenticating
	StateReady
	StateSelected
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateSelected:
		return "selected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// commandTimeout bounds every request/response exchange so a stalled
// transfer surfaces as a timeout instead of hanging forever.
const commandTimeout = 2 * time.Minute

// Session owns one live connection to an Endpoint. Only one command is in
// flight at a time; the go-imap client serializes commands internally.
type Session struct {
	endpoint Endpoint
	c        *client.Client

	state            SessionState
	selected         string
	selectedReadOnly bool
}

// Open dials the endpoint, negotiates encryption and logs in.
func Open(ep Endpoint) (*Session, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	s := &Session{endpoint: ep}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) connect() error {
	addr := s.endpoint.Addr()
	tlsConfig := &tls.Config{
		ServerName:         s.endpoint.Host,
		InsecureSkipVerify: s.endpoint.InsecureTLS,
	}

	var c *client.Client
	var err error
	if s.endpoint.Encryption.Implicit() {
		c, err = client.DialTLS(addr, tlsConfig)
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		s.state = StateDisconnected
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	if s.endpoint.Encryption == EncryptionStartTLS {
		if err := c.StartTLS(tlsConfig); err != nil {
			_ = c.Logout()
			s.state = StateDisconnected
			return fmt.Errorf("starttls %s: %w", addr, err)
		}
	}
	c.Timeout = commandTimeout
	if os.Getenv("IMAPCOPY_DEBUG") == "1" {
		c.SetDebug(os.Stderr)
	}

	s.state = StateAuthenticating
	if err := c.Login(s.endpoint.Username, s.endpoint.Password); err != nil {
		_ = c.Logout()
		s.state = StateDisconnected
		return fmt.Errorf("login %s@%s: %w", s.endpoint.Username, s.endpoint.Host, err)
	}

	s.c = c
	s.state = StateReady
	return nil
}

// Reconnect tears down the current connection and builds a fresh one,
// re-selecting the folder that was selected before the drop so callers
// can resume where they left off.
func (s *Session) Reconnect() error {
	if s.c != nil {
		_ = s.c.Logout()
		s.c = nil
	}
	folder, readOnly := s.selected, s.selectedReadOnly
	s.selected = ""
	if err := s.connect(); err != nil {
		return err
	}
	if folder != "" {
		if _, err := s.Select(folder, readOnly); err != nil {
			return err
		}
	}
	return nil
}

// Select makes folder the session's current mailbox.
func (s *Session) Select(folder string, readOnly bool) (*MailboxStatus, error) {
	st, err := s.c.Select(folder, readOnly)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", folder, err)
	}
	s.state = StateSelected
	s.selected = folder
	s.selectedReadOnly = readOnly
	return &MailboxStatus{
		Name:        folder,
		Messages:    st.Messages,
		UIDValidity: st.UidValidity,
	}, nil
}

// MailboxStatus is the subset of SELECT results the engine cares about.
type MailboxStatus struct {
	Name        string
	Messages    uint32
	UIDValidity uint32
}

// State returns the session lifecycle state.
func (s *Session) State() SessionState { return s.state }

// Selected returns the currently selected folder, or "".
func (s *Session) Selected() string { return s.selected }

// Endpoint returns the endpoint this session was opened against.
func (s *Session) Endpoint() Endpoint { return s.endpoint }

// Close logs out and marks the session closed. Safe to call twice.
func (s *Session) Close() error {
	if s.state == StateClosed || s.c == nil {
		s.state = StateClosed
		return nil
	}
	err := s.c.Logout()
	s.c = nil
	s.state = StateClosed
	return err
}
