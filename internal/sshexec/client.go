// Package sshexec opens authenticated SSH connections to managed hosts and
// runs remote commands, either bounded by a timeout or streamed line by line.
package sshexec

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/andrej220/fleetup/internal/fleet"
)

// HostKeyPolicy selects how remote host keys are verified.
type HostKeyPolicy string

const (
	// PolicyInsecure accepts any host key. Reference behavior, kept for
	// compatibility with unmanaged fleets.
	PolicyInsecure HostKeyPolicy = "insecure"
	// PolicyAcceptNew trusts a host on first contact and pins its key in
	// the known_hosts file; a changed key fails the connection.
	PolicyAcceptNew HostKeyPolicy = "accept-new"
)

// Config holds connection and execution settings.
type Config struct {
	DialTimeout     time.Duration
	CommandTimeout  time.Duration // default for bounded runs
	RetryMaxElapsed time.Duration // total budget for dial retries
	HostKeyPolicy   HostKeyPolicy
	KnownHostsPath  string
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DialTimeout:     10 * time.Second,
		CommandTimeout:  90 * time.Second,
		RetryMaxElapsed: 15 * time.Second,
		HostKeyPolicy:   PolicyAcceptNew,
		KnownHostsPath:  filepath.Join(home, ".fleetup", "known_hosts"),
	}
}

// Dialer establishes connections per host record.
type Dialer struct {
	cfg Config
}

func NewDialer(cfg Config) *Dialer {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 90 * time.Second
	}
	return &Dialer{cfg: cfg}
}

// Dial opens an authenticated connection to the host. password is the
// plaintext credential for password auth; empty means no auth parameter is
// supplied and the attempt relies on transport defaults. The caller owns
// the returned client and must Close it on every exit path.
func (d *Dialer) Dial(ctx context.Context, rec fleet.HostRecord, password string) (*Client, error) {
	target, user, err := rec.Endpoint()
	if err != nil {
		return nil, err
	}

	auth, err := d.authMethods(rec, password)
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := d.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.cfg.DialTimeout,
		BannerCallback:  func(string) error { return nil },
	}

	var client *ssh.Client
	operation := func() error {
		c, derr := ssh.Dial("tcp", target, config)
		if derr != nil {
			if isAuthErr(derr) {
				// retrying with the same credential cannot succeed
				return backoff.Permanent(derr)
			}
			return derr
		}
		client = c
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.Multiplier = 1.5
	bo.MaxElapsedTime = d.cfg.RetryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	cbs := gobreaker.Settings{
		Name:    "ssh-session:" + target,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
	return &Client{
		ssh:            client,
		breaker:        gobreaker.NewCircuitBreaker(cbs),
		defaultTimeout: d.cfg.CommandTimeout,
	}, nil
}

func (d *Dialer) authMethods(rec fleet.HostRecord, password string) ([]ssh.AuthMethod, error) {
	if rec.AuthMethod == fleet.AuthPassword {
		if password == "" {
			return nil, nil
		}
		return []ssh.AuthMethod{ssh.Password(password)}, nil
	}
	if rec.KeyPath == "" {
		return nil, nil
	}
	key, err := os.ReadFile(rec.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

func (d *Dialer) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if d.cfg.HostKeyPolicy == PolicyInsecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return acceptNewCallback(d.cfg.KnownHostsPath)
}

// acceptNewCallback verifies against path, pinning previously unseen hosts.
func acceptNewCallback(path string) (ssh.HostKeyCallback, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("known_hosts dir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if werr := os.WriteFile(path, nil, 0600); werr != nil {
			return nil, fmt.Errorf("known_hosts init: %w", werr)
		}
	}
	check, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("known_hosts load: %w", err)
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := check(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			f, ferr := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
			if ferr != nil {
				return ferr
			}
			defer f.Close()
			_, ferr = fmt.Fprintln(f, knownhosts.Line([]string{hostname}, key))
			return ferr
		}
		return err
	}, nil
}

func isAuthErr(err error) bool {
	var sshErr *ssh.ServerAuthError
	if errors.As(err, &sshErr) {
		return true
	}
	// x/crypto wraps handshake auth failures in plain errors; match the
	// stable "unable to authenticate" prefix it uses.
	return err != nil && strings.Contains(err.Error(), "unable to authenticate")
}

// Client is one live authenticated connection.
type Client struct {
	ssh            *ssh.Client
	breaker        *gobreaker.CircuitBreaker
	defaultTimeout time.Duration
}

// RemoteAddr reports the peer address.
func (c *Client) RemoteAddr() string { return c.ssh.RemoteAddr().String() }

// Close tears the connection down, reaping any still-running remote
// processes, including ones left behind by timed-out bounded runs.
func (c *Client) Close() error { return c.ssh.Close() }

// newSession opens a session through the circuit breaker.
func (c *Client) newSession() (*ssh.Session, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return c.ssh.NewSession()
	})
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	return res.(*ssh.Session), nil
}
