package remote

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/domain"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultSSHPort = "22"

// SFTPConfig holds connection settings for the remote host
type SFTPConfig struct {
	Host           string        // host or host:port
	User           string
	PrivateKeyPath string
	KnownHostsPath string        // empty accepts any host key
	Timeout        time.Duration // 0 means no timeout
}

// SFTPDialer opens SFTP sessions over SSH with public key auth
type SFTPDialer struct {
	cfg SFTPConfig
}

// NewSFTPDialer creates a dialer for the given host
func NewSFTPDialer(cfg SFTPConfig) *SFTPDialer {
	return &SFTPDialer{cfg: cfg}
}

// Dial connects to the host and starts the SFTP subsystem
func (d *SFTPDialer) Dial(ctx context.Context) (Session, error) {
	clientCfg, err := d.clientConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}

	addr := hostAddr(d.cfg.Host)

	dialer := net.Dialer{Timeout: d.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %v", domain.ErrConnection, addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: ssh handshake with %s failed: %v", domain.ErrConnection, addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to start sftp subsystem: %v", domain.ErrConnection, err)
	}

	log.Info().
		Str("host", addr).
		Str("user", d.cfg.User).
		Msg("Connected to remote host over SFTP")

	return &sftpSession{ssh: client, sftp: sftpClient}, nil
}

func (d *SFTPDialer) clientConfig() (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(d.cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if d.cfg.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(d.cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            d.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.cfg.Timeout,
	}, nil
}

// hostAddr appends the default SSH port when none is given
func hostAddr(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, defaultSSHPort)
}

type sftpSession struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (s *sftpSession) Open(path string) (File, error) {
	f, err := s.sftp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote file %s: %w", path, err)
	}
	return sftpFile{f}, nil
}

func (s *sftpSession) Close() error {
	sftpErr := s.sftp.Close()
	sshErr := s.ssh.Close()
	if sftpErr != nil {
		return sftpErr
	}
	return sshErr
}

type sftpFile struct {
	*sftp.File
}

func (f sftpFile) Size() (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
