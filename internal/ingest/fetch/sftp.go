package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/smallbiznis/catalogsync/internal/config"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type SFTPTransport struct {
	log *zap.Logger
}

func NewSFTPTransport(log *zap.Logger) *SFTPTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &SFTPTransport{log: log.Named("ingest.fetch.sftp")}
}

// Fetch downloads the primary file and, when configured, the stock file over
// one SSH session. Closing the context tears the session down.
func (t *SFTPTransport) Fetch(ctx context.Context, cfg config.FetchConfig) (*Payload, error) {
	if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.Files.Primary) == "" {
		return nil, fmt.Errorf("%w: sftp host and primary file are required", ErrInvalidDescriptor)
	}

	hostKey, err := hostKeyCallback(cfg.KnownHosts)
	if err != nil {
		return nil, err
	}
	port := cfg.Port
	if port <= 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: hostKey,
		Timeout:         30 * time.Second,
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	// Closing the socket unblocks the handshake and any transfer in flight
	// once the attempt deadline passes.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ssh handshake: %w", ctxErr)
		}
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, fmt.Errorf("sftp session: %w", err)
	}
	defer client.Close()

	data, err := readRemote(client, cfg.Files.Primary)
	if err != nil {
		return nil, err
	}
	payload := &Payload{Data: data, Ext: remoteExt(cfg.Files.Primary)}

	if stock := strings.TrimSpace(cfg.Files.Stock); stock != "" {
		payload.Stock, err = readRemote(client, stock)
		if err != nil {
			return nil, err
		}
	}

	t.log.Debug("sftp download complete",
		zap.String("host", cfg.Host),
		zap.Int("primary_bytes", len(payload.Data)),
		zap.Int("stock_bytes", len(payload.Stock)),
	)
	return payload, nil
}

func hostKeyCallback(knownHostsFile string) (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(knownHostsFile) == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: known_hosts: %w", ErrInvalidDescriptor, err)
	}
	return callback, nil
}

func readRemote(client *sftp.Client, name string) ([]byte, error) {
	f, err := client.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// remoteExt keeps compound extensions such as "txt.zip" as their last part.
func remoteExt(name string) string {
	if ext := strings.TrimPrefix(path.Ext(name), "."); ext != "" {
		return strings.ToLower(ext)
	}
	return "txt"
}
