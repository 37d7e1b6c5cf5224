package poller

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const sftpDialTimeout = 30 * time.Second

// sftpClient implements RemoteClient over SSH/SFTP.
type sftpClient struct {
	conn   *ssh.Client
	client *sftp.Client
}

func dialSFTP(ctx context.Context, details ConnectionDetails) (RemoteClient, error) {
	var auth []ssh.AuthMethod
	if len(details.PrivateKeyPEM) > 0 {
		signer, err := ssh.ParsePrivateKey(details.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if details.Password != "" {
		auth = append(auth, ssh.Password(details.Password))
	}

	port := details.Port
	if port == 0 {
		port = 22
	}

	// Many partner endpoints rotate host keys without notice, so
	// verification is opt-in per target.
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if len(details.HostKeyPEM) > 0 {
		hostKey, _, _, _, err := ssh.ParseAuthorizedKey(details.HostKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parsing host key: %w", err)
		}
		hostKeyCallback = ssh.FixedHostKey(hostKey)
	}

	sshConfig := &ssh.ClientConfig{
		User:            details.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         sftpDialTimeout,
	}

	conn, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", details.Host, port), sshConfig)
	if err != nil {
		return nil, fmt.Errorf("ssh dial: %w", err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sftp session: %w", err)
	}

	return &sftpClient{conn: conn, client: client}, nil
}

// List returns directory contents when p is a directory, otherwise the
// glob matches for p.
func (c *sftpClient) List(ctx context.Context, p string) ([]Entry, error) {
	if fi, err := c.client.Stat(p); err == nil && fi.IsDir() {
		infos, err := c.client.ReadDir(p)
		if err != nil {
			return nil, err
		}
		entries := make([]Entry, 0, len(infos))
		for _, info := range infos {
			entries = append(entries, sftpEntry(path.Join(p, info.Name()), info))
		}
		return entries, nil
	}

	matches, err := c.client.Glob(p)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(matches))
	for _, match := range matches {
		info, err := c.client.Stat(match)
		if err != nil {
			return nil, err
		}
		entries = append(entries, sftpEntry(match, info))
	}
	return entries, nil
}

func sftpEntry(fullPath string, info fs.FileInfo) Entry {
	entryType := EntryTypeOther
	switch {
	case info.Mode().IsRegular():
		entryType = EntryTypeFile
	case info.IsDir():
		entryType = EntryTypeDir
	}
	return Entry{
		Name:    info.Name(),
		Path:    fullPath,
		Type:    entryType,
		ModTime: info.ModTime(),
	}
}

// Retrieve implements RemoteClient.
func (c *sftpClient) Retrieve(ctx context.Context, p string) ([]byte, error) {
	f, err := c.client.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Delete implements RemoteClient.
func (c *sftpClient) Delete(ctx context.Context, p string) error {
	return c.client.Remove(p)
}

// Close releases the SFTP session and the underlying SSH connection.
func (c *sftpClient) Close() error {
	err := c.client.Close()
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
