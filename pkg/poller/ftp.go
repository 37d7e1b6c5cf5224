package poller

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
)

const ftpDialTimeout = 30 * time.Second

// ftpClient implements RemoteClient over plain FTP.
type ftpClient struct {
	conn *ftp.ServerConn
}

func dialFTP(ctx context.Context, details ConnectionDetails) (RemoteClient, error) {
	port := details.Port
	if port == 0 {
		port = 21
	}

	conn, err := ftp.Dial(fmt.Sprintf("%s:%d", details.Host, port),
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(ftpDialTimeout))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}

	if err := conn.Login(details.Username, details.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	return &ftpClient{conn: conn}, nil
}

// List implements RemoteClient. FTP LIST handles both directory paths and
// file paths / patterns.
func (c *ftpClient) List(ctx context.Context, p string) ([]Entry, error) {
	raw, err := c.conn.List(p)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raw))
	for _, e := range raw {
		entryType := EntryTypeOther
		switch e.Type {
		case ftp.EntryTypeFile:
			entryType = EntryTypeFile
		case ftp.EntryTypeFolder:
			entryType = EntryTypeDir
		}
		entries = append(entries, Entry{
			Name:    e.Name,
			Path:    ftpEntryPath(p, e),
			Type:    entryType,
			ModTime: e.Time,
		})
	}
	return entries, nil
}

// ftpEntryPath reconstructs the full remote path of a listed entry. When
// the listed path already names the entry (file listing), it is used
// as-is.
func ftpEntryPath(listed string, e *ftp.Entry) string {
	if path.Base(listed) == e.Name {
		return listed
	}
	return path.Join(listed, e.Name)
}

// Retrieve implements RemoteClient.
func (c *ftpClient) Retrieve(ctx context.Context, p string) ([]byte, error) {
	resp, err := c.conn.Retr(p)
	if err != nil {
		return nil, err
	}
	defer resp.Close()
	return io.ReadAll(resp)
}

// Delete implements RemoteClient.
func (c *ftpClient) Delete(ctx context.Context, p string) error {
	return c.conn.Delete(p)
}

// Close implements RemoteClient.
func (c *ftpClient) Close() error {
	return c.conn.Quit()
}
