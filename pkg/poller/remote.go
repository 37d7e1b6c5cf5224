package poller

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EntryType classifies a remote directory entry.
type EntryType int

const (
	EntryTypeFile EntryType = iota
	EntryTypeDir
	EntryTypeOther
)

// Entry is one remote listing result. ModTime is the zero time when the
// server does not report a modification time.
type Entry struct {
	Name    string
	Path    string
	Type    EntryType
	ModTime time.Time
}

// RemoteClient is one live connection to a remote file endpoint. A client
// is used serially by a single poll run and must be closed when the run
// finishes, whatever the outcome.
type RemoteClient interface {
	// List returns the entries at path: the contents of a directory, or
	// the matches for a file path / pattern.
	List(ctx context.Context, path string) ([]Entry, error)

	// Retrieve downloads the contents of a remote file.
	Retrieve(ctx context.Context, path string) ([]byte, error)

	// Delete removes a remote file.
	Delete(ctx context.Context, path string) error

	// Close releases the connection.
	Close() error
}

// Protocol names accepted by the dispatch table.
const (
	ProtocolFTP  = "ftp"
	ProtocolSFTP = "sftp"
)

// ErrUnsupportedProtocol is returned before any connection attempt when
// the configured protocol is outside the closed set.
var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// ConnectionDetails holds the credentials and address of a poll target.
type ConnectionDetails struct {
	Protocol string `json:"protocol" yaml:"protocol" bson:"protocol"`
	Host     string `json:"host" yaml:"host" bson:"host"`
	Port     int    `json:"port" yaml:"port" bson:"port"`
	Username string `json:"username" yaml:"username" bson:"username"`
	Password string `json:"password" yaml:"password" bson:"password"`

	// PrivateKeyPEM enables key-based auth for SFTP targets.
	PrivateKeyPEM []byte `json:"-" yaml:"-" bson:"-"`

	// HostKeyPEM, when set, pins the expected SFTP host public key
	// (authorized_keys format). Unset targets skip host-key verification.
	HostKeyPEM []byte `json:"-" yaml:"-" bson:"-"`
}

// DialFunc establishes a protocol-specific connection.
type DialFunc func(ctx context.Context, details ConnectionDetails) (RemoteClient, error)

// dialers is the closed protocol dispatch table.
var dialers = map[string]DialFunc{
	ProtocolFTP:  dialFTP,
	ProtocolSFTP: dialSFTP,
}

func dialerFor(protocol string) (DialFunc, error) {
	dial, ok := dialers[protocol]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, protocol)
	}
	return dial, nil
}
