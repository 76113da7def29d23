package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// AppName names the config and data directories.
	AppName = "cmpscan"
	// DefaultNavigationTimeout bounds a single page load.
	DefaultNavigationTimeout = 30 * time.Second
	// DefaultIdleTimeout bounds the wait for network idle after the load event.
	DefaultIdleTimeout = 10 * time.Second
	// DefaultJobTimeout bounds an asynchronous API scan job.
	DefaultJobTimeout = 90 * time.Second
)

// UnreadableStorageValue is recorded for a storage key whose value could not be read.
const UnreadableStorageValue = "Unable to read value"
