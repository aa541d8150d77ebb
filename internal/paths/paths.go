package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/slipwayhq/slipway/internal"
)

const (

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the base directory for exported images.
//
//	Linux:   $XDG_DATA_HOME/slipway or ~/.local/share/slipway
//	macOS:   ~/Library/Application Support/slipway
func Data() string {
	return filepath.Join(xdg.DataHome, internal.Name)
}

// Default output directory for an application's exported image.
//
//	Linux:   ~/.local/share/slipway/images/<app>
//	macOS:   ~/Library/Application Support/slipway/images/<app>
func DefaultOutput(app string) string {
	return filepath.Join(Data(), "images", app)
}
