// Package listactions implements the list toolbar: JSON export and import,
// and sharing a list's link.
package listactions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/sakif/wishlist/internal/model"
)

var (
	// ErrCancelled means no file was chosen. Callers stay silent on it.
	ErrCancelled = errors.New("no file selected")
	// ErrInvalidFile means the chosen file is not a wishlist export.
	ErrInvalidFile = errors.New("invalid JSON file")
)

// maxImportSize bounds what Import reads.
const maxImportSize = 5 << 20

// nameReplacer keeps a list name from turning the export name into a path.
var nameReplacer = strings.NewReplacer("/", "-", "\\", "-", "\x00", "")

// Filename is the export file name for a list named name, dated on now's
// UTC day. Path separators in the name become dashes.
func Filename(name string, now time.Time) string {
	return fmt.Sprintf("wishlist-%s-%s.json", nameReplacer.Replace(name), now.UTC().Format("2006-01-02"))
}

// Export renders full as indented JSON and names the file.
func Export(full *model.FullWishlist, now time.Time) (string, []byte, error) {
	if full == nil {
		return "", nil, errors.New("listactions: nothing to export")
	}
	data, err := json.MarshalIndent(full, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("listactions: encoding export: %w", err)
	}
	return Filename(full.Name, now), data, nil
}

// Import parses an exported file. A nil reader means the user chose nothing.
func Import(r io.Reader) (*model.FullWishlist, error) {
	if r == nil {
		return nil, ErrCancelled
	}

	data, err := io.ReadAll(io.LimitReader(r, maxImportSize+1))
	if err != nil {
		return nil, fmt.Errorf("listactions: reading file: %w", err)
	}
	if len(data) > maxImportSize {
		return nil, fmt.Errorf("%w: file too large", ErrInvalidFile)
	}

	var full model.FullWishlist
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&full); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if strings.TrimSpace(full.Name) == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidFile)
	}
	return &full, nil
}

// ShareURL is the link that opens list id on origin.
func ShareURL(origin, id string) string {
	return strings.TrimRight(origin, "/") + "/" + id
}

// Clipboard copies share links. It tries the system clipboard first and
// falls back to a script the browser runs itself.
type Clipboard struct {
	unsupported bool
	write       func(string) error
	logger      *slog.Logger
}

// NewClipboard uses the system clipboard.
func NewClipboard(logger *slog.Logger) *Clipboard {
	return &Clipboard{
		unsupported: clipboard.Unsupported,
		write:       clipboard.WriteAll,
		logger:      logger,
	}
}

// Copy puts text on the clipboard. When the system clipboard cannot be used,
// it returns a script that copies text in the browser instead; otherwise the
// script is empty.
func (c *Clipboard) Copy(text string) (script string) {
	if !c.unsupported {
		err := c.write(text)
		if err == nil {
			return ""
		}
		c.logger.Warn("system clipboard failed, using browser copy",
			slog.String("error", err.Error()),
		)
	}
	return BrowserCopyScript(text)
}

// BrowserCopyScript returns JavaScript that copies text, using the async
// clipboard API when present and a temporary input otherwise.
func BrowserCopyScript(text string) string {
	quoted, _ := json.Marshal(text)
	return `(function(v){` +
		`function legacy(){var i=document.createElement('input');i.value=v;document.body.appendChild(i);i.select();document.execCommand('copy');document.body.removeChild(i);}` +
		`if(navigator.clipboard&&navigator.clipboard.writeText){navigator.clipboard.writeText(v).catch(legacy);}else{legacy();}` +
		`})(` + string(quoted) + `);`
}
