// Package delivery writes the rendered digest to disk, tracks deliveries
// for idempotence, and opens the result in a browser.
package delivery

import (
	"fmt"
	"html"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// DeliveryStore is the slice of the persistence layer delivery needs.
type DeliveryStore interface {
	IsDelivered(runDate string) (bool, error)
	RecordDelivery(runDate, filePath string) (bool, error)
}

// Deliverer writes digest files under OutputDir, named
// <prefix>-<run date>.html.
type Deliverer struct {
	store     DeliveryStore
	outputDir string
	prefix    string
}

func New(st DeliveryStore, outputDir, prefix string) *Deliverer {
	return &Deliverer{store: st, outputDir: outputDir, prefix: prefix}
}

// Deliver writes the digest HTML for the run date and records the delivery.
// A date that was already delivered is skipped; the empty path signals the
// skip to the caller.
func (d *Deliverer) Deliver(htmlContent, runDate string) (string, error) {
	delivered, err := d.store.IsDelivered(runDate)
	if err != nil {
		return "", fmt.Errorf("check delivery: %w", err)
	}
	if delivered {
		log.Printf("delivery: digest already delivered for %s, skipping", runDate)
		return "", nil
	}

	if err := os.MkdirAll(d.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(d.outputDir, fmt.Sprintf("%s-%s.html", d.prefix, runDate))
	if err := os.WriteFile(path, []byte(htmlContent), 0o644); err != nil {
		return "", fmt.Errorf("write digest: %w", err)
	}
	if _, err := d.store.RecordDelivery(runDate, path); err != nil {
		return "", fmt.Errorf("record delivery: %w", err)
	}

	log.Printf("delivery: digest saved to %s", path)
	return path, nil
}

// DeliverError writes a standalone error page for a failed run. Error pages
// are not tracked for idempotence; a later retry that fails again just
// overwrites the page.
func (d *Deliverer) DeliverError(runDate, errorMessage string) (string, error) {
	if err := os.MkdirAll(d.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(d.outputDir, fmt.Sprintf("%s-%s-error.html", d.prefix, runDate))
	if err := os.WriteFile(path, []byte(errorPage(runDate, errorMessage)), 0o644); err != nil {
		return "", fmt.Errorf("write error page: %w", err)
	}
	log.Printf("delivery: error page saved to %s", path)
	return path, nil
}

func errorPage(runDate, errorMessage string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Brief — Error — %s</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, sans-serif;
       background: #0a0a0a; color: #e0e0e0;
       padding: 2rem; max-width: 600px; margin: 0 auto; }
h1 { color: #ff6b6b; }
pre { background: #1a1a1a; padding: 1rem; border-radius: 6px;
      overflow-x: auto; font-size: 0.85rem; color: #ccc; }
</style>
</head>
<body>
<h1>Brief couldn't generate your digest today</h1>
<p>Something went wrong during the %s pipeline run.</p>
<pre>%s</pre>
<p style="color: #666; margin-top: 2rem;">Check the logs for more detail.</p>
</body>
</html>`, html.EscapeString(runDate), html.EscapeString(runDate), html.EscapeString(errorMessage))
}

// OpenInBrowser opens the file with the platform's default handler. Failure
// is logged, not returned; delivery already succeeded.
func OpenInBrowser(path string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("delivery: open %s: %v", path, err)
	}
}
