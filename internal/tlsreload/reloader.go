// Package tlsreload serves a TLS certificate pair that is reloaded from disk
// when either file changes, so rotated certificates (cert-manager, certbot)
// take effect without a restart.
package tlsreload

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Reloader holds the current certificate for tls.Config.GetCertificate.
type Reloader struct {
	certFile string
	keyFile  string

	mu   sync.RWMutex
	cert *tls.Certificate
}

// New loads the pair once. The files must be valid at startup.
func New(certFile, keyFile string) (*Reloader, error) {
	r := &Reloader{certFile: certFile, keyFile: keyFile}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload reads the pair from disk. On failure the previous certificate stays
// in use.
func (r *Reloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// TLSConfig returns a server config backed by the reloader.
func (r *Reloader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: r.GetCertificate,
	}
}

// Watch reloads the pair on file changes until ctx is cancelled. The parent
// directories are watched rather than the files so that atomic renames and
// Kubernetes secret symlink swaps (..data) are seen.
func (r *Reloader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	dirs := map[string]struct{}{
		filepath.Dir(r.certFile): {},
		filepath.Dir(r.keyFile):  {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !r.relevant(evt) {
				continue
			}
			if err := r.Reload(); err != nil {
				// Writers often replace cert and key in two steps; the
				// second event retries.
				slog.Warn("tls: reload failed, keeping previous certificate", "event", evt.String(), "error", err)
				continue
			}
			slog.Info("tls: certificate reloaded", "cert_file", r.certFile)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("tls: file watcher error", "error", err)
		}
	}
}

func (r *Reloader) relevant(evt fsnotify.Event) bool {
	if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(evt.Name)
	if name == filepath.Clean(r.certFile) || name == filepath.Clean(r.keyFile) {
		return true
	}
	return strings.HasPrefix(filepath.Base(name), "..")
}
