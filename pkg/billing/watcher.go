package billing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/platinummonkey/crmcore/pkg/observability"
)

// CatalogWatcher reloads a Catalog whenever its YAML file changes. A file that fails to
// parse is logged and ignored; the catalog keeps serving the last good plans.
type CatalogWatcher struct {
	path     string
	catalog  *Catalog
	logger   *observability.Logger
	onReload func([]Plan)
}

// NewCatalogWatcher creates a watcher for path that updates catalog
func NewCatalogWatcher(path string, catalog *Catalog, logger *observability.Logger) *CatalogWatcher {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}
	return &CatalogWatcher{
		path:    filepath.Clean(path),
		catalog: catalog,
		logger:  logger.WithField("component", "catalog_watcher"),
	}
}

// OnReload registers a callback invoked after each successful reload
func (w *CatalogWatcher) OnReload(fn func([]Plan)) {
	w.onReload = fn
}

// Run watches the catalog file until ctx is cancelled. The parent directory is watched
// so editors that replace the file by rename are picked up.
func (w *CatalogWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.logger.Infof("Watching plan catalog %s", w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Plan catalog watcher error")
		}
	}
}

func (w *CatalogWatcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("Failed to read plan catalog")
		return
	}
	plans, err := ParseCatalog(data)
	if err != nil {
		w.logger.WithError(err).Warn("Ignoring invalid plan catalog")
		return
	}
	if err := w.catalog.Replace(plans); err != nil {
		w.logger.WithError(err).Warn("Failed to apply plan catalog")
		return
	}
	w.logger.WithField("plans", len(plans)).Info("Plan catalog reloaded")
	if w.onReload != nil {
		w.onReload(plans)
	}
}
