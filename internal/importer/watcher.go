package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/mensahub/mensa/internal/database"
	"github.com/mensahub/mensa/internal/notification"
	"github.com/mensahub/mensa/internal/web/live"
)

// debounceDelay gives the writing process time to finish before a dropped
// file is picked up.
const debounceDelay = 500 * time.Millisecond

// Manager watches a drop directory for supplier catalog files and imports
// them. Processed files are renamed aside so a crash never re-imports or
// loses a file silently.
type Manager struct {
	db       *database.DB
	broker   *live.Broker
	notifier *notification.Manager
	dropDir  string
	watcher  *fsnotify.Watcher

	pending   map[string]*time.Timer
	pendingMu sync.Mutex

	running bool
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a catalog import manager over the given drop directory.
func New(db *database.DB, broker *live.Broker, dropDir string) (*Manager, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		db:      db,
		broker:  broker,
		dropDir: dropDir,
		watcher: fsWatcher,
		pending: make(map[string]*time.Timer),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// SetNotificationManager sets the notification manager used for failed
// imports. May be left unset.
func (m *Manager) SetNotificationManager(mgr *notification.Manager) {
	m.notifier = mgr
}

// Start creates the drop directory if needed, begins watching it and imports
// any files already present. Returns false when no drop directory is
// configured.
func (m *Manager) Start() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return true, nil
	}
	if m.dropDir == "" {
		return false, nil
	}

	if err := os.MkdirAll(m.dropDir, 0o755); err != nil {
		return false, err
	}
	if err := m.watcher.Add(m.dropDir); err != nil {
		return false, err
	}

	m.running = true
	m.wg.Add(1)
	go m.eventLoop()

	go m.scanExisting()

	log.Info().Str("dir", m.dropDir).Msg("Catalog import watcher started")
	return true, nil
}

// Stop stops the watcher.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.cancel()
	m.watcher.Close()
	m.wg.Wait()

	m.pendingMu.Lock()
	for _, t := range m.pending {
		t.Stop()
	}
	m.pending = make(map[string]*time.Timer)
	m.pendingMu.Unlock()

	log.Info().Msg("Catalog import watcher stopped")
}

// IsRunning returns whether the watcher is currently running.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) eventLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !isCatalogFile(event.Name) {
				continue
			}
			m.debounce(event.Name)

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Catalog watcher error")
		}
	}
}

// debounce schedules the import after a quiet period, resetting the timer on
// every further write to the same file.
func (m *Manager) debounce(path string) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()

	if timer, ok := m.pending[path]; ok {
		timer.Reset(debounceDelay)
		return
	}
	m.pending[path] = time.AfterFunc(debounceDelay, func() {
		m.pendingMu.Lock()
		delete(m.pending, path)
		m.pendingMu.Unlock()
		m.process(path)
	})
}

// scanExisting imports catalog files that were dropped while the server was
// down.
func (m *Manager) scanExisting() {
	entries, err := os.ReadDir(m.dropDir)
	if err != nil {
		log.Error().Err(err).Str("dir", m.dropDir).Msg("Failed to scan drop directory")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isCatalogFile(entry.Name()) {
			continue
		}
		m.process(filepath.Join(m.dropDir, entry.Name()))
	}
}

func (m *Manager) process(path string) {
	result, err := m.ImportFile(m.ctx, path)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("Catalog import failed")
		m.renameAside(path, ".failed")
		if m.notifier != nil {
			m.notifier.NotifySimple(notification.EventImportFailed, "",
				"Catalog import failed", filepath.Base(path)+": "+err.Error())
		}
		return
	}

	m.renameAside(path, ".imported")

	if m.broker != nil {
		m.broker.Broadcast(result.Tenant, live.Event{
			Type:     live.EventCatalogImported,
			Resource: "products",
			Data: map[string]any{
				"batchId":         result.BatchID,
				"supplierId":      result.SupplierID,
				"productsCreated": result.ProductsCreated,
				"productsUpdated": result.ProductsUpdated,
			},
		})
	}
}

func (m *Manager) renameAside(path, suffix string) {
	if err := os.Rename(path, path+suffix); err != nil {
		log.Error().Err(err).Str("file", path).Msg("Failed to rename processed catalog file")
	}
}

func isCatalogFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".json")
}
