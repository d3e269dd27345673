package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// PayloadExt marks files holding a decoded structured code instead of an image.
const PayloadExt = ".payload"

// DirSource watches a drop folder. Every image (or .payload file) written to
// it becomes one frame, oldest first.
type DirSource struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu      sync.Mutex
	pending []string
	queued  map[string]struct{}
	werr    error

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewDirSource starts watching dir. When includeExisting is set, files already
// present are queued first in name order.
func NewDirSource(dir string, includeExisting bool, logger *slog.Logger) (*DirSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scan directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan directory: %s is not a directory", dir)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	d := &DirSource{
		dir:     dir,
		watcher: w,
		logger:  logger,
		queued:  map[string]struct{}{},
		stop:    make(chan struct{}),
	}
	if includeExisting {
		entries, err := os.ReadDir(dir)
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, filepath.Join(dir, e.Name()))
			}
		}
		sort.Strings(names)
		for _, n := range names {
			d.enqueue(n)
		}
	}

	d.wg.Add(1)
	go d.watch()
	return d, nil
}

func accepts(path string) bool {
	return utils.IsSupportedImage(path) || strings.EqualFold(filepath.Ext(path), PayloadExt)
}

func (d *DirSource) enqueue(path string) {
	if !accepts(path) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.queued[path]; ok {
		return
	}
	d.queued[path] = struct{}{}
	d.pending = append(d.pending, path)
}

func (d *DirSource) watch() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				d.logger.Debug("frame file event", "path", ev.Name, "op", ev.Op.String())
				d.enqueue(ev.Name)
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.mu.Lock()
			if d.werr == nil {
				d.werr = err
			}
			d.mu.Unlock()
		}
	}
}

// Next implements FrameSource. Files that cannot be read are logged and
// skipped; watcher errors end the session.
func (d *DirSource) Next(context.Context) (Frame, bool, error) {
	d.mu.Lock()
	if d.werr != nil {
		err := d.werr
		d.mu.Unlock()
		return Frame{}, false, fmt.Errorf("watch %s: %w", d.dir, err)
	}
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return Frame{}, false, nil
	}
	path := d.pending[0]
	d.pending = d.pending[1:]
	delete(d.queued, path)
	d.mu.Unlock()

	f, err := readFrame(path)
	if err != nil {
		d.logger.Warn("skipping unreadable frame", "path", path, "error", err)
		return Frame{}, false, nil
	}
	return f, true, nil
}

func readFrame(path string) (Frame, error) {
	if strings.EqualFold(filepath.Ext(path), PayloadExt) {
		data, err := os.ReadFile(path)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Name: path, Payload: strings.TrimSpace(string(data))}, nil
	}
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Name: path, Image: img}, nil
}

// Close stops the watcher. It is safe to call more than once.
func (d *DirSource) Close() error {
	var err error
	d.once.Do(func() {
		close(d.stop)
		err = d.watcher.Close()
		d.wg.Wait()
	})
	return err
}
