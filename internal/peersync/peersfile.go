package peersync

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// PeerAdder принимает новые адреса узлов
type PeerAdder interface {
	AddPeers(addrs []string) int
}

// LoadPeersFile читает адреса узлов из файла: по одному на строку,
// пустые строки и строки с # пропускаются. Отсутствующий файл не ошибка.
func LoadPeersFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open peers file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var addrs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addrs = append(addrs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read peers file: %w", err)
	}
	return addrs, nil
}

// WatchPeersFile загружает адреса из path и перечитывает файл при каждом
// его изменении, пока не отменен ctx. Наблюдение идет за каталогом, поэтому
// замена файла через rename тоже замечается.
func WatchPeersFile(ctx context.Context, path string, peers PeerAdder, logger *slog.Logger) error {
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch peers file directory: %w", err)
	}

	reload := func() {
		addrs, err := LoadPeersFile(path)
		if err != nil {
			logger.Warn("Failed to load peers file", "path", path, "error", err)
			return
		}
		if n := peers.AddPeers(addrs); n > 0 {
			logger.Info("Peers file loaded", "path", path, "added", n)
		}
	}
	reload()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Peers file watcher error", "path", path, "error", err)
		}
	}
}
