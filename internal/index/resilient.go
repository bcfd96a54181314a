package index

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// chromem names collection directories with an 8-char hex hash.
var collectionDirPattern = regexp.MustCompile(`^[a-f0-9]{8}$`)

const quarantineDirName = ".quarantine"

// openResilientDB opens a persistent chromem database, quarantining
// collections whose metadata file is missing.
//
// chromem refuses to load a database containing a collection directory
// with document files but no metadata file. Moving such directories
// under .quarantine lets the daemon start with the surviving
// collections; the quarantined data stays on disk for inspection.
func openResilientDB(path string, compress bool, logger *zap.Logger) (*chromem.DB, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err == nil {
		return db, nil
	}
	if !strings.Contains(err.Error(), "collection metadata file not found") {
		return nil, err
	}

	corrupt, findErr := corruptCollectionDirs(path, logger)
	if findErr != nil {
		logger.Error("scanning for corrupt index collections", zap.Error(findErr))
		return nil, err
	}
	if len(corrupt) == 0 {
		return nil, err
	}

	quarantinePath := filepath.Join(path, quarantineDirName)
	if mkErr := os.MkdirAll(quarantinePath, 0700); mkErr != nil {
		return nil, fmt.Errorf("creating quarantine directory: %w", mkErr)
	}

	moved := 0
	for _, name := range corrupt {
		// The pattern check keeps a hostile directory name from
		// escaping the database root via os.Rename.
		if !collectionDirPattern.MatchString(name) {
			logger.Error("refusing to quarantine unexpected directory name",
				zap.String("name", name))
			quarantineTotal.WithLabelValues("error").Inc()
			continue
		}

		src := filepath.Join(path, name)
		dst := filepath.Join(quarantinePath, name)
		if renameErr := os.Rename(src, dst); renameErr != nil {
			logger.Error("quarantining corrupt index collection",
				zap.String("collection", name),
				zap.Error(renameErr))
			quarantineTotal.WithLabelValues("error").Inc()
			continue
		}

		logger.Warn("quarantined corrupt index collection",
			zap.String("collection", name),
			zap.String("moved_to", dst))
		quarantineTotal.WithLabelValues("success").Inc()
		moved++
	}
	if moved == 0 {
		return nil, err
	}

	db, retryErr := chromem.NewPersistentDB(path, compress)
	if retryErr != nil {
		logger.Error("chromem database still unloadable after quarantine",
			zap.Error(retryErr))
		return nil, retryErr
	}

	logger.Info("chromem database recovered",
		zap.Int("quarantined", moved))
	return db, nil
}

// corruptCollectionDirs lists collection directories that contain
// document files but no metadata file.
func corruptCollectionDirs(path string, logger *zap.Logger) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading index directory: %w", err)
	}

	var corrupt []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		dir := filepath.Join(path, entry.Name())
		if _, statErr := os.Stat(filepath.Join(dir, "00000000.gob")); statErr == nil {
			continue
		} else if !os.IsNotExist(statErr) {
			continue
		}

		files, readErr := os.ReadDir(dir)
		if readErr != nil {
			logger.Warn("reading collection directory",
				zap.String("collection", entry.Name()),
				zap.Error(readErr))
			continue
		}
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".gob") {
				corrupt = append(corrupt, entry.Name())
				break
			}
		}
	}
	return corrupt, nil
}
