package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/eak1mov/go-rasterview/block"
	"github.com/eak1mov/go-rasterview/dirstore"
	"github.com/eak1mov/go-rasterview/packstore"
	"github.com/eak1mov/go-rasterview/sqlstore"
)

type blockStore interface {
	block.Reader
	block.Visitor
}

func deduceFormat(format, path string) string {
	if format != "" {
		return format
	}
	switch {
	case strings.HasSuffix(path, ".sqlite"):
		return "sqlite"
	case strings.HasSuffix(path, ".rvpk"):
		return "pack"
	}
	return "dir"
}

// storePattern accepts either a block file pattern or a root directory.
func storePattern(path string) string {
	if strings.Contains(path, "{level}") {
		return path
	}
	return dirstore.DefaultPattern(path)
}

func openStore(format, path string) (blockStore, error) {
	switch deduceFormat(format, path) {
	case "sqlite":
		return sqlstore.NewReader(path)
	case "pack":
		return packstore.NewReader(path)
	case "dir":
		return dirstore.NewReader(storePattern(path))
	}
	return nil, fmt.Errorf("invalid input format: %q", format)
}

func createStore(format, path string) (block.Writer, error) {
	switch deduceFormat(format, path) {
	case "sqlite":
		return sqlstore.NewWriter(path, sqlstore.WithLogger(slog.Default()))
	case "pack":
		return packstore.NewWriter(path, packstore.WithLogger(slog.Default()))
	case "dir":
		return dirstore.NewWriter(storePattern(path))
	}
	return nil, fmt.Errorf("invalid output format: %q", format)
}

func closeStore(store any) {
	if closer, ok := store.(io.Closer); ok {
		closer.Close()
	}
}
