package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSSink writes one JSON file per backup into a directory.
type FSSink struct {
	dir string
}

// NewFSSink creates dir if needed.
func NewFSSink(dir string) (*FSSink, error) {
	if dir == "" {
		dir = "backups"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &FSSink{dir: dir}, nil
}

func (s *FSSink) Driver() string { return DriverFS }

func (s *FSSink) Save(_ context.Context, info Info, payload []byte) error {
	final := filepath.Join(s.dir, objectName(info))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

func (s *FSSink) Load(ctx context.Context, id string) ([]byte, error) {
	name, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(s.dir, name))
}

func (s *FSSink) List(_ context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Info{}, nil
		}
		return nil, err
	}
	out := []Info{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, ok := parseObjectName(entry.Name())
		if !ok {
			continue
		}
		if fi, err := entry.Info(); err == nil {
			info.Size = fi.Size()
		}
		info.Driver = DriverFS
		out = append(out, info)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *FSSink) find(ctx context.Context, id string) (string, error) {
	list, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	for _, info := range list {
		if info.ID == id {
			return objectName(info), nil
		}
	}
	return "", notFound(id)
}
