package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// ManifestName — файл, отмечающий корень рабочей области.
const ManifestName = "hellm.toml"

// Manifest — содержимое hellm.toml.
type Manifest struct {
	Path   string
	Root   string
	Format FormatSection
}

// FormatSection переопределяет параметры форматтера для проекта.
type FormatSection struct {
	Executable string   `toml:"executable"`
	Timeout    duration `toml:"timeout"`
	Grace      duration `toml:"grace"`
}

type manifestFile struct {
	Format FormatSection `toml:"format"`
}

// duration разбирает строки вида "5s" или "750ms".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("duration %q must not be negative", text)
	}
	d.Duration = v
	return nil
}

// FindManifest ищет hellm.toml от startDir вверх до корня файловой системы.
func FindManifest(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadManifest разбирает hellm.toml.
func LoadManifest(path string) (*Manifest, error) {
	var file manifestFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &Manifest{Path: abs, Root: filepath.Dir(abs), Format: file.Format}, nil
}

// Discover возвращает манифест ближайшей рабочей области или nil, если его нет.
func Discover(startDir string) (*Manifest, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil || !ok {
		return nil, err
	}
	return LoadManifest(path)
}

// WorkingDir выбирает каталог запуска форматтера: корень рабочей области,
// если манифест найден, иначе текущий каталог процесса.
func WorkingDir(startDir string) (string, error) {
	m, err := Discover(startDir)
	if err != nil {
		return "", err
	}
	if m != nil {
		return m.Root, nil
	}
	return os.Getwd()
}
