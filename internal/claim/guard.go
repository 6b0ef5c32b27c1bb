package claim

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultSuffix: суффикс маркера захвата по умолчанию.
const DefaultSuffix = ".processed"

var (
	// ErrDescriptorNotFound: нет ни descriptor'а, ни маркера.
	ErrDescriptorNotFound = errors.New("job descriptor not found")

	// ErrInvalidName: имя descriptor'а не указывает на файл.
	ErrInvalidName = errors.New("invalid descriptor name")
)

// Result: исход попытки захвата.
type Result int

const (
	Claimed Result = iota
	AlreadyClaimed
	DoubleSubmission
)

// String возвращает имя исхода для логов и метрик.
func (r Result) String() string {
	switch r {
	case Claimed:
		return "claimed"
	case AlreadyClaimed:
		return "already_claimed"
	case DoubleSubmission:
		return "double_submission"
	default:
		return "unknown"
	}
}

// Claim: результат захвата.
type Claim struct {
	Result Result

	// Path: откуда читать descriptor после успешного захвата.
	Path string
}

// Guard захватывает job descriptor по имени.
type Guard interface {
	Claim(ctx context.Context, name string) (Claim, error)
}

// FileGuard захватывает descriptor переименованием в маркер.
//
// Маркер никогда не удаляется. Все воркеры должны видеть один каталог
// загрузок, и rename в нём должен быть атомарным.
type FileGuard struct {
	dir    string
	suffix string
}

// NewFileGuard создаёт guard для каталога загрузок dir.
func NewFileGuard(dir, suffix string) *FileGuard {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return &FileGuard{dir: dir, suffix: suffix}
}

// Paths возвращает пути descriptor'а и его маркера.
// Из name берётся только базовое имя: выйти за пределы dir нельзя.
func (g *FileGuard) Paths(name string) (descriptor, marker string, err error) {
	base, err := baseName(name)
	if err != nil {
		return "", "", err
	}
	descriptor = filepath.Join(g.dir, base)
	return descriptor, descriptor + g.suffix, nil
}

// Claim выполняет трёхходовую проверку и захват.
func (g *FileGuard) Claim(_ context.Context, name string) (Claim, error) {
	descriptor, marker, err := g.Paths(name)
	if err != nil {
		return Claim{}, err
	}

	markerExists, err := exists(marker)
	if err != nil {
		return Claim{}, err
	}
	if markerExists {
		return g.resolveConflict(descriptor, marker)
	}

	err = renameNoReplace(descriptor, marker)
	switch {
	case err == nil:
		return Claim{Result: Claimed, Path: marker}, nil

	case errors.Is(err, fs.ErrExist):
		// Маркер появился между проверкой и rename
		return g.resolveConflict(descriptor, marker)

	case errors.Is(err, fs.ErrNotExist):
		// Другой воркер успел переименовать descriptor раньше нас
		markerExists, statErr := exists(marker)
		if statErr != nil {
			return Claim{}, statErr
		}
		if markerExists {
			return Claim{Result: AlreadyClaimed, Path: marker}, nil
		}
		return Claim{}, fmt.Errorf("%w: %s", ErrDescriptorNotFound, descriptor)

	default:
		return Claim{}, fmt.Errorf("claim %s: %w", descriptor, err)
	}
}

// resolveConflict различает повторную доставку и повторную отправку
// при уже существующем маркере.
func (g *FileGuard) resolveConflict(descriptor, marker string) (Claim, error) {
	descriptorExists, err := exists(descriptor)
	if err != nil {
		return Claim{}, err
	}
	if descriptorExists {
		return Claim{Result: DoubleSubmission, Path: marker}, nil
	}
	return Claim{Result: AlreadyClaimed, Path: marker}, nil
}

func baseName(name string) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}
