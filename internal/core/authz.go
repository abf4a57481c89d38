package core

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Subject описывает источник запроса и его идентификатор.
type Subject struct {
	Source string
	ID     string
}

// Authorizer решает, можно ли субъекту форматировать файл.
type Authorizer interface {
	Authorize(subject Subject, path string) error
}

// PathAuthorizer реализует deny-by-default по списку корневых каталогов.
type PathAuthorizer struct {
	roots []string
}

// NewPathAuthorizer создает authorizer из списка корней; пустые и
// относительные записи пропускаются.
func NewPathAuthorizer(roots []string) *PathAuthorizer {
	clean := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" || !filepath.IsAbs(root) {
			continue
		}
		clean = append(clean, filepath.Clean(root))
	}
	return &PathAuthorizer{roots: clean}
}

// Authorize возвращает ошибку, если путь не лежит внутри одного из корней.
func (a *PathAuthorizer) Authorize(subject Subject, path string) error {
	if subject.Source == "" {
		return fmt.Errorf("empty subject source: %w", errInvalidArguments)
	}
	if path == "" || !filepath.IsAbs(path) {
		return fmt.Errorf("path %q must be absolute: %w", path, errInvalidArguments)
	}
	path = filepath.Clean(path)
	for _, root := range a.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("path %s is outside allowed roots", path)
}

// Roots возвращает нормализованный список корней.
func (a *PathAuthorizer) Roots() []string {
	out := make([]string, len(a.roots))
	copy(out, a.roots)
	return out
}
