// Package content загружает авторский контент (миры, взаимодействия,
// нарративные программы) из YAML. Любая ошибка контента фатальна для
// загрузки: сервер со сломанным контентом не стартует.
package content

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pixsim-server/internal/domain"
	"pixsim-server/internal/engine"
	"pixsim-server/internal/engine/interactions"
	"pixsim-server/pkg/logger"

	"gopkg.in/yaml.v3"
)

// Bundle - загруженный и провалидированный контент.
type Bundle struct {
	Worlds   []*domain.GameWorld
	Registry *interactions.Registry
	Programs []*engine.ProgramDefinition
}

// interactionsFile - формат файла со списком взаимодействий.
type interactionsFile struct {
	Interactions []interactions.RawDefinition `yaml:"interactions"`
}

// Load читает контент из каталога:
//
//	<dir>/worlds/*.yaml       - по одному миру на файл
//	<dir>/interactions/*.yaml - списки определений взаимодействий
//	<dir>/programs/*.yaml     - по одной программе на файл
func Load(dir string) (*Bundle, error) {
	b := &Bundle{Registry: interactions.NewRegistry()}

	worldFiles, err := listYAML(filepath.Join(dir, "worlds"))
	if err != nil {
		return nil, err
	}
	for _, path := range worldFiles {
		var w domain.GameWorld
		if err := readYAML(path, &w); err != nil {
			return nil, err
		}
		if w.HasSchema() {
			if err := w.ValidateSchemas(); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
		b.Worlds = append(b.Worlds, &w)
	}

	interFiles, err := listYAML(filepath.Join(dir, "interactions"))
	if err != nil {
		return nil, err
	}
	for _, path := range interFiles {
		var f interactionsFile
		if err := readYAML(path, &f); err != nil {
			return nil, err
		}
		for _, raw := range f.Interactions {
			if err := b.Registry.Add(raw); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	progFiles, err := listYAML(filepath.Join(dir, "programs"))
	if err != nil {
		return nil, err
	}
	for _, path := range progFiles {
		var p engine.ProgramDefinition
		if err := readYAML(path, &p); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		b.Programs = append(b.Programs, &p)
	}

	logger.Log.WithField("dir", dir).Infof("Content loaded: %d worlds, %d interactions, %d programs",
		len(b.Worlds), b.Registry.Len(), len(b.Programs))
	return b, nil
}

// listYAML возвращает yaml-файлы каталога в алфавитном порядке.
// Отсутствующий каталог - не ошибка (секция контента опциональна).
func listYAML(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

func readYAML(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
