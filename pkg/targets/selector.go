package targets

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ErrSelectionCancelled is returned when the user aborts target selection
var ErrSelectionCancelled = errors.New("target selection cancelled")

// Selector chooses the targets a sync installs into. Implementations return
// ErrSelectionCancelled when the user aborts, and must not return an empty
// selection without an error.
type Selector interface {
	Select(ctx context.Context, available []Target, defaults []string) ([]Target, error)
}

// StaticSelector picks the configured defaults without asking.
type StaticSelector struct{}

// Select implements Selector
func (StaticSelector) Select(_ context.Context, available []Target, defaults []string) ([]Target, error) {
	if len(defaults) == 0 {
		return nil, errors.Wrap(ErrSelectionCancelled, "no targets configured; pass --target or set targets in config")
	}
	return pick(available, defaults)
}

// Asker is the prompt surface PromptSelector needs
type Asker interface {
	Info(message string)
	List(items []string)
	Ask(question string, options ...string) (string, error)
}

// PromptSelector asks the user which targets to use. The answer is a comma
// or space separated list of target names, "all", or "q" to abort. An empty
// answer accepts the defaults when there are any.
type PromptSelector struct {
	Asker Asker
}

// Select implements Selector
func (s PromptSelector) Select(ctx context.Context, available []Target, defaults []string) ([]Target, error) {
	items := make([]string, len(available))
	for i, t := range available {
		items[i] = fmt.Sprintf("%s (%s)", t.Name, t.DisplayName)
	}
	s.Asker.Info("Available targets:")
	s.Asker.List(items)

	question := "Install to which targets"
	if len(defaults) > 0 {
		question = fmt.Sprintf("Install to which targets (default: %s)", strings.Join(defaults, ", "))
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(ErrSelectionCancelled, err.Error())
		}

		answer, err := s.Asker.Ask(question, "names", "all", "q")
		if err != nil {
			if err == io.EOF {
				return nil, ErrSelectionCancelled
			}
			return nil, errors.Wrap(err, "failed to read target selection")
		}

		switch strings.ToLower(answer) {
		case "q", "quit":
			return nil, ErrSelectionCancelled
		case "all":
			return available, nil
		case "":
			if len(defaults) > 0 {
				return pick(available, defaults)
			}
			s.Asker.Info("Select at least one target.")
			continue
		}

		chosen, err := pick(available, splitNames(answer))
		if err != nil {
			s.Asker.Info(err.Error())
			continue
		}
		return chosen, nil
	}
}

func splitNames(answer string) []string {
	return strings.FieldsFunc(answer, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

func pick(available []Target, names []string) ([]Target, error) {
	if len(names) == 0 {
		return nil, ErrSelectionCancelled
	}

	byName := make(map[string]Target, len(available))
	for _, t := range available {
		byName[t.Name] = t
	}

	seen := make(map[string]bool, len(names))
	var chosen []Target
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		t, ok := byName[name]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownTarget, "%q", name)
		}
		chosen = append(chosen, t)
	}
	return chosen, nil
}
