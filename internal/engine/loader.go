/*
PURPOSE:
  Loads a domain's task files from tasks/<domain>/*.json.

REQUIREMENTS:
  User-specified:
  - Tasks carry id, prompt, optional max_tokens and free-form domain fields.

  Implementation-discovered:
  - Files are read in file-name order so runs are reproducible.
  - Loading is best-effort: bad files are skipped and reported, not fatal.

ARCHITECTURE INTEGRATION:
  - Called by: engine.Runner.Run, internal/cli (validate, sweep)
  - Dependencies: github.com/go-playground/validator/v10

ERROR HANDLING:
  - Invalid JSON, missing id/prompt and duplicate ids: Warn and skip.
  - A missing directory yields no tasks.

RELATED FILES:
  - internal/engine/runner.go
*/

package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/daryltucker/donkey-runner/internal/model"
	"github.com/daryltucker/donkey-runner/internal/output"
)

var taskValidate = validator.New()

// LoadResult holds the tasks read from a domain directory and the files skipped.
type LoadResult struct {
	Tasks   []model.Task
	Skipped []model.LoadSkip
}

// DomainDir returns the directory holding a domain's task files.
func DomainDir(tasksDir, domain string) string {
	return filepath.Join(tasksDir, domain)
}

// LoadTasks reads every *.json file in dir, in file-name order.
//
// Loading is best-effort: unreadable files, invalid JSON, tasks without an id
// or prompt and duplicate ids are skipped and reported in LoadResult.Skipped.
// A missing directory yields no tasks. Only a failure to list the directory
// itself is returned as an error.
func LoadTasks(dir string) (LoadResult, error) {
	var res LoadResult

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return res, fmt.Errorf("failed to list tasks in %s: %w", dir, err)
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			output.Logger.Warn("Task directory not found", "dir", dir)
			return res, nil
		}
		return res, fmt.Errorf("failed to read task directory %s: %w", dir, err)
	}
	sort.Strings(paths)

	seen := make(map[string]string)
	for _, path := range paths {
		task, err := readTask(path)
		if err == nil {
			if first, dup := seen[task.ID]; dup {
				err = fmt.Errorf("duplicate task id %q (first seen in %s)", task.ID, filepath.Base(first))
			}
		}
		if err != nil {
			output.Logger.Warn("Skipping task file", "file", path, "error", err)
			res.Skipped = append(res.Skipped, model.LoadSkip{File: path, Reason: err.Error()})
			continue
		}
		seen[task.ID] = path
		res.Tasks = append(res.Tasks, task)
	}

	return res, nil
}

func readTask(path string) (model.Task, error) {
	var task model.Task

	data, err := os.ReadFile(path)
	if err != nil {
		return task, err
	}
	if err := json.Unmarshal(data, &task); err != nil {
		return task, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := ValidateTask(task); err != nil {
		return task, err
	}
	return task, nil
}

// ValidateTask checks the required task fields.
func ValidateTask(task model.Task) error {
	if err := taskValidate.Struct(task); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid task: field %s failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid task: %w", err)
	}
	return nil
}

// ListDomains returns the sub-directories of tasksDir, sorted.
func ListDomains(tasksDir string) ([]string, error) {
	entries, err := os.ReadDir(tasksDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks directory %s: %w", tasksDir, err)
	}
	var domains []string
	for _, e := range entries {
		if e.IsDir() {
			domains = append(domains, e.Name())
		}
	}
	return domains, nil
}
