package functions

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Microwave-WYB/openai-helper/pkg/providers"
)

// Builtin workspace functions. Paths are resolved inside the workspace root;
// escapes via .. or symlinks are rejected by os.Root.

func stringArg(args map[string]any, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return val, nil
}

func relativize(workspace, path string) string {
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(workspace, path); err == nil {
			return rel
		}
	}
	return path
}

func inRoot(workspace, path string, fn func(root *os.Root, rel string) (string, error)) (string, error) {
	root, err := os.OpenRoot(workspace)
	if err != nil {
		return "", fmt.Errorf("open workspace: %w", err)
	}
	defer root.Close()
	return fn(root, relativize(workspace, path))
}

// RegisterBuiltins registers the workspace file functions on r.
func RegisterBuiltins(r *Registry, workspace string) {
	r.Register(providers.FunctionSchema{
		Name:        "read_file",
		Description: "Read the contents of a file",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path to the file to read",
				},
			},
			"required": []string{"path"},
		},
	}, func(args map[string]any) (string, error) {
		path, err := stringArg(args, "path")
		if err != nil {
			return "", err
		}
		return inRoot(workspace, path, func(root *os.Root, rel string) (string, error) {
			f, err := root.Open(rel)
			if err != nil {
				if os.IsNotExist(err) {
					return "", fmt.Errorf("file not found: %s", path)
				}
				return "", fmt.Errorf("access denied or failed to open: %w", err)
			}
			defer f.Close()

			content, err := io.ReadAll(f)
			if err != nil {
				return "", fmt.Errorf("failed to read file: %w", err)
			}
			return string(content), nil
		})
	})

	r.Register(providers.FunctionSchema{
		Name:        "write_file",
		Description: "Write content to a file",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path to the file to write",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Content to write to the file",
				},
			},
			"required": []string{"path", "content"},
		},
	}, func(args map[string]any) (string, error) {
		path, err := stringArg(args, "path")
		if err != nil {
			return "", err
		}
		content, ok := args["content"].(string)
		if !ok {
			return "", fmt.Errorf("content is required")
		}
		return inRoot(workspace, path, func(root *os.Root, rel string) (string, error) {
			if dir := filepath.Dir(rel); dir != "." {
				if err := root.MkdirAll(dir, 0o755); err != nil {
					return "", fmt.Errorf("failed to create directory: %w", err)
				}
			}
			f, err := root.Create(rel)
			if err != nil {
				return "", fmt.Errorf("access denied or failed to create: %w", err)
			}
			defer f.Close()

			if _, err := f.WriteString(content); err != nil {
				return "", fmt.Errorf("failed to write file: %w", err)
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
		})
	})

	r.Register(providers.FunctionSchema{
		Name:        "list_dir",
		Description: "List the contents of a directory",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path to list",
				},
			},
		},
	}, func(args map[string]any) (string, error) {
		path, _ := args["path"].(string)
		if path == "" {
			path = "."
		}
		return inRoot(workspace, path, func(root *os.Root, rel string) (string, error) {
			f, err := root.Open(rel)
			if err != nil {
				return "", fmt.Errorf("failed to open directory: %w", err)
			}
			defer f.Close()

			entries, err := f.ReadDir(-1)
			if err != nil {
				return "", fmt.Errorf("failed to list directory: %w", err)
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

			var sb strings.Builder
			for _, entry := range entries {
				if entry.IsDir() {
					sb.WriteString(entry.Name() + "/\n")
				} else {
					sb.WriteString(entry.Name() + "\n")
				}
			}
			if sb.Len() == 0 {
				return "(empty)", nil
			}
			return sb.String(), nil
		})
	})
}
