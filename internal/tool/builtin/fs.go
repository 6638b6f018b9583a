package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/flemzord/toolpipe/internal/security"
	"github.com/flemzord/toolpipe/internal/tool"
)

type readFileReq struct {
	Path     string `json:"path"`
	Offset   int64  `json:"offset"`
	MaxBytes int    `json:"max_bytes"`
}

func newReadFile(cfg Config) tool.Tool {
	return &typed[readFileReq]{
		meta: meta{
			name:        "agent_read_file",
			description: "Read a text file from the workspace, optionally from a byte offset.",
			category:    tool.CategoryFS,
			schema: `{
				"type": "object",
				"properties": {
					"path": {"type": "string", "minLength": 1, "description": "File path relative to the workspace."},
					"offset": {"type": "integer", "minimum": 0},
					"max_bytes": {"type": "integer", "minimum": 1}
				},
				"required": ["path"],
				"additionalProperties": false
			}`,
		},
		run: func(_ context.Context, req readFileReq, env tool.ExecutionEnv) (tool.Output, error) {
			path, err := security.ResolveInRoot(env.RootPath, req.Path)
			if err != nil {
				return tool.Output{}, err
			}
			limit := cfg.MaxReadBytes
			if req.MaxBytes > 0 && req.MaxBytes < limit {
				limit = req.MaxBytes
			}

			f, err := os.Open(path)
			if err != nil {
				return tool.Output{}, err
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return tool.Output{}, err
			}
			if info.IsDir() {
				return tool.Output{}, fmt.Errorf("%s is a directory", req.Path)
			}
			if req.Offset > 0 {
				if _, err := f.Seek(req.Offset, io.SeekStart); err != nil {
					return tool.Output{}, err
				}
			}
			buf, err := io.ReadAll(io.LimitReader(f, int64(limit)+1))
			if err != nil {
				return tool.Output{}, err
			}
			content, cut := truncate(string(buf), limit)
			if cut {
				content += fmt.Sprintf("\n[truncated at %d bytes of %d]", limit, info.Size())
			}
			return tool.Output{
				Content: content,
				Data:    map[string]any{"path": req.Path, "size": info.Size(), "truncated": cut},
			}, nil
		},
	}
}

type writeFileReq struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append"`
}

func newWriteFile() tool.Tool {
	return &typed[writeFileReq]{
		meta: meta{
			name:        "agent_write_file",
			description: "Create or overwrite a file in the workspace, or append to it.",
			category:    tool.CategoryFS,
			approval:    true,
			schema: `{
				"type": "object",
				"properties": {
					"path": {"type": "string", "minLength": 1},
					"content": {"type": "string"},
					"append": {"type": "boolean"}
				},
				"required": ["path", "content"],
				"additionalProperties": false
			}`,
		},
		run: func(_ context.Context, req writeFileReq, env tool.ExecutionEnv) (tool.Output, error) {
			path, err := security.ResolveInRoot(env.RootPath, req.Path)
			if err != nil {
				return tool.Output{}, err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return tool.Output{}, err
			}
			flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
			if req.Append {
				flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
			}
			f, err := os.OpenFile(path, flags, 0o644)
			if err != nil {
				return tool.Output{}, err
			}
			n, werr := f.WriteString(req.Content)
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				return tool.Output{}, werr
			}
			verb := "wrote"
			if req.Append {
				verb = "appended"
			}
			return tool.Output{Content: fmt.Sprintf("%s %d bytes to %s", verb, n, req.Path)}, nil
		},
	}
}

type listDirReq struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

func newListDir(cfg Config) tool.Tool {
	return &typed[listDirReq]{
		meta: meta{
			name:        "agent_list_dir",
			description: "List a workspace directory. Directories end with a slash.",
			category:    tool.CategoryFS,
			schema: `{
				"type": "object",
				"properties": {
					"path": {"type": "string"},
					"recursive": {"type": "boolean"}
				},
				"additionalProperties": false
			}`,
		},
		run: func(_ context.Context, req listDirReq, env tool.ExecutionEnv) (tool.Output, error) {
			rel := req.Path
			if rel == "" {
				rel = "."
			}
			dir, err := security.ResolveInRoot(env.RootPath, rel)
			if err != nil {
				return tool.Output{}, err
			}

			var entries []string
			errLimit := errors.New("limit")
			err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if path == dir {
					return nil
				}
				if d.IsDir() && skipDir(d.Name()) {
					return filepath.SkipDir
				}
				name, _ := filepath.Rel(dir, path)
				name = filepath.ToSlash(name)
				if d.IsDir() {
					name += "/"
				}
				entries = append(entries, name)
				if len(entries) >= cfg.MaxEntries {
					return errLimit
				}
				if d.IsDir() && !req.Recursive {
					return filepath.SkipDir
				}
				return nil
			})
			truncated := errors.Is(err, errLimit)
			if err != nil && !truncated {
				return tool.Output{}, err
			}

			slices.Sort(entries)
			content := strings.Join(entries, "\n")
			if content == "" {
				content = "(empty directory)"
			}
			if truncated {
				content += fmt.Sprintf("\n[listing stopped at %d entries]", cfg.MaxEntries)
			}
			return tool.Output{Content: content, Data: map[string]any{"entries": entries, "truncated": truncated}}, nil
		},
	}
}

// skipDir names directories never descended into.
func skipDir(name string) bool {
	switch name {
	case ".git", "node_modules", "vendor", ".venv", "__pycache__", "target", "dist":
		return true
	}
	return false
}
