package builtin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/flemzord/toolpipe/internal/security"
	"github.com/flemzord/toolpipe/internal/tool"
)

type searchReq struct {
	Query         string `json:"query"`
	Path          string `json:"path"`
	CaseSensitive bool   `json:"case_sensitive"`
}

// maxSearchFileBytes skips files too large to be source.
const maxSearchFileBytes = 2 << 20

func newSearch(cfg Config) tool.Tool {
	return &typed[searchReq]{
		meta: meta{
			name:        "agent_search",
			description: "Search workspace text files for a literal string. Returns path:line: text matches.",
			category:    tool.CategoryFS,
			schema: `{
				"type": "object",
				"properties": {
					"query": {"type": "string", "minLength": 1},
					"path": {"type": "string", "description": "Directory to search, relative to the workspace."},
					"case_sensitive": {"type": "boolean"}
				},
				"required": ["query"],
				"additionalProperties": false
			}`,
		},
		run: func(ctx context.Context, req searchReq, env tool.ExecutionEnv) (tool.Output, error) {
			rel := req.Path
			if rel == "" {
				rel = "."
			}
			root, err := security.ResolveInRoot(env.RootPath, rel)
			if err != nil {
				return tool.Output{}, err
			}

			needle := req.Query
			if !req.CaseSensitive {
				needle = strings.ToLower(needle)
			}

			var matches []string
			errLimit := errors.New("limit")
			err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				if d.IsDir() {
					if path != root && skipDir(d.Name()) {
						return filepath.SkipDir
					}
					return nil
				}
				found, err := searchFile(path, needle, req.CaseSensitive)
				if err != nil {
					return nil
				}
				name, _ := filepath.Rel(root, path)
				for _, m := range found {
					matches = append(matches, filepath.ToSlash(name)+":"+m)
					if len(matches) >= cfg.MaxResults {
						return errLimit
					}
				}
				return nil
			})
			truncated := errors.Is(err, errLimit)
			if err != nil && !truncated {
				return tool.Output{}, err
			}

			if len(matches) == 0 {
				return tool.Output{Content: fmt.Sprintf("no matches for %q", req.Query)}, nil
			}
			content := strings.Join(matches, "\n")
			if truncated {
				content += fmt.Sprintf("\n[stopped at %d matches]", cfg.MaxResults)
			}
			out, _ := truncate(content, cfg.MaxOutputBytes)
			return tool.Output{Content: out, Data: map[string]any{"count": len(matches), "truncated": truncated}}, nil
		},
	}
}

// searchFile returns "line: text" for each matching line. Binary files
// yield nothing.
func searchFile(path, needle string, caseSensitive bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxSearchFileBytes {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, nil
	}

	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxSearchFileBytes)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		hay := line
		if !caseSensitive {
			hay = strings.ToLower(line)
		}
		if strings.Contains(hay, needle) {
			out = append(out, fmt.Sprintf("%d: %s", n, strings.TrimSpace(line)))
		}
	}
	return out, sc.Err()
}
