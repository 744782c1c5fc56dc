package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"forgeloop/internal/logging"
	"forgeloop/internal/tools"
)

// ReadFileTool returns a tool for reading file contents.
func ReadFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "read_file",
		Description: "Read the contents of a file",
		Category:    tools.CategoryFileOps,
		Priority:    90,
		Execute:     executeReadFile,
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path":       {Type: "string", Description: "The file path to read"},
				"start_line": {Type: "integer", Description: "Starting line number (1-indexed, optional)"},
				"end_line":   {Type: "integer", Description: "Ending line number (inclusive, optional)"},
			},
		},
	}
}

func executeReadFile(ctx context.Context, args map[string]any) (tools.ExecResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return tools.ExecResult{}, fmt.Errorf("path is required")
	}

	logging.ToolsDebug("read_file: path=%s", path)

	content, err := os.ReadFile(path)
	if err != nil {
		return tools.ExecResult{}, fmt.Errorf("read file: %w", err)
	}

	result := string(content)

	startLine, hasStart := args["start_line"].(int)
	endLine, hasEnd := args["end_line"].(int)

	if hasStart || hasEnd {
		lines := strings.Split(result, "\n")

		if !hasStart {
			startLine = 1
		}
		if !hasEnd {
			endLine = len(lines)
		}

		startLine--
		if startLine < 0 {
			startLine = 0
		}
		if endLine > len(lines) {
			endLine = len(lines)
		}

		result = strings.Join(lines[startLine:endLine], "\n")
	}

	logging.Tools("read_file completed: %s (%d bytes)", path, len(result))
	return tools.ExecResult{Output: result}, nil
}

// WriteFileTool returns a tool for writing content to a file via an atomic
// write (§4.7: "writes go via temp-file + rename").
func WriteFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "write_file",
		Description: "Write content to a file, creating it if it doesn't exist",
		Category:    tools.CategoryFileOps,
		Priority:    80,
		Execute:     executeWriteFile,
		Schema: tools.ToolSchema{
			Required: []string{"path", "content"},
			Properties: map[string]tools.Property{
				"path":    {Type: "string", Description: "The file path to write"},
				"content": {Type: "string", Description: "The content to write"},
			},
		},
	}
}

func executeWriteFile(ctx context.Context, args map[string]any) (tools.ExecResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return tools.ExecResult{}, fmt.Errorf("path is required")
	}
	content, _ := args["content"].(string)

	logging.ToolsDebug("write_file: path=%s, size=%d", path, len(content))

	_, statErr := os.Stat(path)
	existed := statErr == nil

	if err := tools.AtomicWriteFile(path, []byte(content), 0644); err != nil {
		return tools.ExecResult{}, fmt.Errorf("write file: %w", err)
	}

	logging.Tools("write_file completed: %s (%d bytes)", path, len(content))

	res := tools.ExecResult{Output: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}
	if existed {
		res.FilesModified = []string{path}
	} else {
		res.FilesCreated = []string{path}
	}
	return res, nil
}

// EditFileTool returns a tool for editing files with search/replace. The
// old text must be present (pre-condition, §4.7); the original is backed
// up before writing only when backup_dir is given.
func EditFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "edit_file",
		Description: "Edit a file by replacing text",
		Category:    tools.CategoryFileOps,
		Priority:    85,
		Execute:     executeEditFile,
		Destructive: true,
		Schema: tools.ToolSchema{
			Required: []string{"path", "old_text", "new_text"},
			Properties: map[string]tools.Property{
				"path":        {Type: "string", Description: "The file path to edit"},
				"old_text":    {Type: "string", Description: "The text to find and replace"},
				"new_text":    {Type: "string", Description: "The replacement text"},
				"replace_all": {Type: "boolean", Description: "Replace all occurrences (default: false)", Default: false},
				"backup_dir":  {Type: "string", Description: "Directory to write a pre-edit backup into (optional)"},
			},
		},
	}
}

func executeEditFile(ctx context.Context, args map[string]any) (tools.ExecResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return tools.ExecResult{}, fmt.Errorf("path is required")
	}
	oldText, _ := args["old_text"].(string)
	if oldText == "" {
		return tools.ExecResult{}, fmt.Errorf("old_text is required")
	}
	newText, _ := args["new_text"].(string)
	replaceAll, _ := args["replace_all"].(bool)

	logging.ToolsDebug("edit_file: path=%s, old_len=%d, new_len=%d", path, len(oldText), len(newText))

	content, err := os.ReadFile(path)
	if err != nil {
		return tools.ExecResult{}, fmt.Errorf("read file: %w", err)
	}
	contentStr := string(content)

	if !strings.Contains(contentStr, oldText) {
		return tools.ExecResult{}, fmt.Errorf("old_text not found in %s", path)
	}

	if backupDir, ok := args["backup_dir"].(string); ok && backupDir != "" {
		if _, err := tools.BackupFiles(backupDir, []string{path}, time.Now()); err != nil {
			return tools.ExecResult{}, fmt.Errorf("backup before edit: %w", err)
		}
	}

	var newContent string
	var count int
	if replaceAll {
		count = strings.Count(contentStr, oldText)
		newContent = strings.ReplaceAll(contentStr, oldText, newText)
	} else {
		count = 1
		newContent = strings.Replace(contentStr, oldText, newText, 1)
	}

	if err := tools.AtomicWriteFile(path, []byte(newContent), 0644); err != nil {
		return tools.ExecResult{}, fmt.Errorf("write file: %w", err)
	}

	logging.Tools("edit_file completed: %s (%d replacements)", path, count)
	return tools.ExecResult{
		Output:        fmt.Sprintf("replaced %d occurrence(s) in %s", count, path),
		FilesModified: []string{path},
	}, nil
}

// DeleteFileTool returns a tool for deleting files. A timestamped backup
// is taken first only when backup_dir is given; without it the file is
// removed with no copy kept.
func DeleteFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "delete_file",
		Description: "Delete a file, keeping a timestamped backup when backup_dir is given",
		Category:    tools.CategoryFileOps,
		Priority:    50,
		Execute:     executeDeleteFile,
		Destructive: true,
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path":       {Type: "string", Description: "The file path to delete"},
				"backup_dir": {Type: "string", Description: "Directory to write a pre-delete backup into"},
			},
		},
	}
}

func executeDeleteFile(ctx context.Context, args map[string]any) (tools.ExecResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return tools.ExecResult{}, fmt.Errorf("path is required")
	}

	logging.ToolsDebug("delete_file: path=%s", path)

	info, err := os.Stat(path)
	if err != nil {
		return tools.ExecResult{}, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return tools.ExecResult{}, fmt.Errorf("cannot delete a directory with delete_file")
	}

	backupDir, _ := args["backup_dir"].(string)
	if backupDir != "" {
		if _, err := tools.BackupFiles(backupDir, []string{path}, time.Now()); err != nil {
			return tools.ExecResult{}, fmt.Errorf("backup before delete: %w", err)
		}
	}

	if err := os.Remove(path); err != nil {
		return tools.ExecResult{}, fmt.Errorf("delete file: %w", err)
	}

	logging.Tools("delete_file completed: %s", path)
	return tools.ExecResult{
		Output:       fmt.Sprintf("deleted %s", path),
		FilesDeleted: []string{path},
	}, nil
}

// ListFilesTool returns a tool for listing directory contents.
func ListFilesTool() *tools.Tool {
	return &tools.Tool{
		Name:        "list_files",
		Description: "List files in a directory",
		Category:    tools.CategoryFileOps,
		Priority:    85,
		Execute:     executeListFiles,
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path":           {Type: "string", Description: "The directory path to list"},
				"recursive":      {Type: "boolean", Description: "List recursively (default: false)", Default: false},
				"include_hidden": {Type: "boolean", Description: "Include hidden files (default: false)", Default: false},
			},
		},
	}
}

func executeListFiles(ctx context.Context, args map[string]any) (tools.ExecResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	recursive, _ := args["recursive"].(bool)
	includeHidden, _ := args["include_hidden"].(bool)

	logging.ToolsDebug("list_files: path=%s, recursive=%v", path, recursive)

	var files []string

	if recursive {
		err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			name := info.Name()
			if !includeHidden && strings.HasPrefix(name, ".") {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			relPath, _ := filepath.Rel(path, p)
			if relPath == "." {
				return nil
			}
			if info.IsDir() {
				files = append(files, relPath+"/")
			} else {
				files = append(files, relPath)
			}
			return nil
		})
		if err != nil {
			return tools.ExecResult{}, fmt.Errorf("walk directory: %w", err)
		}
	} else {
		entries, err := os.ReadDir(path)
		if err != nil {
			return tools.ExecResult{}, fmt.Errorf("read directory: %w", err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if !includeHidden && strings.HasPrefix(name, ".") {
				continue
			}
			if entry.IsDir() {
				files = append(files, name+"/")
			} else {
				files = append(files, name)
			}
		}
	}

	logging.Tools("list_files completed: %s (%d entries)", path, len(files))
	return tools.ExecResult{Output: strings.Join(files, "\n")}, nil
}

// MoveFileTool returns a file-organization tool for moving/renaming a file,
// computing the affected-file count the caller needs for risk
// classification (§4.7).
func MoveFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "move_file",
		Description: "Move or rename a file, VCS-aware where possible",
		Category:    tools.CategoryFileOrg,
		Priority:    70,
		Execute:     executeMoveFile,
		Destructive: true,
		Schema: tools.ToolSchema{
			Required: []string{"from", "to"},
			Properties: map[string]tools.Property{
				"from": {Type: "string", Description: "Current file path"},
				"to":   {Type: "string", Description: "Destination file path"},
			},
		},
	}
}

func executeMoveFile(ctx context.Context, args map[string]any) (tools.ExecResult, error) {
	from, _ := args["from"].(string)
	to, _ := args["to"].(string)
	if from == "" || to == "" {
		return tools.ExecResult{}, fmt.Errorf("from and to are required")
	}

	logging.ToolsDebug("move_file: from=%s to=%s", from, to)

	if err := tools.MoveFile(from, to); err != nil {
		return tools.ExecResult{}, fmt.Errorf("move file: %w", err)
	}

	logging.Tools("move_file completed: %s -> %s", from, to)
	return tools.ExecResult{
		Output:        fmt.Sprintf("moved %s to %s", from, to),
		FilesCreated:  []string{to},
		FilesDeleted:  []string{from},
		Risk:          tools.ClassifyRisk(1),
	}, nil
}
