// Package core provides the built-in file-operations and analysis tools
// registered with the Tool Handler Registry.
//
// Tools:
//   - read_file, write_file, edit_file, delete_file, list_files: file ops
//   - move_file: file organization, VCS-aware where possible
//   - glob, grep: analysis
//   - search_code: investigation
package core
