package registry

import (
	"path"
	"strings"
)

// ExpandCommand substitutes the template placeholders and tokenizes the
// result into an argv. Placeholders:
//
//	{file_path}   full path to the source file, e.g. /workspace/main.py
//	{filename}    base name, e.g. main.py
//	{output_path} file path with the extension stripped, e.g. /workspace/main
//
// A literal "sh -c " prefix yields the three-element argv
// ["sh", "-c", rest] with surrounding quotes stripped from rest; anything
// else splits on whitespace. Expansion is pure: the same template and
// file path always produce the same argv.
func ExpandCommand(template, filePath string) []string {
	if template == "" {
		return nil
	}

	filename := path.Base(filePath)
	outputPath := strings.TrimSuffix(filePath, path.Ext(filePath))

	cmd := strings.NewReplacer(
		"{file_path}", filePath,
		"{filename}", filename,
		"{output_path}", outputPath,
	).Replace(template)

	if rest, ok := strings.CutPrefix(cmd, "sh -c "); ok {
		rest = strings.Trim(rest, `"`)
		rest = strings.Trim(rest, `'`)
		return []string{"sh", "-c", rest}
	}
	return strings.Fields(cmd)
}

// ExpandRunCommand expands the environment's run command against filePath.
func (r *Registry) ExpandRunCommand(name, filePath string) ([]string, error) {
	env, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return ExpandCommand(env.RunCommand, filePath), nil
}

// ExpandCompileCommand expands the environment's compile command against
// filePath. Environments without a compile step return an empty argv.
func (r *Registry) ExpandCompileCommand(name, filePath string) ([]string, error) {
	env, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return ExpandCommand(env.CompileCommand, filePath), nil
}
