package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandCommand(t *testing.T) {
	tests := []struct {
		name     string
		template string
		filePath string
		want     []string
	}{
		{
			name:     "file path placeholder",
			template: "python {file_path}",
			filePath: "/workspace/main.py",
			want:     []string{"python", "/workspace/main.py"},
		},
		{
			name:     "filename placeholder",
			template: "node {filename}",
			filePath: "/workspace/index.js",
			want:     []string{"node", "index.js"},
		},
		{
			name:     "output path strips extension",
			template: "{output_path}",
			filePath: "/workspace/main.go",
			want:     []string{"/workspace/main"},
		},
		{
			name:     "output path without extension",
			template: "{output_path}",
			filePath: "/workspace/main",
			want:     []string{"/workspace/main"},
		},
		{
			name:     "sh -c keeps rest as one argument",
			template: `sh -c "gcc {file_path} -o {output_path} && {output_path}"`,
			filePath: "/workspace/main.c",
			want:     []string{"sh", "-c", "gcc /workspace/main.c -o /workspace/main && /workspace/main"},
		},
		{
			name:     "sh -c with single quotes",
			template: `sh -c 'sh {file_path}'`,
			filePath: "/workspace/script.sh",
			want:     []string{"sh", "-c", "sh /workspace/script.sh"},
		},
		{
			name:     "sh -c unquoted",
			template: "sh -c echo hi",
			filePath: "/workspace/x.sh",
			want:     []string{"sh", "-c", "echo hi"},
		},
		{
			name:     "whitespace split",
			template: "java  -cp {output_path}   Main",
			filePath: "/workspace/Main.java",
			want:     []string{"java", "-cp", "/workspace/Main", "Main"},
		},
		{
			name:     "repeated placeholder",
			template: "cp {file_path} {file_path}.bak",
			filePath: "/workspace/a.py",
			want:     []string{"cp", "/workspace/a.py", "/workspace/a.py.bak"},
		},
		{
			name:     "empty template",
			template: "",
			filePath: "/workspace/a.py",
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandCommand(tt.template, tt.filePath))
		})
	}
}

func TestExpandCommandIdempotent(t *testing.T) {
	template := `sh -c "go run {file_path}"`
	first := ExpandCommand(template, "/workspace/main.go")
	second := ExpandCommand(template, "/workspace/main.go")
	assert.Equal(t, first, second)
}

func TestExpandRunCommand(t *testing.T) {
	r := testRegistry(t)

	argv, err := r.ExpandRunCommand("python", "/workspace/main.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "/workspace/main.py"}, argv)

	argv, err = r.ExpandRunCommand("bash", "/workspace/script.sh")
	require.NoError(t, err)
	assert.Equal(t, []string{"sh", "-c", "sh /workspace/script.sh"}, argv)

	_, err = r.ExpandRunCommand("cobol", "/workspace/x")
	assert.ErrorIs(t, err, ErrUnknownEnvironment)
}

func TestExpandCompileCommand(t *testing.T) {
	r := testRegistry(t)

	argv, err := r.ExpandCompileCommand("go", "/workspace/main.go")
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "build", "-o", "/workspace/main", "/workspace/main.go"}, argv)

	// No compile step declared.
	argv, err = r.ExpandCompileCommand("python", "/workspace/main.py")
	require.NoError(t, err)
	assert.Empty(t, argv)
}
