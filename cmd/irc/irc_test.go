package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/effectus/irkit/ir"
	"github.com/effectus/irkit/lint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runIRC(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeDocument(t *testing.T, dir, name string, root *ir.Node) string {
	t.Helper()
	doc, err := ir.NewDocument(root)
	require.NoError(t, err)
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRenderFragment(t *testing.T) {
	path := writeDocument(t, t.TempDir(), "greet.json", ir.Element("root", "p", nil,
		ir.Text("hi", "Hello, "),
		ir.Injector("name", "From.Local", ir.String, map[string]any{"path": "user.name"})))

	out, err := runIRC(t, "render", path, "--locals", `{"user":{"name":"Ada"}}`)
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello, Ada</p>\n", out)
}

func TestRenderYAMLPage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.yaml")
	yamlDoc := "id: root\nkind: element\ntag: h1\nchildren:\n  - id: t\n    kind: text\n    content: Title\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	out, err := runIRC(t, "render", path, "--page", "--title", "Docs", "--payload=false")
	require.NoError(t, err)
	assert.Contains(t, out, "<title>Docs</title>")
	assert.Contains(t, out, "<h1>Title</h1>")
	assert.NotContains(t, out, "<script")
}

func TestRenderErrors(t *testing.T) {
	_, err := runIRC(t, "render", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := writeDocument(t, t.TempDir(), "doc.json", ir.Text("t", "x"))
	_, err = runIRC(t, "render", path, "--locals", "[1, 2]")
	assert.ErrorContains(t, err, "--locals")

	_, err = runIRC(t, "render", path, "--env", "browser")
	assert.Error(t, err)
}

func TestLint(t *testing.T) {
	dir := t.TempDir()
	clean := writeDocument(t, dir, "clean.json", ir.Element("root", "p", nil, ir.Text("t", "fine")))
	broken := writeDocument(t, dir, "broken.json", ir.Operator("sum", "Op.Sum", ir.Integer))

	out, err := runIRC(t, "lint", clean)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = runIRC(t, "lint", clean, broken, "--format", "json")
	assert.Error(t, err)
	var issues []lint.Issue
	require.NoError(t, json.Unmarshal([]byte(out), &issues))
	require.NotEmpty(t, issues)
	assert.Equal(t, lint.CodeUnknownTag, issues[0].Code)
	assert.Equal(t, broken, issues[0].File)

	_, err = runIRC(t, "lint", clean, "--unsafe", "loud")
	assert.Error(t, err)
}

func TestGuard(t *testing.T) {
	dir := t.TempDir()
	sessionFile := filepath.Join(dir, "session.yaml")
	require.NoError(t, os.WriteFile(sessionFile, []byte("user:\n  roles: [admin, editor]\n"), 0o644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"allowed", []string{"--policy", "Policy.HasRole", "--args", `"editor"`, "--locals", "@" + sessionFile}, "allow\n"},
		{"denied", []string{"--policy", "Policy.HasRole", "--args", `"owner"`, "--locals", "@" + sessionFile}, "deny 403\n"},
		{"redirect", []string{"--policy", "Policy.Authenticated", "--redirect", "/login"}, "redirect /login\n"},
		{"status", []string{"--policy", "Policy.Authenticated", "--status", "401"}, "deny 401\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runIRC(t, append([]string{"guard"}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	_, err := runIRC(t, "guard")
	assert.Error(t, err)
}

func TestTags(t *testing.T) {
	out, err := runIRC(t, "tags")
	require.NoError(t, err)
	assert.Contains(t, out, "operators:\n")
	assert.Contains(t, out, "  Op.Add\n")
	assert.Contains(t, out, "  Policy.HasRole\n")
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Setenv("IRKIT_DSN", "")
	_, err := runIRC(t, "migrate", "status")
	assert.ErrorContains(t, err, "IRKIT_DSN")
}
