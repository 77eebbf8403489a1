package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvex/runbook/pkg/schema"
)

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	l, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return l
}

func sampleWorkflow(name string) *schema.Workflow {
	return &schema.Workflow{
		ID:   "wf-" + name,
		Name: name,
		Steps: []schema.Step{
			{
				ID:      "s1",
				Kind:    schema.StepKindCommand,
				Command: &schema.CommandSpec{Command: "true"},
			},
		},
	}
}

func TestLibrary_SaveGetDelete(t *testing.T) {
	l := newTestLibrary(t)

	require.NoError(t, l.Save(sampleWorkflow("deploy")))
	assert.True(t, l.Has("deploy"))

	wf, err := l.Get("deploy")
	require.NoError(t, err)
	assert.Equal(t, "wf-deploy", wf.ID)

	require.NoError(t, l.Delete("deploy"))
	assert.False(t, l.Has("deploy"))

	_, err = l.Get("deploy")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeWorkflowNotFound, schema.ErrCode(err))

	err = l.Delete("deploy")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeWorkflowNotFound, schema.ErrCode(err))
}

func TestLibrary_SavePersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir, nil)
	require.NoError(t, err)
	require.NoError(t, l.Save(sampleWorkflow("backup")))

	reopened, err := New(dir, nil)
	require.NoError(t, err)
	require.True(t, reopened.Has("backup"))

	wf, err := reopened.Get("backup")
	require.NoError(t, err)
	assert.Equal(t, "wf-backup", wf.ID)
	require.Len(t, wf.Steps, 1)
	assert.Equal(t, schema.StepKindCommand, wf.Steps[0].Kind)
}

func TestLibrary_ListSorted(t *testing.T) {
	l := newTestLibrary(t)

	require.NoError(t, l.Save(sampleWorkflow("zeta")))
	require.NoError(t, l.Save(sampleWorkflow("alpha")))
	require.NoError(t, l.Save(sampleWorkflow("mid")))

	names := make([]string, 0, 3)
	for _, wf := range l.List() {
		names = append(names, wf.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
	assert.Equal(t, 3, l.Count())
}

func TestLibrary_SkipsMalformedFiles(t *testing.T) {
	dir := t.TempDir()

	good := `
id: wf-good
name: good
steps:
  - id: s1
    kind: command
    command:
      command: "true"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(good), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("steps: [unclosed"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a workflow"), 0o644))

	l, err := New(dir, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, l.Count())
	assert.True(t, l.Has("good"))
}

func TestLibrary_RejectsUnknownStepKind(t *testing.T) {
	dir := t.TempDir()

	bad := `
id: wf-bad
name: bad
steps:
  - id: s1
    kind: teleport
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(bad), 0o644))

	l, err := New(dir, nil)
	require.NoError(t, err)
	assert.False(t, l.Has("bad"))
	assert.Equal(t, 0, l.Count())
}

func TestLibrary_LoadsJSONDefinitions(t *testing.T) {
	dir := t.TempDir()

	def := `{
  "id": "wf-json",
  "name": "from-json",
  "steps": [
    {"id": "s1", "kind": "command", "command": {"command": "true"}}
  ]
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "from-json.json"), []byte(def), 0o644))

	l, err := New(dir, nil)
	require.NoError(t, err)
	require.True(t, l.Has("from-json"))
}

func TestLibrary_DuplicateNamesKeepFirst(t *testing.T) {
	dir := t.TempDir()

	def := `
id: wf-first
name: twin
steps:
  - id: s1
    kind: command
    command:
      command: "true"
`
	second := `
id: wf-second
name: twin
steps:
  - id: s1
    kind: command
    command:
      command: "true"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(def), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(second), 0o644))

	l, err := New(dir, nil)
	require.NoError(t, err)
	require.Equal(t, 1, l.Count())

	wf, err := l.Get("twin")
	require.NoError(t, err)
	assert.Equal(t, "wf-first", wf.ID)
}

func TestLibrary_SanitizesFileNames(t *testing.T) {
	l := newTestLibrary(t)

	require.NoError(t, l.Save(sampleWorkflow("release/prod v2")))

	entries, err := os.ReadDir(l.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "release-prod-v2.yaml", entries[0].Name())
}
