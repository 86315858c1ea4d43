package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/effectus/irkit/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc(t *testing.T, text string) *ir.Document {
	t.Helper()
	doc, err := ir.NewDocument(ir.Element("root", "p", nil, ir.Text("t", text)))
	require.NoError(t, err)
	return doc
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "home")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "home", sampleDoc(t, "hello")))
	require.NoError(t, s.Put(ctx, "admin/panel", sampleDoc(t, "secret")))

	doc, err := s.Get(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Root.Children[0].Content)

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin/panel", "home"}, names)

	require.NoError(t, s.Put(ctx, "home", sampleDoc(t, "updated")))
	doc, err = s.Get(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, "updated", doc.Root.Children[0].Content)

	require.NoError(t, s.Delete(ctx, "home"))
	assert.ErrorIs(t, s.Delete(ctx, "home"), ErrNotFound)

	assert.ErrorIs(t, s.Put(ctx, "../escape", sampleDoc(t, "x")), ErrInvalidName)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestDirStore(t *testing.T) {
	d, err := NewDir(t.TempDir(), nil)
	require.NoError(t, err)
	exerciseStore(t, d)
}

func TestDirStoreReadsYAML(t *testing.T) {
	root := t.TempDir()
	yamlDoc := `
v: "1"
id: root
kind: element
tag: h1
children:
  - v: "1"
    id: t
    kind: text
    content: from yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "title.yaml"), []byte(yamlDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignored"), 0o644))

	d, err := NewDir(root, nil)
	require.NoError(t, err)

	doc, err := d.Get(context.Background(), "title")
	require.NoError(t, err)
	assert.Equal(t, "from yaml", doc.Root.Children[0].Content)

	names, err := d.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, names)
}

func TestDirStoreWatchInvalidatesCache(t *testing.T) {
	root := t.TempDir()
	d, err := NewDir(root, nil)
	require.NoError(t, err)
	require.NoError(t, d.Put(context.Background(), "page", sampleDoc(t, "one")))

	doc, err := d.Get(context.Background(), "page")
	require.NoError(t, err)
	assert.Equal(t, "one", doc.Root.Children[0].Content)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var changed []string
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = d.Watch(ctx, func(name string) {
			mu.Lock()
			changed = append(changed, name)
			mu.Unlock()
		})
	}()
	<-ready

	data, err := sampleDoc(t, "two").MarshalJSON()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		// rewrite until the watcher has registered and observed a change
		_ = os.WriteFile(filepath.Join(root, "page.json"), data, 0o644)
		mu.Lock()
		defer mu.Unlock()
		return len(changed) > 0
	}, 5*time.Second, 50*time.Millisecond)

	doc, err = d.Get(context.Background(), "page")
	require.NoError(t, err)
	assert.Equal(t, "two", doc.Root.Children[0].Content)
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"home", "admin/panel", "v1.2-x_y"} {
		assert.NoError(t, ValidateName(name), name)
	}
	for _, name := range []string{"", "/abs", "a/../b", "..", ".hidden"} {
		assert.ErrorIs(t, ValidateName(name), ErrInvalidName, name)
	}
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open(context.Background(), Config{Kind: "tape"}, nil)
	assert.Error(t, err)

	s, err := Open(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
}
