package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/attrshm/pkg/schema"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func execute(ctx context.Context, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func recordPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "person.dat")
}

func TestSetThenRead(t *testing.T) {
	path := recordPath(t)

	out, err := execute(context.Background(), "-f", path, "-s", "30", "age")
	require.NoError(t, err)
	assert.Equal(t, "30\n", out)

	out, err = execute(context.Background(), "-f", path, "age")
	require.NoError(t, err)
	assert.Equal(t, "30\n", out)

	out, err = execute(context.Background(), "-f", path, "email")
	require.NoError(t, err)
	assert.Equal(t, "\n", out, "unset text prints empty")
}

func TestFileFromEnvironment(t *testing.T) {
	path := recordPath(t)
	t.Setenv("PERSONCTL_FILE", path)

	_, err := execute(context.Background(), "-s", "Alice", "name")
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestUnknownAttributeFails(t *testing.T) {
	path := recordPath(t)
	_, err := execute(context.Background(), "-f", path, "-s", "Bob", "name")
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = execute(context.Background(), "-f", path, "-s", "x", "nickname")
	assert.ErrorIs(t, err, schema.ErrUnknownAttribute)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestArgumentErrors(t *testing.T) {
	path := recordPath(t)

	_, err := execute(context.Background(), "-f", path)
	assert.ErrorIs(t, err, errMissingAttr)

	_, err = execute(context.Background(), "-f", path, "-w", "-s", "1", "age")
	assert.Error(t, err)

	_, err = execute(context.Background(), "-f", path, "age", "name")
	assert.Error(t, err)

	_, err = execute(context.Background(), "-f", path, "--log-level", "loud", "age")
	assert.Error(t, err)
}

func TestDebug(t *testing.T) {
	path := recordPath(t)

	_, err := execute(context.Background(), "-f", path, "debug")
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist, "debug never creates the record")

	_, err = execute(context.Background(), "-f", path, "-s", "Carol", "name")
	require.NoError(t, err)
	out, err := execute(context.Background(), "-f", path, "debug")
	require.NoError(t, err)
	assert.Contains(t, out, `value:"Carol"`)
	assert.Contains(t, out, "slot:0 id:0 state:empty")
}

func TestWatchReportsChanges(t *testing.T) {
	path := recordPath(t)
	var out syncBuffer

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		cmd := newRootCmd()
		cmd.SetArgs([]string{"-f", path, "-w"})
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		done <- cmd.ExecuteContext(ctx)
	}()

	require.Eventually(t, func() bool { return out.String() == "watching...\n" },
		5*time.Second, 10*time.Millisecond)

	set, err := execute(context.Background(), "-f", path, "-s", "Alice", "name")
	require.NoError(t, err)
	assert.Equal(t, "Alice\n", set)

	want := fmt.Sprintf("watching...\nname: 'Alice' from '%d'\n", os.Getpid())
	require.Eventually(t, func() bool { return out.String() == want },
		5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}

	dump, err := execute(context.Background(), "-f", path, "debug")
	require.NoError(t, err)
	assert.NotContains(t, dump, "state:alive", "slot released on exit")
}
