package cli

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/todosync/api/handler"
	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/internal/infrastructure/monitor"
	"github.com/fastygo/todosync/internal/middleware"
	"github.com/fastygo/todosync/internal/router"
	"github.com/fastygo/todosync/pkg/httpcontext"
	"github.com/fastygo/todosync/repository"
	"github.com/fastygo/todosync/repository/memory"
	authUC "github.com/fastygo/todosync/usecase/auth"
	listUC "github.com/fastygo/todosync/usecase/list"
	"github.com/fastygo/todosync/usecase/syncer"
)

func startServer(t *testing.T) (string, *memory.Lists) {
	t.Helper()
	lists := memory.NewLists()
	auth := authUC.New(memory.NewSessions(time.Hour), "cli-secret", nil)
	adapter := httpcontext.NewAdapter(time.Second)
	mon := monitor.New(time.Minute, nil, monitor.Probe{Name: "memory", Check: func(context.Context) error { return nil }})
	mon.Refresh()

	r := router.New(router.Handlers{
		Auth:   apiHandler.NewAuthHandler(auth, adapter, nil, time.Hour),
		List:   apiHandler.NewListHandler(listUC.New(lists, nil), adapter, nil),
		Health: apiHandler.NewHealthHandler(mon, adapter, nil),
	}, middleware.JWTAuth(auth, time.Second, nil))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &fasthttp.Server{Handler: r.Handler}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Shutdown() })
	return "http://" + ln.Addr().String(), lists
}

func deadAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "http://" + addr
}

func setupEnv(t *testing.T, remote string) {
	t.Helper()
	t.Setenv("LOCAL_STORE", "bolt")
	t.Setenv("LOCAL_PATH", filepath.Join(t.TempDir(), "todo.db"))
	t.Setenv("REMOTE_URL", remote)
	t.Setenv("REMOTE_TOKEN", "")
	t.Setenv("REMOTE_TIMEOUT", "2s")
	t.Setenv("OWNER_ID", "owner-1")
	t.Setenv("DEVICE_ID", "laptop")
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func serverRecords(t *testing.T, lists *memory.Lists) []repository.StoredRecord {
	t.Helper()
	records, _, err := lists.List(context.Background(), "owner-1")
	require.NoError(t, err)
	return records
}

func TestCommands_AgainstServer(t *testing.T) {
	url, lists := startServer(t)
	setupEnv(t, url)

	out, _, err := run(t, "login")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as owner-1")

	out, _, err = run(t, "add", "Buy", "milk", "--importance", "important")
	require.NoError(t, err)
	assert.Contains(t, out, "added")

	stored := serverRecords(t, lists)
	require.Len(t, stored, 1)
	assert.Equal(t, "Buy milk", stored[0].Text)
	assert.Equal(t, domain.ImportanceImportant, stored[0].Importance)
	assert.Equal(t, "laptop", stored[0].LastUpdatedBy)
	prefix := stored[0].ID.String()[:shortIDLen]

	out, _, err = run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Buy milk")
	assert.Contains(t, out, prefix)

	_, _, err = run(t, "done", prefix)
	require.NoError(t, err)
	stored = serverRecords(t, lists)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].IsDone)

	_, _, err = run(t, "edit", prefix, "--text", "Buy oat milk")
	require.NoError(t, err)
	assert.Equal(t, "Buy oat milk", serverRecords(t, lists)[0].Text)

	_, _, err = run(t, "rm", prefix)
	require.NoError(t, err)
	assert.Empty(t, serverRecords(t, lists))
}

func TestCommands_OfflineChangeIsUploadedLater(t *testing.T) {
	url, lists := startServer(t)
	setupEnv(t, url)
	_, _, err := run(t, "login")
	require.NoError(t, err)

	t.Setenv("REMOTE_URL", deadAddress(t))
	out, errOut, err := run(t, "add", "written offline", "--wait", "300ms")
	require.NoError(t, err)
	assert.Contains(t, out, "added")
	assert.Contains(t, errOut, "changes will be uploaded on the next run")
	assert.Empty(t, serverRecords(t, lists))

	t.Setenv("REMOTE_URL", url)
	out, _, err = run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "written offline")
	assert.NotContains(t, out, "unsynced changes")

	stored := serverRecords(t, lists)
	require.Len(t, stored, 1)
	assert.Equal(t, "written offline", stored[0].Text)
}

func TestCommands_ExportImport(t *testing.T) {
	url, lists := startServer(t)
	setupEnv(t, url)
	_, _, err := run(t, "login")
	require.NoError(t, err)
	_, _, err = run(t, "add", "first")
	require.NoError(t, err)
	_, _, err = run(t, "add", "second")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "backup.csv")
	out, _, err := run(t, "export", path)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 records")

	// A fresh device imports the backup.
	t.Setenv("LOCAL_PATH", filepath.Join(t.TempDir(), "other.db"))
	t.Setenv("DEVICE_ID", "phone")
	_, _, err = run(t, "login")
	require.NoError(t, err)
	out, _, err = run(t, "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 records")

	assert.Len(t, serverRecords(t, lists), 2)
}

func TestUnknownRecordIsReported(t *testing.T) {
	url, _ := startServer(t)
	setupEnv(t, url)
	_, _, err := run(t, "login")
	require.NoError(t, err)

	_, _, err = run(t, "done", "ffffffff")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestFileOptions_Format(t *testing.T) {
	opts := &FileOptions{}
	format, err := opts.format("list.JSON")
	require.NoError(t, err)
	assert.Equal(t, "json", format)

	_, err = opts.format("list.txt")
	assert.Error(t, err)

	opts.Format = "csv"
	format, err = opts.format("list.txt")
	require.NoError(t, err)
	assert.Equal(t, "csv", format)
}

func TestParseDeadline(t *testing.T) {
	d, err := parseDeadline("2025-04-15", nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-04-15", d.Format("2006-01-02"))

	_, err = parseDeadline("next tuesday", nil)
	assert.Error(t, err)

	fallback := time.Now()
	d, err = parseDeadline("", &fallback)
	require.NoError(t, err)
	assert.Same(t, &fallback, d)
}

func snapshotOf(showCompleted bool, records ...domain.Record) syncer.Snapshot {
	snap := syncer.Snapshot{ShowCompleted: showCompleted}
	for _, rec := range records {
		if rec.IsDone {
			snap.CompletedCount++
		}
		snap.Items = append(snap.Items, rec)
	}
	return snap
}

func TestRenderList(t *testing.T) {
	overdue := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	open := domain.NewRecord("water plants", domain.ImportanceImportant, &overdue, "")
	done := domain.NewRecord("call mom", domain.ImportanceUnimportant, nil, "")
	done.IsDone = true

	out := renderList(snapshotOf(true, open, done), true, time.Now())
	assert.Contains(t, out, "water plants")
	assert.Contains(t, out, "call mom")
	assert.Contains(t, out, open.ID.String()[:shortIDLen])
	assert.Contains(t, out, "due 2020-01-01")
	assert.Contains(t, out, "unsynced changes")
	assert.Contains(t, out, "1 done")

	empty := renderList(snapshotOf(false), false, time.Now())
	assert.Contains(t, empty, "nothing to do")
	assert.False(t, strings.Contains(empty, "unsynced"))
}
