package harvest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervosys/chasm/internal/harvest"
	"github.com/nervosys/chasm/internal/provider"
	"github.com/nervosys/chasm/testutil"
)

// fakeAdapter serves canned records keyed by source URI.
type fakeAdapter struct {
	id      string
	sources []provider.SourceLocation
	records map[string][]provider.SessionRecord
	fail    map[string]error
}

func (f *fakeAdapter) ID() string { return f.id }

func (f *fakeAdapter) Discover(ctx context.Context) ([]provider.SourceLocation, error) {
	return f.sources, nil
}

func (f *fakeAdapter) Extract(ctx context.Context, loc provider.SourceLocation) ([]provider.SessionRecord, error) {
	if err := f.fail[loc.URI]; err != nil {
		return nil, &provider.ExtractionError{Provider: f.id, Source: loc.URI, Err: err}
	}
	return f.records[loc.URI], nil
}

func newFake(id string) *fakeAdapter {
	return &fakeAdapter{
		id:      id,
		records: make(map[string][]provider.SessionRecord),
		fail:    make(map[string]error),
	}
}

func (f *fakeAdapter) addSource(uri, workspace string, records ...provider.SessionRecord) {
	f.sources = append(f.sources, provider.SourceLocation{
		Provider: f.id, URI: uri, WorkspaceHint: workspace,
	})
	f.records[uri] = records
}

func TestRunHarvestsAllProviders(t *testing.T) {
	st := testutil.OpenStore(t)
	reg := provider.NewRegistry()

	a := newFake("alpha")
	a.addSource("/alpha/one.json", "/proj/api", testutil.Conversation("a-1"))
	b := newFake("beta")
	b.addSource("/beta/one.json", "", testutil.Conversation("b-1"), testutil.Conversation("b-2"))
	require.NoError(t, reg.Register(a))
	require.NoError(t, reg.Register(b))

	runner := harvest.NewRunner(st, reg, 3)
	summary, err := runner.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Equal(t, 3, summary.Created)
	require.Zero(t, summary.Failed)

	sessions, err := st.ListSessions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	// The hinted source got a workspace; the unhinted ones did not.
	workspaces, err := st.ListWorkspaces(context.Background())
	require.NoError(t, err)
	require.Len(t, workspaces, 1)
	require.Equal(t, "/proj/api", workspaces[0].Path)
	require.Equal(t, "api", workspaces[0].Name)
}

func TestRunIsIdempotent(t *testing.T) {
	st := testutil.OpenStore(t)
	reg := provider.NewRegistry()

	a := newFake("alpha")
	a.addSource("/alpha/one.json", "", testutil.Conversation("a-1"))
	require.NoError(t, reg.Register(a))

	runner := harvest.NewRunner(st, reg, 3)
	_, err := runner.Run(context.Background(), nil)
	require.NoError(t, err)
	version := st.CurrentVersion()

	summary, err := runner.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, summary.Created)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, version, st.CurrentVersion())
}

func TestRunContinuesPastFailedSources(t *testing.T) {
	st := testutil.OpenStore(t)
	reg := provider.NewRegistry()

	a := newFake("alpha")
	a.addSource("/alpha/bad.json", "")
	a.fail["/alpha/bad.json"] = errors.New("corrupt json")
	a.addSource("/alpha/good.json", "", testutil.Conversation("a-1"))
	require.NoError(t, reg.Register(a))

	runner := harvest.NewRunner(st, reg, 3)
	summary, err := runner.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Equal(t, 1, summary.Created)
	require.Equal(t, 1, summary.Failed)

	var failed *harvest.SourceResult
	for i := range summary.Sources {
		if summary.Sources[i].Err != nil {
			failed = &summary.Sources[i]
		}
	}
	require.NotNil(t, failed)
	require.Equal(t, "/alpha/bad.json", failed.URI)

	var exErr *provider.ExtractionError
	require.ErrorAs(t, failed.Err, &exErr)
}

func TestRunSkipsEmptyRecords(t *testing.T) {
	st := testutil.OpenStore(t)
	reg := provider.NewRegistry()

	a := newFake("alpha")
	a.addSource("/alpha/empty.json", "", provider.SessionRecord{Provider: "alpha", NativeID: "empty"})
	require.NoError(t, reg.Register(a))

	runner := harvest.NewRunner(st, reg, 3)
	summary, err := runner.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Zero(t, summary.Failed)

	sessions, err := st.ListSessions(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestRunRejectsUnknownProvider(t *testing.T) {
	st := testutil.OpenStore(t)
	runner := harvest.NewRunner(st, provider.NewRegistry(), 3)

	_, err := runner.Run(context.Background(), []string{"nope"})
	require.Error(t, err)
}
