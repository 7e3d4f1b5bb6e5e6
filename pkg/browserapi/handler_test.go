package browserapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheinberglab/fleet-gateway/pkg/logger"
	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

type fakeEvaluator struct {
	result string
	err    error
}

func (f fakeEvaluator) Eval(ctx context.Context, script string, timeout time.Duration) (string, error) {
	return f.result, f.err
}

type fakeRegistry struct {
	link      Evaluator
	ensureErr error
	added     []models.Device
	addresses []string
}

func (f *fakeRegistry) Ensure(ctx context.Context, address string) (Evaluator, error) {
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}

	return f.link, nil
}

func (f *fakeRegistry) Add(ctx context.Context, address, displayName string) (models.Device, error) {
	d := models.Device{Address: address, DisplayName: displayName}
	f.added = append(f.added, d)

	return d, nil
}

func (f *fakeRegistry) Addresses() []string { return f.addresses }

type fakeStore struct {
	addedDevice   models.Device
	addErr        error
	upsertedAddrs []string
	columns       []string
	rows          [][]interface{}
	queryErr      error
}

func (f *fakeStore) AddDevice(ctx context.Context, address, displayName string) (models.Device, error) {
	return f.addedDevice, f.addErr
}

func (f *fakeStore) UpsertSubjectOptions(ctx context.Context, address, csvOptions string) error {
	f.upsertedAddrs = append(f.upsertedAddrs, address)
	return nil
}

func (f *fakeStore) Query(ctx context.Context, sql string) ([]string, [][]interface{}, error) {
	return f.columns, f.rows, f.queryErr
}

type fakeStatusLookup struct {
	entries map[models.StatusKey]models.StatusEntry
}

func (f fakeStatusLookup) Get(key models.StatusKey) (models.StatusEntry, bool) {
	e, ok := f.entries[key]
	return e, ok
}

func allowAll(string) error { return nil }

func denyAll(string) error { return errors.New("query failed the read-only safety filter") }

func collect(t *testing.T) (func(models.BrowserFrame), *[]models.BrowserFrame) {
	t.Helper()

	var frames []models.BrowserFrame
	return func(f models.BrowserFrame) { frames = append(frames, f) }, &frames
}

func TestHandleMessageEsscmdRepliesCmdOk(t *testing.T) {
	reg := &fakeRegistry{link: fakeEvaluator{result: "1"}}
	h := New(reg, &fakeStore{}, fakeStatusLookup{}, allowAll, logger.NewTestLogger())

	reply, frames := collect(t)
	h.HandleMessage(context.Background(), []byte(`{"msg_type":"esscmd","ip":"10.0.0.1","msg":"pump_voltage"}`), reply)

	require.Len(t, *frames, 1)
	assert.Equal(t, "cmd_ok", (*frames)[0].Type)
	assert.Equal(t, "1", (*frames)[0].Result)
}

func TestHandleMessageGitcmdWrapsScript(t *testing.T) {
	var seenScript string
	reg := &fakeRegistry{link: scriptCapturingEvaluator{captured: &seenScript}}
	h := New(reg, &fakeStore{}, fakeStatusLookup{}, allowAll, logger.NewTestLogger())

	reply, _ := collect(t)
	h.HandleMessage(context.Background(), []byte(`{"msg_type":"gitcmd","ip":"10.0.0.1","msg":"status"}`), reply)

	assert.Equal(t, "send git {status}", seenScript)
}

type scriptCapturingEvaluator struct {
	captured *string
}

func (s scriptCapturingEvaluator) Eval(ctx context.Context, script string, timeout time.Duration) (string, error) {
	*s.captured = script
	return "ok", nil
}

func TestHandleMessageEsscmdRepliesCmdErrorOnEvalFailure(t *testing.T) {
	reg := &fakeRegistry{link: fakeEvaluator{err: errors.New("boom")}}
	h := New(reg, &fakeStore{}, fakeStatusLookup{}, allowAll, logger.NewTestLogger())

	reply, frames := collect(t)
	h.HandleMessage(context.Background(), []byte(`{"msg_type":"esscmd","ip":"10.0.0.1","msg":"bad"}`), reply)

	require.Len(t, *frames, 1)
	assert.Equal(t, "cmd_error", (*frames)[0].Type)
}

func TestHandleMessageSQLQueryRejectsUnsafeQuery(t *testing.T) {
	h := New(&fakeRegistry{}, &fakeStore{}, fakeStatusLookup{}, denyAll, logger.NewTestLogger())

	reply, frames := collect(t)
	h.HandleMessage(context.Background(), []byte(`{"msg_type":"sql_query","msg":"DELETE FROM devices"}`), reply)

	require.Len(t, *frames, 1)
	assert.Equal(t, "error", (*frames)[0].Type)
	assert.NotEmpty(t, (*frames)[0].Message)
}

func TestHandleMessageSQLQueryCoercesDatesAndNumbers(t *testing.T) {
	ts := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		columns: []string{"created_at", "value", "label"},
		rows:    [][]interface{}{{ts, "12.5", "hello"}},
	}
	h := New(&fakeRegistry{}, store, fakeStatusLookup{}, allowAll, logger.NewTestLogger())

	reply, frames := collect(t)
	h.HandleMessage(context.Background(), []byte(`{"msg_type":"sql_query","msg":"SELECT 1"}`), reply)

	require.Len(t, *frames, 1)
	result := (*frames)[0].Result.(tableResult)
	assert.Equal(t, "2026-03-05", result.Rows[0][0])
	assert.Equal(t, 12.5, result.Rows[0][1])
	assert.Equal(t, "hello", result.Rows[0][2])
}

func TestHandleMessageAddSubjectEnsuresTestFirstAndAppendsNew(t *testing.T) {
	lookup := fakeStatusLookup{entries: map[models.StatusKey]models.StatusEntry{
		{Host: "10.0.0.1", Source: "ess", Type: "animalOptions"}: {Value: "sally,Momo,sally"},
	}}
	reg := &fakeRegistry{addresses: []string{"10.0.0.1"}}
	store := &fakeStore{}
	h := New(reg, store, lookup, allowAll, logger.NewTestLogger())

	reply, frames := collect(t)
	h.HandleMessage(context.Background(), []byte(`{"msg_type":"Addsubject","ip":"10.0.0.1","msg":"George"}`), reply)

	require.Len(t, *frames, 1)
	assert.Equal(t, "test,sally,Momo,George", (*frames)[0].Result)
	assert.Equal(t, []string{"10.0.0.1"}, store.upsertedAddrs)
}

func TestHandleMessageUnrecognizedMsgType(t *testing.T) {
	h := New(&fakeRegistry{}, &fakeStore{}, fakeStatusLookup{}, allowAll, logger.NewTestLogger())

	reply, frames := collect(t)
	h.HandleMessage(context.Background(), []byte(`{"msg_type":"bogus"}`), reply)

	require.Len(t, *frames, 1)
	assert.Equal(t, "error", (*frames)[0].Type)
}
