package registry

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/decisioncentral/decision"
	"github.com/liamcoop/decisioncentral/feel"
)

func readTestdata(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return data
}

func lastRecord(t *testing.T, o decision.Outcome) decision.Record {
	t.Helper()
	rec, ok := o.Last()
	require.True(t, ok, "outcome has no records")
	return rec
}

func TestRegisterAndGet(t *testing.T) {
	reg := New(NewMemoryStore(), nil)

	entry, err := reg.Register("premium", FormatWorkbook, readTestdata(t, "premium.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "premium", entry.Name)
	assert.Equal(t, FormatWorkbook, entry.Format)
	assert.NotZero(t, entry.ID)

	got, err := reg.Get("premium")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)

	status, outcome := got.Service.Decide(map[string]feel.Value{"Age": feel.Number(30)})
	require.True(t, status.OK(), status.Errors)
	assert.Equal(t, feel.Text("medium"), lastRecord(t, outcome).Result["Risk"])

	_, err = reg.Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRegisterReplaceKeepsID(t *testing.T) {
	reg := New(NewMemoryStore(), nil)

	first, err := reg.Register("svc", FormatWorkbook, readTestdata(t, "premium.yaml"))
	require.NoError(t, err)
	second, err := reg.Register("svc", FormatDMN, readTestdata(t, "loan.dmn"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, FormatDMN, second.Format)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, "Loan Approval", second.Service.Decision().Name)
}

func TestRegisterRejectsBadSources(t *testing.T) {
	store := NewMemoryStore()
	reg := New(store, nil)

	_, err := reg.Register("bad", FormatWorkbook, []byte("tables: []"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"no decision tables defined"}, verr.Errors)

	_, err = reg.Register("bad_table", FormatWorkbook, readTestdata(t, "premium.yaml"))
	require.ErrorAs(t, err, &verr)

	_, err = reg.Register("bad", Format("xlsx"), []byte("x"))
	require.ErrorAs(t, err, &verr)

	assert.Zero(t, reg.Len())
	records, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, records, "rejected sources are not persisted")
}

func TestDelete(t *testing.T) {
	store := NewMemoryStore()
	reg := New(store, nil)
	_, err := reg.Register("premium", FormatWorkbook, readTestdata(t, "premium.yaml"))
	require.NoError(t, err)

	require.NoError(t, reg.Delete("premium"))
	_, err = reg.Get("premium")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get("premium")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, reg.Delete("premium"), ErrNotFound)
}

func TestListIsSorted(t *testing.T) {
	reg := New(NewMemoryStore(), nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := reg.Register(name, FormatWorkbook, readTestdata(t, "premium.yaml"))
		require.NoError(t, err)
	}

	var names []string
	for _, e := range reg.List() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestLoadAll(t *testing.T) {
	store := NewMemoryStore()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(&Record{Name: "premium", Format: FormatWorkbook, Source: readTestdata(t, "premium.yaml"), UpdatedAt: at}))
	require.NoError(t, store.Save(&Record{Name: "loan", Format: FormatDMN, Source: readTestdata(t, "loan.dmn"), UpdatedAt: at}))
	require.NoError(t, store.Save(&Record{Name: "broken", Format: FormatWorkbook, Source: []byte("tables: ["), UpdatedAt: at}))

	reg := New(store, nil)
	var changed []string
	reg.OnChange(func(name string) { changed = append(changed, name) })

	loaded, err := reg.LoadAll()
	assert.Equal(t, 2, loaded)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "broken", verr.Name)

	assert.Equal(t, 2, reg.Len())
	e, err := reg.Get("loan")
	require.NoError(t, err)
	assert.Equal(t, at, e.UpdatedAt)
	assert.Equal(t, []string{"loan", "premium"}, changed)
}

func TestOnChange(t *testing.T) {
	reg := New(NewMemoryStore(), nil)
	var changed []string
	reg.OnChange(func(name string) { changed = append(changed, name) })

	_, err := reg.Register("premium", FormatWorkbook, readTestdata(t, "premium.yaml"))
	require.NoError(t, err)
	require.NoError(t, reg.Delete("premium"))
	_, _ = reg.Register("premium", FormatWorkbook, []byte("nope"))

	assert.Equal(t, []string{"premium", "premium"}, changed)
}

func TestConcurrentAccess(t *testing.T) {
	reg := New(NewMemoryStore(), nil)
	source := readTestdata(t, "premium.yaml")
	_, err := reg.Register("premium", FormatWorkbook, source)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := reg.Register("premium", FormatWorkbook, source)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			e, err := reg.Get("premium")
			if assert.NoError(t, err) {
				status, _ := e.Service.Decide(map[string]feel.Value{"Age": feel.Number(40)})
				assert.True(t, status.OK())
			}
		}()
	}
	wg.Wait()
}

// gatedStore holds Delete open until release is closed.
type gatedStore struct {
	*MemoryStore
	deleting chan struct{}
	release  chan struct{}
}

func (s *gatedStore) Delete(name string) error {
	close(s.deleting)
	<-s.release
	return s.MemoryStore.Delete(name)
}

func assertStoreMatches(t *testing.T, reg *Registry, store Store, name string) {
	t.Helper()
	_, inStore := store.Get(name)
	_, inRegistry := reg.Get(name)
	assert.Equal(t, inStore == nil, inRegistry == nil, "store and registry disagree about %s", name)
}

func TestRegisterWaitsForDelete(t *testing.T) {
	store := &gatedStore{MemoryStore: NewMemoryStore(), deleting: make(chan struct{}), release: make(chan struct{})}
	reg := New(store, nil)
	source := readTestdata(t, "premium.yaml")
	_, err := reg.Register("svc", FormatWorkbook, source)
	require.NoError(t, err)

	deleted := make(chan error, 1)
	go func() { deleted <- reg.Delete("svc") }()
	<-store.deleting

	registered := make(chan error, 1)
	go func() {
		_, err := reg.Register("svc", FormatWorkbook, source)
		registered <- err
	}()

	select {
	case <-registered:
		t.Fatal("register finished while a delete of the same name was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	require.NoError(t, <-deleted)
	require.NoError(t, <-registered)

	assertStoreMatches(t, reg, store, "svc")
	_, err = reg.Get("svc")
	assert.NoError(t, err, "the later register wins")
}

func TestConcurrentRegisterAndDelete(t *testing.T) {
	store := NewMemoryStore()
	reg := New(store, nil)
	source := readTestdata(t, "premium.yaml")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := reg.Register("svc", FormatWorkbook, source)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			if err := reg.Delete("svc"); err != nil {
				assert.ErrorIs(t, err, ErrNotFound)
			}
		}()
	}
	wg.Wait()

	assertStoreMatches(t, reg, store, "svc")
}

func TestFormatForFile(t *testing.T) {
	tests := []struct {
		file string
		want Format
		ok   bool
	}{
		{"a.yaml", FormatWorkbook, true},
		{"a.YML", FormatWorkbook, true},
		{"a.json", FormatWorkbook, true},
		{"a.dmn", FormatDMN, true},
		{"a.xml", FormatDMN, true},
		{"a.xlsx", "", false},
		{"README", "", false},
	}
	for _, tt := range tests {
		got, ok := FormatForFile(tt.file)
		assert.Equal(t, tt.want, got, tt.file)
		assert.Equal(t, tt.ok, ok, tt.file)
	}
}
