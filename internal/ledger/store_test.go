package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mython/internal/core"
	"mython/internal/log"
	"mython/internal/storage"
	"mython/internal/storage/memory"
)

func tx(id string) core.Transaction {
	return core.Transaction{
		ID:     id,
		Date:   core.NewDate(2024, 3, 5),
		Kind:   core.Expense,
		Amount: decimal.NewFromInt(10),
		Label:  "item " + id,
		Mode:   core.ModeCash,
	}
}

func ids(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}

func openEmpty(t *testing.T) (*Store, *memory.Store) {
	t.Helper()
	kv := memory.New()
	s, err := Open(context.Background(), kv, WithLogger(log.Discard()))
	require.NoError(t, err)
	return s, kv
}

func TestAddPrependsAndPersists(t *testing.T) {
	ctx := context.Background()
	s, kv := openEmpty(t)

	require.NoError(t, s.Add(ctx, tx("a")))
	require.NoError(t, s.Add(ctx, tx("b")))

	assert.Equal(t, []string{"b", "a"}, ids(s.Snapshot()))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, kv.Writes())

	raw, err := kv.Get(ctx, DefaultKey)
	require.NoError(t, err)
	persisted, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(persisted))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s, kv := openEmpty(t)
	for _, id := range []string{"c", "b", "a"} {
		require.NoError(t, s.Add(ctx, tx(id)))
	}

	ok, err := s.Delete(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "c"}, ids(s.Snapshot()))

	writes := kv.Writes()
	ok, err = s.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, writes, kv.Writes(), "no-op delete must not write")
}

func TestReorder(t *testing.T) {
	ctx := context.Background()
	s, kv := openEmpty(t)
	for _, id := range []string{"c", "b", "a"} {
		require.NoError(t, s.Add(ctx, tx(id)))
	}
	// list is a, b, c

	ok, err := s.Reorder(ctx, 1, Up)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"b", "a", "c"}, ids(s.Snapshot()))

	ok, err = s.Reorder(ctx, 1, Down)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"b", "c", "a"}, ids(s.Snapshot()))

	writes := kv.Writes()
	for _, tc := range []struct {
		index int
		dir   Direction
	}{
		{0, Up}, {2, Down}, {-1, Down}, {3, Up}, {99, Down},
	} {
		ok, err := s.Reorder(ctx, tc.index, tc.dir)
		require.NoError(t, err)
		assert.False(t, ok, "index %d %s", tc.index, tc.dir)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids(s.Snapshot()))
	assert.Equal(t, writes, kv.Writes())
}

func TestSnapshotIsACopy(t *testing.T) {
	s, _ := openEmpty(t)
	require.NoError(t, s.Add(context.Background(), tx("a")))

	snap := s.Snapshot()
	snap[0].ID = "mutated"
	assert.Equal(t, "a", s.Snapshot()[0].ID)
}

func TestOpenRehydratesInOrder(t *testing.T) {
	ctx := context.Background()
	want := []core.Transaction{
		{ID: "z", Date: core.NewDate(2024, 3, 1), Kind: core.Income, Amount: decimal.RequireFromString("1500"), Label: core.IncomeLabel(2), Mode: core.ModeNone},
		{ID: "y", Date: core.NewDate(2024, 2, 29), Kind: core.Expense, Amount: decimal.RequireFromString("12.5"), Label: "Groceries", Mode: core.ModeUPI},
		{ID: "x", Date: core.NewDate(2023, 12, 31), Kind: core.Expense, Amount: decimal.RequireFromString("0.05"), Label: "Tea, milk", Mode: core.ModeCash},
	}
	payload, err := Encode(want)
	require.NoError(t, err)

	s, err := Open(ctx, memory.Seed(DefaultKey, payload), WithLogger(log.Discard()))
	require.NoError(t, err)

	got := s.Snapshot()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Date.String(), got[i].Date.String(), "record %d", i)
		assert.Equal(t, want[i].Kind, got[i].Kind, "record %d", i)
		assert.Equal(t, want[i].Label, got[i].Label, "record %d", i)
		assert.Equal(t, want[i].Mode, got[i].Mode, "record %d", i)
		assert.True(t, want[i].Amount.Equal(got[i].Amount), "record %d amount %s != %s", i, got[i].Amount, want[i].Amount)
	}
}

func TestOpenCorruptStateStartsEmpty(t *testing.T) {
	cases := map[string]string{
		"not json":     `{{{`,
		"object":       `{"id":"1"}`,
		"unknown type": `[{"id":"1","date":"2024-03-05","type":"LOAN","amount":1,"particulars":"x","mode":"CASH"}]`,
		"negative":     `[{"id":"1","date":"2024-03-05","type":"EXPENSE","amount":-1,"particulars":"x","mode":"CASH"}]`,
		"bad date":     `[{"id":"1","date":"yesterday","type":"EXPENSE","amount":1,"particulars":"x","mode":"CASH"}]`,
		"missing id":   `[{"date":"2024-03-05","type":"EXPENSE","amount":1,"particulars":"x","mode":"CASH"}]`,
		"duplicate id": `[{"id":"1","date":"2024-03-05","type":"EXPENSE","amount":1,"particulars":"x","mode":"CASH"},{"id":"1","date":"2024-03-06","type":"EXPENSE","amount":2,"particulars":"y","mode":"UPI"}]`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := Open(context.Background(), memory.Seed(DefaultKey, []byte(payload)), WithLogger(log.Discard()))
			require.NoError(t, err)
			assert.Equal(t, 0, s.Len())
		})
	}
}

func TestOpenCustomKey(t *testing.T) {
	payload, err := Encode([]core.Transaction{tx("a")})
	require.NoError(t, err)

	s, err := Open(context.Background(), memory.Seed("other", payload), WithKey("other"), WithLogger(log.Discard()))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "other", s.Key())
}

type failingKV struct {
	getErr error
	setErr error
}

func (f failingKV) Get(context.Context, string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return nil, storage.ErrNotFound
}
func (f failingKV) Set(context.Context, string, []byte) error { return f.setErr }
func (f failingKV) Close() error                              { return nil }

func TestOpenBackendError(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := Open(context.Background(), failingKV{getErr: boom}, WithLogger(log.Discard()))
	assert.ErrorIs(t, err, boom)
}

func TestPersistFailureKeepsMemory(t *testing.T) {
	boom := errors.New("disk full")
	s, err := Open(context.Background(), failingKV{setErr: boom}, WithLogger(log.Discard()))
	require.NoError(t, err)

	var events []Event
	s.Subscribe(func(e Event) { events = append(events, e) })

	err = s.Add(context.Background(), tx("a"))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrNotPersisted)
	assert.Equal(t, 1, s.Len())
	assert.Len(t, events, 1)
}

func TestPersistSurvivesCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mython.db")
	kv, err := storage.OpenSQLite(path, log.Discard())
	require.NoError(t, err)
	defer kv.Close()

	s, err := Open(context.Background(), kv, WithLogger(log.Discard()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Add(ctx, tx("a")))
	require.NoError(t, s.Add(ctx, tx("b")))
	ok, err := s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	reopened, err := Open(context.Background(), kv, WithLogger(log.Discard()))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(reopened.Snapshot()))
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s, _ := openEmpty(t)

	var first, second []Event
	cancel := s.Subscribe(func(e Event) { first = append(first, e) })
	s.Subscribe(func(e Event) { second = append(second, e) })

	require.NoError(t, s.Add(ctx, tx("a")))
	require.NoError(t, s.Add(ctx, tx("b")))
	_, _ = s.Reorder(ctx, 0, Down)
	_, _ = s.Reorder(ctx, 0, Up) // no-op
	_, _ = s.Delete(ctx, "nope") // no-op

	cancel()
	cancel() // idempotent
	_, _ = s.Delete(ctx, "a")

	assert.Equal(t, []Event{
		{Op: OpAdd, ID: "a", Index: 0, Len: 1},
		{Op: OpAdd, ID: "b", Index: 0, Len: 2},
		{Op: OpReorder, ID: "b", Index: 1, Len: 2},
	}, first)
	require.Len(t, second, 4)
	assert.Equal(t, Event{Op: OpDelete, ID: "a", Index: 0, Len: 1}, second[3])
}

func TestListenerMayReadStore(t *testing.T) {
	s, _ := openEmpty(t)
	var seen int
	s.Subscribe(func(Event) { seen = s.Len() })
	require.NoError(t, s.Add(context.Background(), tx("a")))
	assert.Equal(t, 1, seen)
}

func TestConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	s, kv := openEmpty(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Add(ctx, tx(string(rune('A'+i%26))+string(rune('a'+i/26))))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
	raw, err := kv.Get(ctx, DefaultKey)
	require.NoError(t, err)
	persisted, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, ids(s.Snapshot()), ids(persisted), "last write must match memory")
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection(" UP ")
	require.NoError(t, err)
	assert.Equal(t, Up, d)
	d, err = ParseDirection("down")
	require.NoError(t, err)
	assert.Equal(t, Down, d)
	_, err = ParseDirection("left")
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestEncodeEmpty(t *testing.T) {
	b, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	txs, err := Decode([]byte("[]"))
	require.NoError(t, err)
	assert.NotNil(t, txs)
	assert.Empty(t, txs)
}
