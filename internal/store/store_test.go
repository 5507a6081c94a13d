package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ridekit/internal/store"
)

type mockQuerier struct {
	mock.Mock
}

func (m *mockQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	a := m.Called(sql, args)
	if a.Get(0) == nil {
		return nil, a.Error(1)
	}
	return a.Get(0).(pgx.Rows), a.Error(1)
}

// fakeRows serves fixed rows through the pgx.Rows interface
type fakeRows struct {
	rows [][]any
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("INSERT 0 0") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.err != nil || r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.pos-1], nil
}

func sqlContains(fragment string) any {
	return mock.MatchedBy(func(q string) bool { return strings.Contains(q, fragment) })
}

func TestTripStore_Generate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	from := time.Date(2026, 3, 2, 23, 30, 0, 0, time.FixedZone("UTC+3", 3*3600))
	dep := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)

	t.Run("returns new trips", func(t *testing.T) {
		t.Parallel()
		db := new(mockQuerier)
		db.On("Query", sqlContains("ON CONFLICT (template_id, departure_at) DO NOTHING"), []any{"2026-03-02", 7}).
			Return(&fakeRows{rows: [][]any{{"t1", "r1", dep}, {"t2", "r1", dep.Add(2 * time.Hour)}}}, nil).Once()

		trips, err := store.NewTripStore(db).Generate(ctx, from, 7)
		require.NoError(t, err)
		assert.Equal(t, []store.Trip{
			{ID: "t1", RouteID: "r1", DepartureAt: dep},
			{ID: "t2", RouteID: "r1", DepartureAt: dep.Add(2 * time.Hour)},
		}, trips)
		db.AssertExpectations(t)
	})

	t.Run("rerun inserts nothing", func(t *testing.T) {
		t.Parallel()
		db := new(mockQuerier)
		db.On("Query", mock.Anything, mock.Anything).Return(&fakeRows{}, nil).Once()

		trips, err := store.NewTripStore(db).Generate(ctx, from, 7)
		require.NoError(t, err)
		assert.Empty(t, trips)
	})

	t.Run("non positive window skips the query", func(t *testing.T) {
		t.Parallel()
		db := new(mockQuerier)

		trips, err := store.NewTripStore(db).Generate(ctx, from, 0)
		require.NoError(t, err)
		assert.Nil(t, trips)
		db.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	})

	t.Run("query error", func(t *testing.T) {
		t.Parallel()
		db := new(mockQuerier)
		db.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()

		_, err := store.NewTripStore(db).Generate(ctx, from, 1)
		assert.ErrorContains(t, err, "timeout")
	})
}

func TestNotificationStore_InsertMany(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	recipients := []store.Recipient{
		{NotificationID: "11111111-1111-1111-1111-111111111111", UserID: "u1"},
		{NotificationID: "22222222-2222-2222-2222-222222222222", UserID: "u2"},
	}

	t.Run("passes recipients as arrays", func(t *testing.T) {
		t.Parallel()
		db := new(mockQuerier)
		db.On("Query", sqlContains("unnest($1::uuid[], $2::text[])"), []any{
			[]string{recipients[0].NotificationID, recipients[1].NotificationID},
			[]string{"u1", "u2"},
			"Trip delayed", "Departure moved by 10 minutes",
			json.RawMessage(`{}`),
		}).Return(&fakeRows{rows: [][]any{{recipients[1].NotificationID, "u2"}}}, nil).Once()

		inserted, err := store.NewNotificationStore(db).InsertMany(ctx, store.NewNotification{
			Title:   "Trip delayed",
			Message: "Departure moved by 10 minutes",
		}, recipients)
		require.NoError(t, err)
		assert.Equal(t, []store.Recipient{recipients[1]}, inserted)
		db.AssertExpectations(t)
	})

	t.Run("no recipients", func(t *testing.T) {
		t.Parallel()
		inserted, err := store.NewNotificationStore(new(mockQuerier)).InsertMany(ctx, store.NewNotification{}, nil)
		require.NoError(t, err)
		assert.Nil(t, inserted)
	})

	t.Run("invalid data", func(t *testing.T) {
		t.Parallel()
		_, err := store.NewNotificationStore(new(mockQuerier)).InsertMany(ctx, store.NewNotification{
			Data: json.RawMessage(`{`),
		}, recipients)
		assert.Error(t, err)
	})
}
