package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/events"
	"rollcall/internal/persist"
	"rollcall/internal/store"
)

type flakyKV struct {
	*store.Memory
	failing bool
}

func (f *flakyKV) Write(ctx context.Context, entries ...store.Entry) error {
	if f.failing {
		return errors.New("disk full")
	}
	return f.Memory.Write(ctx, entries...)
}

func TestMark_Overwrites(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, store.NewMemory(), nil)

	require.NoError(t, s.Mark(ctx, "2024-01-01", "s1", Present))
	require.NoError(t, s.Mark(ctx, "2024-01-01", "s1", Absent))

	assert.Equal(t, Absent, s.StatusOf("2024-01-01", "s1"))
	assert.Equal(t, map[string]Status{"s1": Absent}, s.Day("2024-01-01"))
}

func TestMark_Validation(t *testing.T) {
	cases := []struct {
		name   string
		date   string
		id     string
		status Status
		want   error
	}{
		{"not marked", "2024-01-01", "s1", NotMarked, ErrInvalidStatus},
		{"empty status", "2024-01-01", "s1", "", ErrInvalidStatus},
		{"lowercase", "2024-01-01", "s1", "present", ErrInvalidStatus},
		{"short date", "2024-1-1", "s1", Present, ErrInvalidDate},
		{"impossible date", "2024-02-30", "s1", Present, ErrInvalidDate},
		{"timestamp", "2024-01-01T00:00:00Z", "s1", Present, ErrInvalidDate},
		{"no student", "2024-01-01", "", Present, ErrMissingStudent},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			kv := store.NewMemory()
			s := Open(context.Background(), kv, nil)
			assert.ErrorIs(t, s.Mark(context.Background(), c.date, c.id, c.status), c.want)
			assert.Empty(t, s.Snapshot())
			_, err := kv.Get(context.Background(), persist.KeyAttendance)
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestStatusOf_NotMarked(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, store.NewMemory(), nil)
	require.NoError(t, s.Mark(ctx, "2024-01-01", "s1", Present))

	assert.Equal(t, NotMarked, s.StatusOf("2024-01-01", "unknown"))
	assert.Equal(t, NotMarked, s.StatusOf("1999-12-31", "s1"))
}

func TestCascadeDelete(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	s := Open(ctx, kv, nil)
	require.NoError(t, s.Mark(ctx, "2024-01-01", "gone", Present))
	require.NoError(t, s.Mark(ctx, "2024-01-02", "gone", Absent))
	require.NoError(t, s.Mark(ctx, "2024-01-02", "kept", Present))

	require.NoError(t, s.CascadeDelete(ctx, "gone"))

	assert.Equal(t, NotMarked, s.StatusOf("2024-01-01", "gone"))
	assert.Equal(t, NotMarked, s.StatusOf("2024-01-02", "gone"))
	assert.Equal(t, Present, s.StatusOf("2024-01-02", "kept"))
	// emptied dates stay
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, s.Dates())
	assert.Empty(t, s.Day("2024-01-01"))

	reloaded := Open(ctx, kv, nil)
	assert.Equal(t, s.Snapshot(), reloaded.Snapshot())
}

func TestCascadeDelete_UnknownStudent(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, store.NewMemory(), nil)
	require.NoError(t, s.Mark(ctx, "2024-01-01", "s1", Present))
	before := s.Snapshot()

	require.NoError(t, s.CascadeDelete(ctx, "never-marked"))
	assert.Equal(t, before, s.Snapshot())
}

func TestCascadeDelete_WritesExtraEntriesTogether(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	s := Open(ctx, kv, nil)
	require.NoError(t, s.Mark(ctx, "2024-01-01", "s1", Present))

	extra := store.Entry{Key: persist.KeyStudents, Value: []byte(`[]`)}
	require.NoError(t, s.CascadeDelete(ctx, "s1", extra))

	got, err := kv.Get(ctx, persist.KeyStudents)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))
	assert.Equal(t, Records{"2024-01-01": {}}, Open(ctx, kv, nil).Snapshot())
}

func TestCascadeDelete_ExtraEntriesWithoutMarks(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	s := Open(ctx, kv, nil)

	extra := store.Entry{Key: persist.KeyStudents, Value: []byte(`[]`)}
	require.NoError(t, s.CascadeDelete(ctx, "s1", extra))

	got, err := kv.Get(ctx, persist.KeyStudents)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))
}

func TestWriteFailureLeavesMemory(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{Memory: store.NewMemory()}
	s := Open(ctx, kv, nil)
	require.NoError(t, s.Mark(ctx, "2024-01-01", "s1", Present))

	kv.failing = true
	assert.Error(t, s.Mark(ctx, "2024-01-01", "s1", Absent))
	assert.Error(t, s.Mark(ctx, "2024-01-02", "s2", Absent))
	assert.Error(t, s.CascadeDelete(ctx, "s1"))

	assert.Equal(t, Records{"2024-01-01": {"s1": Present}}, s.Snapshot())
}

func TestOpen_Fallbacks(t *testing.T) {
	cases := map[string]string{
		"corrupt":    `{"2024-01-01":`,
		"wrong type": `[1,2,3]`,
		"null":       `null`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv := store.NewMemory()
			require.NoError(t, kv.Write(ctx, store.Entry{Key: persist.KeyAttendance, Value: []byte(raw)}))

			s := Open(ctx, kv, nil)
			assert.Empty(t, s.Snapshot())
			assert.Equal(t, name != "null", s.LoadFailed())
			require.NoError(t, s.Mark(ctx, "2024-01-01", "s1", Present))
		})
	}
}

func TestOpen_DropsUnknownStatuses(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	raw := `{"2024-01-01":{"s1":"Present","s2":"Late","s3":"NotMarked"},"2024-01-02":null}`
	require.NoError(t, kv.Write(ctx, store.Entry{Key: persist.KeyAttendance, Value: []byte(raw)}))

	s := Open(ctx, kv, nil)
	assert.Equal(t, Records{
		"2024-01-01": {"s1": Present},
		"2024-01-02": {},
	}, s.Snapshot())
}

func TestStudentIDs(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, store.NewMemory(), nil)
	require.NoError(t, s.Mark(ctx, "2024-01-02", "b", Present))
	require.NoError(t, s.Mark(ctx, "2024-01-01", "a", Absent))
	require.NoError(t, s.Mark(ctx, "2024-01-01", "b", Absent))

	assert.Equal(t, []string{"a", "b"}, s.StudentIDs())
}

func TestDay_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, store.NewMemory(), nil)
	require.NoError(t, s.Mark(ctx, "2024-01-01", "s1", Present))

	day := s.Day("2024-01-01")
	day["s1"] = Absent
	assert.Equal(t, Present, s.StatusOf("2024-01-01", "s1"))
	assert.NotNil(t, s.Day("2030-01-01"))
}

func TestEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := events.NewInMemory(8)
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	s := Open(ctx, store.NewMemory(), bus)

	require.NoError(t, s.Mark(ctx, "2024-01-01", "s1", Present))
	require.NoError(t, s.CascadeDelete(ctx, "s1"))
	require.NoError(t, s.CascadeDelete(ctx, "s1"))

	require.Len(t, ch, 2)
	marked := <-ch
	assert.Equal(t, events.AttendanceMarked, marked.Type)
	assert.JSONEq(t, `{"date":"2024-01-01","student_id":"s1","status":"Present"}`, string(marked.Body))
	cascaded := <-ch
	assert.Equal(t, events.AttendanceCascaded, cascaded.Type)
	assert.JSONEq(t, `{"student_id":"s1","dates":1}`, string(cascaded.Body))
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]Status{"Present": Present, " absent ": Absent, "PRESENT": Present} {
		got, err := ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"", "NotMarked", "late"} {
		_, err := ParseStatus(in)
		assert.ErrorIs(t, err, ErrInvalidStatus, in)
	}
}

func TestDates(t *testing.T) {
	assert.True(t, ValidDate("2024-02-29"))
	assert.False(t, ValidDate("2023-02-29"))
	assert.False(t, ValidDate(""))

	local := time.Date(2024, 3, 9, 23, 30, 0, 0, time.Local)
	assert.Equal(t, "2024-03-09", DateOf(local))
	assert.True(t, ValidDate(Today()))
}
