package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/example/meeting-service/internal/application"
	"github.com/example/meeting-service/internal/testfixtures"
)

type meetingHarness struct {
	factory *testfixtures.ServiceFactory
	svc     *application.MeetingService
	host    testfixtures.UserFixture
	guest   testfixtures.UserFixture
	outside testfixtures.UserFixture
}

func newMeetingHarness(t *testing.T, opts ...testfixtures.ServiceFactoryOption) *meetingHarness {
	t.Helper()
	h := &meetingHarness{
		host:    testfixtures.NewUserFixture(testfixtures.WithUserName("Host")),
		guest:   testfixtures.NewUserFixture(testfixtures.WithUserName("Guest")),
		outside: testfixtures.NewUserFixture(testfixtures.WithUserName("Outsider")),
	}
	opts = append(opts, testfixtures.WithUsers(h.host, h.guest, h.outside))
	h.factory = testfixtures.NewServiceFactory(opts...)
	h.svc = h.factory.MeetingService()
	return h
}

func (h *meetingHarness) create(t *testing.T, host testfixtures.UserFixture, callID string) application.Meeting {
	t.Helper()
	meeting, err := h.svc.CreateMeeting(context.Background(), application.CreateMeetingParams{
		Principal: host.Principal(),
		Input:     application.MeetingInput{CallID: callID},
	})
	require.NoError(t, err)
	return meeting
}

func participantIDs(m application.Meeting) []string {
	ids := make([]string, 0, len(m.Participants))
	for _, p := range m.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}

func meetingIDs(meetings []application.Meeting) []string {
	ids := make([]string, 0, len(meetings))
	for _, m := range meetings {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestMeetingService_CreateMeeting(t *testing.T) {
	t.Parallel()

	t.Run("creates scheduled meeting hosted by the caller", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		description := "  weekly sync  "

		meeting, err := h.svc.CreateMeeting(context.Background(), application.CreateMeetingParams{
			Principal: h.host.Principal(),
			Input: application.MeetingInput{
				Title:       "Standup",
				Description: &description,
				CallID:      "c1",
			},
		})
		require.NoError(t, err)

		assert.Equal(t, "Standup", meeting.Title)
		assert.Equal(t, application.StatusScheduled, meeting.Status)
		assert.Equal(t, 1, meeting.ParticipantCount)
		assert.Equal(t, h.host.ID, meeting.HostID)
		require.NotNil(t, meeting.Host)
		assert.Equal(t, h.host.ID, meeting.Host.ID)
		assert.Equal(t, []string{h.host.ID}, participantIDs(meeting))
		require.NotNil(t, meeting.Description)
		assert.Equal(t, "weekly sync", *meeting.Description)
	})

	t.Run("defaults title to the call id", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)

		meeting := h.create(t, h.host, "  room-42 ")
		assert.Equal(t, "room-42", meeting.Title)
		assert.Equal(t, "room-42", meeting.CallID)
	})

	t.Run("rejects duplicate call id", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		h.create(t, h.host, "dup")

		_, err := h.svc.CreateMeeting(context.Background(), application.CreateMeetingParams{
			Principal: h.guest.Principal(),
			Input:     application.MeetingInput{CallID: "dup"},
		})
		assert.ErrorIs(t, err, application.ErrConflict)
	})

	t.Run("fails when host cannot be resolved", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)

		_, err := h.svc.CreateMeeting(context.Background(), application.CreateMeetingParams{
			Principal: application.Principal{UserID: "ghost"},
			Input:     application.MeetingInput{CallID: "c1"},
		})
		assert.ErrorIs(t, err, application.ErrNotFound)
		assert.Zero(t, h.factory.Store.MeetingCount())
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)

		cases := map[string]application.MeetingInput{
			"callId": {CallID: "   "},
			"status": {CallID: "c1", Status: "paused"},
		}
		for field, input := range cases {
			_, err := h.svc.CreateMeeting(context.Background(), application.CreateMeetingParams{
				Principal: h.host.Principal(),
				Input:     input,
			})
			var vErr *application.ValidationError
			require.ErrorAs(t, err, &vErr, field)
			assert.Contains(t, vErr.FieldErrors, field)
		}

		long := make([]byte, 256)
		for i := range long {
			long[i] = 'x'
		}
		_, err := h.svc.CreateMeeting(context.Background(), application.CreateMeetingParams{
			Principal: h.host.Principal(),
			Input:     application.MeetingInput{CallID: string(long)},
		})
		assert.Equal(t, "validation", application.ErrorKind(err))
	})

	t.Run("requires a principal", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)

		_, err := h.svc.CreateMeeting(context.Background(), application.CreateMeetingParams{
			Input: application.MeetingInput{CallID: "c1"},
		})
		assert.ErrorIs(t, err, application.ErrUnauthenticated)
	})
}

func TestMeetingService_ResolveByCallID(t *testing.T) {
	t.Parallel()
	h := newMeetingHarness(t)
	created := h.create(t, h.host, "lookup")

	found, err := h.svc.ResolveByCallID(context.Background(), "lookup")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	require.NotNil(t, found.Host)
	assert.Len(t, found.Participants, 1)

	_, err = h.svc.ResolveByCallID(context.Background(), "missing")
	assert.ErrorIs(t, err, application.ErrNotFound)

	_, err = h.svc.ResolveByCallID(context.Background(), "")
	assert.Equal(t, "validation", application.ErrorKind(err))
}

func TestMeetingService_GetOrCreateByCallID(t *testing.T) {
	t.Parallel()

	t.Run("second call returns the same meeting and ignores fields", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		ctx := context.Background()

		first, err := h.svc.GetOrCreateByCallID(ctx, h.host.Principal(), "call-1", application.MeetingInput{Title: "Original"})
		require.NoError(t, err)
		assert.Equal(t, "Original", first.Title)
		assert.Equal(t, h.host.ID, first.HostID)

		second, err := h.svc.GetOrCreateByCallID(ctx, h.guest.Principal(), "call-1", application.MeetingInput{
			Title:  "Replacement",
			Status: application.StatusOngoing,
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "Original", second.Title)
		assert.Equal(t, application.StatusScheduled, second.Status)
		assert.Equal(t, h.host.ID, second.HostID)
		assert.Equal(t, 1, second.ParticipantCount)
		assert.Equal(t, 1, h.factory.Store.MeetingCount())
	})

	t.Run("existing meeting is returned even when the ignored input is invalid", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		ctx := context.Background()
		existing := h.create(t, h.host, "call-existing")

		got, err := h.svc.GetOrCreateByCallID(ctx, h.guest.Principal(), "call-existing", application.MeetingInput{Status: "bogus"})
		require.NoError(t, err)
		assert.Equal(t, existing.ID, got.ID)
		assert.Equal(t, application.StatusScheduled, got.Status)

		_, err = h.svc.GetOrCreateByCallID(ctx, h.guest.Principal(), "call-fresh", application.MeetingInput{Status: "bogus"})
		var vErr *application.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "status")
		assert.Equal(t, 1, h.factory.Store.MeetingCount())
	})

	t.Run("applies supplied fields on creation", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		start := testfixtures.ReferenceTime().Add(time.Hour)

		meeting, err := h.svc.GetOrCreateByCallID(context.Background(), h.host.Principal(), "call-2", application.MeetingInput{
			Status:    application.StatusOngoing,
			StartTime: &start,
		})
		require.NoError(t, err)
		assert.Equal(t, "call-2", meeting.Title)
		assert.Equal(t, application.StatusOngoing, meeting.Status)
		require.NotNil(t, meeting.StartTime)
		assert.True(t, meeting.StartTime.Equal(start))
	})

	t.Run("concurrent callers converge on one meeting", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		callers := []testfixtures.UserFixture{h.host, h.guest, h.outside, h.host, h.guest, h.outside, h.host, h.guest}

		ids := make([]string, len(callers))
		g, ctx := errgroup.WithContext(context.Background())
		for i, caller := range callers {
			g.Go(func() error {
				meeting, err := h.svc.GetOrCreateByCallID(ctx, caller.Principal(), "race", application.MeetingInput{})
				if err != nil {
					return err
				}
				ids[i] = meeting.ID
				return nil
			})
		}
		require.NoError(t, g.Wait())

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
		assert.Equal(t, 1, h.factory.Store.MeetingCount())
	})

	t.Run("unknown requester is not found", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)

		_, err := h.svc.GetOrCreateByCallID(context.Background(), application.Principal{UserID: "ghost"}, "call-3", application.MeetingInput{})
		assert.ErrorIs(t, err, application.ErrNotFound)
	})

	t.Run("gives up after repeated conflicts", func(t *testing.T) {
		t.Parallel()
		host := testfixtures.NewUserFixture()
		store := &conflictingStore{MemoryStore: testfixtures.NewMemoryStore().SeedUsers(host)}
		svc := application.NewMeetingService(store, store, testfixtures.NewIDGenerator("m").NextFunc(), nil)

		_, err := svc.GetOrCreateByCallID(context.Background(), host.Principal(), "flaky", application.MeetingInput{})
		assert.ErrorIs(t, err, application.ErrConflict)
		assert.Equal(t, 3, store.creates)
	})
}

// conflictingStore loses every insert race and never sees the winning row.
type conflictingStore struct {
	*testfixtures.MemoryStore
	mu      sync.Mutex
	creates int
}

func (s *conflictingStore) FindMeeting(ctx context.Context, criteria application.MeetingCriteria, relations application.Relations) (application.Meeting, error) {
	return application.Meeting{}, application.ErrNotFound
}

func (s *conflictingStore) CreateMeeting(ctx context.Context, meeting application.Meeting) (application.Meeting, error) {
	s.mu.Lock()
	s.creates++
	s.mu.Unlock()
	return application.Meeting{}, fmt.Errorf("insert meeting: %w", application.ErrConflict)
}

func TestMeetingService_JoinMeeting(t *testing.T) {
	t.Parallel()

	t.Run("adds participant and keeps count in sync", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		meeting := h.create(t, h.host, "join")

		joined, err := h.svc.JoinMeeting(context.Background(), h.guest.Principal(), meeting.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, joined.ParticipantCount)
		assert.Equal(t, []string{h.host.ID, h.guest.ID}, participantIDs(joined))
		assert.Equal(t, h.host.ID, joined.HostID)

		again, err := h.svc.JoinMeeting(context.Background(), h.guest.Principal(), meeting.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, again.ParticipantCount)
		assert.Len(t, again.Participants, 2)
	})

	t.Run("host joining own meeting is a no-op", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		meeting := h.create(t, h.host, "self")

		joined, err := h.svc.JoinMeeting(context.Background(), h.host.Principal(), meeting.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, joined.ParticipantCount)
	})

	t.Run("missing meeting or user is not found", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		meeting := h.create(t, h.host, "missing")

		_, err := h.svc.JoinMeeting(context.Background(), h.guest.Principal(), "nope")
		assert.ErrorIs(t, err, application.ErrNotFound)

		_, err = h.svc.JoinMeeting(context.Background(), application.Principal{UserID: "ghost"}, meeting.ID)
		assert.ErrorIs(t, err, application.ErrNotFound)
	})

	t.Run("concurrent delete surfaces not found", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		meeting := h.create(t, h.host, "vanishing")
		h.factory.Store.FailNext("UpdateMeeting", application.ErrNotFound)

		_, err := h.svc.JoinMeeting(context.Background(), h.guest.Principal(), meeting.ID)
		assert.ErrorIs(t, err, application.ErrNotFound)
	})

	t.Run("concurrent joins keep count equal to membership", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		meeting := h.create(t, h.host, "crowd")

		var g errgroup.Group
		for _, user := range []testfixtures.UserFixture{h.guest, h.outside, h.guest, h.outside} {
			g.Go(func() error {
				_, err := h.svc.JoinMeeting(context.Background(), user.Principal(), meeting.ID)
				return err
			})
		}
		require.NoError(t, g.Wait())

		final, err := h.svc.GetAuthorized(context.Background(), h.host.Principal(), meeting.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, final.ParticipantCount)
		assert.Len(t, final.Participants, 3)
	})
}

func TestMeetingService_Authorization(t *testing.T) {
	t.Parallel()
	h := newMeetingHarness(t)
	ctx := context.Background()
	meeting := h.create(t, h.host, "guarded")
	_, err := h.svc.JoinMeeting(ctx, h.guest.Principal(), meeting.ID)
	require.NoError(t, err)

	title := "Renamed"
	hostOnly := map[string]func(application.Principal) error{
		"update": func(p application.Principal) error {
			_, err := h.svc.UpdateMeeting(ctx, application.UpdateMeetingParams{Principal: p, MeetingID: meeting.ID, Patch: application.MeetingPatch{Title: &title}})
			return err
		},
		"start": func(p application.Principal) error {
			_, err := h.svc.StartMeeting(ctx, p, meeting.ID)
			return err
		},
		"end": func(p application.Principal) error {
			_, err := h.svc.EndMeeting(ctx, p, meeting.ID)
			return err
		},
		"delete": func(p application.Principal) error {
			return h.svc.DeleteMeeting(ctx, p, meeting.ID)
		},
	}

	for name, op := range hostOnly {
		for _, caller := range []testfixtures.UserFixture{h.guest, h.outside} {
			err := op(caller.Principal())
			assert.ErrorIs(t, err, application.ErrForbidden, "%s by %s", name, caller.Name)
		}
	}

	_, err = h.svc.GetAuthorized(ctx, h.outside.Principal(), meeting.ID)
	assert.ErrorIs(t, err, application.ErrForbidden)

	viewed, err := h.svc.GetAuthorized(ctx, h.guest.Principal(), meeting.ID)
	require.NoError(t, err)
	assert.Equal(t, meeting.Title, viewed.Title, "forbidden operations must not change the meeting")
	assert.Equal(t, application.StatusScheduled, viewed.Status)

	_, err = h.svc.GetAuthorized(ctx, h.host.Principal(), "absent")
	assert.ErrorIs(t, err, application.ErrNotFound)

	_, err = h.svc.GetAuthorized(ctx, application.Principal{}, meeting.ID)
	assert.ErrorIs(t, err, application.ErrUnauthenticated)
}

func TestMeetingService_Duration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		elapsed time.Duration
		want    int
	}{
		{elapsed: 90 * time.Second, want: 2},
		{elapsed: 150 * time.Second, want: 3},
		{elapsed: 89 * time.Second, want: 1},
		{elapsed: 30 * time.Second, want: 1},
		{elapsed: 29 * time.Second, want: 0},
		{elapsed: time.Hour, want: 60},
	}

	for _, tc := range cases {
		t.Run(tc.elapsed.String(), func(t *testing.T) {
			t.Parallel()
			clock := testfixtures.NewClock(time.Time{})
			h := newMeetingHarness(t, testfixtures.WithClock(clock))
			meeting := h.create(t, h.host, "timed")

			started, err := h.svc.StartMeeting(context.Background(), h.host.Principal(), meeting.ID)
			require.NoError(t, err)
			require.NotNil(t, started.StartTime)

			clock.Advance(tc.elapsed)
			ended, err := h.svc.EndMeeting(context.Background(), h.host.Principal(), meeting.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ended.Duration)
		})
	}

	t.Run("end without start leaves duration zero", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		meeting := h.create(t, h.host, "never-started")

		ended, err := h.svc.EndMeeting(context.Background(), h.host.Principal(), meeting.ID)
		require.NoError(t, err)
		assert.Equal(t, application.StatusCompleted, ended.Status)
		assert.Nil(t, ended.StartTime)
		require.NotNil(t, ended.EndTime)
		assert.Zero(t, ended.Duration)
	})

	t.Run("start after end time clamps to zero", func(t *testing.T) {
		t.Parallel()
		clock := testfixtures.NewClock(time.Time{})
		h := newMeetingHarness(t, testfixtures.WithClock(clock))
		future := clock.Peek().Add(time.Hour)
		meeting, err := h.svc.GetOrCreateByCallID(context.Background(), h.host.Principal(), "future", application.MeetingInput{StartTime: &future})
		require.NoError(t, err)

		ended, err := h.svc.EndMeeting(context.Background(), h.host.Principal(), meeting.ID)
		require.NoError(t, err)
		assert.Zero(t, ended.Duration)
	})
}

func TestMeetingService_RepeatedTransitionsRestamp(t *testing.T) {
	t.Parallel()
	clock := testfixtures.NewClock(time.Time{})
	h := newMeetingHarness(t, testfixtures.WithClock(clock))
	ctx := context.Background()
	meeting := h.create(t, h.host, "repeat")

	first, err := h.svc.StartMeeting(ctx, h.host.Principal(), meeting.ID)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	ended, err := h.svc.EndMeeting(ctx, h.host.Principal(), meeting.ID)
	require.NoError(t, err)
	require.Equal(t, 2, ended.Duration)

	clock.Advance(3 * time.Minute)
	reEnded, err := h.svc.EndMeeting(ctx, h.host.Principal(), meeting.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reEnded.Duration, "ending again recomputes from the original start")
	assert.True(t, reEnded.EndTime.After(*ended.EndTime))

	restarted, err := h.svc.StartMeeting(ctx, h.host.Principal(), meeting.ID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusOngoing, restarted.Status)
	assert.True(t, restarted.StartTime.After(*first.StartTime))
}

func TestMeetingService_UpdateMeeting(t *testing.T) {
	t.Parallel()

	t.Run("applies only supplied fields", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		meeting := h.create(t, h.host, "patch")
		description := "agenda"

		updated, err := h.svc.UpdateMeeting(context.Background(), application.UpdateMeetingParams{
			Principal: h.host.Principal(),
			MeetingID: meeting.ID,
			Patch:     application.MeetingPatch{Description: &description},
		})
		require.NoError(t, err)
		assert.Equal(t, "patch", updated.Title)
		require.NotNil(t, updated.Description)
		assert.Equal(t, "agenda", *updated.Description)
		assert.Equal(t, application.StatusScheduled, updated.Status)
		assert.Equal(t, 1, updated.ParticipantCount)
	})

	t.Run("cancels through a status patch", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		meeting := h.create(t, h.host, "cancel")
		status := application.StatusCancelled
		duration := 15

		updated, err := h.svc.UpdateMeeting(context.Background(), application.UpdateMeetingParams{
			Principal: h.host.Principal(),
			MeetingID: meeting.ID,
			Patch:     application.MeetingPatch{Status: &status, Duration: &duration},
		})
		require.NoError(t, err)
		assert.Equal(t, application.StatusCancelled, updated.Status)
		assert.Equal(t, 15, updated.Duration)
	})

	t.Run("rejects invalid patches from the host", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		meeting := h.create(t, h.host, "invalid")
		blank := "  "
		negative := -1
		bogus := application.MeetingStatus("archived")

		_, err := h.svc.UpdateMeeting(context.Background(), application.UpdateMeetingParams{
			Principal: h.host.Principal(),
			MeetingID: meeting.ID,
			Patch:     application.MeetingPatch{Title: &blank, Duration: &negative, Status: &bogus},
		})
		var vErr *application.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Len(t, vErr.FieldErrors, 3)
	})

	t.Run("checks authorization before the patch", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		meeting := h.create(t, h.host, "outsider-patch")
		blank := " "

		_, err := h.svc.UpdateMeeting(context.Background(), application.UpdateMeetingParams{
			Principal: h.outside.Principal(),
			MeetingID: meeting.ID,
			Patch:     application.MeetingPatch{Title: &blank},
		})
		assert.ErrorIs(t, err, application.ErrForbidden)
	})

	t.Run("never moves status backwards", func(t *testing.T) {
		t.Parallel()
		h := newMeetingHarness(t)
		ctx := context.Background()
		meeting := h.create(t, h.host, "finished")
		_, err := h.svc.StartMeeting(ctx, h.host.Principal(), meeting.ID)
		require.NoError(t, err)
		_, err = h.svc.EndMeeting(ctx, h.host.Principal(), meeting.ID)
		require.NoError(t, err)

		for _, target := range []application.MeetingStatus{application.StatusScheduled, application.StatusOngoing, application.StatusCancelled} {
			status := target
			_, err := h.svc.UpdateMeeting(ctx, application.UpdateMeetingParams{
				Principal: h.host.Principal(),
				MeetingID: meeting.ID,
				Patch:     application.MeetingPatch{Status: &status},
			})
			var vErr *application.ValidationError
			require.ErrorAs(t, err, &vErr, string(target))
			assert.Contains(t, vErr.FieldErrors, "status")
		}

		stored, err := h.svc.GetAuthorized(ctx, h.host.Principal(), meeting.ID)
		require.NoError(t, err)
		assert.Equal(t, application.StatusCompleted, stored.Status)
	})
}

func TestMeetingStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to application.MeetingStatus
		want     bool
	}{
		{application.StatusScheduled, application.StatusScheduled, true},
		{application.StatusScheduled, application.StatusOngoing, true},
		{application.StatusScheduled, application.StatusCancelled, true},
		{application.StatusOngoing, application.StatusCompleted, true},
		{application.StatusOngoing, application.StatusCancelled, true},
		{application.StatusOngoing, application.StatusScheduled, false},
		{application.StatusCompleted, application.StatusScheduled, false},
		{application.StatusCompleted, application.StatusCancelled, false},
		{application.StatusCancelled, application.StatusScheduled, false},
		{application.StatusCancelled, application.StatusOngoing, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestMeetingService_DeleteMeeting(t *testing.T) {
	t.Parallel()
	h := newMeetingHarness(t)
	ctx := context.Background()
	meeting := h.create(t, h.host, "doomed")

	require.NoError(t, h.svc.DeleteMeeting(ctx, h.host.Principal(), meeting.ID))

	_, err := h.svc.GetAuthorized(ctx, h.host.Principal(), meeting.ID)
	assert.ErrorIs(t, err, application.ErrNotFound)
	assert.ErrorIs(t, h.svc.DeleteMeeting(ctx, h.host.Principal(), meeting.ID), application.ErrNotFound)

	recreated, err := h.svc.GetOrCreateByCallID(ctx, h.guest.Principal(), "doomed", application.MeetingInput{})
	require.NoError(t, err)
	assert.NotEqual(t, meeting.ID, recreated.ID)
}

func TestMeetingService_ListAccessible(t *testing.T) {
	t.Parallel()
	h := newMeetingHarness(t)
	ctx := context.Background()

	hosted := h.create(t, h.host, "hosted-by-a")
	joined := h.create(t, h.guest, "joined-by-a")
	_ = h.create(t, h.guest, "private-to-b")
	latest := h.create(t, h.host, "latest-by-a")

	_, err := h.svc.JoinMeeting(ctx, h.host.Principal(), joined.ID)
	require.NoError(t, err)
	_, err = h.svc.JoinMeeting(ctx, h.guest.Principal(), hosted.ID)
	require.NoError(t, err)

	meetings, err := h.svc.ListAccessible(ctx, h.host.Principal())
	require.NoError(t, err)
	assert.Equal(t, []string{latest.ID, joined.ID, hosted.ID}, meetingIDs(meetings))
	for i := 1; i < len(meetings); i++ {
		assert.True(t, meetings[i-1].CreatedAt.After(meetings[i].CreatedAt))
	}

	history, err := h.svc.History(ctx, h.host.Principal(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{latest.ID, joined.ID}, meetingIDs(history))

	defaulted, err := h.svc.History(ctx, h.host.Principal(), 0)
	require.NoError(t, err)
	assert.Len(t, defaulted, 3)

	none, err := h.svc.ListAccessible(ctx, h.outside.Principal())
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMeetingService_HistoryDefaultLimit(t *testing.T) {
	t.Parallel()
	h := newMeetingHarness(t)
	for i := 0; i < 12; i++ {
		h.create(t, h.host, fmt.Sprintf("call-%02d", i))
	}

	history, err := h.svc.History(context.Background(), h.host.Principal(), -5)
	require.NoError(t, err)
	require.Len(t, history, 10)
	assert.Equal(t, "call-11", history[0].CallID)
}

func TestMeetingService_StandupScenario(t *testing.T) {
	t.Parallel()
	clock := testfixtures.NewClock(time.Time{})
	h := newMeetingHarness(t, testfixtures.WithClock(clock))
	ctx := context.Background()
	a, b := h.host, h.guest

	m, err := h.svc.CreateMeeting(ctx, application.CreateMeetingParams{
		Principal: a.Principal(),
		Input:     application.MeetingInput{Title: "Standup", CallID: "c1"},
	})
	require.NoError(t, err)
	assert.Equal(t, application.StatusScheduled, m.Status)
	assert.Equal(t, 1, m.ParticipantCount)
	assert.Equal(t, a.ID, m.HostID)

	m, err = h.svc.JoinMeeting(ctx, b.Principal(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, m.ParticipantCount)

	m, err = h.svc.StartMeeting(ctx, a.Principal(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusOngoing, m.Status)
	require.NotNil(t, m.StartTime)

	clock.Advance(90 * time.Second)
	m, err = h.svc.EndMeeting(ctx, a.Principal(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusCompleted, m.Status)
	require.NotNil(t, m.EndTime)
	assert.Equal(t, 2, m.Duration)

	err = h.svc.DeleteMeeting(ctx, b.Principal(), m.ID)
	assert.ErrorIs(t, err, application.ErrForbidden)
}

type recordedOperation struct {
	service, operation, outcome string
}

type operationLog struct {
	mu      sync.Mutex
	entries []recordedOperation
}

func (l *operationLog) RecordOperation(service, operation, outcome string, elapsed time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, recordedOperation{service, operation, outcome})
}

func TestMeetingService_RecordsOperations(t *testing.T) {
	t.Parallel()
	h := newMeetingHarness(t)
	recorder := &operationLog{}
	h.svc.WithRecorder(recorder)

	meeting := h.create(t, h.host, "metered")
	_, err := h.svc.StartMeeting(context.Background(), h.guest.Principal(), meeting.ID)
	require.Error(t, err)

	assert.Equal(t, []recordedOperation{
		{"MeetingService", "CreateMeeting", "success"},
		{"MeetingService", "StartMeeting", "forbidden"},
	}, recorder.entries)
}

func TestMeetingService_NilAndUnconfigured(t *testing.T) {
	t.Parallel()

	var nilSvc *application.MeetingService
	_, err := nilSvc.ResolveByCallID(context.Background(), "c1")
	require.Error(t, err)

	svc := application.NewMeetingService(nil, nil, nil, nil)
	_, err = svc.ListAccessible(context.Background(), application.Principal{UserID: "u"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, application.ErrNotFound))
}
