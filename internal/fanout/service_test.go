package fanout_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/buildingpulse/push-fanout/internal/fanout"
)

// --- Mocks ---

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, credential string) (string, error) {
	args := m.Called(ctx, credential)
	return args.String(0), args.Error(1)
}

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) CallerProfile(ctx context.Context, userID string) (*fanout.CallerIdentity, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fanout.CallerIdentity), args.Error(1)
}

func (m *MockDirectory) BuildingRecipients(ctx context.Context, buildingID string) ([]fanout.RecipientRow, error) {
	args := m.Called(ctx, buildingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fanout.RecipientRow), args.Error(1)
}

// fakeTransport answers each call with the next scripted status.
type fakeTransport struct {
	mu       sync.Mutex
	statuses []int
	calls    [][]fanout.Message
	delay    time.Duration
}

func (f *fakeTransport) Send(ctx context.Context, messages []fanout.Message) (int, []byte, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	status := 200
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		f.statuses = f.statuses[1:]
	}
	return status, []byte(fmt.Sprintf(`{"status":%d}`, status)), nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// --- Setup ---

const (
	building  = "b-1"
	goodToken = "header.payload.sig"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func committee() *fanout.CallerIdentity {
	return &fanout.CallerIdentity{UserID: "chair", BuildingID: building, Role: fanout.RoleCommittee}
}

func rowsFor(n int) []fanout.RecipientRow {
	rows := make([]fanout.RecipientRow, n)
	for i := range rows {
		rows[i] = fanout.RecipientRow{
			UserID:      fmt.Sprintf("u-%d", i),
			DeviceToken: fmt.Sprintf("ExponentPushToken[%d]", i),
			Preferences: fanout.DefaultPreferences,
		}
	}
	return rows
}

func announcement() fanout.Request {
	return fanout.Request{
		Category:   fanout.Announcement,
		BuildingID: building,
		Title:      "Water shut-off",
		Body:       "Tomorrow 9-11",
		Payload:    map[string]any{"announcement_id": "a-1"},
	}
}

func setup(t *testing.T, caller *fanout.CallerIdentity, rows []fanout.RecipientRow, opts fanout.Options) (*fanout.Service, *fakeTransport, *MockDirectory) {
	t.Helper()
	verifier := new(MockVerifier)
	verifier.On("Verify", mock.Anything, goodToken).Return("chair", nil)

	dir := new(MockDirectory)
	dir.On("CallerProfile", mock.Anything, "chair").Return(caller, nil)
	if rows != nil {
		dir.On("BuildingRecipients", mock.Anything, building).Return(rows, nil)
	}

	transport := &fakeTransport{}
	return fanout.NewService(verifier, dir, transport, opts, newTestLogger()), transport, dir
}

// --- Tests ---

func TestSend_BatchesAllRecipients(t *testing.T) {
	svc, transport, _ := setup(t, committee(), rowsFor(250), fanout.Options{MaxBatchSize: 100})

	summary, err := svc.Send(context.Background(), goodToken, announcement())
	require.NoError(t, err)

	assert.True(t, summary.Accepted)
	assert.Equal(t, 250, summary.RecipientsSent)
	assert.Equal(t, 3, summary.BatchCount)
	require.Len(t, summary.Results, 3)
	assert.Equal(t, []int{100, 100, 50}, []int{
		summary.Results[0].Recipients, summary.Results[1].Recipients, summary.Results[2].Recipients,
	})

	require.Equal(t, 3, transport.callCount())
	first := transport.calls[0][0]
	assert.Equal(t, "ExponentPushToken[0]", first.To)
	assert.Equal(t, "default", first.Sound)
	assert.Equal(t, "Water shut-off", first.Title)
	assert.Equal(t, "Tomorrow 9-11", first.Body)
	assert.Equal(t, "a-1", first.Data["announcement_id"])
}

func TestSend_ZeroRecipientsShortCircuits(t *testing.T) {
	svc, transport, _ := setup(t, committee(), []fanout.RecipientRow{}, fanout.Options{})

	summary, err := svc.Send(context.Background(), goodToken, announcement())
	require.NoError(t, err)

	assert.True(t, summary.Accepted)
	assert.Zero(t, summary.RecipientsSent)
	assert.Zero(t, summary.BatchCount)
	assert.Empty(t, summary.Results)
	assert.Zero(t, transport.callCount())
}

func TestSend_AllFilteredOutShortCircuits(t *testing.T) {
	rows := rowsFor(3)
	for i := range rows {
		rows[i].Preferences.AnnouncementsEnabled = false
	}
	svc, transport, _ := setup(t, committee(), rows, fanout.Options{})

	summary, err := svc.Send(context.Background(), goodToken, announcement())
	require.NoError(t, err)
	assert.Zero(t, summary.BatchCount)
	assert.Zero(t, transport.callCount())
}

func TestSend_PartialFailureIsReported(t *testing.T) {
	svc, transport, _ := setup(t, committee(), rowsFor(150), fanout.Options{MaxBatchSize: 100})
	transport.statuses = []int{200, 500}

	summary, err := svc.Send(context.Background(), goodToken, announcement())
	require.NoError(t, err)

	assert.True(t, summary.Accepted)
	assert.Equal(t, 100, summary.RecipientsSent)
	assert.Equal(t, 2, summary.BatchCount)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, 200, summary.Results[0].HTTPStatus)
	assert.Equal(t, 500, summary.Results[1].HTTPStatus)
	assert.Equal(t, `{"status":500}`, summary.Results[1].Body)
	assert.Equal(t, 1, summary.FailedBatches())
}

func TestSend_ParallelKeepsBatchOrder(t *testing.T) {
	svc, transport, _ := setup(t, committee(), rowsFor(520), fanout.Options{MaxBatchSize: 100, Concurrency: 3})
	transport.delay = 5 * time.Millisecond

	summary, err := svc.Send(context.Background(), goodToken, announcement())
	require.NoError(t, err)

	assert.Equal(t, 520, summary.RecipientsSent)
	require.Len(t, summary.Results, 6)
	for i, o := range summary.Results {
		assert.Equal(t, i, o.BatchIndex)
	}
	assert.Equal(t, 20, summary.Results[5].Recipients)
	assert.Equal(t, 6, transport.callCount())
}

func TestSend_TimeoutStopsFurtherBatches(t *testing.T) {
	svc, transport, _ := setup(t, committee(), rowsFor(300), fanout.Options{
		MaxBatchSize:    100,
		DispatchTimeout: 30 * time.Millisecond,
	})
	transport.delay = 50 * time.Millisecond

	summary, err := svc.Send(context.Background(), goodToken, announcement())
	require.NoError(t, err)

	assert.True(t, summary.Accepted)
	assert.True(t, summary.Incomplete)
	assert.Equal(t, 3, summary.BatchCount)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, 1, transport.callCount())

	// The batch in flight when the deadline passed still completes.
	assert.Equal(t, 200, summary.Results[0].HTTPStatus)
	assert.Empty(t, summary.Results[0].Error)
	assert.Equal(t, 0, summary.FailedBatches())
}

func TestSend_DefaultsEmptyPayload(t *testing.T) {
	svc, transport, _ := setup(t, committee(), rowsFor(1), fanout.Options{})
	req := announcement()
	req.Payload = nil

	_, err := svc.Send(context.Background(), goodToken, req)
	require.NoError(t, err)
	require.Equal(t, 1, transport.callCount())
	assert.NotNil(t, transport.calls[0][0].Data)
}

func TestSend_ExcludedAuthorNeverReceives(t *testing.T) {
	rows := append(rowsFor(2),
		fanout.RecipientRow{UserID: "chair", DeviceToken: "chair-phone", Preferences: fanout.DefaultPreferences},
		fanout.RecipientRow{UserID: "chair", DeviceToken: "chair-tablet", Preferences: fanout.DefaultPreferences},
	)
	svc, transport, _ := setup(t, committee(), rows, fanout.Options{})
	req := announcement()
	req.ExcludeUserID = "chair"

	summary, err := svc.Send(context.Background(), goodToken, req)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.RecipientsSent)
	for _, m := range transport.calls[0] {
		assert.NotContains(t, []string{"chair-phone", "chair-tablet"}, m.To)
	}
}

func TestSend_Rejections(t *testing.T) {
	t.Run("Malformed request never verifies", func(t *testing.T) {
		verifier := new(MockVerifier)
		svc := fanout.NewService(verifier, new(MockDirectory), &fakeTransport{}, fanout.Options{}, newTestLogger())

		req := announcement()
		req.Body = ""
		_, err := svc.Send(context.Background(), goodToken, req)
		assert.ErrorIs(t, err, fanout.ErrMalformedRequest)
		verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("Bad credential", func(t *testing.T) {
		verifier := new(MockVerifier)
		verifier.On("Verify", mock.Anything, "stale").Return("", fmt.Errorf("%w: expired", fanout.ErrUnauthenticated))
		dir := new(MockDirectory)
		svc := fanout.NewService(verifier, dir, &fakeTransport{}, fanout.Options{}, newTestLogger())

		_, err := svc.Send(context.Background(), "stale", announcement())
		assert.ErrorIs(t, err, fanout.ErrUnauthenticated)
		dir.AssertNotCalled(t, "CallerProfile", mock.Anything, mock.Anything)
	})

	t.Run("No profile", func(t *testing.T) {
		svc, transport, dir := setup(t, nil, nil, fanout.Options{})
		_, err := svc.Send(context.Background(), goodToken, announcement())
		assert.ErrorIs(t, err, fanout.ErrProfileNotFound)
		dir.AssertNotCalled(t, "BuildingRecipients", mock.Anything, mock.Anything)
		assert.Zero(t, transport.callCount())
	})

	t.Run("Resident announcement", func(t *testing.T) {
		resident := &fanout.CallerIdentity{UserID: "chair", BuildingID: building, Role: fanout.RoleResident}
		svc, _, dir := setup(t, resident, nil, fanout.Options{})
		_, err := svc.Send(context.Background(), goodToken, announcement())
		assert.ErrorIs(t, err, fanout.ErrInsufficientRole)
		dir.AssertNotCalled(t, "BuildingRecipients", mock.Anything, mock.Anything)
	})

	t.Run("Profile lookup failure is a backend error", func(t *testing.T) {
		verifier := new(MockVerifier)
		verifier.On("Verify", mock.Anything, goodToken).Return("chair", nil)
		dir := new(MockDirectory)
		dir.On("CallerProfile", mock.Anything, "chair").Return(nil, errors.New("conn refused"))
		svc := fanout.NewService(verifier, dir, &fakeTransport{}, fanout.Options{}, newTestLogger())

		_, err := svc.Send(context.Background(), goodToken, announcement())
		assert.ErrorIs(t, err, fanout.ErrBackend)
	})

	t.Run("Resolution failure aborts before dispatch", func(t *testing.T) {
		verifier := new(MockVerifier)
		verifier.On("Verify", mock.Anything, goodToken).Return("chair", nil)
		dir := new(MockDirectory)
		dir.On("CallerProfile", mock.Anything, "chair").Return(committee(), nil)
		dir.On("BuildingRecipients", mock.Anything, building).Return(nil, errors.New("permission denied"))
		transport := &fakeTransport{}
		svc := fanout.NewService(verifier, dir, transport, fanout.Options{}, newTestLogger())

		_, err := svc.Send(context.Background(), goodToken, announcement())
		assert.ErrorIs(t, err, fanout.ErrResolutionFailed)
		assert.Zero(t, transport.callCount())
	})
}

func TestPlan_NoAuthorization(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("BuildingRecipients", mock.Anything, building).Return(rowsFor(120), nil)
	svc := fanout.NewService(new(MockVerifier), dir, &fakeTransport{}, fanout.Options{MaxBatchSize: 50}, newTestLogger())

	plan, err := svc.Plan(context.Background(), fanout.Request{Category: fanout.IssueCreated, BuildingID: building, ExcludeUserID: "u-0"})
	require.NoError(t, err)
	assert.Equal(t, 120, plan.Resolved)
	assert.Equal(t, 119, plan.Tokens())
	assert.Len(t, plan.Batches, 3)
}
