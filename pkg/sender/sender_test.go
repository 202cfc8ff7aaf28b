package sender

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/LerianStudio/outboxtx/v2/pkg/outbox"
	outboxmock "github.com/LerianStudio/outboxtx/v2/pkg/outbox/mock"
	"github.com/LerianStudio/outboxtx/v2/pkg/publisher"
	publishermock "github.com/LerianStudio/outboxtx/v2/pkg/publisher/mock"
)

func TestTick_NoCandidates_SkipsLeaseAndReconcile(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := outboxmock.NewMockStore(ctrl)
	pub := publishermock.NewMockPublisher(ctrl)

	store.EXPECT().FetchCandidateIDs(gomock.Any(), gomock.Any()).Return(nil, nil)

	s := New(store, pub, nil, DefaultConfig(), nil)

	err := s.Tick(context.Background())
	require.NoError(t, err)
}

func TestTick_PublishesAndReconcilesSuccessAndFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := outboxmock.NewMockStore(ctrl)
	pub := publishermock.NewMockPublisher(ctrl)
	repo := outboxmock.NewMockRepository(ctrl)

	okID := uuid.New()
	failID := uuid.New()

	store.EXPECT().FetchCandidateIDs(gomock.Any(), gomock.Any()).Return([]uuid.UUID{okID, failID}, nil)

	rows := []outbox.OutboxRow{
		{ID: okID, Topic: "events.ok", Data: []byte("a"), EntityID: "tx-1", EntityType: outbox.EntityTypeTransaction, MaxRetries: 5},
		{ID: failID, Topic: "events.fail", Data: []byte("b"), EntityID: "tx-2", EntityType: outbox.EntityTypeTransaction, RetryCount: 0, MaxRetries: 5},
	}
	store.EXPECT().Lease(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(rows, nil)

	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg publisher.Message) error {
		if msg.Topic == "events.fail" {
			return errors.New("broker unavailable")
		}
		return nil
	}).Times(2)

	repo.EXPECT().MarkPublished(gomock.Any(), okID, gomock.Any()).Return(nil)
	repo.EXPECT().MarkFailed(gomock.Any(), failID, 1).Return(nil)

	store.EXPECT().Reconcile(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, succeeded, failed []uuid.UUID, _ outbox.FetchOptions) error {
			assert.ElementsMatch(t, []uuid.UUID{okID}, succeeded)
			assert.ElementsMatch(t, []uuid.UUID{failID}, failed)
			return nil
		})

	s := New(store, pub, repo, DefaultConfig(), nil)

	err := s.Tick(context.Background())
	require.NoError(t, err)
}

func TestReconcileFailure_RoutesToDLQWhenRetriesExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := outboxmock.NewMockStore(ctrl)
	pub := publishermock.NewMockPublisher(ctrl)
	repo := outboxmock.NewMockRepository(ctrl)

	id := uuid.New()
	row := outbox.OutboxRow{ID: id, EntityID: "tx-1", EntityType: outbox.EntityTypeTransaction, RetryCount: 4, MaxRetries: 5}

	repo.EXPECT().MarkDLQ(gomock.Any(), id).Return(nil)

	s := New(store, pub, repo, DefaultConfig(), nil)
	s.reconcileFailure(context.Background(), row)
}

func TestReconcileFailure_NoRepo_IsNoOp(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := outboxmock.NewMockStore(ctrl)
	pub := publishermock.NewMockPublisher(ctrl)

	row := outbox.OutboxRow{ID: uuid.New(), EntityID: "tx-1", RetryCount: 0, MaxRetries: 5}

	s := New(store, pub, nil, DefaultConfig(), nil)
	assert.NotPanics(t, func() { s.reconcileFailure(context.Background(), row) })
}

func TestWake_CoalescesDuplicateSignals(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := outboxmock.NewMockStore(ctrl)
	pub := publishermock.NewMockPublisher(ctrl)

	s := New(store, pub, nil, DefaultConfig(), nil)

	s.Wake()
	s.Wake()
	s.Wake()

	select {
	case <-s.wake:
	default:
		t.Fatal("expected one queued wake signal")
	}

	select {
	case <-s.wake:
		t.Fatal("expected wake channel to be drained after one receive")
	default:
	}
}

func TestNewShardPermutation_IsPermutationOfRange(t *testing.T) {
	seq := newShardPermutation(8)
	require.Len(t, seq, 8)

	seen := make(map[int]bool)
	for _, v := range seq {
		seen[v] = true
	}

	for i := 0; i < 8; i++ {
		assert.True(t, seen[i], "missing shard value %d in permutation", i)
	}
}

func TestNextShardValue_RoundRobinCyclesThroughPermutation(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := outboxmock.NewMockStore(ctrl)
	pub := publishermock.NewMockPublisher(ctrl)

	cfg := DefaultConfig()
	cfg.Shard = &outbox.ShardPolicy{Column: "shard", Count: 4, RoundRobin: true}

	s := New(store, pub, nil, cfg, nil)

	seen := make(map[int]int)
	for i := 0; i < 8; i++ {
		v := s.nextShardValue()
		require.NotNil(t, v)
		seen[*v]++
	}

	assert.Len(t, seen, 4)
	for _, count := range seen {
		assert.Equal(t, 2, count)
	}
}

func TestNextShardValue_DisabledSharding_ReturnsNil(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := outboxmock.NewMockStore(ctrl)
	pub := publishermock.NewMockPublisher(ctrl)

	s := New(store, pub, nil, DefaultConfig(), nil)
	assert.Nil(t, s.nextShardValue())
}

func TestRun_StopsWhenContextCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := outboxmock.NewMockStore(ctrl)
	pub := publishermock.NewMockPublisher(ctrl)

	store.EXPECT().FetchCandidateIDs(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	cfg := DefaultConfig()
	cfg.PollingInterval = 10 * time.Millisecond

	s := New(store, pub, nil, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
