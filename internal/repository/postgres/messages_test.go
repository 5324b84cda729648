package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagecover/claims-intake/internal/domain"
)

func newMockMessageRepo(t *testing.T) (*MessageRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMessageRepo(db), mock
}

func TestProcessed(t *testing.T) {
	repo, mock := newMockMessageRepo(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("msg-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	done, err := repo.Processed(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.True(t, done)
}

// A concurrent worker recording the same provider id first is not an error.
func TestRecordToleratesDuplicate(t *testing.T) {
	repo, mock := newMockMessageRepo(t)

	mock.ExpectExec(`INSERT INTO inbound_messages`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "inbound_messages_pkey"})

	err := repo.Record(context.Background(), &domain.MessageRecord{
		ProviderID:  "msg-1",
		Disposition: domain.DispositionNewClaim,
		ReceivedAt:  time.Now().UTC(),
		ProcessedAt: time.Now().UTC(),
	})
	assert.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEarlierMessageInThread(t *testing.T) {
	repo, mock := newMockMessageRepo(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`FROM inbound_messages`).
		WithArgs("thread-1", now).
		WillReturnRows(sqlmock.NewRows([]string{
			"provider_id", "thread_id", "sender", "subject", "claim_id",
			"disposition", "received_at", "processed_at",
		}).AddRow("msg-0", "thread-1", "a@b.com", "Claim", "claim-9", "new_claim", now.Add(-time.Hour), now.Add(-time.Hour)))

	rec, err := repo.EarlierMessageInThread(context.Background(), "thread-1", now)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "msg-0", rec.ProviderID)
	assert.Equal(t, "claim-9", rec.ClaimID)
}

func TestEarlierMessageInThreadFresh(t *testing.T) {
	repo, mock := newMockMessageRepo(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`FROM inbound_messages`).
		WithArgs("thread-2", now).
		WillReturnRows(sqlmock.NewRows([]string{"provider_id"}))

	rec, err := repo.EarlierMessageInThread(context.Background(), "thread-2", now)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

// An empty thread id never hits the database; providers without threading
// would otherwise correlate unrelated messages.
func TestEarlierMessageEmptyThreadSkipsQuery(t *testing.T) {
	repo, mock := newMockMessageRepo(t)

	rec, err := repo.EarlierMessageInThread(context.Background(), "", time.Now())
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestClaimBySender(t *testing.T) {
	repo, mock := newMockMessageRepo(t)

	mock.ExpectQuery(`FROM claims`).
		WithArgs("a@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("claim-3"))

	id, err := repo.LatestClaimBySender(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "claim-3", id)
}

func TestLatestClaimBySenderNone(t *testing.T) {
	repo, mock := newMockMessageRepo(t)

	mock.ExpectQuery(`FROM claims`).
		WithArgs("new@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	id, err := repo.LatestClaimBySender(context.Background(), "new@b.com")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestDeadLetter(t *testing.T) {
	repo, mock := newMockMessageRepo(t)

	mock.ExpectExec(`INSERT INTO dead_letter_messages`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.DeadLetter(context.Background(), "msg-bad", []byte(`{"broken":true}`), "missing payload")
	assert.NoError(t, err)
}
