package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swachh/portal-core/internal/domain/model"
	apperrors "github.com/swachh/portal-core/internal/errors"
	"github.com/swachh/portal-core/internal/ports"
	"github.com/swachh/portal-core/internal/testutil"
)

func seedEvent(t *testing.T, repo *RecordRepo, createdBy, date string) model.Event {
	t.Helper()
	desc := "cleanup: bring gloves"
	rec := model.Event{
		ID:          uuid.NewString(),
		Title:       "Lake cleanup " + date,
		Description: &desc,
		EventDate:   date,
		EventTime:   testutil.StringPtr("07:30"),
		Location:    "Gate 2",
		Status:      model.EventUpcoming,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now().UTC(),
	}
	var stored model.Event
	require.NoError(t, repo.Insert(context.Background(), ports.CollectionEvents, rec, &stored))
	return stored
}

func TestRecordRepo_InsertComplaintAndQuery(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewRecordRepo(db)
		ctx := context.Background()
		userID := uuid.NewString()
		base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

		for i, cat := range []model.ComplaintCategory{model.CategoryDrainBlockage, model.CategoryOther} {
			rec := model.Complaint{
				ID:          uuid.NewString(),
				Category:    cat,
				Description: "water logging",
				Location:    "Ward 3",
				Status:      model.ComplaintPending,
				UserID:      userID,
				CreatedAt:   base.Add(time.Duration(i) * time.Hour),
			}
			var stored model.Complaint
			require.NoError(t, repo.Insert(ctx, ports.CollectionComplaints, rec, &stored))
			assert.Equal(t, rec.ID, stored.ID)
			assert.Equal(t, model.ComplaintPending, stored.Status)
			assert.True(t, rec.CreatedAt.Equal(stored.CreatedAt))
		}

		var got []model.Complaint
		err := repo.Query(ctx, ports.CollectionComplaints, ports.Where("user_id", userID),
			ports.Order{Column: "created_at", Descending: true}, &got)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, model.CategoryOther, got[0].Category, "newest first")

		var none []model.Complaint
		require.NoError(t, repo.Query(ctx, ports.CollectionComplaints, ports.Where("user_id", uuid.NewString()), ports.Order{}, &none))
		assert.Empty(t, none)
	})
}

func TestRecordRepo_EventRoundTrip(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewRecordRepo(db)
		stored := seedEvent(t, repo, uuid.NewString(), "2024-06-05")

		assert.Equal(t, "2024-06-05", stored.EventDate)
		require.NotNil(t, stored.EventTime)
		assert.Equal(t, "07:30:00", *stored.EventTime)
		assert.Nil(t, stored.MaxParticipants)
	})
}

func TestRecordRepo_QueryEventsByIDSet(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewRecordRepo(db)
		ctx := context.Background()
		owner := uuid.NewString()
		late := seedEvent(t, repo, owner, "2024-07-01")
		early := seedEvent(t, repo, owner, "2024-06-01")
		seedEvent(t, repo, owner, "2024-06-15")

		var got []model.Event
		require.NoError(t, repo.Query(ctx, ports.CollectionEvents, ports.WhereIn("id", late.ID, early.ID),
			ports.Order{Column: "event_date"}, &got))
		require.Len(t, got, 2)
		assert.Equal(t, early.ID, got[0].ID)
		assert.Equal(t, late.ID, got[1].ID)

		var none []model.Event
		require.NoError(t, repo.Query(ctx, ports.CollectionEvents, ports.WhereIn("id"), ports.Order{}, &none))
		assert.Empty(t, none, "an empty set matches nothing")

		var all []model.Event
		require.NoError(t, repo.Query(ctx, ports.CollectionEvents, ports.Filter{}, ports.Order{Column: "event_date"}, &all))
		require.Len(t, all, 3)
		assert.Equal(t, "2024-06-15", all[1].EventDate)
	})
}

func TestRecordRepo_DuplicateRegistration(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewRecordRepo(db)
		ctx := context.Background()
		userID := uuid.NewString()
		event := seedEvent(t, repo, userID, "2024-06-05")

		reg := model.EventRegistration{ID: uuid.NewString(), EventID: event.ID, UserID: userID, RegisteredAt: time.Now().UTC()}
		require.NoError(t, repo.Insert(ctx, ports.CollectionRegistrations, reg, nil))

		reg.ID = uuid.NewString()
		err := repo.Insert(ctx, ports.CollectionRegistrations, reg, nil)
		require.ErrorIs(t, err, ports.ErrUniqueViolation)
		assert.True(t, apperrors.IsConflict(err))
	})
}

func TestRecordRepo_RejectsUnknownColumns(t *testing.T) {
	repo := NewRecordRepo(nil)
	ctx := context.Background()

	var out []model.Complaint
	err := repo.Query(ctx, ports.CollectionComplaints, ports.Where("password", "x"), ports.Order{}, &out)
	require.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "password", apperrors.GetField(err))

	err = repo.Query(ctx, ports.CollectionComplaints, ports.WhereIn("secret", "x"), ports.Order{}, &out)
	require.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "secret", apperrors.GetField(err))

	err = repo.Query(ctx, ports.CollectionComplaints, ports.Filter{}, ports.Order{Column: "id; DROP"}, &out)
	require.True(t, apperrors.IsValidation(err))

	err = repo.Query(ctx, ports.Collection("profiles"), ports.Filter{}, ports.Order{}, &out)
	require.ErrorIs(t, err, ErrUnknownCollection)
	assert.True(t, apperrors.IsNotFound(err))
}
