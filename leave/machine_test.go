package leave

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_TransitionTable(t *testing.T) {
	tests := []struct {
		from    Status
		event   Event
		to      Status
		effects []Effect
	}{
		{StatusPending, EventApprove, StatusApproved, []Effect{EffectSign}},
		{StatusPending, EventReject, StatusRejected, []Effect{EffectSign, EffectReverse}},
		{StatusPending, EventRevise, StatusPending, []Effect{EffectReapply}},
		{StatusPending, EventCancel, StatusCanceled, []Effect{EffectReverse}},
		{StatusApproved, EventRevise, StatusPending, []Effect{EffectReapply}},
		{StatusApproved, EventCancel, StatusCanceled, []Effect{EffectReverse}},
		{StatusRejected, EventRevise, StatusPending, []Effect{EffectReapply}},
		{StatusRejected, EventCancel, StatusCanceled, []Effect{EffectReverse}},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			tr, err := Next(tt.from, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.to, tr.To)
			assert.Equal(t, tt.effects, tr.Effects)
		})
	}
}

func TestNext_Rejected(t *testing.T) {
	tests := []struct {
		from  Status
		event Event
	}{
		{StatusApproved, EventApprove},
		{StatusApproved, EventReject},
		{StatusRejected, EventApprove},
		{StatusRejected, EventReject},
		{StatusCanceled, EventApprove},
		{StatusCanceled, EventReject},
		{StatusCanceled, EventRevise},
		{StatusCanceled, EventCancel},
		{StatusPending, EventCreate},
		{Status("archived"), EventCancel},
	}
	for _, tt := range tests {
		_, err := Next(tt.from, tt.event)
		var te *InvalidTransitionError
		require.ErrorAs(t, err, &te, "%s/%s", tt.from, tt.event)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		assert.Equal(t, tt.from, te.From)
	}
}

func TestAllowed(t *testing.T) {
	assert.Equal(t, []Event{EventApprove, EventReject, EventRevise, EventCancel}, Allowed(StatusPending))
	assert.Equal(t, []Event{EventRevise, EventCancel}, Allowed(StatusApproved))
	assert.Empty(t, Allowed(StatusCanceled))
}

func TestEffectString(t *testing.T) {
	assert.Equal(t, "sign", EffectSign.String())
	assert.Equal(t, "reapply", EffectReapply.String())
	assert.Equal(t, "unknown", Effect(42).String())
}

func TestInvalidTransitionMessage(t *testing.T) {
	err := &InvalidTransitionError{From: StatusCanceled, Event: EventCancel}
	assert.Equal(t, "cannot cancel a canceled application", err.Error())
}

func TestDefaultSigner(t *testing.T) {
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	s := DefaultSigner{Now: func() time.Time { return now }}

	sig, err := s.Sign(context.Background(), Application{ID: "app-1"}, "mgr-1", EventApprove)
	require.NoError(t, err)
	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, "app-1", sig.ApplicationID)
	assert.Equal(t, now, sig.SignedAt)

	_, err = s.Sign(context.Background(), Application{ID: "app-1"}, "", EventReject)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, c.Valid())
	}
	assert.Len(t, Categories, 3)
	assert.False(t, Category("annual").Valid())
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsClientError(&ValidationError{Field: "x", Reason: "y"}))
	assert.True(t, IsClientError(&LedgerInconsistencyError{ApplicationID: "a", Event: EventCancel}))
	assert.True(t, IsNotFound(ErrApplicationNotFound))
	assert.False(t, IsClientError(errors.New("disk full")))
	assert.Equal(t, "rejected", resultLabel(&InvalidTransitionError{}))
	assert.Equal(t, "not_found", resultLabel(ErrApplicationNotFound))
	assert.Equal(t, "ok", resultLabel(nil))
	assert.Equal(t, "error", resultLabel(errors.New("x")))
}
