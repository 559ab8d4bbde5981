package share

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_ShareByPatientAndDoctor(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service()

	byPatient, err := svc.Share(ctx, f.prescriptionID, f.patientID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, byPatient.Token)

	byDoctor, err := svc.Share(ctx, f.prescriptionID, f.doctorID, 48*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, byDoctor.ExpiresAt)

	view, err := svc.Resolve(ctx, byDoctor.Token)
	require.NoError(t, err)
	assert.Equal(t, byDoctor.TokenHint, view.TokenHint)
}

func TestService_ShareDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.service().Share(ctx, f.prescriptionID, f.strangerID, 0)
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Zero(t, f.store.Count())

	_, err = f.service().Share(ctx, uuid.New(), f.patientID, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ShareLookupError(t *testing.T) {
	f := newFixture()
	dbErr := errors.New("too many connections")
	f.prescriptions.err = dbErr

	_, err := f.service().Share(context.Background(), f.prescriptionID, f.patientID, 0)
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service()

	for i := 0; i < 3; i++ {
		_, err := svc.Share(ctx, f.prescriptionID, f.patientID, 0)
		require.NoError(t, err)
	}

	items, err := svc.List(ctx, f.prescriptionID, f.doctorID)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	for _, it := range items {
		assert.Empty(t, it.Token)
	}

	_, err = svc.List(ctx, f.prescriptionID, f.strangerID)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestService_RevokeFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service()

	first, err := svc.Share(ctx, f.prescriptionID, f.patientID, 0)
	require.NoError(t, err)
	_, err = svc.Share(ctx, f.prescriptionID, f.patientID, 0)
	require.NoError(t, err)

	changed, err := svc.RevokeToken(ctx, first.ID, f.patientID)
	require.NoError(t, err)
	assert.True(t, changed)

	n, err := svc.RevokeAll(ctx, f.prescriptionID, f.patientID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.Resolve(ctx, first.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type recordingObserver struct {
	issued   int
	revoked  int
	outcomes []string
}

func (o *recordingObserver) Issued()                 { o.issued++ }
func (o *recordingObserver) Resolved(outcome string) { o.outcomes = append(o.outcomes, outcome) }
func (o *recordingObserver) Revoked(n int)           { o.revoked += n }

func TestService_Observer(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	obs := &recordingObserver{}
	svc := f.service().WithObserver(obs)

	issued, err := svc.Share(ctx, f.prescriptionID, f.patientID, 0)
	require.NoError(t, err)
	_, err = svc.Share(ctx, f.prescriptionID, f.doctorID, 0)
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, issued.Token)
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, "not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	n, err := svc.RevokeAll(ctx, f.prescriptionID, f.patientID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	_, err = svc.RevokeAll(ctx, f.prescriptionID, f.strangerID)
	require.ErrorIs(t, err, ErrAccessDenied)

	assert.Equal(t, 2, obs.issued)
	assert.Equal(t, 2, obs.revoked)
	assert.Equal(t, []string{OutcomeOK, OutcomeInvalid}, obs.outcomes)
}
