package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to ConsultationStatus }{
		{StatusPending, StatusAssigned},
		{StatusPending, StatusCancelled},
		{StatusAssigned, StatusInProgress},
		{StatusAssigned, StatusCancelled},
		{StatusInProgress, StatusCompleted},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	forbidden := []struct{ from, to ConsultationStatus }{
		{StatusPending, StatusInProgress},
		{StatusPending, StatusCompleted},
		{StatusAssigned, StatusCompleted},
		{StatusInProgress, StatusCancelled},
		{StatusInProgress, StatusAssigned},
		{StatusCompleted, StatusInProgress},
		{StatusCompleted, StatusCancelled},
		{StatusCancelled, StatusPending},
		{StatusCancelled, StatusAssigned},
	}
	for _, tc := range forbidden {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be illegal", tc.from, tc.to)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, to := range []ConsultationStatus{StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled} {
		assert.False(t, CanTransition(StatusCompleted, to))
		assert.False(t, CanTransition(StatusCancelled, to))
	}
}

func TestServiceTypeValid(t *testing.T) {
	for _, s := range ServiceTypes {
		assert.True(t, s.Valid())
	}
	assert.False(t, ServiceType("dermatology").Valid())
	assert.False(t, ServiceType("").Valid())
}

func TestConsultationStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusCancelled.Valid())
	assert.False(t, ConsultationStatus("archived").Valid())
}

func TestCertificateTypeValid(t *testing.T) {
	assert.True(t, CertSickLeave.Valid())
	assert.True(t, CertGeneralMedical.Valid())
	assert.False(t, CertificateType("jury_duty").Valid())
}

func TestUserRoleValid(t *testing.T) {
	assert.True(t, RolePatient.Valid())
	assert.True(t, RoleDoctor.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, UserRole("nurse").Valid())
}

func TestOtpUsable(t *testing.T) {
	now := time.Now()

	fresh := OtpVerification{ExpiresAt: now.Add(10 * time.Minute)}
	assert.True(t, fresh.Usable(now))
	assert.False(t, fresh.Expired(now))

	expired := OtpVerification{ExpiresAt: now.Add(-time.Second)}
	assert.True(t, expired.Expired(now))
	assert.False(t, expired.Usable(now))

	used := OtpVerification{ExpiresAt: now.Add(10 * time.Minute), Verified: true}
	assert.False(t, used.Usable(now))

	// Boundary: a code is unusable at the exact expiry instant.
	atBoundary := OtpVerification{ExpiresAt: now}
	assert.True(t, atBoundary.Expired(now))
}

func TestUserFullName(t *testing.T) {
	assert.Equal(t, "Alice Nguyen", User{FirstName: "Alice", LastName: "Nguyen"}.FullName())
	assert.Equal(t, "Alice", User{FirstName: "Alice"}.FullName())
	assert.Equal(t, "Nguyen", User{LastName: "Nguyen"}.FullName())
}
