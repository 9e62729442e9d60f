package service

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/freedocau/freedoc-api/model"
	"github.com/stretchr/testify/assert"
)

func TestGeneratePrescription(t *testing.T) {
	dir := t.TempDir()
	g := NewDocumentGenerator(dir)

	path, html, err := g.GeneratePrescription(PrescriptionDocument{
		PatientName:    "Alice Nguyen",
		PatientDOB:     "1990-04-17",
		DoctorName:     "Grace Hopper",
		DoctorLicense:  "MED0012345",
		MedicationName: "Ventolin",
		Dosage:         "100mcg",
		Quantity:       "1 inhaler",
		Repeats:        2,
		Instructions:   "Two puffs as needed",
		IssuedAt:       time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	})
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, dir))
	assert.Contains(t, html, "Alice Nguyen")
	assert.Contains(t, html, "Ventolin")
	assert.Contains(t, html, "MED0012345")
	assert.Contains(t, html, "1 September 2026")

	written, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, html, string(written))
}

func TestGenerateCertificate(t *testing.T) {
	dir := t.TempDir()
	g := NewDocumentGenerator(dir)

	path, html, err := g.GenerateCertificate(CertificateDocument{
		PatientName:     "Bob Smith",
		PatientDOB:      "1985-01-02",
		DoctorName:      "Grace Hopper",
		DoctorLicense:   "MED0012345",
		CertificateType: model.CertSickLeave,
		Condition:       "Influenza",
		Restrictions:    "Rest at home",
		DateFrom:        time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		DateTo:          time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC),
		IssuedAt:        time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.NoError(t, err)
	assert.Contains(t, html, "Bob Smith")
	assert.Contains(t, html, "sick_leave")
	assert.Contains(t, html, "1 September 2026")
	assert.Contains(t, html, "3 September 2026")

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestCertificateEscapesHTML(t *testing.T) {
	g := NewDocumentGenerator(t.TempDir())

	_, html, err := g.GenerateCertificate(CertificateDocument{
		PatientName:     "<script>alert(1)</script>",
		CertificateType: model.CertGeneralMedical,
		Condition:       "ok",
		DateFrom:        time.Now(),
		DateTo:          time.Now(),
		IssuedAt:        time.Now(),
	})
	assert.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestUniqueDocumentFilenames(t *testing.T) {
	g := NewDocumentGenerator(t.TempDir())

	doc := PrescriptionDocument{PatientName: "A", MedicationName: "X", Dosage: "1", Quantity: "1", IssuedAt: time.Now()}
	p1, _, err := g.GeneratePrescription(doc)
	assert.NoError(t, err)
	p2, _, err := g.GeneratePrescription(doc)
	assert.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestNewMailerFromConfigFallsBackToLog(t *testing.T) {
	assert.IsType(t, LogMailer{}, NewMailerFromConfig(nil))
}
