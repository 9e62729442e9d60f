package service

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/freedocau/freedoc-api/model"
	"github.com/google/uuid"
)

// DocumentGenerator renders prescriptions and medical certificates to HTML and
// writes them under a configured directory. Generation failures never block a
// consultation from completing; callers treat them as non-fatal.
type DocumentGenerator struct {
	dir string
}

// NewDocumentGenerator returns a generator writing into dir, creating it on
// first use.
func NewDocumentGenerator(dir string) *DocumentGenerator {
	return &DocumentGenerator{dir: dir}
}

var prescriptionTmpl = template.Must(template.New("prescription").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Prescription</title></head>
<body>
<h1>Prescription</h1>
<p><strong>Patient:</strong> {{.PatientName}}</p>
<p><strong>Date of birth:</strong> {{.PatientDOB}}</p>
<p><strong>Prescriber:</strong> Dr {{.DoctorName}} ({{.DoctorLicense}})</p>
<hr>
<p><strong>Medication:</strong> {{.MedicationName}}</p>
<p><strong>Dosage:</strong> {{.Dosage}}</p>
<p><strong>Quantity:</strong> {{.Quantity}}</p>
<p><strong>Repeats:</strong> {{.Repeats}}</p>
{{if .Instructions}}<p><strong>Instructions:</strong> {{.Instructions}}</p>{{end}}
<hr>
<p>Issued {{.IssuedAt.Format "2 January 2006"}}{{if .ExpiresAt}}, valid until {{.ExpiresAt.Format "2 January 2006"}}{{end}}.</p>
</body>
</html>
`))

var certificateTmpl = template.Must(template.New("certificate").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Medical Certificate</title></head>
<body>
<h1>Medical Certificate</h1>
<p>This is to certify that <strong>{{.PatientName}}</strong> (date of birth {{.PatientDOB}})
was assessed by Dr {{.DoctorName}} ({{.DoctorLicense}}).</p>
<p><strong>Certificate type:</strong> {{.CertificateType}}</p>
<p><strong>Condition:</strong> {{.Condition}}</p>
<p>The patient is unfit for their usual activities from
<strong>{{.DateFrom.Format "2 January 2006"}}</strong> to
<strong>{{.DateTo.Format "2 January 2006"}}</strong> inclusive.</p>
{{if .Restrictions}}<p><strong>Restrictions:</strong> {{.Restrictions}}</p>{{end}}
<hr>
<p>Issued {{.IssuedAt.Format "2 January 2006"}}.</p>
</body>
</html>
`))

// PrescriptionDocument carries the fields rendered into a prescription.
type PrescriptionDocument struct {
	PatientName    string
	PatientDOB     string
	DoctorName     string
	DoctorLicense  string
	MedicationName string
	Dosage         string
	Quantity       string
	Repeats        int
	Instructions   string
	IssuedAt       time.Time
	ExpiresAt      *time.Time
}

// CertificateDocument carries the fields rendered into a medical certificate.
type CertificateDocument struct {
	PatientName     string
	PatientDOB      string
	DoctorName      string
	DoctorLicense   string
	CertificateType model.CertificateType
	Condition       string
	Restrictions    string
	DateFrom        time.Time
	DateTo          time.Time
	IssuedAt        time.Time
}

// GeneratePrescription renders and persists a prescription document,
// returning the file path and the rendered HTML.
func (g *DocumentGenerator) GeneratePrescription(doc PrescriptionDocument) (string, string, error) {
	var buf bytes.Buffer
	if err := prescriptionTmpl.Execute(&buf, doc); err != nil {
		return "", "", fmt.Errorf("failed to render prescription: %w", err)
	}
	path, err := g.write("prescription", buf.Bytes())
	if err != nil {
		return "", "", err
	}
	return path, buf.String(), nil
}

// GenerateCertificate renders and persists a medical certificate document,
// returning the file path and the rendered HTML.
func (g *DocumentGenerator) GenerateCertificate(doc CertificateDocument) (string, string, error) {
	var buf bytes.Buffer
	if err := certificateTmpl.Execute(&buf, doc); err != nil {
		return "", "", fmt.Errorf("failed to render certificate: %w", err)
	}
	path, err := g.write("certificate", buf.Bytes())
	if err != nil {
		return "", "", err
	}
	return path, buf.String(), nil
}

func (g *DocumentGenerator) write(kind string, html []byte) (string, error) {
	if err := os.MkdirAll(g.dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create document directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s.html", kind, uuid.NewString())
	path := filepath.Join(g.dir, name)
	if err := os.WriteFile(path, html, 0o640); err != nil {
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	return path, nil
}
