package endpoint

import (
	"fmt"
	"net/http"

	"github.com/freedocau/freedoc-api/util"
	"github.com/gin-gonic/gin"
)

// DownloadConsultationDocument godoc
// @Summary      Download the generated document for a consultation
// @Description  Serves the generated HTML document. Visible to the owning patient, the assigned doctor and admins.
// @Tags         Consultation
// @Produce      html
// @Security     SessionToken
// @Param        id path int true "Consultation ID"
// @Success      200 {string} string "Document HTML"
// @Failure      403 {object} util.APIResponse "Forbidden"
// @Failure      404 {object} util.APIResponse "No document"
// @Router       /consultations/{id}/document [get]
func DownloadConsultationDocument(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	consultation, ok := loadConsultationOrRespond(c, db)
	if !ok {
		return
	}

	if !canViewConsultation(c, db, consultation) {
		util.CallForbidden(c, util.APIErrorParams{
			Msg: "Not permitted to view this document",
			Err: fmt.Errorf("consultation belongs to another patient"),
		})
		return
	}

	if consultation.GeneratedDocumentHTML == "" {
		util.CallErrorNotFound(c, util.APIErrorParams{
			Msg: "No document has been generated for this consultation",
			Err: fmt.Errorf("document not generated"),
		})
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, consultation.GeneratedDocumentHTML)
}
