package util

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Msg     string      `json:"msg"`
	Data    interface{} `json:"data"`
}

type APIErrorParams struct {
	Msg string
	Err error
}

type APISuccessParams struct {
	Msg  string
	Data interface{}
}

func errorResponse(params APIErrorParams) APIResponse {
	return APIResponse{
		Success: false,
		Error:   params.Err.Error(),
		Msg:     params.Msg,
		Data:    map[string]interface{}{},
	}
}

// CallErrorNotFound is for return API response not found
func CallErrorNotFound(c *gin.Context, params APIErrorParams) {
	c.JSON(http.StatusNotFound, errorResponse(params))
}

// CallUserError is for return error from user side
func CallUserError(c *gin.Context, params APIErrorParams) {
	c.JSON(http.StatusBadRequest, errorResponse(params))
}

// CallServerError is for return API response server error
func CallServerError(c *gin.Context, params APIErrorParams) {
	c.JSON(http.StatusInternalServerError, errorResponse(params))
}

// CallConflict is for state-machine violations and duplicate issuance
func CallConflict(c *gin.Context, params APIErrorParams) {
	c.JSON(http.StatusConflict, errorResponse(params))
}

// CallForbidden is for authenticated callers lacking the required role
func CallForbidden(c *gin.Context, params APIErrorParams) {
	c.JSON(http.StatusForbidden, errorResponse(params))
}

// CallTooManyRequests is for rate-limited callers
func CallTooManyRequests(c *gin.Context, params APIErrorParams) {
	c.JSON(http.StatusTooManyRequests, errorResponse(params))
}

// CallSuccessOK is for return API response with status code 200, you need to specify msg, and data as function parameter
func CallSuccessOK(c *gin.Context, params APISuccessParams) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Error:   "",
		Msg:     params.Msg,
		Data:    params.Data,
	})
}

// CallUserNotAuthorized is for return API response with status code 401
func CallUserNotAuthorized(c *gin.Context, params APIErrorParams) {
	c.JSON(http.StatusUnauthorized, APIResponse{
		Success: false,
		Error:   params.Err.Error(),
		Msg:     params.Msg,
	})
}

// NormalizeName normalizes a name by trimming leading/trailing whitespace
// and collapsing multiple internal spaces into single spaces.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	return strings.Join(strings.Fields(name), " ")
}

// NormalizeEmail lowercases and trims an email address so lookups and
// uniqueness checks behave consistently.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
