package common

import "github.com/gin-gonic/gin"

type response struct {
	Success bool   `json:"success"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func OK(c *gin.Context, data any) {
	c.JSON(200, response{Success: true, Data: data})
}

func Accepted(c *gin.Context, data any) {
	c.JSON(202, response{Success: true, Data: data})
}

func Fail(c *gin.Context, httpStatus, code int, msg string) {
	c.JSON(httpStatus, response{Success: false, Code: code, Message: msg})
}
