package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vladimirov321/FitTrack/internal/model"
)

func Ping(c *gin.Context) {
	c.JSON(http.StatusOK, model.PingResponse{Message: "pong"})
}

// Root reports service status; when the caller presented a valid access
// token the response also names them.
func Root(c *gin.Context) {
	resp := model.RootResponse{
		Status:  "ok",
		Message: "FitTrack API running!",
	}
	if user := GetAuthUser(c); user != nil {
		resp.Email = user.Email
	}
	c.JSON(http.StatusOK, resp)
}
