package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dkeye/callplane/internal/app/orch"
	"github.com/dkeye/callplane/internal/domain"
	"github.com/gin-gonic/gin"
)

const maxCustomBody = 8 << 20

type handlers struct {
	orch *orch.Orchestrator
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) session(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Snapshot())
}

func (h *handlers) customAudio(c *gin.Context) {
	data, ok := readBody(c)
	if !ok {
		return
	}
	f := domain.AudioFrame{
		Data:       data,
		SampleRate: queryInt(c, "sample_rate", 0),
		Bits:       queryInt(c, "bits", 16),
		Channels:   queryInt(c, "channels", 1),
	}
	respond(c, h.orch.Session.PushAudio(f))
}

func (h *handlers) customVideo(c *gin.Context) {
	data, ok := readBody(c)
	if !ok {
		return
	}
	f := domain.VideoFrame{
		Data:   data,
		Width:  queryInt(c, "width", 0),
		Height: queryInt(c, "height", 0),
	}
	respond(c, h.orch.Session.PushVideo(f))
}

func readBody(c *gin.Context) ([]byte, bool) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCustomBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if len(data) > maxCustomBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "frame too large"})
		return nil, false
	}
	return data, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

func respond(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, domain.ErrInvalidMedia):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrCustomDisabled), errors.Is(err, domain.ErrInvalidOperation):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
