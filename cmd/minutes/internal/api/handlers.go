package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/minutes/cmd/minutes/internal/transcript"
)

func handleHealthz() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// handleSession GET /api/v1/session
func handleSession(st Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    st.Progress(),
		})
	}
}

// handleTranscript GET /api/v1/transcript
// ?format=text 返回纯文本，否则返回片段列表
func handleTranscript(st Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		segs := st.Segments()
		if c.Query("format") == "text" {
			c.String(http.StatusOK, transcript.Join(segs))
			return
		}
		if segs == nil {
			segs = []transcript.Segment{}
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"segments": segs,
				"text":     transcript.Join(segs),
			},
		})
	}
}

// handleEvents GET /api/v1/transcript/events
// 以 server-sent events 推送每个追加的片段，直到客户端断开或会话服务关闭
func handleEvents(st Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		ch, cancel := st.Subscribe()
		defer cancel()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
		c.Writer.Flush()

		for {
			select {
			case seg, ok := <-ch:
				if !ok {
					return
				}
				c.SSEvent("segment", seg)
				c.Writer.Flush()
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

// handleEngineHealth GET /api/v1/engine/health
// 降级时返回 503，便于外部探测
func handleEngineHealth(st Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		es := st.EngineStatus()
		code := http.StatusOK
		if es.Degraded {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"success": !es.Degraded,
			"data":    es,
		})
	}
}
