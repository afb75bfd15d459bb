package main

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/minutes/cmd/minutes/internal/api"
	"github.com/houzhh15/minutes/cmd/minutes/internal/config"
	"github.com/houzhh15/minutes/cmd/minutes/internal/orchestrator"
	"github.com/houzhh15/minutes/cmd/minutes/internal/transcript"
	"github.com/houzhh15/minutes/cmd/minutes/internal/whisper"
	"github.com/houzhh15/minutes/pkg/logger"
)

func TestCloseSessionEndsEventStreams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logger.Discard()
	feed := transcript.NewFeed(log)
	orch := orchestrator.New(config.Default(), orchestrator.Deps{
		Engine: orchestrator.NewStaticEngine(whisper.NewMockTranscriber(log)),
		Feed:   feed,
		Log:    log,
	})
	srv, err := api.Start("127.0.0.1:0", api.NewRouter(orch, log), log)
	require.NoError(t, err)

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/transcript/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool { return feed.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	closeSession(orch, srv, log)
	assert.Less(t, time.Since(start), shutdownTimeout/2, "shutdown must not wait on open streams")

	_, err = io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Zero(t, feed.Subscribers())

	closeSession(orch, nil, log)
}
