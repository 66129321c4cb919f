package api

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TagLab-io/taglab/internal/config"
	"github.com/TagLab-io/taglab/internal/logutil"
)

func TestNewRequiresPort(t *testing.T) {
	cfg := &config.Config{}
	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	apitest.Handler(api.Router).
		Get("/health").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal(`$.status`, "ok")).
		End()
}

func TestServerBaseContextCarriesLogger(t *testing.T) {
	api := newTestAPI(t)

	var buf bytes.Buffer
	ctx := logutil.WithLogger(context.Background(), zerolog.New(&buf))

	server := api.newServer(ctx)
	require.NotNil(t, server.BaseContext)

	// Request contexts inherit the serve logger, so handlers log through it
	// rather than the global fallback.
	logger := logutil.GetOrDefault(server.BaseContext(nil))
	logger.Info().Msg("carried")
	assert.Contains(t, buf.String(), "carried")
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t)

	apitest.Handler(api.Router).
		Get("/nonexistent").
		Expect(t).
		Status(http.StatusNotFound).
		End()
}
