package http

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-boot/internal/core/domain"
)

func TestSubdomain(t *testing.T) {
	h := NewProxyHandler(&fakeContainers{}, "localhost")

	assert.Equal(t, "dashboard", h.subdomain("dashboard.localhost"))
	assert.Equal(t, "dashboard", h.subdomain("Dashboard.localhost:3000"))
	assert.Equal(t, "dashboard", h.subdomain("www.dashboard.localhost"))
	assert.Equal(t, "", h.subdomain("localhost:3000"))
	assert.Equal(t, "", h.subdomain("dashboard.example.com"))

	bare := NewProxyHandler(&fakeContainers{}, "")
	assert.Equal(t, "dashboard", bare.subdomain("dashboard.example.com"))
	assert.Equal(t, "", bare.subdomain("localhost"))
}

func newProxyApp(c *fakeContainers) *fiber.App {
	app := fiber.New()
	app.Use(NewProxyHandler(c, "localhost").ProxyRequest)
	app.Get("/api/v1/containers", func(c *fiber.Ctx) error {
		return c.SendString("control plane")
	})
	return app
}

func TestProxyRequest_ForwardsToDeclaredPort(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "dashboard at "+r.URL.Path)
	}))
	defer backend.Close()

	host, portStr, err := net.SplitHostPort(backend.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	containers := &fakeContainers{containers: []domain.Container{
		{Name: "dashboard", State: "exited", IPAddress: "192.0.2.1", Port: 1},
		{Name: "dashboard", State: "running", IPAddress: host, Port: port},
	}}
	app := newProxyApp(containers)

	for _, path := range []string{"/healthz", "/api/snapshot"} {
		req := httptest.NewRequest("GET", path, nil)
		req.Host = "dashboard.localhost:3000"
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "dashboard at "+path, string(body))
	}
	assert.Equal(t, 1, containers.lists, "resolved target is reused")
}

func TestProxyRequest_UnknownApp(t *testing.T) {
	app := newProxyApp(&fakeContainers{})

	req := httptest.NewRequest("GET", "/", nil)
	req.Host = "missing.localhost"
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestProxyRequest_PassesThroughControlPlane(t *testing.T) {
	app := newProxyApp(&fakeContainers{})

	req := httptest.NewRequest("GET", "/api/v1/containers", nil)
	req.Host = "localhost:3000"
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, "control plane", string(body))
}
