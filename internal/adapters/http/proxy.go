package http

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/melih/lighthouse-boot/internal/core/ports"
)

// targetTTL bounds how long a resolved app address is reused.
const targetTTL = 5 * time.Second

// ProxyHandler manages reverse proxying for subdomains.
type ProxyHandler struct {
	service ports.ContainerService
	domain  string
	targets *expirable.LRU[string, string]
}

// NewProxyHandler creates a new proxy handler for <app>.<domain> hosts.
func NewProxyHandler(service ports.ContainerService, domain string) *ProxyHandler {
	return &ProxyHandler{
		service: service,
		domain:  domain,
		targets: expirable.NewLRU[string, string](256, nil, targetTTL),
	}
}

// ProxyRequest intercepts requests to subdomains (e.g., app-name.localhost)
// and routes them to the corresponding container's internal IP on the port
// the app declared at start.
func (h *ProxyHandler) ProxyRequest(c *fiber.Ctx) error {
	subdomain := h.subdomain(c.Hostname())

	// Skip common subdomains or empty ones
	if subdomain == "" || subdomain == "www" {
		return c.Next()
	}

	target, err := h.resolve(c, subdomain)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to list containers")
	}
	if target == "" {
		return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("App '%s' not found or not running", subdomain))
	}

	remote, err := url.Parse("http://" + target)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Invalid target URL")
	}

	proxy := httputil.NewSingleHostReverseProxy(remote)

	// Rewrite Host so the app sees the address it is bound to.
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = remote.Host
		req.URL.Host = remote.Host
		req.URL.Scheme = remote.Scheme
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		h.targets.Remove(subdomain)
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "Proxy Info: target=%s error=%v", target, err)
	}

	// Fiber <-> Net/HTTP Adaptor
	return adaptor.HTTPHandler(proxy)(c)
}

// resolve returns ip:port of the running container named app, or "".
func (h *ProxyHandler) resolve(c *fiber.Ctx, app string) (string, error) {
	if target, ok := h.targets.Get(app); ok {
		return target, nil
	}

	containers, err := h.service.ListContainers(c.Context())
	if err != nil {
		return "", err
	}
	for _, container := range containers {
		// Only proxy to running containers
		if container.Name != app || !container.Running() {
			continue
		}
		if container.IPAddress == "" || container.Port == 0 {
			continue
		}
		target := net.JoinHostPort(container.IPAddress, strconv.Itoa(container.Port))
		h.targets.Add(app, target)
		return target, nil
	}
	return "", nil
}

// subdomain returns the app label of host under h.domain, or "".
func (h *ProxyHandler) subdomain(host string) string {
	if hostname, _, err := net.SplitHostPort(host); err == nil {
		host = hostname
	}
	host = strings.ToLower(host)

	if h.domain != "" {
		suffix := "." + strings.ToLower(h.domain)
		if !strings.HasSuffix(host, suffix) {
			return ""
		}
		host = strings.TrimSuffix(host, suffix)
		if i := strings.LastIndex(host, "."); i >= 0 {
			host = host[i+1:]
		}
		return host
	}

	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}
