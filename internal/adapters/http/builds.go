package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/melih/lighthouse-boot/internal/core/domain"
	"github.com/melih/lighthouse-boot/internal/core/services/bootstrap"
)

// BuildHandler exposes the bootstrap build step.
type BuildHandler struct {
	bootstrap Bootstrapper
	recipe    domain.Recipe
}

// NewBuildHandler serves builds using recipe unless a request carries its own.
func NewBuildHandler(bootstrap Bootstrapper, recipe domain.Recipe) *BuildHandler {
	return &BuildHandler{bootstrap: bootstrap, recipe: recipe}
}

type CreateBuildRequest struct {
	RepoURL string         `json:"repo_url" validate:"required,url"`
	Image   string         `json:"image"`
	Recipe  *domain.Recipe `json:"recipe"`
	// Start runs the image as soon as the build succeeds.
	Start bool   `json:"start"`
	Name  string `json:"name" validate:"omitempty,max=128"`
}

// CreateBuild blocks until the image is built (and started, when asked).
func (h *BuildHandler) CreateBuild(c *fiber.Ctx) error {
	var req CreateBuildRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	recipe := h.recipe
	if req.Recipe != nil {
		recipe = *req.Recipe
	}

	build, err := h.bootstrap.Build(c.Context(), bootstrap.BuildInput{
		Recipe: recipe,
		Source: domain.Source{RepoURL: req.RepoURL},
		Image:  req.Image,
	})
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": "Build failed: " + err.Error(),
			"build": build,
		})
	}

	if req.Start {
		build, err = h.bootstrap.Start(c.Context(), build.ID, bootstrap.StartOptions{Name: req.Name})
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{
				"error": "Start failed: " + err.Error(),
				"build": build,
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(build)
}

func (h *BuildHandler) GetBuild(c *fiber.Ctx) error {
	build, err := h.bootstrap.Get(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(build)
}

func (h *BuildHandler) ListBuilds(c *fiber.Ctx) error {
	builds, err := h.bootstrap.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(builds)
}

// RenderDockerfile returns the Dockerfile the configured recipe produces.
func (h *BuildHandler) RenderDockerfile(c *fiber.Ctx) error {
	dockerfile, err := bootstrap.Render(h.recipe)
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	c.Set("Content-Type", "text/plain")
	return c.Send(dockerfile)
}
