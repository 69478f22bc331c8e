package http

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/melih/lighthouse-boot/internal/core/domain"
	"github.com/melih/lighthouse-boot/internal/core/ports"
	"github.com/melih/lighthouse-boot/internal/core/services/bootstrap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Bootstrapper is the part of the bootstrap sequencer the API drives.
type Bootstrapper interface {
	Build(ctx context.Context, in bootstrap.BuildInput) (*domain.Build, error)
	Start(ctx context.Context, id string, opts bootstrap.StartOptions) (*domain.Build, error)
	Get(ctx context.Context, id string) (*domain.Build, error)
	List(ctx context.Context) ([]*domain.Build, error)
}

type ContainerHandler struct {
	service   ports.ContainerService
	bootstrap Bootstrapper
}

func NewContainerHandler(service ports.ContainerService, bootstrap Bootstrapper) *ContainerHandler {
	return &ContainerHandler{service: service, bootstrap: bootstrap}
}

func (h *ContainerHandler) ListContainers(c *fiber.Ctx) error {
	containers, err := h.service.ListContainers(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(containers)
}

type StartContainerRequest struct {
	// BuildID starts the image of a finished build with its declared port.
	BuildID string   `json:"build_id"`
	Name    string   `json:"name" validate:"omitempty,max=128"`
	Env     []string `json:"env" validate:"dive,required"`

	// Image and Port start a prebuilt registry image instead.
	Image string `json:"image"`
	Port  int    `json:"port" validate:"omitempty,min=1,max=65535"`
}

func (h *ContainerHandler) StartContainer(c *fiber.Ctx) error {
	var req StartContainerRequest
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

	if req.BuildID != "" {
		build, err := h.bootstrap.Start(c.Context(), req.BuildID, bootstrap.StartOptions{
			Name: req.Name,
			Env:  req.Env,
		})
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{
				"error": err.Error(),
				"build": build,
			})
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":    build.ContainerID,
			"image": build.Image,
			"port":  build.Port,
			"build": build,
		})
	}

	// Pull existing image
	if req.Image == "" || req.Port == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "build_id, or image and port, is required",
		})
	}
	containerID, err := h.service.StartContainer(c.Context(), ports.RunSpec{
		Image: req.Image,
		Name:  req.Name,
		Port:  req.Port,
		Env:   req.Env,
		Pull:  true,
	})
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":    containerID,
		"image": req.Image,
		"port":  req.Port,
	})
}

func (h *ContainerHandler) StopContainer(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Container ID is required",
		})
	}

	if err := h.service.StopContainer(c.Context(), id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *ContainerHandler) GetContainerLogs(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Container ID is required",
		})
	}

	logs, err := h.service.GetContainerLogs(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	// SendStream closes the reader once the body is written.
	c.Set("Content-Type", "text/plain")
	return c.SendStream(logs)
}

// statusFor maps bootstrap errors to HTTP statuses.
func statusFor(err error) int {
	var buildErr *domain.BuildError
	var startErr *domain.StartError
	switch {
	case errors.Is(err, domain.ErrBuildNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrPortMismatch),
		errors.Is(err, domain.ErrUnpinnedImage),
		errors.Is(err, domain.ErrLoopbackBind),
		errors.Is(err, domain.ErrRelativeWorkDir),
		errors.Is(err, domain.ErrDuplicateEnv),
		errors.Is(err, domain.ErrLineBreak),
		errors.Is(err, domain.ErrInstallManifest):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrUnpinnedRequirement),
		errors.Is(err, domain.ErrDuplicateRequirement),
		errors.Is(err, domain.ErrEmptyManifest),
		errors.Is(err, domain.ErrLocalReplace),
		errors.As(err, &buildErr),
		errors.As(err, &startErr):
		return fiber.StatusUnprocessableEntity
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}
