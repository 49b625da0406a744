package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/mediagrab/api/internal/model"
	"github.com/mediagrab/api/internal/service"
	"github.com/mediagrab/api/pkg/response"
)

type DownloadHandler struct {
	service   *service.DownloadService
	validator *validator.Validate
}

func NewDownloadHandler(svc *service.DownloadService, v *validator.Validate) *DownloadHandler {
	return &DownloadHandler{
		service:   svc,
		validator: v,
	}
}

// Download handles POST /api/download
// @Summary      Download media
// @Description  Lists formats when format is "auto", otherwise downloads and returns a retrieval reference
// @Tags         Download
// @Accept       json
// @Produce      json
// @Param        request body model.DownloadRequest true "Download request"
// @Success      200 {object} model.DownloadResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/download [post]
func (h *DownloadHandler) Download(c *fiber.Ctx) error {
	var req model.DownloadRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if req.Format == model.FormatAuto {
		result, err := h.service.Discover(c.Context(), req.URL)
		if err != nil {
			return response.FromError(c, err)
		}
		return response.OK(c, result)
	}

	result, err := h.service.Execute(c.Context(), &req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, result)
}

// Formats handles POST /api/formats
// @Summary      List formats
// @Description  Lists the video and audio encodings available for a URL
// @Tags         Download
// @Accept       json
// @Produce      json
// @Param        request body model.DiscoverRequest true "Discover request"
// @Success      200 {object} model.DiscoverResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/formats [post]
func (h *DownloadHandler) Formats(c *fiber.Ctx) error {
	var req model.DiscoverRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Discover(c.Context(), req.URL)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, result)
}

// Retrieve handles GET /api/download?file=
// @Summary      Retrieve artifact
// @Description  Streams a downloaded file as an attachment
// @Tags         Download
// @Produce      octet-stream
// @Param        file query string true "Retrieval reference"
// @Success      200 {file} binary
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/download [get]
func (h *DownloadHandler) Retrieve(c *fiber.Ctx) error {
	ref := c.Query("file")
	if ref == "" {
		return response.ValidationError(c, "file is required", nil)
	}

	stream, err := h.service.Open(ref)
	if err != nil {
		return response.FromError(c, err)
	}

	// the stream is closed by fasthttp once the body is written
	c.Attachment(stream.FileName)
	c.Set(fiber.HeaderContentType, stream.ContentType)
	return c.SendStream(stream, int(stream.Size))
}
