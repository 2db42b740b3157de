package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/taskmaster/scheduler/internal/domain/entities"
	"github.com/taskmaster/scheduler/internal/infrastructure/logger"
	"github.com/taskmaster/scheduler/internal/ports"
)

// invalidDataFormat is the message returned for every rejected POST body.
const invalidDataFormat = "Invalid data format"

// BlobHandler serves GET and POST /api/blob
type BlobHandler struct {
	service ports.DatasetService
	schema  *jsonschema.Schema
	logger  *logger.Logger
}

// NewBlobHandler creates a new blob handler
func NewBlobHandler(service ports.DatasetService, logger *logger.Logger) (*BlobHandler, error) {
	schema, err := compileDatasetSchema()
	if err != nil {
		return nil, err
	}

	return &BlobHandler{
		service: service,
		schema:  schema,
		logger:  logger.WithComponent("blob_handler"),
	}, nil
}

// Register mounts the handler on g.
func (h *BlobHandler) Register(g *echo.Group) {
	g.GET("/blob", h.GetDataset)
	g.POST("/blob", h.SaveDataset)
}

// GetDataset godoc
// @Summary      Read the dataset
// @Description  Returns every task and event from the newest stored document
// @Tags         blob
// @Produce      json
// @Success      200  {object}  entities.Dataset
// @Failure      500  {object}  ErrorResponse
// @Router       /api/blob [get]
func (h *BlobHandler) GetDataset(c echo.Context) error {
	if err := h.service.EnsureConfigured(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}

	ds, err := h.service.Get(c.Request().Context())
	if err != nil {
		h.logger.Errorw("Failed to fetch data", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}

	return c.JSON(http.StatusOK, ds)
}

// SaveDataset godoc
// @Summary      Replace the dataset
// @Description  Stores the posted tasks and events as the new current document
// @Tags         blob
// @Accept       json
// @Produce      json
// @Param        dataset  body      entities.Dataset  true  "Whole dataset"
// @Success      200      {object}  SaveResponse
// @Failure      400      {object}  ErrorResponse
// @Failure      500      {object}  ErrorResponse
// @Router       /api/blob [post]
func (h *BlobHandler) SaveDataset(c echo.Context) error {
	if err := h.service.EnsureConfigured(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, invalidDataFormat).SetInternal(err)
	}

	if err := validateDataset(h.schema, body); err != nil {
		h.logger.Debugw("Rejected dataset", "reason", err.Error())
		return echo.NewHTTPError(http.StatusBadRequest, invalidDataFormat).
			SetInternal(errors.Join(entities.ErrInvalidDataset, err))
	}

	var ds entities.Dataset
	if err := json.Unmarshal(body, &ds); err != nil {
		h.logger.Debugw("Rejected dataset", "reason", err.Error())
		return echo.NewHTTPError(http.StatusBadRequest, invalidDataFormat).
			SetInternal(errors.Join(entities.ErrInvalidDataset, err))
	}

	url, err := h.service.Replace(c.Request().Context(), ds)
	if err != nil {
		h.logger.Errorw("Failed to store data", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}

	return c.JSON(http.StatusOK, SaveResponse{URL: url})
}

// SaveResponse is the body of a successful POST.
type SaveResponse struct {
	URL string `json:"url"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
