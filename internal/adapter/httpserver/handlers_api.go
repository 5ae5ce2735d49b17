package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/wardwatch/internal/domain"
	apperrors "github.com/pscheid92/wardwatch/internal/platform/errors"
	"github.com/pscheid92/wardwatch/internal/storage"
)

// multipartOverhead is allowed on top of the file limit for boundaries and text fields.
const multipartOverhead = 1 << 20

const defaultFileType = "document"

type uploadResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	File    domain.FileEvent `json:"file"`
}

type presenceHealthResponse struct {
	Status   string `json:"status"`
	Doctors  int    `json:"doctors"`
	Patients int    `json:"patients"`
}

func (s *Server) handleUpload(c echo.Context) error {
	maxBytes := s.config.MaxUploadBytes
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBytes+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.TooLargeError(fmt.Sprintf("file exceeds %d bytes", maxBytes), err)
		}
		return apperrors.ValidationError("no file uploaded")
	}

	producerID := strings.TrimSpace(c.FormValue("patientId"))
	if producerID == "" {
		return apperrors.ValidationError("patientId is required").WithContext("field", "patientId")
	}
	if fh.Size > maxBytes {
		return apperrors.TooLargeError(fmt.Sprintf("file exceeds %d bytes", maxBytes), nil).WithContext("size", fh.Size)
	}

	fileType := strings.TrimSpace(c.FormValue("fileType"))
	if fileType == "" {
		fileType = defaultFileType
	}
	description := strings.TrimSpace(c.FormValue("description"))

	src, err := fh.Open()
	if err != nil {
		return apperrors.InternalError("failed to read upload", err)
	}
	defer src.Close()

	ctx := req.Context()
	saved, err := s.store.Save(ctx, producerID, fh.Filename, src, maxBytes)
	switch {
	case errors.Is(err, storage.ErrInvalidProducerID):
		return apperrors.ValidationError("invalid patientId").WithContext("field", "patientId")
	case errors.Is(err, storage.ErrInvalidFileName):
		return apperrors.ValidationError("invalid file name")
	case errors.Is(err, storage.ErrTooLarge):
		return apperrors.TooLargeError(fmt.Sprintf("file exceeds %d bytes", maxBytes), err)
	case err != nil:
		return apperrors.InternalError("failed to store file", err)
	}

	// the response carries the same event observers received
	event, report, err := s.presence.OnFileStored(ctx, producerID, saved.OriginalName, saved.SavedName, saved.Size, fileType, description, saved.URLPath)
	if err != nil {
		// the file is stored; observers can still find it through the listing
		slog.WarnContext(ctx, "File stored but not announced", "producer_id", producerID, "saved_name", saved.SavedName, "error", err)
	}

	slog.InfoContext(ctx, "File uploaded",
		"producer_id", producerID,
		"saved_name", saved.SavedName,
		"size", saved.Size,
		"observers_notified", report.Delivered,
	)

	resp := uploadResponse{
		Success: true,
		Message: "File uploaded successfully",
		File:    event,
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write upload response: %w", err)
	}
	return nil
}

func (s *Server) handleListFiles(c echo.Context) error {
	producerID := c.Param("patientId")

	files, err := s.store.List(c.Request().Context(), producerID)
	if errors.Is(err, storage.ErrInvalidProducerID) {
		return apperrors.ValidationError("invalid patientId").WithContext("field", "patientId")
	}
	if err != nil {
		return apperrors.InternalError("failed to list files", err)
	}

	if err := c.JSON(http.StatusOK, files); err != nil {
		return fmt.Errorf("failed to write file list: %w", err)
	}
	return nil
}

func (s *Server) handleListProducers(c echo.Context) error {
	producers, err := s.presence.Producers(c.Request().Context())
	if errors.Is(err, domain.ErrTrackerStopped) {
		return apperrors.UnavailableError("server is shutting down", err)
	}
	if err != nil {
		return apperrors.InternalError("failed to read producers", err)
	}
	if producers == nil {
		producers = []domain.ProducerRecord{}
	}

	if err := c.JSON(http.StatusOK, producers); err != nil {
		return fmt.Errorf("failed to write producer list: %w", err)
	}
	return nil
}

// handlePresenceHealth reports connected observers and producers at call time.
func (s *Server) handlePresenceHealth(c echo.Context) error {
	counts := s.presence.Counts()
	resp := presenceHealthResponse{
		Status:   "OK",
		Doctors:  counts.Observers,
		Patients: counts.Producers,
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write health response: %w", err)
	}
	return nil
}
