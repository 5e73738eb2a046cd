package handler

import (
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docqa/internal/ingest"
	"docqa/internal/model"
	"docqa/internal/service"
)

// UploadDocuments godoc
// @Summary Upload documents and index them
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "Files to index (repeat the field for several)"
// @Success 200 {object} service.UploadResult
// @Failure 400 {object} errorPayload
// @Failure 422 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /upload_pdfs/ [post]
func UploadDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil || len(form.File["files"]) == 0 {
			return writeError(c, fiber.StatusBadRequest, CodeFilesRequired, "at least one file is required in field \"files\"")
		}

		files := make([]service.UploadFile, 0, len(form.File["files"]))
		for _, fh := range form.File["files"] {
			f, err := fh.Open()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, CodeFilesRequired, "cannot open uploaded file")
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, CodeFilesRequired, "cannot read uploaded file")
			}

			ct := fh.Header.Get("Content-Type")
			if ct == "" {
				ct = "application/octet-stream"
			}
			files = append(files, service.UploadFile{Filename: fh.Filename, ContentType: ct, Data: data})
		}

		res, err := svc.Upload(c.UserContext(), files)
		switch {
		case errors.Is(err, service.ErrNoFiles):
			return writeError(c, fiber.StatusBadRequest, CodeFilesRequired, "all uploaded files are empty")
		case errors.Is(err, ingest.ErrNoDocuments):
			return writeError(c, fiber.StatusUnprocessableEntity, CodeNoDocuments, "no text could be extracted from the uploaded files")
		case err != nil:
			return writeError(c, fiber.StatusInternalServerError, CodeUploadFailed, err.Error())
		}
		return c.JSON(res)
	}
}

// ListDocuments godoc
// @Summary List uploaded documents
// @Tags documents
// @Produce json
// @Param limit query int false "Page size" default(10)
// @Param offset query int false "Rows to skip" default(0)
// @Param status query string false "pending, indexed, failed or replaced"
// @Success 200 {object} service.DocumentListResult
// @Failure 400 {object} errorPayload
// @Router /documents [get]
func ListDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil || limit < 0 {
			return writeError(c, fiber.StatusBadRequest, CodeInvalidLimit, "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil || offset < 0 {
			return writeError(c, fiber.StatusBadRequest, CodeInvalidOffset, "invalid offset")
		}
		status := model.DocumentStatus(c.Query("status"))
		switch status {
		case "", model.StatusPending, model.StatusIndexed, model.StatusFailed, model.StatusReplaced:
		default:
			return writeError(c, fiber.StatusBadRequest, CodeInvalidStatus, "invalid status")
		}

		res, err := svc.List(c.UserContext(), limit, offset, status)
		if err != nil {
			return internalError(c)
		}
		return c.JSON(res)
	}
}

// GetDocument godoc
// @Summary Get one document
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} model.Document
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [get]
func GetDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, CodeInvalidID, "invalid id format")
		}
		doc, err := svc.Get(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, CodeNotFound, "document not found")
			}
			return internalError(c)
		}
		return c.JSON(doc)
	}
}

// DownloadDocument godoc
// @Summary Download the uploaded file
// @Description Streams the stored bytes, or redirects to a presigned link when the storage backend issues one.
// @Tags documents
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Success 200 {file} file
// @Success 302
// @Failure 404 {object} errorPayload
// @Router /documents/{id}/download [get]
func DownloadDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, CodeInvalidID, "invalid id format")
		}
		dl, err := svc.Download(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, CodeNotFound, "document not found")
			}
			return internalError(c)
		}
		if dl.URL != "" {
			return c.Redirect(dl.URL, fiber.StatusFound)
		}

		c.Attachment(dl.Document.Filename)
		if ct := dl.Info.ContentType; ct != "" {
			c.Set(fiber.HeaderContentType, ct)
		} else if ct := dl.Document.ContentType; ct != "" {
			c.Set(fiber.HeaderContentType, ct)
		}
		size := -1
		if dl.Info.Size > 0 {
			size = int(dl.Info.Size)
		}
		// fasthttp closes the body once it has been written
		return c.SendStream(dl.Body, size)
	}
}

// DeleteDocument godoc
// @Summary Delete a document and its indexed chunks
// @Tags documents
// @Param id path string true "Document ID"
// @Success 204
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [delete]
func DeleteDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, CodeInvalidID, "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, CodeNotFound, "document not found")
			}
			return internalError(c)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
