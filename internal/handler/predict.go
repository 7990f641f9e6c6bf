package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"receiptdetect/internal/dto"
	"receiptdetect/internal/logger"
	"receiptdetect/internal/service"
)

const multipartMemory = 32 << 20

// Predictor runs detection for uploaded images.
type Predictor interface {
	Predict(ctx context.Context, uploads []service.Upload) (*dto.PredictResponse, error)
	Annotate(ctx context.Context, upload service.Upload) ([]byte, *dto.ImageResult, error)
}

// PredictHandler accepts multipart uploads under "files" (any number) or
// "file" (one image, answered with a bare ImageResult).
func PredictHandler(predictor Predictor, maxUploadBytes int64, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, ok := parseUpload(w, r, maxUploadBytes, logger)
		if !ok {
			return
		}

		single := false
		files := form.File["files"]
		if len(files) == 0 {
			files = form.File["file"]
			single = len(files) == 1
		}
		if len(files) == 0 {
			writeError(w, http.StatusBadRequest, "no files uploaded: use form field 'files' or 'file'", logger)
			return
		}

		uploads, err := readUploads(files)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), logger)
			return
		}

		resp, err := predictor.Predict(r.Context(), uploads)
		if err != nil {
			writePredictError(w, err, logger)
			return
		}

		if single {
			writeJSON(w, http.StatusOK, resp.Results[0], logger)
			return
		}
		writeJSON(w, http.StatusOK, resp, logger)
	}
}

// AnnotatedHandler returns the uploaded "file" as a JPEG with merged boxes drawn on it.
func AnnotatedHandler(predictor Predictor, maxUploadBytes int64, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, ok := parseUpload(w, r, maxUploadBytes, logger)
		if !ok {
			return
		}

		files := form.File["file"]
		if len(files) != 1 {
			writeError(w, http.StatusBadRequest, "exactly one file required in form field 'file'", logger)
			return
		}

		uploads, err := readUploads(files)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), logger)
			return
		}

		img, result, err := predictor.Annotate(r.Context(), uploads[0])
		if err != nil {
			writePredictError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("X-Num-Detections", strconv.Itoa(result.NumDetections))
		w.Write(img)
	}
}

func parseUpload(w http.ResponseWriter, r *http.Request, maxUploadBytes int64, logger *logger.Logger) (*multipart.Form, bool) {
	if r.ContentLength > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit", logger)
		return nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit", logger)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error(), logger)
		return nil, false
	}
	return r.MultipartForm, true
}

func readUploads(files []*multipart.FileHeader) ([]service.Upload, error) {
	uploads := make([]service.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, errors.New("empty file: " + fh.Filename)
		}
		uploads = append(uploads, service.Upload{Filename: fh.Filename, Data: data})
	}
	return uploads, nil
}

func writePredictError(w http.ResponseWriter, err error, logger *logger.Logger) {
	switch {
	case errors.Is(err, service.ErrNoImages):
		writeError(w, http.StatusBadRequest, err.Error(), logger)
	case errors.Is(err, service.ErrAnnotationUnsupported):
		writeError(w, http.StatusNotImplemented, err.Error(), logger)
	default:
		logger.Error("Prediction failed: %v", err)
		writeError(w, http.StatusBadGateway, err.Error(), logger)
	}
}
