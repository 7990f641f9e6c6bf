package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"receiptdetect/internal/dto"
	"receiptdetect/internal/logger"
	"receiptdetect/internal/model"
	"receiptdetect/internal/repository"
)

// Archive exposes archived predictions. A nil Archive means archiving is disabled.
type Archive interface {
	List(filter *dto.PredictionFilter, page int) (*dto.PredictionsPage, error)
	Get(id int64) (*model.Prediction, error)
	Delete(id int64) error
	Stats() (*model.PredictionStats, error)
}

// ListPredictionsHandler returns a filtered page of archived predictions.
func ListPredictionsHandler(archive Archive, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if archive == nil {
			writeError(w, http.StatusServiceUnavailable, "archive disabled", logger)
			return
		}

		q := r.URL.Query()
		filter := &dto.PredictionFilter{
			Filename:      q.Get("filename"),
			DateAfter:     parseDate(q.Get("dateAfter")),
			DateBefore:    parseDate(q.Get("dateBefore")),
			MinDetections: atoiDefault(q.Get("minDetections"), 0),
			Limit:         atoiDefault(q.Get("limit"), 24),
		}

		page, err := archive.List(filter, atoiDefault(q.Get("page"), 1))
		if err != nil {
			logger.Error("Error querying predictions: %v", err)
			writeError(w, http.StatusInternalServerError, "internal server error", logger)
			return
		}
		writeJSON(w, http.StatusOK, page, logger)
	}
}

// PredictionStatsHandler returns archive statistics.
func PredictionStatsHandler(archive Archive, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if archive == nil {
			writeError(w, http.StatusServiceUnavailable, "archive disabled", logger)
			return
		}

		stats, err := archive.Stats()
		if err != nil {
			logger.Error("Error computing archive stats: %v", err)
			writeError(w, http.StatusInternalServerError, "internal server error", logger)
			return
		}
		writeJSON(w, http.StatusOK, stats, logger)
	}
}

// GetPredictionHandler returns one archived prediction with its detections.
func GetPredictionHandler(archive Archive, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := predictionID(w, r, archive, logger)
		if !ok {
			return
		}

		prediction, err := archive.Get(id)
		if err != nil {
			writeArchiveError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, prediction, logger)
	}
}

// DeletePredictionHandler removes an archived prediction and its image.
func DeletePredictionHandler(archive Archive, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := predictionID(w, r, archive, logger)
		if !ok {
			return
		}

		if err := archive.Delete(id); err != nil {
			writeArchiveError(w, err, logger)
			return
		}
		logger.Info("Deleted archived prediction %d", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func predictionID(w http.ResponseWriter, r *http.Request, archive Archive, logger *logger.Logger) (int64, bool) {
	if archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive disabled", logger)
		return 0, false
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid prediction id", logger)
		return 0, false
	}
	return id, true
}

func writeArchiveError(w http.ResponseWriter, err error, logger *logger.Logger) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "prediction not found", logger)
		return
	}
	logger.Error("Archive error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal server error", logger)
}
