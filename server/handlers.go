package server

import (
	"encoding/json"
	"errors"
	"html"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/RyanBlaney/sonido-emotion/classifier"
	"github.com/RyanBlaney/sonido-emotion/logging"
	"github.com/RyanBlaney/sonido-emotion/metrics"
	"github.com/RyanBlaney/sonido-emotion/pipeline"
	"github.com/RyanBlaney/sonido-emotion/store"
)

type samplesRequest struct {
	AudioData  []float64 `json:"audio_data"`
	SampleRate int       `json:"sample_rate,omitempty"` // 0 means 22050
}

type urlRequest struct {
	URL   string  `json:"youtube_url"`
	Notes *string `json:"notes"`
}

type saveRequest struct {
	AudioData  []float64 `json:"audio_data"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Emotion    *string   `json:"emotion"`
	Timestamp  *float64  `json:"timestamp"`
	Notes      *string   `json:"notes"`
}

// emotionResponse keeps the wire names the web client already reads.
type emotionResponse struct {
	Emotion        string             `json:"emotion"`
	Confidence     *float64           `json:"confidence"`
	ProcessingTime float64            `json:"processing_time"` // seconds
	Scores         map[string]float64 `json:"scores,omitempty"`
}

type batchResult struct {
	Index      int      `json:"index"`
	Emotion    string   `json:"emotion"`
	Confidence *float64 `json:"confidence,omitempty"`
	Success    bool     `json:"success"`
	Warning    string   `json:"warning,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func toEmotionResponse(res *pipeline.Result) emotionResponse {
	return emotionResponse{
		Emotion:        res.Label,
		Confidence:     res.Confidence,
		ProcessingTime: res.ProcessingTime.Seconds(),
		Scores:         res.Scores,
	}
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Voice Emotion Detection API is running"})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "model_loaded": true})
}

func (s *Server) emotions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"emotions": s.predictor.Labels()})
}

// selfTest reports model health in the body; the status is always 200.
func (s *Server) selfTest(w http.ResponseWriter, r *http.Request) {
	label, err := s.predictor.SelfTest(r.Context())
	if err != nil {
		s.logger.WithContext(r.Context()).Error(err, "Self-test failed")
		writeJSON(w, http.StatusOK, map[string]string{"error": err.Error(), "status": "failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"test_emotion": label, "status": "success"})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) predictSamples(w http.ResponseWriter, r *http.Request) {
	var req samplesRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if len(req.AudioData) == 0 {
		writeDetail(w, http.StatusBadRequest, "Audio data is required")
		return
	}

	res, err := s.predictor.Predict(r.Context(), pipeline.SamplesInput{Samples: req.AudioData, SampleRate: req.SampleRate})
	if err != nil {
		s.writeError(w, r, err, "Error processing audio")
		return
	}
	writeJSON(w, http.StatusOK, toEmotionResponse(res))
}

func (s *Server) predictBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []samplesRequest
	if !s.decodeJSON(w, r, &reqs) {
		return
	}

	inputs := make([]pipeline.SamplesInput, len(reqs))
	for i, req := range reqs {
		inputs[i] = pipeline.SamplesInput{Samples: req.AudioData, SampleRate: req.SampleRate}
	}

	items := s.predictor.PredictBatch(r.Context(), inputs)
	results := make([]batchResult, len(items))
	for i, item := range items {
		results[i] = batchResult{
			Index:      item.Index,
			Emotion:    item.Label,
			Confidence: item.Confidence,
			Success:    item.Success,
			Warning:    item.Warning,
			Error:      item.Error,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) predictFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Uploaded file too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	s.logger.WithContext(r.Context()).Debug("File received", logging.Fields{
		"filename":     header.Filename,
		"content_type": contentType,
		"size":         len(data),
	})

	res, err := s.predictor.Predict(r.Context(), pipeline.BlobInput{Data: data, ContentType: contentType})
	if err != nil {
		s.writeError(w, r, err, "Error processing uploaded audio")
		return
	}
	writeJSON(w, http.StatusOK, toEmotionResponse(res))
}

func (s *Server) predictURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	res, err := s.predictor.Predict(r.Context(), pipeline.URLInput{URL: req.URL})
	if err != nil {
		s.writeError(w, r, err, "Error processing YouTube audio")
		return
	}

	user := userFrom(r.Context())
	rec := &store.Record{
		UserID:     user.ID,
		Email:      user.Email,
		Emotion:    res.Label,
		Confidence: res.Confidence,
		Timestamp:  unixSeconds(time.Now()),
		Notes:      escapeNotes(req.Notes),
		VideoURL:   req.URL,
	}
	if _, err := s.recorder.Save(r.Context(), rec); err != nil {
		// the prediction already succeeded; a lost record is logged, not returned
		s.logger.WithContext(r.Context()).Error(err, "Failed to save remote prediction")
	} else {
		metrics.RecordsSavedTotal.WithLabelValues(string(pipeline.SourceURL)).Inc()
	}

	writeJSON(w, http.StatusOK, toEmotionResponse(res))
}

func (s *Server) saveAudio(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if len(req.AudioData) == 0 {
		writeDetail(w, http.StatusBadRequest, "Audio data required")
		return
	}

	rec := &store.Record{
		Samples:   req.AudioData,
		Timestamp: unixSeconds(time.Now()),
		Notes:     escapeNotes(req.Notes),
	}
	if req.Timestamp != nil && *req.Timestamp != 0 {
		rec.Timestamp = *req.Timestamp
	}

	if req.Emotion != nil && *req.Emotion != "" {
		rec.Emotion = *req.Emotion
	} else {
		rec.Emotion = classifier.DefaultLabel
		res, err := s.predictor.Predict(r.Context(), pipeline.SamplesInput{Samples: req.AudioData, SampleRate: req.SampleRate})
		if err != nil {
			s.logger.WithContext(r.Context()).Warn("Prediction for saved audio failed, using default label", logging.Fields{
				"error": err.Error(),
			})
		} else {
			rec.Emotion = res.Label
			rec.Confidence = res.Confidence
		}
	}

	user := userFrom(r.Context())
	rec.UserID = user.ID
	rec.Email = user.Email

	id, err := s.recorder.Save(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, err, "Failed to save audio")
		return
	}
	metrics.RecordsSavedTotal.WithLabelValues(string(pipeline.SourceSamples)).Inc()

	writeJSON(w, http.StatusOK, map[string]string{"msg": "Audio saved", "audio_id": id, "emotion": rec.Emotion})
}

func (s *Server) myAudio(w http.ResponseWriter, r *http.Request) {
	s.listRecords(w, r, false)
}

func (s *Server) myRemoteAudio(w http.ResponseWriter, r *http.Request) {
	s.listRecords(w, r, true)
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request, remoteOnly bool) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil || skip < 0 {
		writeDetail(w, http.StatusBadRequest, "skip must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", store.DefaultLimit)
	if err != nil || limit < 0 {
		writeDetail(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	records, err := s.recorder.List(r.Context(), store.Query{
		UserID:     userFrom(r.Context()).ID,
		Skip:       skip,
		Limit:      limit,
		RemoteOnly: remoteOnly,
	})
	if err != nil {
		s.writeError(w, r, err, "Failed to list audio")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func escapeNotes(notes *string) string {
	if notes == nil {
		return ""
	}
	return html.EscapeString(*notes)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
