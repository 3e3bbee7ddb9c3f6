package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SanketBaviskar/rate-limiter/internal/config"
	"github.com/SanketBaviskar/rate-limiter/internal/limiter"
	"github.com/SanketBaviskar/rate-limiter/internal/payload"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Rate Limiter API is running",
		"endpoints": map[string]string{
			"health":           "/api/health",
			"image":            "/api/image/{width}/{height}",
			"weather_forecast": "/api/weather/forecast?latitude={lat}&longitude={lon}",
			"weather_current":  "/api/weather/current/{station_id}",
			"monitor":          "/api/monitor",
			"metrics":          "/metrics",
		},
	})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	width, err := strconv.Atoi(r.PathValue("width"))
	if err != nil || width < 1 {
		http.Error(w, "invalid width", http.StatusBadRequest)
		return
	}
	height, err := strconv.Atoi(r.PathValue("height"))
	if err != nil || height < 1 {
		http.Error(w, "invalid height", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", payload.ContentTypeSVG)
	_, _ = w.Write([]byte(payload.PlaceholderSVG(width, height, r.URL.Query().Get("color"))))
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("latitude"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("longitude"), 64)
	if errLat != nil || errLon != nil {
		http.Error(w, "latitude and longitude are required", http.StatusBadRequest)
		return
	}

	forecast, err := s.weather.Forecast(r.Context(), lat, lon)
	if err != nil {
		s.log.Error("forecast fetch failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "weather service unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	conditions, err := s.weather.Current(r.Context(), r.PathValue("stationID"))
	if err != nil {
		s.log.Error("observation fetch failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "weather service unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, conditions)
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	snap, err := s.recorder.Snapshot(r.Context())
	if err != nil {
		s.log.Error("metrics snapshot failed", "error", err)
	}

	lim := s.registry.Get(r.Context())
	algorithmData := make(map[string]config.Limits, len(limiter.Algorithms()))
	for _, algo := range limiter.Algorithms() {
		algorithmData[string(algo)] = lim
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"globalMetrics": map[string]int64{
			"totalRequests": snap.TotalRequests,
			"total429s":     snap.Total429s,
			"activeIPs":     snap.ActiveIPs,
		},
		"algorithmData": algorithmData,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var lim config.Limits
	if err := json.NewDecoder(r.Body).Decode(&lim); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}

	if err := s.registry.Set(r.Context(), lim); err != nil {
		if errors.Is(err, config.ErrInvalidLimits) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		s.log.Error("config update failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "config update failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Updated config: Limit=" + strconv.Itoa(lim.Limit) + ", Window=" + strconv.Itoa(lim.Window) + "s",
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.limiter.Reset(r.Context()); err != nil {
		s.log.Error("reset failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "detail": "reset failed"})
		return
	}
	s.drainer.Reset()

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "All stats and limits reset",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	backend := s.store.Backend()

	redisInfo := map[string]any{
		"connected":    false,
		"is_fakeredis": backend.Fake,
		"type":         backend.Type,
	}
	status := "unhealthy"

	if err := s.store.Ping(r.Context()); err != nil {
		redisInfo["error"] = err.Error()
	} else {
		redisInfo["connected"] = true
		status = "healthy"

		// Round-trip a short-lived key to prove reads and writes work, not
		// just the connection.
		const probe = "health_check_test"
		writeOK := false
		if err := s.store.Set(r.Context(), probe, "working", 10*time.Second); err == nil {
			if val, ok, err := s.store.Get(r.Context(), probe); err == nil && ok && val == "working" {
				writeOK = true
			}
		}
		redisInfo["test_write"] = writeOK
		if !writeOK {
			status = "unhealthy"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"redis":  redisInfo,
		"api":    "running",
	})
}
