package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"
)

// Canned completions so the advisor agents can run without a GPU. The alert
// line mirrors the format the alert prompt asks for; the analysis text keeps
// imperative verbs so priority-action extraction has something to find.
const (
	cannedAlert = "🚨 Temperatura crítica detectada - Ventilar inmediatamente"

	cannedAnalysis = "El microclima presenta desviaciones moderadas respecto a los rangos " +
		"óptimos para tomate. Ajustar la ventilación para estabilizar la temperatura " +
		"durante las horas de mayor radiación. Monitorear la humedad relativa para " +
		"prevenir condensación nocturna y presión fúngica. Revisar la dosificación de " +
		"CO2 a primera hora, ya que el enriquecimiento actual queda por debajo del " +
		"rango objetivo y limita la tasa fotosintética. Con estos ajustes el cultivo " +
		"puede sostener el ritmo de cuajado previsto para el ciclo."
)

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

type generateResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Response  string    `json:"response"`
	Done      bool      `json:"done"`
}

type modelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, generateResponse{
			Model:     req.Model,
			CreatedAt: time.Now().UTC(),
			Response:  completionFor(req),
			Done:      true,
		})
	})

	// The models endpoint lets `ollama list`-style checks pass against the mock.
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, map[string]any{
			"models": []modelInfo{
				{Name: "tinyllama:1.1b", ModifiedAt: time.Now().UTC(), Size: 637_000_000},
				{Name: "deepseek-r1:8b", ModifiedAt: time.Now().UTC(), Size: 4_900_000_000},
			},
		})
	})

	logger := log.New(log.Writer(), "ollama-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":11434",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :11434")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// completionFor picks the canned text matching the requesting agent: the
// emergency prompt mentions the detected anomaly, everything else gets the
// strategic analysis.
func completionFor(req generateRequest) string {
	if strings.Contains(req.Prompt, "ANOMALÍA") {
		return cannedAlert
	}
	return cannedAnalysis
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
