package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/miradorstack/mirador-spiro/internal/ingest"
	"github.com/miradorstack/mirador-spiro/internal/models"
	"github.com/miradorstack/mirador-spiro/internal/utils"
)

// maneuver-gen posts synthetic maneuvers to a local mirador-spiro HTTP
// endpoint so dashboards and the result cache have traffic during development.
func main() {
	target := flag.String("target", "http://localhost:8080/api/v1/analyses", "Analysis endpoint")
	count := flag.Int("count", 20, "Number of maneuvers to send")
	interval := flag.Duration("interval", 500*time.Millisecond, "Delay between requests")
	hesitant := flag.Float64("hesitant", 0.3, "Share of maneuvers with a slow start")
	flag.Parse()

	logger := utils.NewLogger("info", false)
	client := &http.Client{Timeout: 5 * time.Second}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	failures := 0
	for i := 0; i < *count; i++ {
		m := ingest.DefaultSyntheticManeuver()
		m.FVC = 3 + rng.Float64()*2
		m.Tau = 0.2 + rng.Float64()*0.2
		if rng.Float64() < *hesitant {
			m.StartDelay = 0.5 + rng.Float64()
		}

		req := models.AnalysisRequest{
			Trial:   models.Trial{ID: fmt.Sprintf("synthetic-%03d", i), Subject: "localdev", Number: i + 1},
			Samples: ingest.Synthesize(m),
		}
		if err := post(client, *target, req, logger); err != nil {
			failures++
			logger.Warn("request failed", slog.String("trial", req.Trial.ID), slog.Any("error", err))
		}
		time.Sleep(*interval)
	}
	if failures > 0 {
		os.Exit(1)
	}
}

func post(client *http.Client, target string, req models.AnalysisRequest, logger *slog.Logger) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := client.Post(target, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var result models.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	logger.Info("analysis",
		slog.String("trial", result.Trial.ID),
		slog.String("ev_check", string(result.Metrics.EVCheck)),
		slog.String("flow_timing_check", string(result.Metrics.FlowTimingCheck)),
		slog.Bool("cached", result.Cached),
	)
	return nil
}
