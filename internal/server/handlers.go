package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/HerbHall/lanwarden/internal/fleet"
	"github.com/HerbHall/lanwarden/internal/probe"
	"github.com/HerbHall/lanwarden/internal/version"
	"github.com/HerbHall/lanwarden/pkg/models"
)

// statusResponse is the dashboard payload: the current fleet snapshot plus
// the local GNS3 tooling check.
type statusResponse struct {
	*models.FleetSnapshot
	GNS3Local probe.LocalGNS3Install `json:"gns3_local"`
}

// wakeRequest is the JSON body for POST /wol. Either a device id or an
// explicit MAC is required; explicit values win over the device's snapshot.
type wakeRequest struct {
	ID        string `json:"id,omitempty"`
	MAC       string `json:"mac,omitempty"`
	Broadcast string `json:"broadcast,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "lanwarden",
		"version": version.Map(),
	})
}

// handleStatus returns the last published fleet snapshot. It never blocks on
// probing; an in-progress cycle is invisible until published.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		FleetSnapshot: s.store.Current(),
		GNS3Local:     probe.CheckLocalGNS3(r.Context()),
	})
}

// handleScanNow runs a synchronous scan cycle and returns its snapshot. If a
// cycle is already in flight the response carries that cycle's result.
func (s *Server) handleScanNow(w http.ResponseWriter, r *http.Request) {
	snap, err := s.scanner.TriggerScan(r.Context())
	if err != nil {
		if errors.Is(err, fleet.ErrStopped) {
			Unavailable(w, "scan orchestrator is shut down", r.URL.Path)
			return
		}
		s.logger.Warn("on-demand scan failed", zap.Error(err))
		InternalError(w, "scan did not complete", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleWake sends a Wake-on-LAN magic packet to a device.
func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	var req wakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body", r.URL.Path)
		return
	}

	mac, broadcast := req.MAC, req.Broadcast
	if req.ID != "" {
		dev := s.store.Current().Device(req.ID)
		if dev == nil {
			NotFound(w, "device "+req.ID+" not found", r.URL.Path)
			return
		}
		if mac == "" {
			mac = dev.MAC
		}
		if broadcast == "" {
			broadcast = dev.Broadcast
		}
	}
	if mac == "" {
		BadRequest(w, "mac is required (no configured or discovered MAC for this device)", r.URL.Path)
		return
	}

	if err := s.wake.Send(r.Context(), mac, broadcast); err != nil {
		s.logger.Warn("wake-on-lan send failed",
			zap.String("mac", mac), zap.Error(err))
		InternalError(w, "failed to send magic packet", r.URL.Path)
		return
	}

	s.logger.Info("wake-on-lan packet sent",
		zap.String("device", req.ID), zap.String("mac", mac))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "mac": mac})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-LanWarden-Version", version.Short())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
