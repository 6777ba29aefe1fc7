package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/home"
)

type createNetworkRequest struct {
	Name      string `json:"name"`
	IPAddress string `json:"ip_address"`
}

type createHomeRequest struct {
	Name string `json:"name"`
}

type powerRequest struct {
	On *bool `json:"on"`
}

// =============================================================================
// Networks
// =============================================================================

func (s *Server) handleListNetworks(w http.ResponseWriter, r *http.Request) {
	networks, err := s.homes.ListNetworks(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list networks")
		return
	}
	if networks == nil {
		networks = []home.Network{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"networks": networks, "count": len(networks)})
}

func (s *Server) handleCreateNetwork(w http.ResponseWriter, r *http.Request) {
	var req createNetworkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	n, err := s.homes.CreateNetwork(r.Context(), req.Name, req.IPAddress)
	if err != nil {
		s.writeDomainError(w, err, "failed to create network")
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleGetNetwork(w http.ResponseWriter, r *http.Request) {
	n, err := s.homes.GetNetwork(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get network")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// handleDeleteNetwork removes a network with its homes and their devices.
func (s *Server) handleDeleteNetwork(w http.ResponseWriter, r *http.Request) {
	if err := s.homes.DeleteNetwork(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err, "failed to delete network")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListNetworkHomes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.homes.GetNetwork(r.Context(), id); err != nil {
		s.writeDomainError(w, err, "failed to get network")
		return
	}
	s.writeHomes(w, r, id)
}

func (s *Server) handleCreateHome(w http.ResponseWriter, r *http.Request) {
	var req createHomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	h, err := s.homes.CreateHome(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		s.writeDomainError(w, err, "failed to create home")
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handleListNetworkDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.homes.NetworkDevices(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to list network devices")
		return
	}
	writeDevices(w, devices)
}

// =============================================================================
// Homes
// =============================================================================

func (s *Server) handleListHomes(w http.ResponseWriter, r *http.Request) {
	s.writeHomes(w, r, r.URL.Query().Get("network"))
}

func (s *Server) writeHomes(w http.ResponseWriter, r *http.Request, networkID string) {
	homes, err := s.homes.ListHomes(r.Context(), networkID)
	if err != nil {
		writeInternalError(w, "failed to list homes")
		return
	}
	if homes == nil {
		homes = []home.Home{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"homes": homes, "count": len(homes)})
}

func (s *Server) handleGetHome(w http.ResponseWriter, r *http.Request) {
	h, err := s.homes.GetHome(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get home")
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// handleDeleteHome removes a home and every device in it.
func (s *Server) handleDeleteHome(w http.ResponseWriter, r *http.Request) {
	if err := s.homes.DeleteHome(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err, "failed to delete home")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListHomeDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.homes.Devices(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to list home devices")
		return
	}
	writeDevices(w, devices)
}

func (s *Server) handleAssignDevice(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	if err := s.homes.AssignDevice(r.Context(), chi.URLParam(r, "id"), serial); err != nil {
		s.writeDomainError(w, err, "failed to assign device")
		return
	}
	dev, err := s.devices.Resolve(r.Context(), serial)
	if err != nil {
		s.writeDomainError(w, err, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleUnassignDevice detaches a device from the home in the path. A device
// that belongs to another home is reported as not found here.
func (s *Server) handleUnassignDevice(w http.ResponseWriter, r *http.Request) {
	homeID := chi.URLParam(r, "id")
	serial := chi.URLParam(r, "serial")

	dev, err := s.devices.Resolve(r.Context(), serial)
	if err != nil {
		s.writeDomainError(w, err, "failed to get device")
		return
	}
	if dev.HomeID == nil || *dev.HomeID != homeID {
		writeNotFound(w, "device is not in this home")
		return
	}
	if err := s.homes.UnassignDevice(r.Context(), serial); err != nil {
		s.writeDomainError(w, err, "failed to unassign device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSecurity(w http.ResponseWriter, r *http.Request) {
	report, err := s.homes.SecurityAssessment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to assess security")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleEnergy(w http.ResponseWriter, r *http.Request) {
	report, err := s.homes.EnergyReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to build energy report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handlePower turns every device in a home on or off. Per-device failures
// are listed in the response; the request itself still succeeds.
func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	var req powerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.On == nil {
		writeBadRequest(w, "on is required")
		return
	}
	result, err := s.homes.SetPowerAll(r.Context(), chi.URLParam(r, "id"), *req.On)
	if err != nil {
		s.writeDomainError(w, err, "failed to set power")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeDevices(w http.ResponseWriter, devices []device.Device) {
	if devices == nil {
		devices = []device.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}
