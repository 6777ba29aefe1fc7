package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smarthome-core/internal/device"
)

// createDeviceRequest is the body of POST /devices.
type createDeviceRequest struct {
	Name  string            `json:"name"`
	Type  device.DeviceType `json:"type"`
	State device.State      `json:"state,omitempty"`
}

// updateDeviceRequest is the body of PATCH /devices/{serial}.
type updateDeviceRequest struct {
	Name *string `json:"name"`
}

// invokeRequest is the body of POST /devices/{serial}/invoke.
type invokeRequest struct {
	Operation string `json:"operation"`
	Arguments []any  `json:"arguments"`
}

// handleListDevices returns all devices, or those of one home with ?home=.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		devices []device.Device
		err     error
	)
	if homeID := r.URL.Query().Get("home"); homeID != "" {
		devices, err = s.devices.ListByHome(ctx, homeID)
	} else {
		devices, err = s.devices.ListDevices(ctx)
	}
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []device.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by serial.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.Resolve(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice creates a device and assigns it the next serial.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev := &device.Device{Name: req.Name, Type: req.Type, State: req.State}
	if err := s.devices.CreateDevice(r.Context(), dev); err != nil {
		s.writeDomainError(w, err, "failed to create device")
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

// handleUpdateDevice renames a device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == nil {
		writeBadRequest(w, "nothing to update")
		return
	}

	if err := s.devices.RenameDevice(r.Context(), serial, *req.Name); err != nil {
		s.writeDomainError(w, err, "failed to update device")
		return
	}
	dev, err := s.devices.Resolve(r.Context(), serial)
	if err != nil {
		s.writeDomainError(w, err, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device. Scheduled operations that target it
// stay registered and report not-found when they fire.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.devices.DeleteDevice(r.Context(), chi.URLParam(r, "serial")); err != nil {
		s.writeDomainError(w, err, "failed to delete device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListOperations returns the operation catalogue of a device's type.
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.Resolve(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get device")
		return
	}
	ops := device.Operations(dev.Type)
	writeJSON(w, http.StatusOK, map[string]any{"type": dev.Type, "operations": ops, "count": len(ops)})
}

// handleInvoke runs an operation on a device immediately.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Operation == "" {
		writeBadRequest(w, "operation is required")
		return
	}

	result, err := s.devices.Invoke(r.Context(), serial, req.Operation, req.Arguments)
	if err != nil {
		s.writeDomainError(w, err, "failed to invoke operation")
		return
	}
	dev, err := s.devices.Resolve(r.Context(), serial)
	if err != nil {
		s.writeDomainError(w, err, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result, "device": dev})
}
