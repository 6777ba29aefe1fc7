package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smarthome-core/internal/user"
)

type createUserRequest struct {
	Username string `json:"username"`
}

type connectRequest struct {
	NetworkID string `json:"network_id"`
}

// =============================================================================
// Users
// =============================================================================

// handleListUsers lists all users, or those on ?network=<id>.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.ListUsers(r.Context(), r.URL.Query().Get("network"))
	if err != nil {
		s.writeDomainError(w, err, "failed to list users")
		return
	}
	writeUsers(w, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	u, err := s.users.CreateUser(r.Context(), req.Username)
	if err != nil {
		s.writeDomainError(w, err, "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.FindUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.FindUser(r.Context(), chi.URLParam(r, "id"))
	if err == nil {
		err = s.users.DeleteUser(r.Context(), u.ID)
	}
	if err != nil {
		s.writeDomainError(w, err, "failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConnectUser(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.NetworkID == "" {
		writeBadRequest(w, "network_id is required")
		return
	}
	u, err := s.users.FindUser(r.Context(), chi.URLParam(r, "id"))
	if err == nil {
		u, err = s.users.Connect(r.Context(), u.ID, req.NetworkID)
	}
	if err != nil {
		s.writeDomainError(w, err, "failed to connect user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDisconnectUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.FindUser(r.Context(), chi.URLParam(r, "id"))
	if err == nil {
		u, err = s.users.Disconnect(r.Context(), u.ID)
	}
	if err != nil {
		s.writeDomainError(w, err, "failed to disconnect user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// =============================================================================
// Hubs
// =============================================================================

func (s *Server) handleListHubDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.ListByHub(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		s.writeDomainError(w, err, "failed to list hub devices")
		return
	}
	writeDevices(w, devices)
}

func (s *Server) handleAttachToHub(w http.ResponseWriter, r *http.Request) {
	hub, serial := chi.URLParam(r, "serial"), chi.URLParam(r, "device")
	if err := s.devices.AttachToHub(r.Context(), hub, serial); err != nil {
		s.writeDomainError(w, err, "failed to attach device")
		return
	}
	s.writeDevice(w, r, serial)
}

func (s *Server) handleDetachFromHub(w http.ResponseWriter, r *http.Request) {
	hub, serial := chi.URLParam(r, "serial"), chi.URLParam(r, "device")
	if err := s.devices.DetachFromHub(r.Context(), hub, serial); err != nil {
		s.writeDomainError(w, err, "failed to detach device")
		return
	}
	s.writeDevice(w, r, serial)
}

func (s *Server) writeDevice(w http.ResponseWriter, r *http.Request, serial string) {
	d, err := s.devices.Resolve(r.Context(), serial)
	if err != nil {
		s.writeDomainError(w, err, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleListHubUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.HubUsers(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		s.writeDomainError(w, err, "failed to list hub users")
		return
	}
	writeUsers(w, users)
}

func (s *Server) handleAddHubUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.FindUser(r.Context(), chi.URLParam(r, "id"))
	if err == nil {
		err = s.users.AddHubUser(r.Context(), chi.URLParam(r, "serial"), u.ID)
	}
	if err != nil {
		s.writeDomainError(w, err, "failed to add hub user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveHubUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.FindUser(r.Context(), chi.URLParam(r, "id"))
	if err == nil {
		err = s.users.RemoveHubUser(r.Context(), chi.URLParam(r, "serial"), u.ID)
	}
	if err != nil {
		s.writeDomainError(w, err, "failed to remove hub user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeUsers(w http.ResponseWriter, users []user.User) {
	if users == nil {
		users = []user.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}
