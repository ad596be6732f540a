package api

import (
	"encoding/json"
	"fmt"

	"github.com/matheus3301/helpline/internal/geo"
)

// User is an account as returned by the auth and user endpoints.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// UnmarshalJSON accepts either id or _id.
func (u *User) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID      string `json:"id"`
		MongoID string `json:"_id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	u.ID = raw.ID
	if u.ID == "" {
		u.ID = raw.MongoID
	}
	u.Name, u.Email = raw.Name, raw.Email
	return nil
}

// AuthResponse is the body of a successful login or register.
type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// HelpRequest is a location-tagged request for help.
type HelpRequest struct {
	ID            string
	RequesterID   string
	RequesterName string
	Description   string
	Location      geo.Point
	Status        string
}

// UnmarshalJSON decodes the server shape. The requester may be an embedded
// user object or a bare id, and the position may be a bare [lon, lat] pair
// or a GeoJSON point under location.
func (h *HelpRequest) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID          string          `json:"id"`
		MongoID     string          `json:"_id"`
		User        json.RawMessage `json:"user"`
		Description string          `json:"description"`
		Status      string          `json:"status"`
		Coordinates []float64       `json:"coordinates"`
		Location    *struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"location"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	h.ID = raw.ID
	if h.ID == "" {
		h.ID = raw.MongoID
	}
	h.Description = raw.Description
	h.Status = raw.Status

	if len(raw.User) > 0 && string(raw.User) != "null" {
		if raw.User[0] == '"' {
			if err := json.Unmarshal(raw.User, &h.RequesterID); err != nil {
				return fmt.Errorf("help request user: %w", err)
			}
		} else {
			var u User
			if err := json.Unmarshal(raw.User, &u); err != nil {
				return fmt.Errorf("help request user: %w", err)
			}
			h.RequesterID, h.RequesterName = u.ID, u.Name
		}
	}

	coords := raw.Coordinates
	if len(coords) == 0 && raw.Location != nil {
		coords = raw.Location.Coordinates
	}
	if len(coords) == 2 {
		h.Location = geo.Point{Longitude: coords[0], Latitude: coords[1]}
	}
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileUpdate struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type postHelpRequest struct {
	Description string     `json:"description"`
	Coordinates [2]float64 `json:"coordinates"`
}

type errorBody struct {
	Message string `json:"message"`
}
