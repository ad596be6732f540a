package devserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/helpline/internal/geo"
	"github.com/matheus3301/helpline/internal/identity"
	"github.com/matheus3301/helpline/internal/room"
	"github.com/matheus3301/helpline/internal/wire"
	"go.uber.org/zap"
)

type userResponse struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type authResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

type geoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type helpResponse struct {
	ID          string       `json:"_id"`
	User        userResponse `json:"user"`
	Description string       `json:"description"`
	Location    geoPoint     `json:"location"`
	Status      string       `json:"status"`
}

func toUser(a account) userResponse {
	return userResponse{ID: a.ID, Name: a.Name, Email: a.Email}
}

func (s *Server) handleRegister(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}
	id, err := s.Register(req.Name, req.Email, req.Password)
	if err != nil {
		var ve *identity.ValidationError
		switch {
		case errors.As(err, &ve):
			c.JSON(http.StatusBadRequest, errorResponse(ve.Msg))
		case errors.Is(err, errEmailTaken):
			c.JSON(http.StatusConflict, errorResponse(err.Error()))
		default:
			s.logger.Error("register failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, errorResponse("internal server error"))
		}
		return
	}
	s.respondWithToken(c, http.StatusCreated, id)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}
	acc, err := s.login(req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorResponse(err.Error()))
		return
	}
	s.respondWithToken(c, http.StatusOK, acc.ID)
}

func (s *Server) respondWithToken(c *gin.Context, status int, userID string) {
	acc, _ := s.account(userID)
	token, err := s.IssueToken(userID)
	if err != nil {
		s.logger.Error("sign token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}
	c.JSON(status, authResponse{User: toUser(acc), Token: token})
}

func (s *Server) handleGetProfile(c *gin.Context) {
	acc, ok := s.account(c.GetString(contextKeyUserID))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse("user not found"))
		return
	}
	c.JSON(http.StatusOK, toUser(acc))
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}
	if req.Email != "" {
		if err := identity.ValidateEmail(req.Email); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
	}
	acc, err := s.updateAccount(c.GetString(contextKeyUserID), req.Name, req.Email)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, errEmailTaken) {
			status = http.StatusConflict
		}
		c.JSON(status, errorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, toUser(acc))
}

func (s *Server) handleGetUser(c *gin.Context) {
	acc, ok := s.account(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse("user not found"))
		return
	}
	// Other users' emails are not exposed.
	c.JSON(http.StatusOK, userResponse{ID: acc.ID, Name: acc.Name})
}

func (s *Server) handleHistory(c *gin.Context) {
	roomID := c.Param("roomId")
	if _, err := room.OtherParticipant(room.ID(roomID), c.GetString(contextKeyUserID)); err != nil {
		c.JSON(http.StatusForbidden, errorResponse("not a participant of this room"))
		return
	}
	c.JSON(http.StatusOK, s.history(roomID))
}

func (s *Server) handleNearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("latitude"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("longitude"), 64)
	p := geo.Point{Latitude: lat, Longitude: lon}
	if errLat != nil || errLon != nil || !p.Valid() {
		c.JSON(http.StatusBadRequest, errorResponse("latitude and longitude are required"))
		return
	}
	radius, _ := strconv.ParseFloat(c.Query("radiusKm"), 64)

	reqs := s.nearby(p, radius)
	out := make([]helpResponse, 0, len(reqs))
	for _, r := range reqs {
		acc, _ := s.account(r.UserID)
		out = append(out, helpResponse{
			ID:          r.ID,
			User:        userResponse{ID: acc.ID, Name: acc.Name},
			Description: r.Description,
			Location:    geoPoint{Type: "Point", Coordinates: r.Location.LonLat()},
			Status:      r.Status,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handlePostHelp(c *gin.Context) {
	var req struct {
		Description string    `json:"description"`
		Coordinates []float64 `json:"coordinates"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Coordinates) != 2 {
		c.JSON(http.StatusBadRequest, errorResponse("description and coordinates are required"))
		return
	}
	p := geo.Point{Longitude: req.Coordinates[0], Latitude: req.Coordinates[1]}
	if !p.Valid() {
		c.JSON(http.StatusBadRequest, errorResponse("invalid coordinates"))
		return
	}
	id, err := s.PostHelp(c.GetString(contextKeyUserID), req.Description, p)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"_id": id, "status": "open"})
}

func (s *Server) handleAccept(c *gin.Context) {
	userID := c.GetString(contextKeyUserID)
	req, roomID, err := s.accept(c.Param("id"), userID)
	switch {
	case errors.Is(err, errNotFound):
		c.JSON(http.StatusNotFound, errorResponse("help request not found"))
		return
	case errors.Is(err, errOwnRequest):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	case errors.Is(err, errAlreadyAccepted):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	s.logger.Info("help request accepted",
		zap.String("request_id", req.ID),
		zap.String("accepter", userID),
		zap.String("room", roomID.String()))
	s.hub.toRoom(req.UserID, wire.EventRequestAccepted, wire.Accepted{RoomID: roomID.String(), ChatID: roomID.String()})
	c.JSON(http.StatusOK, gin.H{"message": "accepted", "roomId": roomID.String()})
}
