// Package web exposes the timer over HTTP and streams its projection over a
// websocket.
package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"issue_timer/internal/control"
	"issue_timer/internal/issue"
	"issue_timer/internal/session"
	"issue_timer/internal/timer"
)

// Issues is the registry surface the API needs.
type Issues interface {
	Track(ctx context.Context, i issue.Issue) (issue.Issue, error)
	Untrack(ctx context.Context, id string) error
	List() []issue.Issue
}

// Server is the HTTP control surface. It is also a guard host: the guard
// state is pushed to websocket clients so a browser can warn before close.
type Server struct {
	ctl      *control.Controller
	issues   Issues
	sessions control.SessionLister
	hub      *Hub
	engine   *gin.Engine
	armed    atomic.Bool
}

// NewServer wires the routes.
func NewServer(ctl *control.Controller, issues Issues, sessions control.SessionLister) *Server {
	s := &Server{ctl: ctl, issues: issues, sessions: sessions}
	s.hub = NewHub(s.greeting)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")

	api.GET("/issues", s.listIssues)
	api.POST("/issues", s.trackIssue)
	api.DELETE("/issues/:id", s.untrackIssue)

	api.GET("/timer", s.getTimer)
	api.POST("/timer/start", s.startTimer)
	api.POST("/timer/pause", s.pauseTimer)
	api.POST("/timer/resume", s.resumeTimer)
	api.POST("/timer/end", s.endTimer)
	api.POST("/timer/participants", s.addParticipant)
	api.PUT("/timer/notes", s.setNotes)

	api.GET("/sessions", s.listSessions)
	api.GET("/ws", s.hub.HandleConnection)
}

// Handler returns the http.Handler serving the API.
func (s *Server) Handler() http.Handler { return s.engine }

// Hub returns the websocket hub; Run must be started by the caller.
func (s *Server) Hub() *Hub { return s.hub }

// Attach streams every store transition to websocket clients.
func (s *Server) Attach(store *timer.Store) (detach func()) {
	return store.Subscribe(func(timer.Event) {
		s.hub.Broadcast(Event{Type: "timer", Data: s.ctl.Projection()})
	})
}

func (s *Server) Arm() {
	s.armed.Store(true)
	s.hub.Broadcast(Event{Type: "guard", Data: gin.H{"armed": true}})
}

func (s *Server) Disarm() {
	s.armed.Store(false)
	s.hub.Broadcast(Event{Type: "guard", Data: gin.H{"armed": false}})
}

func (s *Server) greeting() []Event {
	return []Event{
		{Type: "timer", Data: s.ctl.Projection()},
		{Type: "guard", Data: gin.H{"armed": s.armed.Load()}},
	}
}

func (s *Server) listIssues(c *gin.Context) {
	c.JSON(http.StatusOK, s.issues.List())
}

func (s *Server) trackIssue(c *gin.Context) {
	var req issue.Issue
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tracked, err := s.issues.Track(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tracked)
}

func (s *Server) untrackIssue(c *gin.Context) {
	if err := s.issues.Untrack(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getTimer(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Projection())
}

func (s *Server) startTimer(c *gin.Context) {
	var req struct {
		IssueID string `json:"issueId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ctl.Start(req.IssueID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.ctl.Projection())
}

func (s *Server) pauseTimer(c *gin.Context) {
	s.ctl.Pause()
	c.JSON(http.StatusOK, s.ctl.Projection())
}

func (s *Server) resumeTimer(c *gin.Context) {
	s.ctl.Resume()
	c.JSON(http.StatusOK, s.ctl.Projection())
}

func (s *Server) endTimer(c *gin.Context) {
	var req struct {
		Notes *string `json:"notes"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	s.ctl.End(req.Notes)
	c.JSON(http.StatusOK, s.ctl.Projection())
}

func (s *Server) addParticipant(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.ctl.AddParticipant(req.UserID)
	c.Status(http.StatusAccepted)
}

func (s *Server) setNotes(c *gin.Context) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.ctl.SetNotes(req.Notes)
	c.Status(http.StatusAccepted)
}

func (s *Server) listSessions(c *gin.Context) {
	opts := session.ListOptions{
		UserID:     s.ctl.UserID(),
		IssueID:    c.Query("issue"),
		ActiveOnly: strings.EqualFold(c.Query("active"), "true"),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		opts.Limit = n
	}

	list, err := s.sessions.List(c.Request.Context(), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []session.WorkSession{}
	}
	c.JSON(http.StatusOK, list)
}

func writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, issue.ErrNotTracked), errors.Is(err, session.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, issue.ErrInvalid):
		code = http.StatusBadRequest
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
