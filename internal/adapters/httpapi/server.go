package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikey/chat-sentinel/internal/core"
	"go.uber.org/zap"
)

// fetchTimeout bounds each attachment download issued on behalf of a
// scan request
const fetchTimeout = 30 * time.Second

// scanRequest is the wire form of an inbound message. Attachments carry
// a URL the server fetches on demand; the gateway never uploads bytes
// directly.
type scanRequest struct {
	ScopeID     string              `json:"scope_id"`
	ChannelID   string              `json:"channel_id"`
	MessageID   string              `json:"message_id" binding:"required"`
	AuthorID    string              `json:"author_id" binding:"required"`
	AuthorName  string              `json:"author_name"`
	Content     string              `json:"content"`
	Attachments []attachmentRequest `json:"attachments"`
}

type attachmentRequest struct {
	Filename string `json:"filename" binding:"required"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// scanResponse is the wire form of a pipeline report
type scanResponse struct {
	ID           string             `json:"id"`
	Action       string             `json:"action"`
	Spam         *core.SpamResult   `json:"spam,omitempty"`
	URLVerdicts  []verdictResponse  `json:"url_verdicts,omitempty"`
	FileVerdicts []verdictResponse  `json:"file_verdicts,omitempty"`
	CheckedAt    time.Time          `json:"checked_at"`
}

type verdictResponse struct {
	Target      string   `json:"target"`
	Malicious   bool     `json:"malicious"`
	Reasons     []string `json:"reasons,omitempty"`
	ContentHash string   `json:"content_hash,omitempty"`
}

// Server exposes the pipeline over HTTP to the chat gateway
type Server struct {
	pipeline *core.Pipeline
	fetcher  *http.Client
	srv      *http.Server
	logger   *zap.Logger
}

// NewServer creates the HTTP boundary listening on addr
func NewServer(addr string, pipeline *core.Pipeline, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		pipeline: pipeline,
		fetcher:  &http.Client{Timeout: fetchTimeout},
		logger:   logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", s.handleHealth)
	router.POST("/v1/scan", s.handleScan)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return s
}

// Start begins serving in a background goroutine
func (s *Server) Start() error {
	go func() {
		s.logger.Info("HTTP boundary listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg := &core.Message{
		ScopeID:    req.ScopeID,
		ChannelID:  req.ChannelID,
		MessageID:  req.MessageID,
		AuthorID:   req.AuthorID,
		AuthorName: req.AuthorName,
		Content:    req.Content,
	}
	for _, att := range req.Attachments {
		msg.Attachments = append(msg.Attachments, core.Attachment{
			Filename: att.Filename,
			Size:     att.Size,
			Fetch:    s.fetchFunc(att.URL),
		})
	}

	report, err := s.pipeline.HandleMessage(c.Request.Context(), msg)
	if err != nil {
		s.logger.Error("Pipeline failed", zap.String("message_id", req.MessageID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed"})
		return
	}

	c.JSON(http.StatusOK, toResponse(report))
}

// fetchFunc turns an attachment URL into the byte-fetch capability the
// file scanner consumes
func (s *Server) fetchFunc(url string) func(ctx context.Context, w io.Writer) error {
	return func(ctx context.Context, w io.Writer) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("invalid attachment URL: %w", err)
		}
		resp, err := s.fetcher.Do(req)
		if err != nil {
			return fmt.Errorf("attachment fetch failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("attachment fetch returned status %d", resp.StatusCode)
		}
		_, err = io.Copy(w, resp.Body)
		return err
	}
}

func toResponse(report *core.Report) scanResponse {
	resp := scanResponse{
		ID:        report.ID,
		Action:    string(report.Action),
		Spam:      report.Spam,
		CheckedAt: report.CheckedAt,
	}
	for _, v := range report.URLVerdicts {
		resp.URLVerdicts = append(resp.URLVerdicts, toVerdictResponse(v))
	}
	for _, v := range report.FileVerdicts {
		resp.FileVerdicts = append(resp.FileVerdicts, toVerdictResponse(v))
	}
	return resp
}

func toVerdictResponse(v core.ScanVerdict) verdictResponse {
	return verdictResponse{
		Target:      v.Target,
		Malicious:   v.Malicious,
		Reasons:     v.Reasons,
		ContentHash: v.ContentHash,
	}
}
