package devbackend

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"campaign-console/internal/audit"
	"campaign-console/internal/campaigns"
	"campaign-console/internal/leads"
	"campaign-console/pkg/logger"
)

func hasExt(name string, exts ...string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func (s *Server) uploadPDF(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		abort(c, http.StatusBadRequest, "file is required")
		return
	}
	if !hasExt(fh.Filename, "pdf") {
		abort(c, http.StatusBadRequest, "only PDF files are accepted")
		return
	}
	e, err := s.store.AddKnowledgeBase(c.PostForm("campaignId"), filepath.Base(fh.Filename), fh.Size)
	if err != nil {
		s.abortErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file": e})
}

// uploadCSV parses a lead sheet (CSV or XLSX) and appends its rows to the campaign.
func (s *Server) uploadCSV(c *gin.Context) {
	campaignID := c.PostForm("campaignId")
	if campaignID == "" {
		abort(c, http.StatusBadRequest, "campaignId is required")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		abort(c, http.StatusBadRequest, "file is required")
		return
	}
	parsed, err := s.parseLeadSheet(fh)
	if err != nil {
		if errors.Is(err, leads.ErrUnsupportedFormat) || errors.Is(err, leads.ErrNoContactColumn) || errors.Is(err, leads.ErrEmptySheet) {
			abort(c, http.StatusBadRequest, err.Error())
			return
		}
		logger.FromGin(c).Warn("lead sheet parse failed", "file", fh.Filename, "err", err)
		abort(c, http.StatusBadRequest, "could not read lead sheet")
		return
	}

	res, err := s.store.ImportLeads(campaignID, parsed.Leads)
	if err != nil {
		s.abortErr(c, err)
		return
	}
	res.Skipped += len(parsed.Skipped)
	s.record(c, audit.EventLeadsImported, campaignID, fmt.Sprintf("%d imported, %d skipped", res.Imported, res.Skipped))
	c.JSON(http.StatusOK, res)
}

func (s *Server) parseLeadSheet(fh *multipart.FileHeader) (leads.Result, error) {
	f, err := fh.Open()
	if err != nil {
		return leads.Result{}, err
	}
	defer f.Close()
	return s.parser.Parse(fh.Filename, f)
}

var audioExts = []string{"mp3", "wav", "m4a", "webm", "ogg"}

func (s *Server) uploadVoice(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	fh, err := c.FormFile("file")
	if name == "" || err != nil {
		abort(c, http.StatusBadRequest, "name and file are required")
		return
	}
	if !hasExt(fh.Filename, audioExts...) {
		abort(c, http.StatusBadRequest, "unsupported audio format")
		return
	}
	v := s.store.AddVoice(name, campaigns.VoiceCloned)
	c.JSON(http.StatusCreated, gin.H{"voice": v})
}

func (s *Server) deleteKnowledgeBase(c *gin.Context) {
	if err := s.store.DeleteKnowledgeBase(c.Param("id")); err != nil {
		s.abortErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listVoices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"voices": s.store.Voices()})
}

func (s *Server) cloneVoice(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	form, err := c.MultipartForm()
	if name == "" || err != nil || len(form.File["files"]) == 0 {
		abort(c, http.StatusBadRequest, "name and at least one sample are required")
		return
	}
	for _, fh := range form.File["files"] {
		if !hasExt(fh.Filename, audioExts...) {
			abort(c, http.StatusBadRequest, "unsupported audio format: "+filepath.Base(fh.Filename))
			return
		}
	}
	v := s.store.AddVoice(name, campaigns.VoiceCloned)
	c.JSON(http.StatusCreated, gin.H{"voice": v})
}
