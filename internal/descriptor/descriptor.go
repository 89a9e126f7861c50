// Package descriptor renders and serves the UPnP device-description XML
// document a root device's LOCATION header points at. It keeps the
// teacher's html/template-based rendering approach (pkg/template/manager.go's
// Manager/TemplateData) but has exactly one template and one route: there is
// no phishing page, no SMB redirect, no XXE-bait DTD endpoint, because none
// of those serve a protocol-conformant SSDP responder.
package descriptor

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

//go:embed device.xml.tmpl
var deviceTemplateSource string

// Device holds the fields substituted into the device-description
// template. UDN should match the USN advertised over SSDP (minus any
// trailing "::<type>" suffix) so a control point can correlate the two.
type Device struct {
	DeviceType       string
	FriendlyName     string
	Manufacturer     string
	ManufacturerURL  string
	ModelDescription string
	ModelName        string
	ModelNumber      string
	UDN              string
	PresentationURL  string
}

// Manager renders device descriptions from the embedded template.
type Manager struct {
	tmpl *template.Template
}

// NewManager parses the embedded device-description template.
func NewManager() (*Manager, error) {
	tmpl, err := template.New("device.xml").Parse(deviceTemplateSource)
	if err != nil {
		return nil, fmt.Errorf("descriptor: parse template: %w", err)
	}
	return &Manager{tmpl: tmpl}, nil
}

// Render produces the device-description XML document for d.
func (m *Manager) Render(d Device) (string, error) {
	var out strings.Builder
	if err := m.tmpl.Execute(&out, d); err != nil {
		return "", fmt.Errorf("descriptor: render: %w", err)
	}
	return out.String(), nil
}

// Server serves a single device's description document over HTTP at the
// path given to NewServer, matching whatever path was embedded in the
// LOCATION URL advertised over SSDP.
type Server struct {
	manager *Manager
	device  Device
	path    string
	logger  *zap.SugaredLogger

	http *http.Server
}

// NewServer builds a Server for device, serving it at path (e.g.
// "/desc.xml") on every other request it responds 404.
func NewServer(device Device, path string, logger *zap.SugaredLogger) (*Server, error) {
	manager, err := NewManager()
	if err != nil {
		return nil, err
	}
	return &Server{
		manager: manager,
		device:  device,
		path:    path,
		logger:  logger,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.path {
		http.NotFound(w, r)
		return
	}
	xml, err := s.manager.Render(s.device)
	if err != nil {
		s.logger.Errorw("render device description failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=\"utf-8\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml))
}

// Start begins serving on addr. It blocks until the server stops; callers
// typically run it in its own goroutine alongside ssdpservice.Service.Run.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s}
	s.logger.Infow("device description server starting", "addr", addr, "path", s.path)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("descriptor: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, if it was started.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
