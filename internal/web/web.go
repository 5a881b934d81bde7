package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"time"

	"epdctl/internal/config"
	"epdctl/internal/convert"
	"epdctl/internal/epd"
	appLog "epdctl/internal/log"
)

// Panel is the part of an epd.Driver the control API drives.
type Panel interface {
	Status() epd.Status
	Geometry() epd.Geometry
	Frame() []byte
	RequestRefresh(ctx context.Context, mode epd.RefreshMode) error
	Clear(ctx context.Context, mode epd.RefreshMode) error
	Display(ctx context.Context, buf []byte, mode epd.RefreshMode) error
	DisplayWindow(ctx context.Context, r image.Rectangle, buf []byte, mode epd.RefreshMode) error
	Sleep(ctx context.Context) error
	Wake(ctx context.Context) error
}

// Server exposes panel control over HTTP.
type Server struct {
	cfg   *config.Config
	panel Panel
	mux   *http.ServeMux

	// defaultMode is used when a request names no mode.
	defaultMode epd.RefreshMode
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, panel Panel) *Server {
	s := &Server{
		cfg:         cfg,
		panel:       panel,
		mux:         http.NewServeMux(),
		defaultMode: epd.FullRefresh1Bit,
	}
	if cfg != nil {
		if m, err := cfg.InitMode(); err == nil {
			s.defaultMode = m
		}
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="epdctl", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /api/clear", s.handleClear)
	s.mux.HandleFunc("POST /api/frame", s.handleFrame)
	s.mux.HandleFunc("POST /api/sleep", s.handleSleep)
	s.mux.HandleFunc("POST /api/wake", s.handleWake)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	State     string `json:"state"`
	Degraded  bool   `json:"degraded"`
	Mode      string `json:"mode"`
	Variant   string `json:"variant"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Refreshes uint64 `json:"refreshes"`
}

func toStatusResponse(st epd.Status) statusResponse {
	return statusResponse{
		State:     st.State.String(),
		Degraded:  st.Degraded,
		Mode:      st.Mode.String(),
		Variant:   st.Variant.String(),
		Width:     st.Geometry.Width,
		Height:    st.Geometry.Height,
		Refreshes: st.Refreshes,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toStatusResponse(s.panel.Status()))
}

// handleRefresh redraws the panel from RAM.
//
// POST /api/refresh?mode=partial
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	mode, ok := s.modeParam(w, r)
	if !ok {
		return
	}
	s.finish(w, "refresh", s.panel.RequestRefresh(panelCtx(r), mode))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	mode, ok := s.modeParam(w, r)
	if !ok {
		return
	}
	s.finish(w, "clear", s.panel.Clear(panelCtx(r), mode))
}

// handleFrame transfers a packed frame from the request body and refreshes.
//
// POST /api/frame?mode=partial[&x=8&y=0&w=64&h=32]
//   - without x/y/w/h the body is a full frame at the session depth
//   - with them the body is a packed 1-bit window
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	mode, ok := s.modeParam(w, r)
	if !ok {
		return
	}
	win, isWindow, err := windowParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The largest legal body is a full 2-bit frame.
	limit := int64(s.panel.Geometry().FrameSize(epd.Depth2Bit)) + 1
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "frame body too large")
		return
	}

	if isWindow {
		err = s.panel.DisplayWindow(panelCtx(r), win, body, mode)
	} else {
		err = s.panel.Display(panelCtx(r), body, mode)
	}
	s.finish(w, "frame", err)
}

func (s *Server) handleSleep(w http.ResponseWriter, r *http.Request) {
	s.finish(w, "sleep", s.panel.Sleep(panelCtx(r)))
}

func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	s.finish(w, "wake", s.panel.Wake(panelCtx(r)))
}

// handlePreview renders the "new" frame slot as a PNG.
func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	g := s.panel.Geometry()
	img, err := convert.Image1Bit(s.panel.Frame(), g.Width, g.Height)
	if err != nil {
		appLog.Error("preview unpack failed", err)
		writeError(w, http.StatusInternalServerError, "preview unavailable")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		appLog.Error("failed to write preview", err)
	}
}

// panelCtx keeps request values but not its cancellation. A panel operation
// runs to completion once started; the driver's busy timeout bounds it.
func panelCtx(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) modeParam(w http.ResponseWriter, r *http.Request) (epd.RefreshMode, bool) {
	name := r.URL.Query().Get("mode")
	if name == "" {
		return s.defaultMode, true
	}
	m, err := epd.ParseRefreshMode(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return m, true
}

// windowParams reads x, y, w, h. Either all four are present or none.
func windowParams(r *http.Request) (image.Rectangle, bool, error) {
	q := r.URL.Query()
	keys := []string{"x", "y", "w", "h"}
	var vals [4]int
	present := 0
	for i, k := range keys {
		v := q.Get(k)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return image.Rectangle{}, false, fmt.Errorf("bad %s=%q", k, v)
		}
		vals[i] = n
		present++
	}
	switch present {
	case 0:
		return image.Rectangle{}, false, nil
	case 4:
		return image.Rect(vals[0], vals[1], vals[0]+vals[2], vals[1]+vals[3]), true, nil
	default:
		return image.Rectangle{}, false, errors.New("window needs all of x, y, w, h")
	}
}

// finish writes the outcome of a panel operation.
func (s *Server) finish(w http.ResponseWriter, op string, err error) {
	if err != nil {
		code := statusCode(err)
		appLog.Warn("api operation failed", "op", op, "status", code, "err", err)
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(s.panel.Status()))
}

// statusCode maps driver errors to HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, epd.ErrInvalidBufferSize),
		errors.Is(err, epd.ErrInvalidWindow),
		errors.Is(err, epd.ErrUnsupportedMode):
		return http.StatusBadRequest
	case errors.Is(err, epd.ErrNotInitialized),
		errors.Is(err, epd.ErrDriverAsleep),
		errors.Is(err, epd.ErrDegraded):
		return http.StatusConflict
	case errors.Is(err, epd.ErrBusyTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
