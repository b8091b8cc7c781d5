// Package fileapi is the HTTP front end of the file box: an authenticated
// file and trash API under /api/v1, plus the public share-download and
// health endpoints. Folder structure is emulated on top of the flat bucket
// key space by the folders package; nothing here keeps state between
// requests.
package fileapi

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/migadu/hako/consts"
	"github.com/migadu/hako/pkg/metrics"
	"github.com/migadu/hako/sharelink"
	"github.com/migadu/hako/storage"
)

// ObjectStore defines the bucket operations the file API requires.
// *storage.BucketStore implements it. This allows for mocking in tests.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.PutResult, error)
	Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectMeta, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Copy(ctx context.Context, sourceKey, destKey string) error
	List(ctx context.Context, prefix string, recursive bool) ([]storage.ObjectInfo, error)
	Ping(ctx context.Context) error
}

// Server represents the file API server
type Server struct {
	addr          string
	apiKey        string
	allowedHosts  []string
	publicBaseURL string
	maxUploadSize int64
	shareTTL      time.Duration
	store         ObjectStore
	shares        *sharelink.Codec
	server        *http.Server
	tls           bool
	tlsCertFile   string
	tlsKeyFile    string
	tlsConfig     *tls.Config
}

// ServerOptions holds configuration options for the file API server
type ServerOptions struct {
	Addr          string
	APIKey        string
	AllowedHosts  []string
	PublicBaseURL string
	MaxUploadSize int64
	ShareTTL      time.Duration
	TLS           bool
	TLSCertFile   string
	TLSKeyFile    string
	TLSConfig     *tls.Config // set by the TLS manager; takes precedence over the cert file pair
}

// New creates a new file API server
func New(store ObjectStore, shares *sharelink.Codec, options ServerOptions) (*Server, error) {
	if options.APIKey == "" {
		return nil, fmt.Errorf("API key is required for the file API server")
	}
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if shares == nil {
		return nil, fmt.Errorf("share codec is required")
	}

	// Validate TLS configuration
	if options.TLS && options.TLSConfig == nil {
		if options.TLSCertFile == "" || options.TLSKeyFile == "" {
			return nil, fmt.Errorf("TLS certificate and key files are required when TLS is enabled")
		}
	}

	maxUploadSize := options.MaxUploadSize
	if maxUploadSize <= 0 {
		maxUploadSize = 1 << 30
	}

	s := &Server{
		addr:          options.Addr,
		apiKey:        options.APIKey,
		allowedHosts:  options.AllowedHosts,
		publicBaseURL: strings.TrimRight(options.PublicBaseURL, "/"),
		maxUploadSize: maxUploadSize,
		shareTTL:      options.ShareTTL,
		store:         store,
		shares:        shares,
		tls:           options.TLS,
		tlsCertFile:   options.TLSCertFile,
		tlsKeyFile:    options.TLSKeyFile,
		tlsConfig:     options.TLSConfig,
	}

	return s, nil
}

// Start starts the file API server
func Start(ctx context.Context, store ObjectStore, shares *sharelink.Codec, options ServerOptions, errChan chan error) {
	server, err := New(store, shares, options)
	if err != nil {
		errChan <- fmt.Errorf("failed to create file API server: %w", err)
		return
	}

	protocol := "HTTP"
	if options.TLS {
		protocol = "HTTPS"
	}
	log.Printf("[FILEAPI] starting %s server on %s", protocol, options.Addr)
	if err := server.start(ctx); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		errChan <- fmt.Errorf("file API server failed: %w", err)
	}
}

// start initializes and starts the HTTP server
func (s *Server) start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Println("[FILEAPI] shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[FILEAPI] error shutting down HTTP server: %v", err)
		}
	}()

	// Start server with or without TLS
	if s.tls {
		if s.tlsConfig != nil {
			s.server.TLSConfig = s.tlsConfig
			return s.server.ListenAndServeTLS("", "")
		}
		return s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	}
	return s.server.ListenAndServe()
}

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.loggingMiddleware)

	// Public routes: share links must work from anywhere, and load balancers
	// probe /healthz, so neither goes through host or API key checks.
	router.HandleFunc("/d", s.handleShareDownload).Methods("GET")
	router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")

	// API v1 routes
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.allowedHostsMiddleware)
	v1.Use(s.authMiddleware)

	// File routes
	v1.HandleFunc("/files", s.handleListFiles).Methods("GET")
	v1.HandleFunc("/files", s.handleUploadFile).Methods("POST")
	v1.HandleFunc("/files/download", s.handleDownloadFile).Methods("GET")
	v1.HandleFunc("/files/delete", s.handleDeleteFile).Methods("POST")

	// Folder routes
	v1.HandleFunc("/folders", s.handleCreateFolder).Methods("POST")
	v1.HandleFunc("/folders/delete", s.handleDeleteFolder).Methods("POST")

	// Trash routes
	v1.HandleFunc("/trash", s.handleListTrash).Methods("GET")
	v1.HandleFunc("/trash/restore", s.handleRestoreTrash).Methods("POST")
	v1.HandleFunc("/trash/delete", s.handleDeleteTrash).Methods("POST")
	v1.HandleFunc("/trash/empty", s.handleEmptyTrash).Methods("POST")

	// Share routes
	v1.HandleFunc("/share", s.handleCreateShare).Methods("POST")

	return router
}

// Middleware functions

// statusWriter captures the response status code for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	return sw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher so streamed downloads keep working.
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[FILEAPI] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(elapsed.Seconds())
		log.Printf("[FILEAPI] %s %s completed with %d in %v", r.Method, r.URL.Path, status, elapsed)
	})
}

func (s *Server) allowedHostsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedHosts) == 0 {
			// No restrictions, allow all hosts
			next.ServeHTTP(w, r)
			return
		}

		clientIP := getClientIP(r)

		allowed := false
		for _, allowedHost := range s.allowedHosts {
			if allowedHost == clientIP {
				allowed = true
				break
			}
			// Check CIDR blocks
			if strings.Contains(allowedHost, "/") {
				if _, cidr, err := net.ParseCIDR(allowedHost); err == nil {
					if ip := net.ParseIP(clientIP); ip != nil {
						if cidr.Contains(ip) {
							allowed = true
							break
						}
					}
				}
			}
		}

		if !allowed {
			s.writeError(w, http.StatusForbidden, "Host not allowed")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			s.writeError(w, http.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.apiKey)) != 1 {
			s.writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Utility functions

func getClientIP(r *http.Request) string {
	// Try X-Forwarded-For header first (for proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	// Try X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

// isReservedKey reports whether a key sits under a service-managed prefix.
// Trash entries have their own endpoints and the TLS certificate cache is
// never user-visible, so the normal file routes refuse both.
func isReservedKey(key string) bool {
	return strings.HasPrefix(key, consts.TrashPrefix) || strings.HasPrefix(key, consts.AutocertPrefix)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[FILEAPI] error encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
