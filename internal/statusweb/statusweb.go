// Package statusweb serves the status dashboard: a small net/http
// server rendering active jobs, their lifecycle status, and their
// summed counters, with dual JSON+HTML handlers over one data source
// — a Handler's job snapshots. The dashboard template is compiled into
// the binary: this service ships as a single executable with no
// adjacent asset directory to find at startup.
package statusweb

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"math/rand"
	"net"
	"net/http"
	"sort"
	"time"

	"nxwriter/internal/streammaster"
)

// Source is the narrow view Server needs of the running job set; a
// *handler.Handler satisfies it via its Snapshots method.
type Source interface {
	Snapshots() []streammaster.Snapshot
}

// Server exposes the status dashboard.
type Server struct {
	addr      string
	serviceID string
	source    Source
	tmpl      *template.Template
	logger    *log.Logger
}

// Options configure the dashboard server.
type Options struct {
	Addr      string
	ServiceID string
	Source    Source
	Logger    *log.Logger
}

// New constructs a dashboard server. addr may be ":0" to select an
// arbitrary free port.
func New(opts Options) (*Server, error) {
	tmpl, err := template.New("index").Parse(indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("statusweb: parse template: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		addr:      opts.Addr,
		serviceID: opts.ServiceID,
		source:    opts.Source,
		tmpl:      tmpl,
		logger:    logger,
	}, nil
}

// Start binds a listener and serves until the process shuts down; it
// blocks until the server stops. When ready is non-nil the bound
// address is sent to it once the listener is open.
func (s *Server) Start(ready chan<- string) error {
	if s.addr == "" {
		s.addr = ":0"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/status", s.handleStatus)

	ln, actualAddr, err := allocatePort(s.addr, 10)
	if err != nil {
		return fmt.Errorf("statusweb: allocate port: %w", err)
	}
	s.addr = actualAddr
	if ready != nil {
		ready <- actualAddr
	}
	s.logger.Printf("status dashboard listening at http://%s", actualAddr)

	server := &http.Server{Handler: mux, ErrorLog: s.logger}
	return server.Serve(ln)
}

// allocatePort tries preferredAddr first, falling back to a random
// port in a private range on conflict.
func allocatePort(preferredAddr string, maxRetries int) (net.Listener, string, error) {
	const (
		rangeMin = 20000
		rangeMax = 30000
	)

	if preferredAddr != "" && preferredAddr != ":0" {
		if ln, err := net.Listen("tcp", preferredAddr); err == nil {
			return ln, ln.Addr().String(), nil
		}
	}

	for i := 0; i < maxRetries; i++ {
		addr := fmt.Sprintf(":%d", rangeMin+rand.Intn(rangeMax-rangeMin+1))
		if ln, err := net.Listen("tcp", addr); err == nil {
			return ln, ln.Addr().String(), nil
		}
	}
	return nil, "", fmt.Errorf("no free port found after %d attempts", maxRetries)
}

type jobView struct {
	JobID      string
	ServiceID  string
	Status     string
	Partitions int
	Received   int64
	Processed  int64
	Timeouts   int64
	KafkaErrs  int64
	FBErrs     int64
}

func (s *Server) jobViews() []jobView {
	snaps := s.source.Snapshots()
	views := make([]jobView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, jobView{
			JobID:      snap.JobID,
			ServiceID:  snap.ServiceID,
			Status:     snap.Status.String(),
			Partitions: snap.Partitions,
			Received:   snap.Counts.MessagesReceived,
			Processed:  snap.Counts.MessagesProcessed,
			Timeouts:   snap.Counts.KafkaTimeouts,
			KafkaErrs:  snap.Counts.KafkaErrors,
			FBErrs:     snap.Counts.FlatbufferErrors,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].JobID < views[j].JobID })
	return views
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := map[string]any{
		"ServiceID":   s.serviceID,
		"GeneratedAt": time.Now().Format(time.RFC3339),
		"Jobs":        s.jobViews(),
	}
	if err := s.tmpl.Execute(w, ctx); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"service_id": s.serviceID,
		"jobs":       s.jobViews(),
	})
}

const indexTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>nxwriter status - {{.ServiceID}}</title>
  <style>
    body { font-family: sans-serif; margin: 2em; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: right; }
    th:first-child, td:first-child { text-align: left; }
  </style>
</head>
<body>
  <h1>nxwriter - {{.ServiceID}}</h1>
  <p>generated at {{.GeneratedAt}}</p>
  <table>
    <tr>
      <th>job_id</th><th>status</th><th>partitions</th>
      <th>received</th><th>processed</th><th>timeouts</th>
      <th>kafka_errors</th><th>fb_errors</th>
    </tr>
    {{range .Jobs}}
    <tr>
      <td>{{.JobID}}</td><td>{{.Status}}</td><td>{{.Partitions}}</td>
      <td>{{.Received}}</td><td>{{.Processed}}</td><td>{{.Timeouts}}</td>
      <td>{{.KafkaErrs}}</td><td>{{.FBErrs}}</td>
    </tr>
    {{else}}
    <tr><td colspan="8">no active jobs</td></tr>
    {{end}}
  </table>
</body>
</html>
`
