// Package server exposes the local status page: a JSON API for slot
// control plus a websocket stream of the live supervisor state.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kadzielawa/wowsup/internal/bot"
	"github.com/kadzielawa/wowsup/internal/config"
)

type HttpServer struct {
	logger    *slog.Logger
	manager   *bot.SupervisorManager
	scheduler *bot.Scheduler
	wsServer  *WebSocketServer
	server    *http.Server
}

type slotStatus struct {
	Name          string `json:"name"`
	Running       bool   `json:"running"`
	Status        string `json:"status"`
	ActiveProfile string `json:"activeProfile,omitempty"`
	LastCycle     string `json:"lastCycle,omitempty"`
}

type statusPayload struct {
	Phase string       `json:"schedulerPhase"`
	Slots []slotStatus `json:"slots"`
}

func New(logger *slog.Logger, manager *bot.SupervisorManager, scheduler *bot.Scheduler) (*HttpServer, error) {
	return &HttpServer{
		logger:    logger,
		manager:   manager,
		scheduler: scheduler,
	}, nil
}

func (s *HttpServer) Listen(port int) error {
	s.wsServer = NewWebSocketServer()
	go s.wsServer.Run()
	go s.BroadcastStatus()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.getRoot)
	mux.HandleFunc("/status", s.status)
	mux.HandleFunc("/start", s.startSlot)
	mux.HandleFunc("/stop", s.stopSlot)
	mux.HandleFunc("/ws", s.wsServer.HandleWebSocket)
	mux.HandleFunc("/initial-data", s.initialData)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("localhost:%d", port),
		Handler: mux,
	}
	s.logger.Info("status server listening", slog.Int("port", port))
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *HttpServer) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// BroadcastStatus pushes the status snapshot to websocket clients once a
// second.
func (s *HttpServer) BroadcastStatus() {
	for {
		data, err := json.Marshal(s.getStatusData())
		if err != nil {
			s.logger.Error("Failed to marshal status data", slog.Any("error", err))
			time.Sleep(time.Second)
			continue
		}
		s.wsServer.broadcast <- data
		time.Sleep(time.Second)
	}
}

func (s *HttpServer) getStatusData() statusPayload {
	payload := statusPayload{Phase: string(s.scheduler.Phase())}

	for _, name := range s.manager.AvailableSlots() {
		st := slotStatus{Name: name, Running: s.manager.Running(name)}
		if sup := s.manager.GetSupervisor(name); sup != nil {
			session := sup.Engine().Session()
			st.Status = string(session.Status)
			st.ActiveProfile = session.ActiveProfile
			if !session.LastCycle.IsZero() {
				st.LastCycle = session.LastCycle.Format(time.RFC3339)
			}
		} else {
			st.Status = string(bot.StatusNotWorking)
		}
		payload.Slots = append(payload.Slots, st)
	}
	return payload
}

func (s *HttpServer) getRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, statusPage)
}

func (s *HttpServer) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.getStatusData())
}

func (s *HttpServer) initialData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.getStatusData())
}

func (s *HttpServer) startSlot(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("slot")
	if _, found := config.GetSlot(name); !found {
		http.Error(w, "unknown slot", http.StatusNotFound)
		return
	}
	if s.manager.Running(name) {
		http.Error(w, "slot already running", http.StatusConflict)
		return
	}
	go func() {
		if err := s.manager.Start(name); err != nil {
			s.logger.Error("slot exited with error", slog.String("slot", name), slog.Any("error", err))
		}
	}()
	writeJSON(w, map[string]string{"result": "starting"})
}

func (s *HttpServer) stopSlot(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("slot")
	if !s.manager.Running(name) {
		http.Error(w, "slot not running", http.StatusConflict)
		return
	}
	s.manager.Stop(name)
	writeJSON(w, map[string]string{"result": "stopped"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

const statusPage = `<!DOCTYPE html>
<html>
<head><title>wowsup</title>
<style>
body { font-family: monospace; background: #1e1e1e; color: #ddd; margin: 2em; }
table { border-collapse: collapse; }
td, th { border: 1px solid #444; padding: 0.4em 0.8em; text-align: left; }
.running { color: #7c7; }
.stopped { color: #c77; }
</style>
</head>
<body>
<h2>wowsup</h2>
<p>scheduler: <span id="phase">-</span></p>
<table id="slots"><tr><th>Slot</th><th>Status</th><th>Profile</th><th>Last cycle</th></tr></table>
<script>
function render(data) {
  document.getElementById("phase").textContent = data.schedulerPhase;
  var table = document.getElementById("slots");
  while (table.rows.length > 1) table.deleteRow(1);
  (data.slots || []).forEach(function(s) {
    var row = table.insertRow();
    row.insertCell().textContent = s.name;
    var st = row.insertCell();
    st.textContent = s.status;
    st.className = s.running ? "running" : "stopped";
    row.insertCell().textContent = s.activeProfile || "";
    row.insertCell().textContent = s.lastCycle || "";
  });
}
fetch("/initial-data").then(function(r) { return r.json(); }).then(render);
var ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = function(ev) { render(JSON.parse(ev.data)); };
</script>
</body>
</html>`
