package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/dpup/prefab"
	"github.com/dpup/prefab/logging"
	"github.com/joho/godotenv"

	"github.com/dpup/info.ersn.net/navigation/internal/config"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/clock"
	"github.com/dpup/info.ersn.net/navigation/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	// Configuration is loaded from prefab.yaml and environment variables with PF__ prefix
	appConfig, err := config.Load(prefab.Config)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(logging.EnsureLogger(context.Background()))
	defer cancel()

	backend, err := services.NewRouteBackend(ctx, appConfig.Routing, clock.Real{})
	if err != nil {
		log.Fatalf("Failed to initialize route provider: %v", err)
	}
	defer backend.Close()

	backend.Memory.StartPeriodicCleanup(ctx, appConfig.Sessions.ReapInterval)

	navService := services.NewNavigationService(backend.Provider, appConfig)
	reaper := services.NewSessionReaper(navService, backend.Cleaner(), appConfig.Sessions.ReapInterval)
	reaper.Start(ctx)
	defer reaper.Stop()

	handler := services.NewHandler(navService)

	log.Printf("Navigation API server starting")
	log.Printf("Route provider: %s (cache ttl %v)", appConfig.Routing.Provider, appConfig.Routing.CacheTTL)

	// Server configuration (port, etc.) will be loaded from prefab.yaml/env vars
	server := prefab.New(
		prefab.WithJSONHandler(services.SessionsPath, handler.HandleSessions),
		prefab.WithJSONHandler(services.SessionsPath+"/", handler.HandleSession),
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
	)

	// Start the server (blocks until shutdown)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	// Only handle the root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>navigation</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">navigation</span>

Turn-by-turn navigation sessions over HTTP. Clients create a session for a
trip, post GPS fixes, and receive maneuver progress, ETA and voice prompts.

<span class="header">API Endpoints:</span>

  POST   /api/v1/sessions                  - Start a session {origin, destination[, route]}
  GET    /api/v1/sessions/{id}             - Current navigation state
  POST   /api/v1/sessions/{id}/locations   - Report a GPS fix
  GET    /api/v1/sessions/{id}/route       - Route being followed
  DELETE /api/v1/sessions/{id}             - Stop a session

<span class="header">Route Providers:</span>
  • OSRM                 - Open source routing (default)
  • Google Routes API    - Traffic-aware routing

<span class="header">Example Usage:</span>
  curl -X POST -d '{"origin":{"lat":38.0674,"lng":-120.5402},"destination":{"lat":38.1391,"lng":-120.4561}}' /api/v1/sessions
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Failed to write homepage HTML", "error", err)
	}
}
