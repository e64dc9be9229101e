package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/joho/godotenv"

	"github.com/dpup/info.ersn.net/navigation/internal/config"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/clock"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/eta"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/navigation"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/replay"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/trace"
	"github.com/dpup/info.ersn.net/navigation/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	var (
		originStr    = flag.String("origin", "38.067400,-120.540200", "Origin coordinates (lat,lon)")
		destStr      = flag.String("dest", "38.139117,-120.456111", "Destination coordinates (lat,lon)")
		provider     = flag.String("provider", config.ProviderOSRM, "Route provider (osrm or google)")
		osrmURL      = flag.String("osrm-url", "", "OSRM base URL (default: public demo server)")
		speed        = flag.Float64("speed", 50, "Simulated speed in km/h")
		interval     = flag.Duration("interval", time.Second, "Time between simulated fixes")
		detourAt     = flag.Float64("detour-at", 0, "Leave the route this many meters in (0 disables)")
		detourLength = flag.Float64("detour-length", 300, "Length of the detour in meters")
		detourOffset = flag.Float64("detour-offset", 150, "Distance from the route during the detour in meters")
		realTime     = flag.Bool("realtime", false, "Play fixes in real time")
		kmlPath      = flag.String("kml", "", "Write the trip trace to this KML file")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		fmt.Printf("Navigation Replay Tool\n\n")
		fmt.Printf("Fetches a route, drives a simulated vehicle along it and prints the\n")
		fmt.Printf("navigation state and voice prompts for every fix.\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s -speed=80 -interval=2s\n", os.Args[0])
		fmt.Printf("  %s -detour-at=1500 -kml=trip.kml\n", os.Args[0])
		fmt.Printf("  GOOGLE_API_KEY=your_key %s -provider=google\n", os.Args[0])
		return
	}

	origin, err := geo.ParsePoint(*originStr)
	if err != nil {
		log.Fatalf("Invalid origin coordinates: %v", err)
	}
	destination, err := geo.ParsePoint(*destStr)
	if err != nil {
		log.Fatalf("Invalid destination coordinates: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Routing.Provider = *provider
	cfg.Routing.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	if *osrmURL != "" {
		cfg.Routing.OSRMBaseURL = *osrmURL
	}

	ctx := logging.EnsureLogger(context.Background())
	backend, err := services.NewRouteBackend(ctx, cfg.Routing, clock.Real{})
	if err != nil {
		log.Fatalf("Failed to create route provider: %v", err)
	}
	defer backend.Close()

	fmt.Printf("Navigation Replay\n")
	fmt.Printf("=================\n")
	fmt.Printf("Origin: %.6f, %.6f\n", origin.Latitude, origin.Longitude)
	fmt.Printf("Destination: %.6f, %.6f\n", destination.Latitude, destination.Longitude)
	fmt.Printf("Provider: %s\n\n", *provider)

	route, err := backend.Provider.FetchRoute(ctx, origin, destination)
	if err != nil {
		log.Fatalf("Failed to fetch route: %v", err)
	}
	fmt.Printf("Route: %.2f km, %.1f minutes, %d steps\n\n",
		route.TotalDistanceMeters/1000, route.TotalDurationSeconds/60, len(route.Steps))

	sim := replay.Simulator{
		Points:   route.Points,
		SpeedKmh: *speed,
		Interval: *interval,
		Start:    time.Now(),
	}
	if *detourAt > 0 {
		sim.Detour = &replay.Detour{StartMeters: *detourAt, LengthMeters: *detourLength, OffsetMeters: *detourOffset}
	}
	fixes, err := sim.Fixes()
	if err != nil {
		log.Fatalf("Failed to simulate trip: %v", err)
	}

	fake := clock.NewFake(sim.Start)
	opts := cfg.Navigation.Options()
	session := navigation.NewSession(backend.Provider,
		navigation.WithClock(fake),
		navigation.WithOptions(opts),
		navigation.WithVoiceSink(navigation.VoiceSinkFunc(func(_ context.Context, text string) {
			fmt.Printf("    🔊 %s\n", text)
		})),
	)
	if err := session.StartWithRoute(ctx, route, destination); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	recorder := trace.NewRecorder()
	recorder.AddRoute(route)
	reroutes := 0

	playOpts := replay.PlayOptions{
		RealTime: *realTime,
		OnFix: func(loc navigation.Location, state navigation.PublicState) {
			recorder.Record(loc, state)
			if state.RerouteCount > reroutes && state.Status != navigation.StatusLoading {
				reroutes = state.RerouteCount
				if r, ok := session.Route(); ok {
					recorder.AddRoute(r)
				}
			}
			printState(loc, state)
		},
	}
	if !*realTime {
		playOpts.Clock = fake
	}

	final, err := replay.Play(ctx, session, fixes, playOpts)
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	fmt.Printf("\nFinal status: %s (reroutes: %d, dropped fixes: %d)\n",
		final.Status, final.RerouteCount, final.DroppedUpdates)
	if final.LastError != "" {
		fmt.Printf("Last error: %s\n", final.LastError)
	}
	stats := backend.Memory.Stats()
	fmt.Printf("Route cache: %d entries (%d fresh)\n", stats.TotalEntries, stats.FreshEntries)

	if *kmlPath != "" {
		f, err := os.Create(*kmlPath)
		if err != nil {
			log.Fatalf("Failed to create KML file: %v", err)
		}
		defer f.Close()
		if err := recorder.WriteKML(f, "Navigation replay"); err != nil {
			log.Fatalf("Failed to write KML: %v", err)
		}
		fmt.Printf("Trace written to %s\n", *kmlPath)
	}
}

func printState(loc navigation.Location, state navigation.PublicState) {
	ts := loc.Timestamp.Format("15:04:05")
	switch state.Status {
	case navigation.StatusActive:
		instruction := ""
		if state.Step != nil {
			instruction = state.Step.Text()
		}
		fmt.Printf("%s  %-8s %6.0f m  %-40s remaining %6.0f m  eta %s (%s)\n",
			ts, state.Status, state.DistanceToManeuverMeters, instruction, state.RemainingDistanceMeters,
			eta.Format(state.ETASeconds), eta.ArrivalTime(loc.Timestamp, state.ETASeconds).Format("15:04"))
	case navigation.StatusLoading:
		fmt.Printf("%s  %-8s off route by %.0f m, rerouting\n", ts, "reroute", state.DistanceToRouteMeters)
	default:
		fmt.Printf("%s  %s\n", ts, state.Status)
	}
}
