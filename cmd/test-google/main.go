package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dpup/info.ersn.net/navigation/internal/clients/google"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
)

func main() {
	var (
		apiKey    = flag.String("api-key", "", "Google Routes API key (or set GOOGLE_ROUTES_API_KEY env var)")
		originStr = flag.String("origin", "38.067400,-120.540200", "Origin coordinates (lat,lon)")
		destStr   = flag.String("dest", "38.139117,-120.456111", "Destination coordinates (lat,lon)")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		fmt.Printf("Google Routes API Test Tool\n\n")
		fmt.Printf("Fetches a route with turn-by-turn steps from the Google Routes API.\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s -api-key=YOUR_KEY\n", os.Args[0])
		fmt.Printf("  %s -origin=\"37.7749,-122.4194\" -dest=\"34.0522,-118.2437\"\n", os.Args[0])
		fmt.Printf("  GOOGLE_ROUTES_API_KEY=your_key %s\n", os.Args[0])
		return
	}

	// Get API key from flag or environment
	key := *apiKey
	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
		if key == "" {
			key = os.Getenv("GOOGLE_ROUTES_API_KEY") // fallback
		}
	}
	if key == "" {
		log.Fatal("Google Routes API key required. Use -api-key flag or GOOGLE_API_KEY/GOOGLE_ROUTES_API_KEY env var")
	}

	origin, err := geo.ParsePoint(*originStr)
	if err != nil {
		log.Fatalf("Invalid origin coordinates: %v", err)
	}
	destination, err := geo.ParsePoint(*destStr)
	if err != nil {
		log.Fatalf("Invalid destination coordinates: %v", err)
	}

	fmt.Printf("Google Routes API Test\n")
	fmt.Printf("======================\n")
	fmt.Printf("Origin: %.6f, %.6f\n", origin.Latitude, origin.Longitude)
	fmt.Printf("Destination: %.6f, %.6f\n", destination.Latitude, destination.Longitude)
	fmt.Printf("API Key: %s...\n", key[:min(len(key), 10)])
	fmt.Printf("\n")

	client := google.NewClient(key)

	fmt.Printf("Testing ComputeRoutes...\n")
	data, err := client.ComputeRoutes(context.Background(), origin, destination)
	if err != nil {
		log.Fatalf("ComputeRoutes failed: %v", err)
	}

	fmt.Printf("✅ ComputeRoutes successful!\n")
	fmt.Printf("Distance: %.2f km\n", float64(data.DistanceMeters)/1000.0)
	fmt.Printf("Duration: %.1f minutes (%.1f without traffic)\n",
		float64(data.DurationSeconds)/60.0, float64(data.StaticDurationSeconds)/60.0)
	fmt.Printf("Polyline: %s...\n", data.Polyline[:min(len(data.Polyline), 50)])

	if len(data.SpeedReadings) > 0 {
		fmt.Printf("Speed readings: %d\n", len(data.SpeedReadings))
		conditions := make(map[string]int)
		for _, reading := range data.SpeedReadings {
			conditions[reading.SpeedCategory]++
		}
		for category, count := range conditions {
			fmt.Printf("  %s: %d segments\n", category, count)
		}
	}

	fmt.Printf("\nTesting FetchRoute...\n")
	route, err := client.FetchRoute(context.Background(), origin, destination)
	if err != nil {
		log.Fatalf("FetchRoute failed: %v", err)
	}
	fmt.Printf("✅ FetchRoute successful: %d points, traffic factor %.2f\n", len(route.Points), route.TrafficFactor)
	for i, step := range route.Steps {
		fmt.Printf("  %2d. %-50s %6.0f m\n", i+1, step.Text(), step.DistanceMeters)
	}

	fmt.Printf("\n🎉 All Google Routes API tests passed!\n")
}
