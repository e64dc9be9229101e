package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
)

// sampleRoute is a coarse Angels Camp to Murphys route along Highway 4.
const sampleRoute = "{`jgFntv~Uct@o`BgpAwnC_cB_|BwuBw|Ak}A{uA"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	geoUtils := geo.NewGeoUtils()

	switch os.Args[1] {
	case "leg":
		handleLeg(geoUtils)
	case "off-route":
		handleOffRoute(geoUtils)
	case "snap":
		handleSnap(geoUtils)
	case "encode-route":
		handleEncodeRoute(geoUtils)
	case "inspect-route":
		handleInspectRoute(geoUtils)
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// handleLeg reports the straight-line length and heading of one leg.
func handleLeg(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("leg", flag.ExitOnError)
	from := fs.String("from", "", "Start of the leg (lat,lon)")
	to := fs.String("to", "", "End of the leg (lat,lon)")
	fs.Parse(os.Args[2:])

	if *from == "" || *to == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils leg --from 38.0675,-120.5436 --to 38.1391,-120.4561")
		os.Exit(1)
	}

	start := mustParsePoint("from", *from)
	end := mustParsePoint("to", *to)
	meters, err := geoUtils.PointToPoint(start, end)
	if err != nil {
		log.Fatalf("Leg length failed: %v", err)
	}

	fmt.Printf("Leg:\n")
	fmt.Printf("  From: %s\n", formatPoint(start))
	fmt.Printf("  To: %s\n", formatPoint(end))
	fmt.Printf("  Straight-line length: %.1f m\n", meters)
	fmt.Printf("  Initial heading: %.1f°\n", geo.Bearing(start, end))
}

// handleOffRoute shows how far a fix is from a route and where it rejoins.
func handleOffRoute(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("off-route", flag.ExitOnError)
	at := fs.String("at", "", "Vehicle position (lat,lon)")
	encoded := fs.String("polyline", sampleRoute, "Encoded route polyline")
	fs.Parse(os.Args[2:])

	if *at == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils off-route --at 38.1000,-120.5000")
		fmt.Println("  test-geo-utils off-route --at 38.1000,-120.5000 --polyline \"<encoded route>\"")
		os.Exit(1)
	}

	fix := mustParsePoint("at", *at)
	route := mustDecodeRoute(geoUtils, *encoded)

	offset, err := geoUtils.PointToPolyline(fix, route)
	if err != nil {
		log.Fatalf("Distance to route failed: %v", err)
	}
	rejoin, segment, err := geoUtils.ClosestPointOnPolyline(fix, route)
	if err != nil {
		log.Fatalf("Rejoin point failed: %v", err)
	}

	points := route.Points
	remaining := 0.0
	if segment+1 < len(points) {
		remaining = geo.Haversine(rejoin, points[segment+1]) + geo.PathLength(points, segment+1, len(points)-1)
	}

	fmt.Printf("Off-route check:\n")
	fmt.Printf("  Fix: %s\n", formatPoint(fix))
	fmt.Printf("  Route: %d points, %.1f m\n", len(points), geo.PathLength(points, 0, len(points)-1))
	fmt.Printf("  Distance to route: %.1f m\n", offset)
	fmt.Printf("  Rejoin at: %s (segment %d)\n", formatPoint(rejoin), segment)
	fmt.Printf("  Remaining from rejoin: %.1f m\n", remaining)
}

// handleSnap runs the engine's windowed snapper, optionally seeded with the
// previous index.
func handleSnap(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("snap", flag.ExitOnError)
	at := fs.String("at", "", "Vehicle position (lat,lon)")
	encoded := fs.String("polyline", sampleRoute, "Encoded route polyline")
	lastIndex := fs.Int("last-index", -1, "Previously snapped index (-1 searches the whole route)")
	fs.Parse(os.Args[2:])

	if *at == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils snap --at 38.1000,-120.5000")
		fmt.Println("  test-geo-utils snap --at 38.1000,-120.5000 --polyline \"<encoded route>\" --last-index 2")
		os.Exit(1)
	}

	fix := mustParsePoint("at", *at)
	route := mustDecodeRoute(geoUtils, *encoded)

	var last *int
	if *lastIndex >= 0 {
		last = lastIndex
	}
	result, err := routing.NewSnapper().Snap(fix, route.Points, last)
	if err != nil {
		log.Fatalf("Snap failed: %v", err)
	}

	fmt.Printf("Snap:\n")
	fmt.Printf("  Fix: %s\n", formatPoint(fix))
	fmt.Printf("  Route: %d points\n", len(route.Points))
	fmt.Printf("  Snapped index: %d\n", result.ClosestIndex)
	fmt.Printf("  Snapped point: %s\n", formatPoint(result.ClosestPoint))
	fmt.Printf("  Distance to route: %.1f m\n", result.DistanceToRouteMeters)
}

// handleEncodeRoute turns waypoints into a route polyline.
func handleEncodeRoute(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("encode-route", flag.ExitOnError)
	waypoints := fs.String("waypoints", "", "Semicolon separated lat,lon waypoints")
	fs.Parse(os.Args[2:])

	if *waypoints == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils encode-route --waypoints \"38.0675,-120.5436;38.1000,-120.5000;38.1391,-120.4561\"")
		os.Exit(1)
	}

	var points []geo.Point
	for _, wp := range strings.Split(*waypoints, ";") {
		points = append(points, mustParsePoint("waypoint", wp))
	}

	fmt.Printf("Route:\n")
	fmt.Printf("  Waypoints: %d\n", len(points))
	fmt.Printf("  Length: %.1f m\n", geo.PathLength(points, 0, len(points)-1))
	fmt.Printf("  Polyline: %s\n", geoUtils.EncodePolyline(points))
}

// handleInspectRoute prints a decoded route leg by leg.
func handleInspectRoute(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("inspect-route", flag.ExitOnError)
	encoded := fs.String("polyline", sampleRoute, "Encoded route polyline")
	legs := fs.Bool("legs", false, "List every leg")
	fs.Parse(os.Args[2:])

	route := mustDecodeRoute(geoUtils, *encoded)
	points := route.Points

	fmt.Printf("Route:\n")
	fmt.Printf("  Points: %d\n", len(points))
	fmt.Printf("  Length: %.1f m\n", geo.PathLength(points, 0, len(points)-1))
	fmt.Printf("  Start: %s\n", formatPoint(points[0]))
	fmt.Printf("  End: %s\n", formatPoint(points[len(points)-1]))

	if *legs {
		for i := 0; i+1 < len(points); i++ {
			fmt.Printf("  %3d -> %3d  %8.1f m  heading %5.1f°\n", i, i+1,
				geo.Haversine(points[i], points[i+1]), geo.Bearing(points[i], points[i+1]))
		}
	}
}

func mustParsePoint(name, value string) geo.Point {
	p, err := geo.ParsePoint(strings.TrimSpace(value))
	if err != nil {
		log.Fatalf("Invalid %s: %v", name, err)
	}
	return p
}

func mustDecodeRoute(geoUtils geo.GeoUtils, encoded string) geo.Polyline {
	points, err := geoUtils.DecodePolyline(encoded)
	if err != nil {
		log.Fatalf("Invalid route polyline: %v", err)
	}
	return geo.Polyline{EncodedPolyline: encoded, Points: points}
}

func formatPoint(p geo.Point) string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Latitude, p.Longitude)
}

func printUsage() {
	fmt.Printf(`test-geo-utils - route geometry checks for the navigation engine

USAGE:
    test-geo-utils <command> [options]

COMMANDS:
    leg             Straight-line length and heading between two fixes
    off-route       Distance from a fix to a route and where it rejoins
    snap            Snap a fix onto a route with the engine's snapper
    encode-route    Encode waypoints as a route polyline
    inspect-route   Decode a route polyline and list its legs
    help            Show this help message

Commands taking --polyline default to a sample Highway 4 route.

EXAMPLES:
    test-geo-utils leg --from 38.0675,-120.5436 --to 38.1391,-120.4561
    test-geo-utils off-route --at 38.1000,-120.5000
    test-geo-utils snap --at 38.1000,-120.5000 --last-index 2
    test-geo-utils encode-route --waypoints "38.0675,-120.5436;38.1391,-120.4561"
    test-geo-utils inspect-route --legs
`)
}
