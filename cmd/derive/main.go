// Command derive runs the Deriva Sonora walk-session engine from the
// command line: simulating walks, listing sessions, and exporting or
// importing session packages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/biomapp/derive/internal/config"
	"github.com/biomapp/derive/internal/database"
	"github.com/biomapp/derive/internal/geo"
	"github.com/biomapp/derive/internal/identity"
	"github.com/biomapp/derive/internal/location"
	"github.com/biomapp/derive/internal/logging"
	"github.com/biomapp/derive/internal/model"
	"github.com/biomapp/derive/internal/packager"
	"github.com/biomapp/derive/internal/session"
	"github.com/biomapp/derive/internal/storage"
	"github.com/biomapp/derive/internal/telemetry"
	"github.com/biomapp/derive/internal/tracker"
	"github.com/biomapp/derive/internal/util"
)

var (
	Logger *slog.Logger

	logManager *logging.Manager
	dbManager  *database.Manager
	store      storage.Store
	ident      *identity.FileProvider
	sim        *location.SimulatedProvider
	trk        *tracker.Tracker
	registry   *session.Registry
	pack       *packager.Packager
	recorder   *telemetry.Recorder
)

func initServices() error {
	if err := config.Load("."); err != nil {
		// Defaults are already in place; a missing config file is fine.
		fmt.Println("No config file found, using defaults.")
	}

	logManager = logging.NewManager()
	logManager.Setup(logging.Options{
		Level:          config.GetString("logLevel"),
		LogsDir:        config.GetString("logsDir"),
		GraylogAddress: graylogAddress(),
	})
	Logger = logManager.Logger()

	dbManager = database.NewManager(zerolog.New(os.Stderr).With().Timestamp().Logger())
	var err error
	store, err = dbManager.OpenStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	ident = identity.NewFileProvider(dataDir())

	var influx *telemetry.InfluxManager
	if config.GetBool("influx.enabled") {
		influx = telemetry.NewInfluxManager(dbManager.Logger)
		if err := influx.Connect(); err != nil {
			Logger.Warn("influx unavailable", "error", err)
			influx = nil
		}
	}
	recorder, err = telemetry.New(telemetry.Options{
		Enabled:     config.GetBool("telemetry.enabled"),
		ServiceName: "derive",
	}, influx, Logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	sim = location.NewSimulatedProvider()
	trk = tracker.New(tracker.OptionsFromConfig(), tracker.Dependencies{
		Location: sim,
		Logger:   Logger,
	})
	registry = session.NewRegistry(session.OptionsFromConfig(), session.Dependencies{
		Store:    store,
		Tracker:  trk,
		Identity: ident,
		Logger:   Logger,
	})
	pack = packager.New(packager.Dependencies{
		Store:    store,
		Identity: ident,
		Logger:   Logger,
	})
	return nil
}

func graylogAddress() string {
	if !config.GetBool("graylog.enabled") {
		return ""
	}
	return config.GetString("graylog.address")
}

func dataDir() string {
	dir := config.GetString("logsDir")
	if dir == "" {
		return "."
	}
	return filepath.Dir(filepath.Clean(dir))
}

func shutdown() {
	if registry != nil {
		registry.Close()
	}
	if sim != nil {
		sim.Stop()
	}
	if recorder != nil {
		recorder.Close()
	}
	if dbManager != nil {
		dbManager.Close()
	}
	if logManager != nil {
		logManager.Close()
	}
}

func main() {
	if err := initServices(); err != nil {
		fmt.Fprintln(os.Stderr, "startup failed:", err)
		os.Exit(1)
	}
	defer shutdown()

	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		return
	}

	var err error
	switch strings.ToLower(args[0]) {
	case "simulate":
		err = runSimulate(args[1:])
	case "sessions":
		err = runSessions()
	case "export":
		err = runExport(args[1:])
	case "import":
		err = runImport(args[1:])
	case "inspect":
		err = runInspect(args[1:])
	case "alias":
		err = runAlias(args[1:])
	case "recover":
		err = runRecover()
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		shutdown()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`usage: derive <command>

  simulate [minutes]   run a simulated walk session (default 1 minute)
  sessions             list stored walk sessions
  export <sessionId>   write a session package ZIP to the current directory
  import <file.zip>    import a session package
  inspect <file.zip>   print the manifest of a package
  alias <name>         set the local user alias
  recover              finalize sessions left active by a crash`)
}

func runSimulate(args []string) error {
	minutes := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid minutes: %q", args[0])
		}
		minutes = n
	}

	if _, err := registry.RecoverStaleSessions(); err != nil {
		return err
	}

	s, err := registry.StartSession(fmt.Sprintf("Simulated walk %s", util.ISODate(time.Now())))
	if err != nil {
		return err
	}
	recorder.SessionStarted(context.Background(), s.UserAlias)
	fmt.Println("Started session", s.SessionID)

	// A gently wandering trail out of the reserve entrance.
	trail := simulatedTrail(model.LatLng{Lat: 9.5500, Lng: -84.5800}, minutes*60)
	sim.Replay(trail, 50*time.Millisecond)

	if err := registry.StartTracking(nil); err != nil {
		return err
	}

	// One synthetic recording midway through the walk.
	walkTime := time.Duration(len(trail)) * 50 * time.Millisecond
	time.Sleep(walkTime / 2)
	if err := addSimulatedRecording(s.SessionID, trail[len(trail)/2]); err != nil {
		Logger.Warn("failed to add simulated recording", "error", err)
	}
	time.Sleep(walkTime / 2)

	done, err := registry.EndSession(s.SessionID)
	if err != nil {
		return err
	}
	recorder.SessionEnded(context.Background(), done)

	fmt.Println("Session complete:", done.SessionID)
	if sum := done.Summary; sum != nil {
		fmt.Printf("  distance: %.0f m\n", sum.TotalDistanceMeters)
		fmt.Printf("  pattern:  %s\n", sum.Pattern)
		fmt.Printf("  points:   %d (from %d raw)\n", sum.BreadcrumbCount, sum.RawBreadcrumbCount)
		fmt.Printf("  duration: %s\n", util.FormatDuration(sum.MovingTimeSeconds+sum.StationaryTimeSeconds))
	}
	return nil
}

// simulatedTrail walks north-east with slight jitter, one fix per second of
// simulated time.
func simulatedTrail(start model.LatLng, seconds int) []model.Position {
	trail := make([]model.Position, 0, seconds)
	pos := start
	now := time.Now().UnixMilli()
	for i := 0; i < seconds; i++ {
		bearing := 45.0 + float64(i%21-10)
		pos = geo.DestinationPoint(pos, bearing, 1.2)
		trail = append(trail, model.Position{
			Lat:        pos.Lat,
			Lng:        pos.Lng,
			CapturedAt: now + int64(i)*1000,
		})
	}
	return trail
}

func addSimulatedRecording(sessionID string, at model.Position) error {
	rec := &model.Recording{
		UniqueID:        uuid.NewString(),
		Filename:        fmt.Sprintf("sim_%d.webm", time.Now().UnixMilli()),
		DisplayName:     "Simulated ambience",
		DurationSeconds: 12,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Location:        &model.RecordingLocation{Lat: at.Lat, Lng: at.Lng},
		Quality:         model.QualityMedium,
		MimeType:        "audio/webm",
		Saved:           true,
	}
	if err := store.SaveRecording(rec); err != nil {
		return err
	}
	if err := store.SaveAudio(rec.Filename, []byte("simulated audio payload")); err != nil {
		return err
	}
	if err := registry.AddRecording(sessionID, rec.UniqueID); err != nil {
		return err
	}
	recorder.RecordingLinked(context.Background())
	return nil
}

func runSessions() error {
	sessions, err := registry.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions stored.")
		return nil
	}
	for _, s := range sessions {
		line := fmt.Sprintf("%s  [%s]  %s", s.SessionID, s.Status, util.Truncate(s.Title, 40))
		if s.Summary != nil {
			line += fmt.Sprintf("  %.0fm, %d recordings", s.Summary.TotalDistanceMeters, len(s.RecordingIDs))
		}
		fmt.Println(line)
	}
	return nil
}

func runExport(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("export needs a session id")
	}
	res, err := pack.Export(args[0])
	if err != nil {
		return err
	}
	if err := os.WriteFile(res.Filename, res.Data, 0644); err != nil {
		return err
	}
	recorder.PackageExported(context.Background())
	fmt.Printf("Wrote %s (%d bytes, audio %d/%d)\n",
		res.Filename, res.SizeBytes, res.AudioIncluded, res.AudioTotal)
	return nil
}

func runImport(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("import needs a package file")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	res, err := pack.Import(data)
	if err != nil {
		return err
	}
	recorder.PackageImported(context.Background())
	fmt.Printf("Imported %q as %s: %d recordings, %d breadcrumbs\n",
		res.Title, res.SessionID, res.RecordingsImported, res.BreadcrumbsImported)
	return nil
}

func runInspect(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("inspect needs a package file")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	m := pack.Detect(data)
	if m == nil {
		fmt.Println("Not a Deriva Sonora package.")
		return nil
	}
	fmt.Println("Package:", m.PackageType, "v"+m.FormatVersion)
	fmt.Println("Created:", m.CreatedAt, "by", m.CreatedBy.Alias)
	fmt.Printf("Session: %s %q, %d recordings, %d breadcrumbs, %.0f m\n",
		m.Session.SessionID, m.Session.Title,
		m.Session.RecordingCount, m.Session.BreadcrumbCount,
		m.Session.TotalDistanceMeters)
	return nil
}

func runAlias(args []string) error {
	if len(args) == 0 {
		if ident.HasAlias() {
			fmt.Println("Current alias:", ident.Alias())
		} else {
			fmt.Println("No alias set.")
		}
		return nil
	}
	if err := ident.SetAlias(args[0]); err != nil {
		return err
	}
	fmt.Println("Alias set to", ident.Alias())
	return nil
}

func runRecover() error {
	recovered, err := registry.RecoverStaleSessions()
	if err != nil {
		return err
	}
	if len(recovered) == 0 {
		fmt.Println("No stale sessions.")
		return nil
	}
	for _, s := range recovered {
		fmt.Println("Recovered", s.SessionID, "-", s.Title)
	}
	return nil
}
