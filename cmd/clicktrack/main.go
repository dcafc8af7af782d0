package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/term"

	"github.com/lixenwraith/clicktrack/audio"
	"github.com/lixenwraith/clicktrack/catalog"
	"github.com/lixenwraith/clicktrack/constant"
	"github.com/lixenwraith/clicktrack/core"
	"github.com/lixenwraith/clicktrack/metronome"
	"github.com/lixenwraith/clicktrack/service"
	"github.com/lixenwraith/clicktrack/status"
)

var (
	catalogFlag = flag.String("catalog", "", "YAML sample catalog (default: built-in hihat)")
	bpmFlag     = flag.Int("bpm", constant.DefaultBPM, "Tempo in beats per minute")
	sourceFlag  = flag.String("source", "tone", "Initial sound: tone or a catalog sample id")
	preloadFlag = flag.Bool("preload", false, "Load every catalog sample at startup")
	debugFlag   = flag.Bool("debug", false, "Write logs to "+logDir+"/"+logFileName)
)

func main() {
	flag.Parse()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "clicktrack needs an interactive terminal")
		os.Exit(1)
	}

	if logFile := setupLogging(*debugFlag); logFile != nil {
		defer logFile.Close()
	}

	cfg := audio.LoadConfig()
	if *preloadFlag {
		cfg.PreloadAll = true
	}

	cat := catalog.Default()
	if *catalogFlag != "" {
		c, err := catalog.LoadFile(*catalogFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load catalog: %v\n", err)
			os.Exit(1)
		}
		cat = c
	}

	reg := status.NewRegistry()
	store := audio.NewSelection(audio.ParseSource(*sourceFlag))

	audioSvc := audio.NewService(reg, store)
	metroSvc := metronome.NewService(reg)

	hub := service.NewHub()
	if err := hub.Register(audioSvc, cfg, cat); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := hub.Register(metroSvc, metronome.BeatSink(audioSvc), *bpmFlag); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := hub.InitAll(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	if err := hub.StartAll(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer hub.StopAll()

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create screen: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize screen: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	// Restore the terminal before a crash report is printed
	core.SetCrashCleanup(screen.Fini)
	defer func() {
		if r := recover(); r != nil {
			screen.Fini()
			fmt.Fprintf(os.Stderr, "\nCLICKTRACK CRASHED: %v\nStack Trace:\n%s\n", r, debug.Stack())
			os.Exit(1)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := newApp(screen, audioSvc.Engine(), metroSvc.Metronome(), store, cat, reg)
	app.run(ctx)
}
