// Command opticflowd is a small demonstration harness wiring the pipeline
// to a serial sink and/or a CSV file sink. The real plugin harness (module
// lifecycle, sensor driver, bias configuration, console status line) is an
// external collaborator per spec §1; this binary stands in for just enough
// of it to exercise the pipeline end-to-end.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.bug.st/serial"

	"github.com/banshee-data/opticflow/output"
	"github.com/banshee-data/opticflow/pipeline"
)

var (
	configPath = flag.String("config", "", "path to a JSON options file (defaults to spec defaults)")
	width      = flag.Int("width", 128, "sensor width in pixels")
	height     = flag.Int("height", 128, "sensor height in pixels")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	opts := pipeline.Defaults()
	if *configPath != "" {
		loaded, err := pipeline.LoadOptions(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		opts = loaded
	}

	p, err := pipeline.New(*width, *height, opts)
	if err != nil {
		log.Fatalf("failed to initialize pipeline: %v", err)
	}

	var sinks []output.Sink
	switch *opts.OutputMode {
	case "serial":
		sink, err := openSerialSink(opts, *width, *height)
		if err != nil {
			log.Printf("alert: serial sink disabled: %v", err)
		} else {
			sinks = append(sinks, sink)
		}
	case "file":
		sink, err := openFileSink(opts)
		if err != nil {
			log.Printf("alert: file sink disabled: %v", err)
		} else {
			sinks = append(sinks, sink)
		}
	case "both":
		if sink, err := openSerialSink(opts, *width, *height); err != nil {
			log.Printf("alert: serial sink disabled: %v", err)
		} else {
			sinks = append(sinks, sink)
		}
		if sink, err := openFileSink(opts); err != nil {
			log.Printf("alert: file sink disabled: %v", err)
		} else {
			sinks = append(sinks, sink)
		}
	}
	if len(sinks) > 0 {
		p.StartOutput(sinks...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("opticflowd: pipeline %s ready for %dx%d sensor", p.ID(), *width, *height)
	<-ctx.Done()

	if err := p.Close(); err != nil {
		log.Printf("critical: pipeline shutdown error: %v", err)
	}
}

func openSerialSink(opts *pipeline.Options, width, height int) (output.Sink, error) {
	mode := &serial.Mode{
		BaudRate: *opts.SerialBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: 1,
	}
	port, err := serial.Open(*opts.SerialPort, mode)
	if err != nil {
		return nil, err
	}
	return output.NewSerialSink(port, width, height)
}

func openFileSink(opts *pipeline.Options) (output.Sink, error) {
	f, err := os.OpenFile(*opts.OutputFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return output.NewFileSink(f)
}
