// Command audioscribe converts an audio file into a playback MP3 and a tiled
// spectrogram image, polling the conversion pipeline for progress while it
// runs.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/audioscribe/audioscribe/logging"
	"github.com/audioscribe/audioscribe/pipeline"
	"github.com/audioscribe/audioscribe/project"
	"github.com/audioscribe/audioscribe/transcode"
)

func main() {
	mediaRoot := flag.String("media", "MediaFiles", "media root directory")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-media dir] [-v] <audio file>\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	if *verbose {
		logging.SetLevel(logging.DebugLevel)
	} else {
		logging.SetLevel(logging.WarnLevel)
	}

	if err := run(*mediaRoot, flag.Arg(0)); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func run(mediaRoot, inputPath string) error {
	if err := os.MkdirAll(mediaRoot, 0o755); err != nil {
		return fmt.Errorf("create media root: %w", err)
	}

	layout := project.Layout{Root: mediaRoot}

	// Stage a copy so ingestion can move it without touching the user's file
	staged := filepath.Join(mediaRoot, filepath.Base(inputPath))
	if err := copyFile(inputPath, staged); err != nil {
		return fmt.Errorf("stage upload: %w", err)
	}

	id, created, err := layout.Ingest(staged)
	if err != nil {
		os.Remove(staged)
		return err
	}

	status, err := project.LoadStatus(layout.StatusPath(id))
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	if !created {
		cyan.Printf("duplicate content, resolved to existing project %s\n", shortID(id))
	}
	if status.SpectrogramGenerated {
		green.Println("already converted, nothing to do")
		printSummary(status, layout.Dir(id))
		return nil
	}

	transcoder := transcode.NewFFmpeg(nil, nil)
	if err := transcoder.CheckAvailability(); err != nil {
		return err
	}

	registry := pipeline.NewRegistry(pipeline.New(pipeline.DefaultConfig(mediaRoot), transcoder))

	cyan.Printf("converting project %s\n", shortID(id))
	registry.Start(id, layout.Path(id, status.OriginalFileName))

	// Poll the phase counter and progress cell until terminal or stalled on
	// a fatal error
	for {
		snap, ok := registry.Query(id)
		if !ok {
			break
		}
		if snap.Err != nil {
			return snap.Err
		}

		switch snap.Phase {
		case pipeline.PhaseImageSynthesis:
			percent := 0
			if snap.Batch != nil && snap.Batch.Total > 0 {
				percent = snap.Batch.Completed * 100 / snap.Batch.Total
			}
			fmt.Printf("\r%-24s %3d%%", snap.Phase, percent)
		case pipeline.PhaseDone:
			fmt.Printf("\r%-24s 100%%\n", snap.Phase)
		default:
			fmt.Printf("\r%-24s     ", snap.Phase)
		}

		if snap.Phase == pipeline.PhaseDone {
			registry.Remove(id)
			break
		}

		time.Sleep(200 * time.Millisecond)
	}

	status, err = project.LoadStatus(layout.StatusPath(id))
	if err != nil {
		return err
	}

	green.Println("conversion complete")
	printSummary(status, layout.Dir(id))
	return nil
}

func printSummary(status *project.Status, dir string) {
	if status.AudioFileName != nil {
		fmt.Printf("  playback:    %s\n", filepath.Join(dir, *status.AudioFileName))
	}
	if status.Spectrogram != nil {
		fmt.Printf("  spectrogram: %s\n", filepath.Join(dir, *status.Spectrogram))
	}
	if status.BPM != nil {
		fmt.Printf("  tempo:       %d BPM\n", *status.BPM)
	}
	if status.Duration != nil {
		fmt.Printf("  duration:    %.2fs\n", *status.Duration)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
