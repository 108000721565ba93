package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"hds2flv/internal/config"
	"hds2flv/internal/f4m"
	"hds2flv/internal/f4v"
	"hds2flv/internal/flv"
	"hds2flv/internal/hds"
	"hds2flv/internal/logger"
)

const defaultUserAgent = "hds2flv/1.0"

func main() {
	// 1. Parse command-line arguments
	logLevel := flag.String("L", "info", "Log level (error, warn, info, debug)")
	configFile := flag.String("c", "", "Path to the channel config file")
	outFile := flag.String("o", "", "Output file path (default: derived from the stream name)")
	bitrate := flag.Int("b", 0, "Bitrate cap in kbps (0 picks the highest variant)")
	workers := flag.Int("w", 4, "Number of download workers")
	userAgent := flag.String("A", "", "User-Agent header for all requests")
	dump := flag.Bool("dump", false, "Decode and print the bootstrap info, then exit")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <manifest URL or path, or channel id with -c>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(2)
	}

	// 2. Initialize logger
	log := logger.NewLogger(*logLevel)

	if err := run(log, flag.Arg(0), *configFile, *outFile, *bitrate, *workers, *userAgent, *dump); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(log logger.Logger, target, configFile, outFile string, bitrate, workers int, userAgent string, dump bool) error {
	// 3. Load configuration when given and resolve the target to a
	// manifest source.
	src := target
	outDir := ""
	if configFile != "" {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		ch := cfg.FindChannel(target)
		if ch == nil {
			return fmt.Errorf("channel '%s' not found in %s", target, configFile)
		}
		log.Infof("Recording channel %s (%s)", ch.Id, ch.Name)
		src = ch.Manifest
		outDir = cfg.OutputDir
		if bitrate == 0 {
			bitrate = ch.Bitrate
		}
		if userAgent == "" {
			userAgent = cfg.UserAgent
		}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Fetch the manifest and pick the media variant.
	client := f4m.NewClient(log, userAgent)
	manifest, location, err := client.Fetch(ctx, src)
	if err != nil {
		return err
	}

	media := manifest.SelectMedia(bitrate)
	if media == nil {
		return fmt.Errorf("manifest %s declares no media", location)
	}
	if media.Protected() {
		return fmt.Errorf("media '%s' is DRM protected (drmAdditionalHeaderId=%s), refusing", media.URL, media.DRMAdditionalHeaderID)
	}
	log.Infof("Selected media %q (%d kbps, %dx%d)", media.URL, media.Bitrate, media.Width, media.Height)

	base, err := hds.BaseURL(location, manifest.BaseURL)
	if err != nil {
		return err
	}

	// 5. Decode the bootstrap.
	fetchBootstrap := func(ctx context.Context) (*f4v.BootstrapInfo, error) {
		bs := manifest.BootstrapFor(media)
		if bs == nil {
			return nil, fmt.Errorf("manifest %s has no bootstrap info for media '%s'", location, media.URL)
		}
		var raw []byte
		if bs.External() {
			bsURL, err := hds.ResolveRef(base, bs.URL)
			if err != nil {
				return nil, err
			}
			if raw, err = client.FetchBootstrap(ctx, bsURL); err != nil {
				return nil, err
			}
		} else {
			var err error
			if raw, err = bs.InlineBytes(); err != nil {
				return nil, err
			}
		}
		return f4v.NewDecoder(log).DecodeBootstrap(raw)
	}

	bootstrap, err := fetchBootstrap(ctx)
	if err != nil {
		return err
	}

	if dump {
		dumpBootstrap(os.Stdout, bootstrap)
		return nil
	}

	schedule, err := hds.BuildSchedule(bootstrap)
	if err != nil {
		return err
	}

	// 6. Open the output and wire the pipeline.
	outPath := outFile
	if outPath == "" {
		outPath = defaultOutputPath(outDir, manifest, media)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()
	log.Infof("Writing to %s", outPath)

	writer := flv.NewWriter(out, log)
	if err := writer.WriteHeader(); err != nil {
		return err
	}
	meta, err := media.MetadataBytes()
	if err != nil {
		log.Warnf("Ignoring undecodable media metadata: %v", err)
	} else if err := writer.WriteMetadata(meta); err != nil {
		return err
	}

	downloader := hds.NewDownloader(client.HttpClient(), log, userAgent, workers)
	defer downloader.Stop()

	sessCfg := hds.SessionConfig{
		Logger:     log,
		Downloader: downloader,
		Sink:       writer,
		Schedule:   schedule,
		BaseURL:    base,
		MediaURL:   media.URL,
		Window:     workers * 2,
	}
	if manifest.Live() || schedule.Live {
		// A live recording refreshes the bootstrap to chase the edge.
		// The manifest itself is not re-fetched: the bootstrap is the
		// part that grows.
		sessCfg.RefreshBootstrap = fetchBootstrap
	}
	sess, err := hds.NewSession(sessCfg)
	if err != nil {
		return err
	}

	// 7. Record until done or interrupted.
	if err := sess.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	log.Infof("Done: %d fragment(s), %d tag(s), %d bytes", sess.FragmentsWritten(), writer.TagsWritten(), writer.BytesWritten())
	return nil
}

// defaultOutputPath derives an .flv name from the media URL, falling
// back to the manifest id, inside the configured output directory.
func defaultOutputPath(dir string, m *f4m.Manifest, media *f4m.Media) string {
	name := media.URL
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	name = path.Base(name)
	if name == "" || name == "." || name == "/" {
		name = m.ID
	}
	if name == "" {
		name = "stream"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".flv") {
		name += ".flv"
	}
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// dumpBootstrap prints every decoded field in a human-readable layout.
func dumpBootstrap(w *os.File, b *f4v.BootstrapInfo) {
	fmt.Fprintf(w, "bootstrap info version %d (box version %d, flags %x)\n", b.BootstrapInfoVersion, b.Version, b.Flags)
	fmt.Fprintf(w, "  profile byte:          0x%02x\n", b.Profile)
	fmt.Fprintf(w, "  timescale:             %d\n", b.TimeScale)
	fmt.Fprintf(w, "  current media time:    %d\n", b.CurrentMediaTime)
	fmt.Fprintf(w, "  smpte timecode offset: %d\n", b.SmpteTimeCodeOffset)
	fmt.Fprintf(w, "  movie identifier:      %q\n", b.MovieIdentifier)
	fmt.Fprintf(w, "  drm data:              %q\n", b.DrmData)
	fmt.Fprintf(w, "  metadata:              %q\n", b.Metadata)
	fmt.Fprintf(w, "  server entries (%d):\n", len(b.ServerEntryTable))
	for _, s := range b.ServerEntryTable {
		fmt.Fprintf(w, "    %q\n", s)
	}
	fmt.Fprintf(w, "  quality entries (%d):\n", len(b.QualityEntryTable))
	for _, s := range b.QualityEntryTable {
		fmt.Fprintf(w, "    %q\n", s)
	}
	fmt.Fprintf(w, "  segment run tables (%d):\n", len(b.SegmentRunTables))
	for i, t := range b.SegmentRunTables {
		fmt.Fprintf(w, "    [%d] quality modifiers %v\n", i, t.QualitySegmentURLModifiers)
		for _, e := range t.SegmentRunEntries {
			fmt.Fprintf(w, "        segment %d: %d fragment(s) per segment\n", e.FirstSegment, e.FragmentsPerSegment)
		}
	}
	fmt.Fprintf(w, "  fragment run tables (%d):\n", len(b.FragmentRunTables))
	for i, t := range b.FragmentRunTables {
		fmt.Fprintf(w, "    [%d] timescale %d, quality modifiers %v\n", i, t.TimeScale, t.QualitySegmentURLModifiers)
		for _, e := range t.FragmentRunEntries {
			if e.DiscontinuityIndicator != nil {
				fmt.Fprintf(w, "        fragment %d @ %d: marker, discontinuity %d\n",
					e.FirstFragment, e.FirstFragmentTimestamp, *e.DiscontinuityIndicator)
				continue
			}
			fmt.Fprintf(w, "        fragment %d @ %d: duration %d\n",
				e.FirstFragment, e.FirstFragmentTimestamp, e.FragmentDuration)
		}
	}
}
