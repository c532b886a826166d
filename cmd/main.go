package main

import (
	stdErrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luispater/mkvdemux-go/internal/extract"
	"github.com/luispater/mkvdemux-go/internal/logger"
	"github.com/luispater/mkvdemux-go/pkg/config"
	"github.com/luispater/mkvdemux-go/pkg/errors"
	"github.com/luispater/mkvdemux-go/pkg/languages"
	"github.com/luispater/mkvdemux-go/pkg/matroska"
)

var cfg *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mkvdemux",
	Short: "Inspect and demux Matroska files",
	Long: `mkvdemux is a Matroska segment demuxer. It discovers tracks, chapters,
attachments and tags, walks the cluster stream, and extracts text subtitle
tracks to SRT files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <MKV_FILE>",
	Short: "Show segment information and metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg.InputFile = args[0]
		return runInfo()
	},
}

var tracksCmd = &cobra.Command{
	Use:   "tracks <MKV_FILE>",
	Short: "List the tracks of a segment",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg.InputFile = args[0]
		return runTracks()
	},
}

var packetsCmd = &cobra.Command{
	Use:   "packets <MKV_FILE>",
	Short: "Walk the cluster stream and print the packet timeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg.InputFile = args[0]
		return runPackets()
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <MKV_FILE>",
	Short: "Extract a text subtitle track to an SRT file",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg.InputFile = args[0]
		return runExtract()
	},
}

func init() {
	cfg = config.NewConfig()

	var noColors, quiet bool
	var logFile string
	rootCmd.PersistentFlags().BoolVar(&noColors, "no-colors", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write collected log messages to a file on exit")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if noColors {
			cfg.UseColors = false
		}
		if quiet {
			cfg.QuietMode = true
		}
		logger.SetColorMode(cfg.UseColors)
		logger.SetQuietMode(cfg.QuietMode)

		if logFile != "" {
			cobra.OnFinalize(func() {
				if errSave := logger.SaveLogsToFile(logFile); errSave != nil {
					logger.Error(fmt.Sprintf("failed to save log file: %v", errSave))
				}
			})
		}
		return nil
	}

	packetsCmd.Flags().Int64Var(&cfg.SeekMS, "seek", -1, "Seek to this time in milliseconds before demuxing")
	packetsCmd.Flags().IntVarP(&cfg.MaxPackets, "max-packets", "n", 0, "Stop after this many packets (0 = all)")
	packetsCmd.Flags().BoolVar(&cfg.ProgressLog, "progress", false, "Show a progress bar instead of per-packet lines (only with --max-packets)")

	extractCmd.Flags().IntVarP(&cfg.TrackNumber, "track", "t", 0, "Track number to extract (0 = best match)")
	var languagesStr string
	extractCmd.Flags().StringVarP(&languagesStr, "languages", "l", "", "Preferred subtitle languages, comma-separated")
	extractCmd.Flags().StringVarP(&cfg.OutputFile, "output-file", "o", "", "Output file path")
	extractCmd.PreRun = func(cmd *cobra.Command, args []string) {
		if languagesStr != "" {
			cfg.PreferredLanguages = []string{}
			for _, lang := range strings.Split(languagesStr, ",") {
				trimmed := strings.TrimSpace(lang)
				if trimmed != "" {
					cfg.PreferredLanguages = append(cfg.PreferredLanguages, trimmed)
				}
			}
		}
	}

	rootCmd.AddCommand(infoCmd, tracksCmd, packetsCmd, extractCmd)
}

func openExtractor() (*extract.Extractor, error) {
	if _, err := os.Stat(cfg.InputFile); os.IsNotExist(err) {
		return nil, errors.NewFileError("input file does not exist", err).WithContext("file_path", cfg.InputFile)
	}
	extractor := extract.NewExtractor(cfg.InputFile)
	if err := extractor.Open(); err != nil {
		return nil, err
	}
	return extractor, nil
}

func runInfo() error {
	extractor, err := openExtractor()
	if err != nil {
		return err
	}
	defer extractor.Close()

	demuxer := extractor.Demuxer()
	info := demuxer.Info()

	logger.Highlight(fmt.Sprintf("Segment: %s", cfg.InputFile))
	if info.Title != "" {
		logger.Info(fmt.Sprintf("  Title:          %s", info.Title))
	}
	logger.Info(fmt.Sprintf("  Muxing app:     %s", info.MuxingApp))
	logger.Info(fmt.Sprintf("  Writing app:    %s", info.WritingApp))
	logger.Info(fmt.Sprintf("  Timecode scale: %d ns", info.TimecodeScale))
	if durationUS := demuxer.Segment().DurationUS(); durationUS > 0 {
		logger.Info(fmt.Sprintf("  Duration:       %.3f s", float64(durationUS)/1e6))
	}
	if len(info.UID) > 0 {
		logger.Info(fmt.Sprintf("  UID:            %X", info.UID))
	}

	meta := &printSink{}
	demuxer.Segment().InformationCreate(meta)
	if len(meta.lines) > 0 {
		logger.Highlight("Metadata:")
		for _, line := range meta.lines {
			logger.Info("  " + line)
		}
	}

	if editions := demuxer.Editions(); len(editions) > 0 {
		logger.Highlight("Editions:")
		for _, edition := range editions {
			logger.Info(fmt.Sprintf("  edition %d: %d chapters, default=%v ordered=%v",
				edition.UID, len(edition.Chapters), edition.Default, edition.Ordered))
			for _, chapter := range edition.Chapters {
				printChapter(chapter, "    ")
			}
		}
	}

	if attachments := demuxer.Attachments(); len(attachments) > 0 {
		logger.Highlight("Attachments:")
		for _, attachment := range attachments {
			logger.Info(fmt.Sprintf("  %s (%s, %d bytes)",
				attachment.Name, attachment.MimeType, len(attachment.Data)))
		}
	}

	return nil
}

func printChapter(chapter *matroska.Chapter, indent string) {
	name := ""
	if len(chapter.Display) > 0 {
		name = chapter.Display[0].String
	}
	logger.Info(fmt.Sprintf("%s%.3fs %s", indent, float64(chapter.Start)/1e9, name))
	for _, child := range chapter.Children {
		printChapter(child, indent+"  ")
	}
}

func runTracks() error {
	extractor, err := openExtractor()
	if err != nil {
		return err
	}
	defer extractor.Close()

	tracks := extractor.Demuxer().Tracks()
	if len(tracks) == 0 {
		logger.Warning("no tracks found")
		return nil
	}

	for _, track := range tracks {
		language := track.Language
		if name, ok := languages.GetLanguageName(track.Language); ok {
			language = name
		}

		flags := ""
		if track.Default {
			flags += " default"
		}
		if track.Forced {
			flags += " forced"
		}
		if !track.Enabled {
			flags += " disabled"
		}

		logger.Info(fmt.Sprintf("track %d: %s %s language=%s%s",
			track.Number, track.Category, track.CodecID, language, flags))
		if track.Name != "" {
			logger.Info(fmt.Sprintf("  name: %s", track.Name))
		}
		switch track.Category {
		case matroska.CategoryVideo:
			logger.Info(fmt.Sprintf("  %dx%d (display %dx%d)",
				track.Video.PixelWidth, track.Video.PixelHeight,
				track.Video.DisplayWidth, track.Video.DisplayHeight))
		case matroska.CategoryAudio:
			logger.Info(fmt.Sprintf("  %d ch, %.0f Hz, %d bits",
				track.Audio.Channels, track.Audio.Rate, track.Audio.BitsPerSample))
		}
	}

	return nil
}

// packetPrinter is an ES output that prints one line per frame.
type packetPrinter struct {
	count int
	limit int
	bar   *logger.ProgressBar
}

type packetHandle struct {
	trackNumber uint64
	category    matroska.TrackCategory
}

func (p *packetPrinter) Add(desc *matroska.ESDescriptor) matroska.ESHandle {
	logger.Info(fmt.Sprintf("es add: track %d %s codec=%s", desc.TrackNumber, desc.Category, desc.Codec))
	return &packetHandle{trackNumber: desc.TrackNumber, category: desc.Category}
}

func (p *packetPrinter) Del(matroska.ESHandle) {}

func (p *packetPrinter) Send(h matroska.ESHandle, f *matroska.Frame) {
	handle := h.(*packetHandle)
	p.count++
	if p.bar != nil {
		p.bar.Update(p.count)
		return
	}
	key := " "
	if f.Key {
		key = "K"
	}
	fmt.Printf("%8d  track=%d %-8s %s pts=%d dts=%d dur=%d size=%d\n",
		p.count, handle.trackNumber, handle.category, key, f.PTS, f.DTS, f.DurationUS, len(f.Data))
}

func (p *packetPrinter) SetESDefault(matroska.ESHandle) {}
func (p *packetPrinter) SetPCR(int64)                   {}
func (p *packetPrinter) SetNextDisplayTime(int64)       {}

func runPackets() error {
	extractor, err := openExtractor()
	if err != nil {
		return err
	}
	defer extractor.Close()

	demuxer := extractor.Demuxer()
	printer := &packetPrinter{limit: cfg.MaxPackets}
	if err = demuxer.Select(printer); err != nil {
		return errors.NewExtractionError("failed to select tracks", err)
	}
	defer demuxer.UnSelect()

	if cfg.SeekMS >= 0 {
		demuxer.Seek(cfg.SeekMS*1000, 0, -1)
	}

	if cfg.ProgressLog && cfg.MaxPackets > 0 {
		printer.bar = logger.NewProgressBar(cfg.MaxPackets, "Demuxing")
		defer printer.bar.Stop()
	}

	for printer.limit == 0 || printer.count < printer.limit {
		errDemux := demuxer.Demux()
		if errDemux == nil {
			continue
		}
		if stdErrors.Is(errDemux, matroska.ErrEndOfStream) {
			break
		}
		return errors.NewExtractionError("failed to demux", errDemux)
	}

	logger.Success(fmt.Sprintf("%d packets", printer.count))
	return nil
}

func runExtract() error {
	extractor, err := openExtractor()
	if err != nil {
		return err
	}
	defer extractor.Close()

	var track *matroska.Track
	if cfg.TrackNumber > 0 {
		for _, candidate := range extractor.SubtitleTracks() {
			if candidate.Number == uint64(cfg.TrackNumber) {
				track = candidate
				break
			}
		}
		if track == nil {
			return errors.NewValidationError("no such text subtitle track", nil).
				WithContext("track", cfg.TrackNumber)
		}
	} else {
		track, err = extractor.SelectBestTrack(cfg.PreferredLanguages)
		if err != nil {
			return err
		}
	}

	outputPath := cfg.OutputFile
	if outputPath == "" {
		outputPath = strings.TrimSuffix(cfg.InputFile, ".mkv") + "_extracted.srt"
	}

	if err = extractor.ExtractToSRT(track, outputPath); err != nil {
		return err
	}

	logger.Success(fmt.Sprintf("extracted track %d to %s", track.Number, outputPath))
	return nil
}

// printSink collects normalized metadata as display lines.
type printSink struct {
	lines []string
}

func (p *printSink) Set(kind matroska.MetaKind, value string) {
	p.lines = append(p.lines, fmt.Sprintf("%s: %s", kind, value))
}

func (p *printSink) AddExtra(name, value string) {
	p.lines = append(p.lines, fmt.Sprintf("%s: %s", name, value))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Handle structured errors with additional context
		var demuxErr *errors.DemuxError
		if stdErrors.As(err, &demuxErr) {
			logger.Error(fmt.Sprintf("[%s] %s", strings.ToUpper(string(demuxErr.Type)), demuxErr.Message))
			if demuxErr.Cause != nil {
				logger.Error(fmt.Sprintf("Cause: %v", demuxErr.Cause))
			}
			if len(demuxErr.Context) > 0 {
				logger.Error("Context:")
				for key, value := range demuxErr.Context {
					logger.Error(fmt.Sprintf("  %s: %v", key, value))
				}
			}
		}
		os.Exit(1)
	}
}
