// Command anypod runs the full pipeline: reconciliation, the cron
// scheduler, the manual-feed runner, and the HTTP surface.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"

	"anypod/internal/config"
	"anypod/internal/coordinator"
	"anypod/internal/db"
	"anypod/internal/httpserver"
	"anypod/internal/logging"
	"anypod/internal/media"
	"anypod/internal/pipeline"
	"anypod/internal/reconcile"
	"anypod/internal/rss"
	"anypod/internal/schedule"
	"anypod/internal/submission"
	"anypod/internal/ytdlp"
)

func main() {
	settings := config.LoadSettings()
	logWriter := logging.Init(logging.Options{LogFile: settings.LogFile, Level: slog.LevelInfo})
	if closer, ok := logWriter.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	doc, err := config.LoadDocument(settings.ConfigFile, yaml.Unmarshal)
	if err != nil {
		slog.Error("failed to load feed configuration", "error", err)
		os.Exit(1)
	}

	conn, err := db.Open(sqlitePathFromURL(settings.DatabaseURL))
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	feeds := db.NewFeedStore(conn)
	downloads := db.NewDownloadStore(conn)

	paths := media.NewPathManager(settings.BaseDataDir)
	files := media.NewFileManager(paths)

	extractor := ytdlp.NewExtractorCore(settings.YtDlpPath, settings.FFprobePath)
	ffmpeg := ytdlp.NewFFmpeg(settings.FFmpegPath)
	images := media.NewImageDownloader(files, extractor.FFProbe(), ffmpeg)
	transcripts := media.NewTranscriptDownloader(files, settings.YtDlpPath)

	enqueuer := pipeline.NewEnqueuer(downloads, extractor, transcripts, paths)
	downloader := pipeline.NewDownloader(downloads, extractor, enqueuer, images, transcripts, files, paths)
	pruner := pipeline.NewPruner(feeds, downloads, files, paths)
	rssGen := rss.NewGenerator(downloads, files, paths, settings.BaseURL)

	dataCoordinator := coordinator.NewDataCoordinator(feeds, enqueuer, downloader, pruner, rssGen)

	reconciler := reconcile.NewStateReconciler(feeds, downloads, pruner, extractor)
	ctx := context.Background()
	readyFeeds := reconciler.ReconcileStartupState(ctx, doc.Feeds)
	slog.Info("startup reconciliation complete", "ready_feeds", len(readyFeeds))

	sem := semaphore.NewWeighted(int64(settings.FeedConcurrency))
	process := func(ctx context.Context, feedID string) error {
		fc := doc.Feeds[feedID]
		if fc == nil {
			return nil // feed was removed from configuration since scheduling
		}
		_, err := dataCoordinator.ProcessFeed(ctx, feedID, fc, "")
		return err
	}

	scheduler := schedule.NewScheduler(sem, process)
	manualRunner := schedule.NewManualFeedRunner(sem, process)

	for _, id := range readyFeeds {
		fc := doc.Feeds[id]
		if fc == nil || schedule.IsManual(fc.Schedule) {
			continue
		}
		sched, err := schedule.ParseSchedule(fc.Schedule)
		if err != nil {
			slog.Error("skipping feed with unparseable schedule", "feed_id", id, "error", err)
			continue
		}
		scheduler.AddFeed(id, sched)
	}
	scheduler.Start()

	submissionSvc := submission.NewService(downloads, extractor)

	server := httpserver.NewServer(strconv.Itoa(settings.HTTPPort), httpserver.Dependencies{
		Feeds:      feeds,
		Downloads:  downloads,
		Paths:      paths,
		Files:      files,
		RSSGen:     rssGen,
		Submission: submissionSvc,
		Enqueuer:   enqueuer,
		FeedConfig: func(feedID string) *config.FeedConfig { return doc.Feeds[feedID] },
		ManualTrigger: func(ctx context.Context, feedID string) {
			manualRunner.Trigger(ctx, feedID)
		},
		Version: "0.1.0",
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			slog.Error("HTTP server failed", "error", err)
		}
	}()
	slog.Info("anypod started", "port", settings.HTTPPort)

	<-sigChan
	slog.Info("shutdown signal received")

	scheduler.Stop(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("anypod stopped")
}

// sqlitePathFromURL strips the sqlite:// scheme, leaving the absolute
// filesystem path (sqlite:///data/anypod.db -> /data/anypod.db).
func sqlitePathFromURL(dbURL string) string {
	return strings.TrimPrefix(dbURL, "sqlite://")
}
