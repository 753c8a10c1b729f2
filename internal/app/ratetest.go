package app

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/rate_table/internal/archive"
	"github.com/relabs-tech/rate_table/internal/config"
	"github.com/relabs-tech/rate_table/internal/motion"
	"github.com/relabs-tech/rate_table/internal/poslog"
	"github.com/relabs-tech/rate_table/internal/run"
	"github.com/relabs-tech/rate_table/internal/sampling"
	"github.com/relabs-tech/rate_table/internal/telemetry"
	"github.com/relabs-tech/rate_table/internal/transport"
)

// RunRateTest executes one sinusoidal rate-table test: connect, home and
// configure the table, wait for the operator to start the IMU logger, then
// run the motion while sampling the encoder to CSV.
func RunRateTest(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printBanner(cfg)

	// ---- 1) Open the serial link (fatal on failure, no retry) ----
	link, err := transport.Open(cfg.SerialPort, cfg.BaudRate)
	if err != nil {
		return err
	}
	defer link.Close()
	log.Printf("ratetest: connected to %s at %d baud", cfg.SerialPort, cfg.BaudRate)

	// ---- 2) Optional live telemetry ----
	var pub telemetry.Publisher = telemetry.Nop{}
	if cfg.MQTTBroker != "" {
		mq, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientID,
			cfg.TopicPosition, cfg.TopicState)
		if err != nil {
			log.Printf("ratetest: telemetry disabled: %v", err)
		} else {
			pub = mq
			defer pub.Close()
		}
	}

	// ---- 3) Position log, teed into memory when archiving ----
	start := time.Now()
	writer, err := poslog.Create(cfg.LogFile, cfg.AmplitudeDeg, cfg.FrequencyHz, start)
	if err != nil {
		return err
	}
	defer writer.Close()

	var mem *poslog.Memory
	var sink poslog.Sink = writer
	if cfg.ArchiveDB != "" {
		mem = &poslog.Memory{}
		sink = poslog.Multi(writer, mem)
	}

	// ---- 4) Wire the session ----
	sampler := &sampling.Sampler{
		Query: link,
		Filter: &sampling.Filter{
			MinPos:  cfg.MinPositionDeg,
			MaxPos:  cfg.MaxPositionDeg,
			MaxJump: cfg.MaxJumpDeg,
		},
		Sink:          sink,
		Interval:      time.Duration(float64(time.Second) / cfg.TargetSampleRateHz),
		Publish:       pub.PublishSample,
		ProgressEvery: 50,
	}

	orch := run.New(motion.New(link), sampler)
	orch.AmplitudeDeg = cfg.AmplitudeDeg
	orch.FrequencyHz = cfg.FrequencyHz
	orch.NumCycles = cfg.NumCycles
	orch.Duration = time.Duration(cfg.DurationSec * float64(time.Second))
	orch.Confirm = confirmOnStdin
	orch.Notify = func(s run.State) { pub.PublishState(s.String()) }

	stats, runErr := orch.Run(ctx)

	log.Printf("ratetest: logged %d samples (%d substituted) to %s",
		stats.Samples, stats.Substituted, cfg.LogFile)
	if stats.Elapsed > 0 && stats.Samples > 0 {
		log.Printf("ratetest: mean sample rate %.2f Hz",
			float64(stats.Samples)/stats.Elapsed.Seconds())
	}

	// ---- 5) Archive the completed run ----
	if runErr == nil && mem != nil {
		if err := archiveRun(cfg, start, stats, mem.Records); err != nil {
			log.Printf("ratetest: archive error: %v", err)
		}
	}

	return runErr
}

func printBanner(cfg *config.Config) {
	fmt.Println("==================================================")
	fmt.Println("RATE TABLE SINUSOIDAL TEST")
	fmt.Println("==================================================")
	peakVel := cfg.AmplitudeDeg * 2 * math.Pi * cfg.FrequencyHz
	fmt.Printf("Amplitude: %g deg | Freq: %g Hz\n", cfg.AmplitudeDeg, cfg.FrequencyHz)
	fmt.Printf("Peak velocity: %.1f deg/s | Duration: %gs\n", peakVel, cfg.DurationSec)
}

// confirmOnStdin is the operator gate between Initialized and Armed: the
// independent IMU logger has to be started by hand before motion begins.
func confirmOnStdin(ctx context.Context) error {
	fmt.Println("\n*** Start your IMU logging now ***")
	fmt.Print("Press ENTER when ready...")

	entered := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(os.Stdin).ReadString('\n')
		entered <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-entered:
		return err
	}
}

func archiveRun(cfg *config.Config, start time.Time, stats sampling.Stats, records []poslog.Record) error {
	store, err := archive.Open(cfg.ArchiveDB)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := store.SaveRun(context.Background(), archive.Run{
		StartedAt:    start,
		AmplitudeDeg: cfg.AmplitudeDeg,
		FrequencyHz:  cfg.FrequencyHz,
		DurationSec:  cfg.DurationSec,
		CycleCount:   cfg.NumCycles,
		SampleRateHz: cfg.TargetSampleRateHz,
		Samples:      stats.Samples,
		Substituted:  stats.Substituted,
	}, records)
	if err != nil {
		return err
	}

	log.Printf("ratetest: archived run %d to %s", runID, cfg.ArchiveDB)
	return nil
}
