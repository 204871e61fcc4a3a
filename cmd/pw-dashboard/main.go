// Command pw-dashboard serves a dashboard for a Plugwise-2-py installation:
// live circle power and state, switch and schedule toggles, weekly schedule
// editing and per-device configuration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/pw-dashboard/internal/alert"
	"github.com/sweeney/pw-dashboard/internal/backend"
	"github.com/sweeney/pw-dashboard/internal/circle"
	"github.com/sweeney/pw-dashboard/internal/gpio"
	"github.com/sweeney/pw-dashboard/internal/logging"
	"github.com/sweeney/pw-dashboard/internal/logic"
	"github.com/sweeney/pw-dashboard/internal/metrics"
	"github.com/sweeney/pw-dashboard/internal/mqtt"
	"github.com/sweeney/pw-dashboard/internal/schedule"
	"github.com/sweeney/pw-dashboard/internal/status"
	"github.com/sweeney/pw-dashboard/internal/telemetry"
	"github.com/sweeney/pw-dashboard/internal/web"
)

const serviceName = "pw-dashboard"

// Telemetry sources and command transports.
const (
	viaSocket = "socket"
	viaMQTT   = "mqtt"
	viaHTTP   = "http"
	viaNone   = "none"
)

type config struct {
	backendURL  string
	backendUser string
	backendPass string
	timeout     time.Duration
	httpAddr    string
	broker      string
	prefix      string
	wide        bool
	telemetry   string
	commands    string

	logLevel  string
	logFormat string
	lokiURL   string

	buttons   []logic.Button
	poll      time.Duration
	debounce  time.Duration
	heartbeat time.Duration

	printCircles bool
}

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Str("service", serviceName).Logger()

	cfg, err := parseFlags(os.Args[1:], boot)
	if err != nil {
		boot.Fatal().Err(err).Msg("invalid configuration")
	}

	log, cleanup, err := logging.Setup(logging.Config{
		Level:   cfg.logLevel,
		Format:  cfg.logFormat,
		LokiURL: cfg.lokiURL,
		Labels:  map[string]string{"version": buildinfo.SourceVersion()},
	})
	if err != nil {
		boot.Fatal().Err(err).Msg("setup logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, log, os.Stdout)
	stop()
	cleanup()
	if err != nil {
		boot.Fatal().Err(err).Msg("fatal")
	}
}

// parseFlags reads command-line flags. Every flag defaults to its PW_*
// environment variable.
func parseFlags(args []string, log zerolog.Logger) (config, error) {
	var cfg config
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)

	fs.StringVar(&cfg.backendURL, "backend", env.GetVariableOrDefault(log, "PW_BACKEND_URL", "http://localhost:8000"), "Plugwise-2-web base URL")
	fs.StringVar(&cfg.backendUser, "backend-user", env.GetVariableOrDefault(log, "PW_BACKEND_USER", ""), "Plugwise-2-web basic auth user")
	fs.StringVar(&cfg.backendPass, "backend-password", env.GetVariableOrDefault(log, "PW_BACKEND_PASSWORD", ""), "Plugwise-2-web basic auth password")
	fs.DurationVar(&cfg.timeout, "backend-timeout", backend.DefaultTimeout, "Backend request timeout")
	fs.StringVar(&cfg.httpAddr, "http", env.GetVariableOrDefault(log, "PW_HTTP_ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.broker, "broker", env.GetVariableOrDefault(log, "PW_MQTT_BROKER", "tcp://localhost:1883"), "MQTT broker address")
	fs.StringVar(&cfg.prefix, "topic-prefix", env.GetVariableOrDefault(log, "PW_TOPIC_PREFIX", mqtt.DefaultPrefix), "MQTT topic root")
	wide := fs.String("wide", env.GetVariableOrDefault(log, "PW_WIDE", "true"), "Edit schedules with days as rows (false: slots as rows)")
	fs.StringVar(&cfg.telemetry, "telemetry", env.GetVariableOrDefault(log, "PW_TELEMETRY", viaSocket), "Live state source: socket, mqtt or none")
	fs.StringVar(&cfg.commands, "commands", env.GetVariableOrDefault(log, "PW_COMMANDS", viaSocket), "Command transport: socket, http or mqtt")
	fs.StringVar(&cfg.logLevel, "log-level", env.GetVariableOrDefault(log, "PW_LOG_LEVEL", "info"), "Log level")
	fs.StringVar(&cfg.logFormat, "log-format", env.GetVariableOrDefault(log, "PW_LOG_FORMAT", "json"), "Log format: json or text")
	fs.StringVar(&cfg.lokiURL, "loki", env.GetVariableOrDefault(log, "PW_LOKI_URL", ""), "Loki push URL (empty to disable)")
	buttons := fs.String("buttons", env.GetVariableOrDefault(log, "PW_BUTTONS", ""), "Toggle buttons as pin=mac,pin=mac (BCM numbering)")
	fs.DurationVar(&cfg.poll, "poll", 50*time.Millisecond, "Button polling interval")
	fs.DurationVar(&cfg.debounce, "debounce", 50*time.Millisecond, "Button debounce duration")
	fs.DurationVar(&cfg.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat log interval (0 to disable)")
	fs.BoolVar(&cfg.printCircles, "print-circles", false, "Print the status line of every circle and exit")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	var err error
	if cfg.wide, err = strconv.ParseBool(*wide); err != nil {
		return config{}, fmt.Errorf("wide: %w", err)
	}
	if cfg.buttons, err = logic.ParseButtons(*buttons); err != nil {
		return config{}, err
	}
	switch cfg.telemetry {
	case viaSocket, viaMQTT, viaNone:
	default:
		return config{}, fmt.Errorf("unknown telemetry source %q", cfg.telemetry)
	}
	switch cfg.commands {
	case viaSocket, viaHTTP, viaMQTT:
	default:
		return config{}, fmt.Errorf("unknown command transport %q", cfg.commands)
	}
	return cfg, nil
}

func (c config) orientation() schedule.Orientation {
	if c.wide {
		return schedule.Wide
	}
	return schedule.Tall
}

func (c config) needsBroker() bool {
	return c.telemetry == viaMQTT || c.commands == viaMQTT
}

func (c config) needsSocket() bool {
	return c.telemetry == viaSocket || c.commands == viaSocket
}

func run(ctx context.Context, cfg config, log zerolog.Logger, out io.Writer) error {
	client := backend.New(backend.Options{
		BaseURL:  cfg.backendURL,
		Timeout:  cfg.timeout,
		Username: cfg.backendUser,
		Password: cfg.backendPass,
		Retries:  2,
	}, log)

	// Print circles mode
	if cfg.printCircles {
		return printCircles(ctx, client, log, out)
	}

	collector, err := metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	brokerAddr := ""
	if cfg.needsBroker() {
		brokerAddr = cfg.broker
	}
	tracker := status.NewTracker(time.Now(), status.Config{
		BackendURL:  cfg.backendURL,
		HTTPAddr:    cfg.httpAddr,
		Telemetry:   cfg.telemetry,
		Commands:    cfg.commands,
		Broker:      brokerAddr,
		Orientation: cfg.orientation().String(),
	})

	devices := circle.NewEditor(client, circle.Config{}, tracker, tracker, log)
	reload := func(ctx context.Context) error {
		loaded, err := circle.Load(ctx, client, tracker, log)
		if err != nil {
			return err
		}
		tracker.ReplaceCircles(loaded.Circles)
		devices.Reset(loaded)
		collector.SetCircles(len(loaded.Circles))
		return nil
	}
	if err := reload(ctx); err != nil {
		log.Error().Err(err).Msg("initial configuration load failed, retry via /api/config/reload")
	}

	store := schedule.NewStore(client, cfg.orientation(), log)
	if err := store.Refresh(ctx); err != nil {
		log.Error().Err(err).Msg("failed to load schedule list")
		tracker.SetAlert(alert.Danger("failed to load schedule list"))
	}
	editor := schedule.NewEditor(store, tracker, log, nil)

	handler := telemetry.NewHandler(tracker, collector, log)

	var socket *telemetry.Client
	if cfg.needsSocket() {
		socketURL, err := telemetry.SocketURL(cfg.backendURL)
		if err != nil {
			return fmt.Errorf("socket url: %w", err)
		}
		socket = telemetry.NewClient(socketURL, log)
		if cfg.telemetry == viaSocket {
			socket.Subscribe(handler)
		}
	}

	var broker *mqtt.RealCommander
	if cfg.needsBroker() {
		broker, err = mqtt.NewRealCommander(cfg.broker, cfg.prefix, log)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer broker.Close()
		if cfg.telemetry == viaMQTT {
			if err := broker.Subscribe(handler); err != nil {
				log.Warn().Err(err).Msg("state subscription deferred until connected")
			}
		}
	}

	var commands mqtt.Commander
	switch cfg.commands {
	case viaSocket:
		commands = &mqtt.FallbackCommander{Primary: socket, Secondary: client, Log: log}
	case viaHTTP:
		commands = client
	case viaMQTT:
		commands = broker
	}

	srv := web.New(web.Options{
		Addr:      cfg.httpAddr,
		Tracker:   tracker,
		Devices:   devices,
		Schedules: store,
		Editor:    editor,
		Commands:  commands,
		Prefix:    cfg.prefix,
		Reload:    reload,
		Metrics:   collector,
		Location:  time.Local,
		Log:       log,
	})

	var reader gpio.Reader
	if len(cfg.buttons) > 0 {
		r, err := gpio.NewRealReader(logic.Pins(cfg.buttons))
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer r.Close()
		reader = r
	}

	log.Info().
		Str("version", buildinfo.SourceVersion()).
		Str("backend", cfg.backendURL).
		Str("http", cfg.httpAddr).
		Str("telemetry", cfg.telemetry).
		Str("commands", cfg.commands).
		Int("buttons", len(cfg.buttons)).
		Msg("started")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if socket != nil {
		g.Go(func() error { return socket.Run(gctx) })
	}

	var mqttStatus mqtt.ConnectionStatus
	if broker != nil {
		mqttStatus = broker
	}
	ticker := time.NewTicker(cfg.poll)
	defer ticker.Stop()
	g.Go(func() error {
		return runLoop(gctx, loopDeps{
			reader:     reader,
			buttons:    cfg.buttons,
			tracker:    tracker,
			commands:   commands,
			mqttStatus: mqttStatus,
			metrics:    collector,
			prefix:     cfg.prefix,
			debounce:   cfg.debounce,
			heartbeat:  cfg.heartbeat,
			now:        time.Now,
			log:        log,
		}, ticker.C)
	})

	return g.Wait()
}

func printCircles(ctx context.Context, src circle.Source, log zerolog.Logger, out io.Writer) error {
	loaded, err := circle.Load(ctx, src, nil, log)
	if err != nil {
		return err
	}
	for _, c := range loaded.Circles {
		fmt.Fprintf(out, "%s %s\n", c.MAC, telemetry.FormatStatusLine(telemetry.StatusMessage(c), time.Local))
	}
	return nil
}

// loopDeps is everything the button loop touches.
type loopDeps struct {
	reader     gpio.Reader // nil without buttons
	buttons    []logic.Button
	tracker    *status.Tracker
	commands   mqtt.Commander
	mqttStatus mqtt.ConnectionStatus // nil without a broker
	metrics    metrics.Collector
	prefix     string
	debounce   time.Duration
	heartbeat  time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// runLoop polls the buttons on every tick, toggles circles on presses and
// keeps the connection flags of the tracker current. It returns when ctx is
// cancelled.
func runLoop(ctx context.Context, d loopDeps, tick <-chan time.Time) error {
	detector := logic.NewDetector(len(d.buttons), d.debounce, d.now())

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("shutting down")
			return nil

		case <-tick:
			t := d.now()
			if d.mqttStatus != nil {
				d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
			}

			var pressed []bool
			if d.reader != nil {
				var err error
				pressed, err = d.reader.Read()
				if err != nil {
					d.log.Warn().Err(err).Msg("gpio read error")
					continue
				}
			}

			events := detector.Process(logic.Input{Pressed: pressed, Time: t})
			for _, event := range events {
				b := d.buttons[event.Channel]
				d.log.Debug().Int("pin", b.Pin).Str("event", string(event.Type)).Msg("button")
				if event.Type == logic.EventPress {
					d.metrics.IncButtonPress(b.Pin)
					toggle(ctx, d, b)
				}
			}

			if hb := detector.CheckHeartbeat(t, d.heartbeat); hb != nil {
				snap := d.tracker.Snapshot()
				d.log.Info().
					Dur("uptime", hb.Uptime).
					Int("presses", hb.Counts.Total()).
					Int("telemetry_applied", snap.Counts.Applied).
					Int("telemetry_unknown", snap.Counts.Unknown).
					Bool("socket", snap.SocketConnected).
					Bool("mqtt", snap.MQTTConnected).
					Msg("heartbeat")
			}
		}
	}
}

// toggle flips the switch of the circle bound to b. Failures are logged and
// never stop the loop.
func toggle(ctx context.Context, d loopDeps, b logic.Button) {
	c, ok := d.tracker.Circle(b.MAC)
	if !ok {
		d.log.Warn().Int("pin", b.Pin).Str("mac", b.MAC).Msg("button bound to unknown circle")
		return
	}
	if c.AlwaysOn {
		d.log.Info().Str("mac", c.MAC).Msg("circle is always on, ignoring button")
		return
	}

	cmd, err := mqtt.NewSwitchCommand(d.prefix, c.MAC, logic.ToggleValue(c.RelayOn))
	if err != nil {
		d.log.Error().Err(err).Msg("build switch command")
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = d.commands.SendCommand(sendCtx, cmd)
	d.metrics.IncCommand(mqtt.CmdSwitch, err)
	if err != nil {
		d.log.Error().Err(err).Str("mac", c.MAC).Msg("failed to send switch command")
		d.tracker.SetAlert(alert.Danger(fmt.Sprintf("failed to switch %s", c.Name)))
		return
	}
	d.log.Info().Str("mac", c.MAC).Str("val", cmd.Payload.Val).Msg("switch toggled by button")
}
