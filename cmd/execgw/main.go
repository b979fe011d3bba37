package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"execgw/internal/adapter"
	"execgw/internal/adapter/enum"
	"execgw/internal/batch"
	"execgw/internal/bus"
	"execgw/internal/chaos"
	"execgw/internal/duplex"
	"execgw/internal/journal"
	"execgw/internal/obs"
	"execgw/internal/og"
	"execgw/internal/ops"
	"execgw/internal/order"
	"execgw/internal/order/delegator/rest"
	"execgw/internal/publisher"
	"execgw/internal/resolver"
	"execgw/internal/risk"
	"execgw/internal/venue/hyperliquid"
	"execgw/pkg/conn"
	"execgw/pkg/websocket"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML/JSON config (EXECGW_* env overrides)")
	migrate := flag.Bool("migrate", false, "Create journal tables and exit")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		exit("load config, err: %+v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.AppName,
			ServerAddress:   cfg.Profiling.Server,
			Tags:            map[string]string{"mainnet": boolTag(cfg.Venue.Mainnet)},
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			exit("start pyroscope, err: %+v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	if *migrate {
		if err := runMigrate(ctx, cfg.Journal); err != nil {
			exit("migrate journal, err: %+v", err)
		}
		return
	}

	if err := run(ctx, cfg); err != nil {
		exit("execgw stopped, err: %+v", err)
	}
	logs.Info("execgw stopped")
}

func run(ctx context.Context, cfg ops.Config) error {
	metrics := obs.NewMetrics()

	signer, err := hyperliquid.NewSigner(cfg.Venue.PrivateKey, cfg.Venue.Mainnet, cfg.Venue.Vault)
	if err != nil {
		return err
	}
	account := cfg.Venue.Account
	if account == "" {
		account = signer.Address()
	}
	logs.Infof("execgw starting, signer: %s, account: %s, mainnet: %t", signer.Address(), account, cfg.Venue.Mainnet)

	httpDelegator := rest.NewDelegator(&http.Client{Timeout: 15 * time.Second}, cfg.Venue.RESTURL)
	info := hyperliquid.NewInfo(httpDelegator, account)
	assets := resolver.New(info, cfg.Resolver.TTL)
	if err := assets.Refresh(ctx); err != nil {
		logs.Warnf("initial asset refresh, err: %+v", err)
	}

	codec := hyperliquid.NewCodec(cfg.Venue.Vault, cfg.Batch.MaxBatch)

	var dialer websocket.Dialer = websocket.NewDialer(cfg.Venue.WSURL, nil, int64(cfg.Duplex.ReadBuffer))
	if cfg.Chaos.Enabled {
		cd, err := chaos.NewDialer(dialer, cfg.Chaos)
		if err != nil {
			return err
		}
		logs.Warnf("chaos enabled on inbound frames, drop: %.3f, duplicate: %.3f, reorder: %d",
			cfg.Chaos.DropRate, cfg.Chaos.DuplicateRate, cfg.Chaos.ReorderWindow)
		dialer = cd
	}

	var gateway *og.Gateway
	client, err := duplex.NewClient(duplex.Config{
		Dialer:         dialer,
		Codec:          codec,
		WriteQueueSize: cfg.Duplex.WriteQueue,
		WriteOverflow:  websocket.OverflowDropNewest,
		PushQueueSize:  cfg.Duplex.PushQueue,
		ReadBufferSize: cfg.Duplex.ReadBuffer,
		PingInterval:   cfg.Duplex.PingInterval,
		OnPush:         func(e bus.Event) { gateway.HandleEvent(e) },
		Metrics:        metrics,
	})
	if err != nil {
		return err
	}
	supervisor := duplex.NewSupervisor(client, duplex.SupervisorConfig{
		Backoff: websocket.Backoff{
			Min:    cfg.Reconnect.Min,
			Max:    cfg.Reconnect.Max,
			Factor: cfg.Reconnect.Factor,
			Jitter: cfg.Reconnect.Jitter,
		},
		StaleAfter: cfg.Duplex.StaleAfter,
		Metrics:    metrics,
	})
	for _, topic := range []string{hyperliquid.ChannelOrderUpdates, hyperliquid.ChannelUserFills} {
		if err := supervisor.Subscribe(topic, map[string]string{"user": account}); err != nil {
			logs.Warnf("subscribe %s, err: %+v", topic, err)
		}
	}

	coordinator, err := batch.NewCoordinator(batch.Config{
		Interval:         cfg.Batch.Interval,
		RateLimitBackoff: cfg.Batch.RateLimitBackoff,
		QueueSize:        cfg.Batch.QueueSize,
		PoolSize:         cfg.Batch.PoolSize,
		SignTimeout:      cfg.Batch.SignTimeout,
		PostTimeout:      cfg.Duplex.PostTimeout,
	}, batch.Deps{
		Transport: client,
		Fallback:  httpDelegator,
		Codec:     codec,
		Signer:    signer,
		Router:    hyperliquid.NewRouter(assets),
		Nonce:     hyperliquid.NewNonce(),
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}

	tracker := og.NewTracker(og.TrackerConfig{
		AutoCleanup:   cfg.Tracker.AutoCleanup,
		NotFoundLimit: cfg.Tracker.NotFoundLimit,
		Metrics:       metrics,
	})
	confirmer, err := order.NewUsecase(order.Config{
		Workers:  cfg.Confirm.Workers,
		Attempts: cfg.Confirm.Attempts,
		Interval: cfg.Confirm.Interval,
	}, info, tracker)
	if err != nil {
		return err
	}
	gateway, err = og.NewGateway(og.GatewayConfig{
		ExpireAfter:   cfg.Tracker.ExpireAfter,
		SweepInterval: cfg.Tracker.SweepInterval,
	}, og.GatewayDeps{
		Tracker:   tracker,
		Submitter: coordinator,
		Decoder:   codec,
		Confirmer: confirmer,
		Risk:      risk.NewEngine(cfg.Risk),
	})
	if err != nil {
		return err
	}
	gateway.OnEvent(logEvent)

	eg, ctx := errgroup.WithContext(ctx)

	if cfg.Journal.Enabled {
		db, err := openJournal(ctx, cfg.Journal)
		if err != nil {
			return err
		}
		defer db.Close()
		j := journal.New(journal.NewGormStore(db.DB()), cfg.Journal.QueueSize)
		gateway.OnEvent(j.Listener())
		eg.Go(func() error { return j.Run(ctx) })
	}
	if cfg.Kafka.Enabled {
		p := publisher.New(publisher.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), cfg.Kafka.QueueSize)
		gateway.OnEvent(p.Listener())
		eg.Go(func() error { return p.Run(ctx) })
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(obs.NewCollector(cfg.Metrics.Namespace, metrics))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})
	eg.Go(func() error { return supervisor.Run(ctx) })
	eg.Go(func() error { return coordinator.Run(ctx) })
	eg.Go(func() error { return confirmer.Run(ctx) })
	eg.Go(func() error { return gateway.Run(ctx) })
	eg.Go(func() error {
		<-ctx.Done()
		return client.Close()
	})
	if cfg.Order.Count > 0 {
		eg.Go(func() error { return runSmokeOrders(ctx, gateway, client, cfg.Order) })
	}

	return eg.Wait()
}

// runSmokeOrders submits the configured startup orders once the duplex
// connection is up and cancels them after CancelAfter.
func runSmokeOrders(ctx context.Context, gateway *og.Gateway, client *duplex.Client, cfg ops.OrderConfig) error {
	side := enum.OrderSideBuy
	if strings.EqualFold(cfg.Side, "sell") {
		side = enum.OrderSideSell
	}
	tif, ok := adapter.ParseTimeInForce(cfg.TimeInForce)
	if !ok {
		logs.Errorf("unknown order time in force %q", cfg.TimeInForce)
		return nil
	}

	for !client.Connected() {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}

	for i := range cfg.Count {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(cfg.Interval):
			}
		}
		rec := adapter.OrderRecord{
			ClientOrderID: adapter.NewStr64(adapter.NewClientOrderID()),
			Symbol:        adapter.NewStr64(cfg.Symbol),
			Side:          side,
			Kind:          enum.OrderKindLimit,
			TimeInForce:   tif,
			Quantity:      cfg.Quantity,
			Price:         cfg.Price,
			HasPrice:      true,
		}
		id := rec.ClientOrderID.String()
		out := gateway.Submit(ctx, rec, cfg.Timeout)
		logs.Infof("order %s submitted, outcome: %s, venue id: %s, reason: %s", id, out.Code, out.VenueOrderID, out.Reason)
		if !out.OK || cfg.CancelAfter <= 0 {
			continue
		}
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.CancelAfter):
			}
			out := gateway.Cancel(ctx, id, cfg.Timeout)
			logs.Infof("order %s cancel, outcome: %s, reason: %s", id, out.Code, out.Reason)
		}()
	}
	return nil
}

func openJournal(ctx context.Context, cfg ops.JournalConfig) (*conn.Client, error) {
	return conn.New(ctx, conn.Option{
		Host:         cfg.Host,
		Port:         cfg.Port,
		User:         cfg.User,
		Password:     cfg.Password,
		Database:     cfg.Database,
		SSLMode:      cfg.SSLMode,
		MaxOpenConns: cfg.MaxOpenConns,
		Params:       map[string]string{"application_name": "execgw"},
	})
}

func runMigrate(ctx context.Context, cfg ops.JournalConfig) error {
	db, err := openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := journal.NewGormStore(db.DB()).Migrate(ctx); err != nil {
		return err
	}
	logs.Info("journal tables migrated")
	return nil
}

func logEvent(e og.Event) {
	o := e.Order
	switch e.Kind {
	case og.EventFilled:
		logs.Infof("order %s fill %s, qty: %v, px: %v, filled: %v/%v", o.ClientOrderID, e.Fill.ID, e.Fill.Quantity, e.Fill.Price, o.FilledQty, o.Quantity)
	case og.EventFailed, og.EventExpired:
		logs.Warnf("order %s %s, reason: %s", o.ClientOrderID, o.State, o.Reason)
	default:
		logs.Debugf("order %s %s, state: %s", o.ClientOrderID, e.Kind, o.State)
	}
}

func exit(format string, args ...any) {
	logs.Errorf(format, args...)
	os.Exit(1)
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
