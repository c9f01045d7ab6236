// Command broadcast-node is a thin demo binary wiring an in-memory or
// libp2p bus to the broadcast core, in the shape of the teacher repo's
// cmd/apps-web/main.go: flag-parsed, no config file, no bootstrap sequence.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Mino75/broadcast-mesh/internal/broadcast"
	"github.com/Mino75/broadcast-mesh/internal/channel"
	"github.com/Mino75/broadcast-mesh/internal/identity"
	"github.com/Mino75/broadcast-mesh/internal/logging"
	"github.com/Mino75/broadcast-mesh/internal/metrics"
	"github.com/Mino75/broadcast-mesh/internal/presence"
)

func main() {
	mode := flag.String("mode", "listen", "listen or request")
	name := flag.String("name", "echo", "broadcast channel name")
	body := flag.String("body", "ping", "request body (request mode only)")
	expect := flag.String("expect", "", "comma-separated expected hostnames (request mode only, default: presence snapshot)")
	connectTimeout := flag.Duration("connect-timeout", 5*time.Second, "connect timeout (request mode only)")
	idleTimeout := flag.Duration("idle-timeout", 5*time.Second, "idle timeout (request mode only)")
	transport := flag.String("transport", "memory", "memory or libp2p")
	listenAddr := flag.String("listen-addr", "/ip4/0.0.0.0/tcp/0", "libp2p listen multiaddr (libp2p transport only)")
	flag.Parse()

	logger := logging.New(os.Stdout)
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)

	bus, self, err := buildTransport(*transport, *listenAddr, logger, rec)
	if err != nil {
		log.Fatalf("build transport: %v", err)
	}

	deps := broadcast.Deps{
		Bus:      bus,
		Self:     self,
		Presence: presence.NewMemoryRegistry(self.Hostname()),
		Log:      logger,
		Metrics:  rec,
	}

	switch *mode {
	case "listen":
		l, err := broadcast.Listen(deps, *name, func(reqBody []byte, reply *broadcast.ReplyChannel) {
			logger.Trace(logging.Fields{"body": string(reqBody)}, "handling request")
			if err := reply.Reply([]byte("echo: " + string(reqBody))); err != nil {
				logger.Error(logging.Fields{"error": err.Error()}, "reply failed")
			}
			if err := reply.End(); err != nil {
				logger.Error(logging.Fields{"error": err.Error()}, "end failed")
			}
		})
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		defer l.Close()
		logger.Trace(logging.Fields{"name": *name, "host": self.Hostname()}, "listening")
		select {}

	case "request":
		opts := broadcast.Options{
			ConnectTimeout: *connectTimeout,
			IdleTimeout:    *idleTimeout,
			OnAck:          func(host string) { logger.Trace(logging.Fields{"host": host}, "ack") },
			OnData: func(host string, data []byte) {
				logger.Trace(logging.Fields{"host": host, "body": string(data)}, "data")
			},
			OnHostEnd: func(host string, responses [][]byte) {
				logger.Trace(logging.Fields{"host": host, "count": len(responses)}, "host end")
			},
		}
		if *expect != "" {
			opts.Expect = strings.Split(*expect, ",")
		}

		conv := broadcast.Request(deps, *name, []byte(*body), opts)
		result := conv.Wait()
		if result.Err != nil {
			log.Fatalf("request failed: %v (still expecting %v)", result.Err, result.Expecting)
		}
		logger.Trace(logging.Fields{"responses": len(result.Responses), "expecting": result.Expecting}, "request complete")

	default:
		log.Fatalf("unknown mode %q, want listen or request", *mode)
	}
}

func buildTransport(transport, listenAddr string, logger logging.Logger, rec *metrics.Recorder) (channel.Bus, identity.Self, error) {
	switch transport {
	case "memory":
		self, err := identity.FromOS()
		if err != nil {
			return nil, nil, err
		}
		return channel.NewMemoryBus().WithMetrics(rec), self, nil

	case "libp2p":
		bus, err := channel.NewLibP2PBus(context.Background(), channel.LibP2POptions{
			ListenAddrs: []string{listenAddr},
			EnableMDNS:  true,
			Metrics:     rec,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return bus, identity.Static(bus.Hostname()), nil

	default:
		return nil, nil, errUnknownTransport(transport)
	}
}

type errUnknownTransport string

func (e errUnknownTransport) Error() string { return "unknown transport: " + string(e) }
