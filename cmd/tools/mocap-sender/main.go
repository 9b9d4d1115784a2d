// mocap-sender streams synthetic iFacialMocap datagrams so the receiver can
// be exercised without a phone.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/banshee-data/facecap/internal/monitoring"
)

func main() {
	addr := pflag.StringP("addr", "a", "127.0.0.1:49983", "receiver address")
	rate := pflag.IntP("rate", "r", 60, "frames per second")
	duration := pflag.DurationP("duration", "d", 10*time.Second, "how long to send, 0 until interrupted")
	noHead := pflag.Bool("no-head", false, "send blend shapes only")
	noBlend := pflag.Bool("no-blendshapes", false, "send head pose only")
	pflag.Parse()

	log := monitoring.Named("sender")
	defer monitoring.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		log.Fatal("dial receiver", zap.String("addr", *addr), zap.Error(err))
	}
	defer conn.Close()
	monitoring.Logf("sending to %s at %d frames/s", *addr, *rate)

	s := sender{
		out:        conn,
		rate:       *rate,
		head:       !*noHead,
		blendShape: !*noBlend,
		log:        log,
	}
	n, err := s.run(ctx)
	if err != nil {
		log.Error("send failed", zap.Int("datagrams", n), zap.Error(err))
		return
	}
	log.Info("done", zap.Int("datagrams", n), zap.String("addr", *addr))
}
