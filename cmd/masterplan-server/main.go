package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.uber.org/zap"

	"github.com/masterplanhq/masterplan-server/config"
	"github.com/masterplanhq/masterplan-server/db"
	"github.com/masterplanhq/masterplan-server/gateway"
	"github.com/masterplanhq/masterplan-server/redisprovider"
	"github.com/masterplanhq/masterplan-server/release"
	"github.com/masterplanhq/masterplan-server/release/releaselock"
	"github.com/masterplanhq/masterplan-server/release/releaserepo"
	"github.com/masterplanhq/masterplan-server/resolver"
	"github.com/masterplanhq/masterplan-server/status"
	"github.com/masterplanhq/masterplan-server/store"
)

var log = logger.NewNamed("main")

var flagConfigFile = flag.String("c", "etc/config.yml", "path to config file")

func main() {
	flag.Parse()

	conf, err := config.NewFromFile(*flagConfigFile)
	if err != nil {
		log.Fatal("can't open config file", zap.Error(err))
	}

	a := new(app.App)
	a.Register(conf).
		Register(db.New()).
		Register(redisprovider.New()).
		Register(store.New()).
		Register(releaserepo.New()).
		Register(releaselock.New()).
		Register(resolver.New()).
		Register(release.New()).
		Register(status.NewClient()).
		Register(status.New()).
		Register(gateway.New())

	ctx := context.Background()
	if err = a.Start(ctx); err != nil {
		log.Fatal("can't start app", zap.Error(err))
	}
	log.Info("app started", zap.String("version", a.Version()))

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	sig := <-exit
	log.Info("received exit signal, stopping app...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err = a.Close(ctx); err != nil {
		log.Fatal("close error", zap.Error(err))
	}
	log.Info("app stopped")
}
