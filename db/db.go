package db

import (
	"context"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CName = "db"

var log = logger.NewNamed(CName)

func New() Database {
	return new(database)
}

type configGetter interface {
	GetMongo() Mongo
}

type Mongo struct {
	Connect  string `yaml:"connect"`
	Database string `yaml:"database"`
}

type Database interface {
	Db() *mongo.Database
	Tx(ctx context.Context, fn func(txCtx mongo.SessionContext) error) error
	app.ComponentRunnable
}

type database struct {
	conf   Mongo
	client *mongo.Client
	db     *mongo.Database
}

func (d *database) Init(a *app.App) (err error) {
	d.conf = a.MustComponent("config").(configGetter).GetMongo()
	// mongo.Connect doesn't dial, so the handle is usable by dependent
	// components during their Init
	if d.client, err = mongo.Connect(context.Background(), options.Client().ApplyURI(d.conf.Connect)); err != nil {
		return
	}
	d.db = d.client.Database(d.conf.Database)
	return
}

func (d *database) Name() (name string) {
	return CName
}

func (d *database) Run(ctx context.Context) (err error) {
	return d.client.Ping(ctx, nil)
}

func (d *database) Db() *mongo.Database {
	return d.db
}

func (d *database) Tx(ctx context.Context, fn func(txCtx mongo.SessionContext) error) error {
	return d.client.UseSession(ctx, func(sessionCtx mongo.SessionContext) error {
		if err := sessionCtx.StartTransaction(); err != nil {
			return err
		}
		if err := fn(sessionCtx); err != nil {
			if abortErr := sessionCtx.AbortTransaction(sessionCtx); abortErr != nil {
				log.WarnCtx(ctx, "tx abort error")
			}
			return err
		}
		return sessionCtx.CommitTransaction(sessionCtx)
	})
}

func (d *database) Close(ctx context.Context) (err error) {
	return d.client.Disconnect(ctx)
}
